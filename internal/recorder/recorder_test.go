package recorder

import (
	"context"
	"sync"
	"testing"
	"time"

	"autotap/internal/engine"
	"autotap/internal/eventbus"
	"autotap/internal/storage"
	logx "autotap/pkg/logx"
)

// memStore records appends in memory; other Store methods are unused here.
type memStore struct {
	mu      sync.Mutex
	entries []storage.ExecutionEntry
}

func (m *memStore) AppendExecution(ctx context.Context, e storage.ExecutionEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memStore) Recent(ctx context.Context, limit int) ([]storage.ExecutionEntry, error) {
	return nil, nil
}

func (m *memStore) CountSince(ctx context.Context, since time.Time) ([]storage.ActionCount, error) {
	return nil, nil
}

func (m *memStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) snapshot() []storage.ExecutionEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.ExecutionEntry(nil), m.entries...)
}

func TestRecorderPersistsFireEvents(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	store := &memStore{}
	rec := New(bus, store, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rec.Run(ctx)
	}()

	// Give the subscriber time to attach before publishing.
	time.Sleep(50 * time.Millisecond)

	now := time.Now()
	bus.Publish(eventbus.Event{
		Type: engine.EventFired,
		Data: engine.FireEvent{Action: "alpha", At: now, OK: true, Took: 12 * time.Millisecond},
	})
	bus.Publish(eventbus.Event{
		Type: engine.EventFailed,
		Data: engine.FireEvent{Action: "beta", At: now, OK: false, Error: "injector exited 1"},
	})
	// State events must not be persisted.
	bus.Publish(eventbus.Event{
		Type: engine.EventState,
		Data: engine.StateEvent{Old: "stopped", New: "running"},
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(store.snapshot()) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	got := store.snapshot()
	if len(got) != 2 {
		t.Fatalf("stored %d entries, want 2", len(got))
	}
	if got[0].Action != "alpha" || !got[0].OK || got[0].TookMS != 12 {
		t.Fatalf("first entry = %+v", got[0])
	}
	if got[1].Action != "beta" || got[1].OK || got[1].Error == "" {
		t.Fatalf("second entry = %+v", got[1])
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("recorder did not stop")
	}
}

func TestRecorderNoStorageIsInert(t *testing.T) {
	t.Parallel()
	rec := New(eventbus.New(), nil, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rec.Run(ctx)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("recorder did not stop without storage")
	}
}
