// Package recorder drains engine events off the bus and persists firing
// history to storage.
package recorder

import (
	"context"
	"time"

	"autotap/internal/engine"
	"autotap/internal/eventbus"
	"autotap/internal/storage"
	logx "autotap/pkg/logx"
)

// appendTimeout bounds one storage write so a wedged database cannot stall
// the drain loop indefinitely.
const appendTimeout = 2 * time.Second

type Recorder struct {
	bus   eventbus.Bus
	store storage.Store
	log   logx.Logger
}

func New(bus eventbus.Bus, store storage.Store, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{bus: bus, store: store, log: log.With(logx.String("comp", "recorder"))}
}

// Run drains bus events until ctx is done. It is a no-op when storage is
// disabled.
func (r *Recorder) Run(ctx context.Context) error {
	if r.store == nil || r.bus == nil {
		<-ctx.Done()
		return nil
	}

	events, unsub := r.bus.Subscribe(128)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.handle(ctx, ev)
		}
	}
}

func (r *Recorder) handle(ctx context.Context, ev eventbus.Event) {
	switch ev.Type {
	case engine.EventFired, engine.EventFailed:
	default:
		return
	}
	fe, ok := ev.Data.(engine.FireEvent)
	if !ok {
		return
	}

	wctx, cancel := context.WithTimeout(ctx, appendTimeout)
	defer cancel()
	err := r.store.AppendExecution(wctx, storage.ExecutionEntry{
		At:     fe.At,
		Action: fe.Action,
		OK:     fe.OK,
		Error:  fe.Error,
		TookMS: fe.Took.Milliseconds(),
	})
	if err != nil {
		r.log.Warn("history append failed", logx.String("action", fe.Action), logx.Err(err))
	}
}
