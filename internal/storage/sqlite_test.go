package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "autotap/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q): %v", driver, err)
		}
		if st != nil {
			t.Fatalf("Open(%q) returned a store, want nil", driver)
		}
	}
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver accepted")
	}
}

func TestAppendAndRecent(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 5; i++ {
		e := ExecutionEntry{
			At:     base.Add(time.Duration(i) * time.Second),
			Action: "alpha",
			OK:     i%2 == 0,
			TookMS: int64(i),
		}
		if !e.OK {
			e.Error = "injector exited 1"
		}
		if err := st.AppendExecution(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := st.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("recent = %d entries, want 3", len(got))
	}
	// Newest first.
	if got[0].TookMS != 4 {
		t.Fatalf("first entry took_ms = %d, want 4", got[0].TookMS)
	}
	if got[1].OK || got[1].Error == "" {
		t.Fatalf("failure row lost its error: %+v", got[1])
	}
}

func TestCountSince(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	entries := []ExecutionEntry{
		{At: now.Add(-2 * time.Hour), Action: "old", OK: true},
		{At: now.Add(-time.Minute), Action: "a", OK: true},
		{At: now.Add(-30 * time.Second), Action: "a", OK: false, Error: "boom"},
		{At: now.Add(-10 * time.Second), Action: "b", OK: true},
	}
	for _, e := range entries {
		if err := st.AppendExecution(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	counts, err := st.CountSince(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("counts = %+v, want 2 actions", counts)
	}
	if counts[0].Action != "a" || counts[0].Total != 2 || counts[0].Succeeded != 1 {
		t.Fatalf("action a counts = %+v", counts[0])
	}
	if counts[1].Action != "b" || counts[1].Total != 1 || counts[1].Succeeded != 1 {
		t.Fatalf("action b counts = %+v", counts[1])
	}
}

func TestCountSinceSubSecondBoundary(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	// Whole-second and fractional timestamps inside the same second must
	// compare by actual instant, not by any encoded representation.
	sec := time.Unix(1_700_000_000, 0)
	entries := []ExecutionEntry{
		{At: sec.Add(-300 * time.Millisecond), Action: "before", OK: true},
		{At: sec, Action: "exact", OK: true},
		{At: sec.Add(500 * time.Millisecond), Action: "after", OK: true},
	}
	for _, e := range entries {
		if err := st.AppendExecution(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	counts, err := st.CountSince(ctx, sec)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("counts = %+v, want exact and after", counts)
	}
	for _, c := range counts {
		if c.Action == "before" {
			t.Fatalf("entry before the cutoff counted: %+v", counts)
		}
	}

	n, err := st.PruneBefore(ctx, sec.Add(500*time.Millisecond))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 2 {
		t.Fatalf("pruned %d rows, want 2", n)
	}
	left, err := st.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(left) != 1 || left[0].Action != "after" {
		t.Fatalf("left = %+v, want only the entry at the cutoff", left)
	}
	if !left[0].At.Equal(sec.Add(500 * time.Millisecond)) {
		t.Fatalf("round-tripped instant = %v, want %v", left[0].At, sec.Add(500*time.Millisecond))
	}
}

func TestPruneBefore(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, at := range []time.Time{now.Add(-48 * time.Hour), now.Add(-25 * time.Hour), now.Add(-time.Hour)} {
		if err := st.AppendExecution(ctx, ExecutionEntry{At: at, Action: "a", OK: true}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	n, err := st.PruneBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 2 {
		t.Fatalf("pruned %d rows, want 2", n)
	}
	left, err := st.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(left) != 1 {
		t.Fatalf("left = %d rows, want 1", len(left))
	}
}
