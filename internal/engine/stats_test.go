package engine

import (
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestStatsBoundedErrorLogUnderBurst(t *testing.T) {
	t.Parallel()
	s := newStats()
	now := time.Unix(5000, 0)
	s.reset(now)

	// 600 failures inside one minute: the admission limiter keeps only a
	// handful, the rest are counted but not stored.
	for i := 0; i < 600; i++ {
		s.recordFailure(now.Add(time.Duration(i)*50*time.Millisecond), "send failed")
	}

	snap := s.Snapshot(now.Add(31 * time.Second))
	if len(snap.Errors) > maxStoredErrors {
		t.Fatalf("stored errors = %d, want <= %d", len(snap.Errors), maxStoredErrors)
	}
	if len(snap.Errors) == 0 {
		t.Fatal("stored errors wiped to zero; want at least one retained")
	}
	if snap.TotalErrors != 600 {
		t.Fatalf("total errors = %d, want 600", snap.TotalErrors)
	}
	if snap.RateLimited == 0 {
		t.Fatal("rate limited count = 0, want the burst excess counted")
	}
	if snap.RateLimited+uint64(len(snap.Errors)) != 600 {
		t.Fatalf("stored (%d) + rate limited (%d) != 600", len(snap.Errors), snap.RateLimited)
	}
	if snap.Failed != 600 {
		t.Fatalf("failed counter = %d, want 600", snap.Failed)
	}
}

func TestStatsRingCap(t *testing.T) {
	t.Parallel()
	s := newStats()
	now := time.Unix(5000, 0)
	s.reset(now)
	// Disable admission limiting so the ring cap itself is exercised.
	s.limiter = rate.NewLimiter(rate.Inf, 0)

	for i := 0; i < maxStoredErrors+100; i++ {
		s.recordFailure(now.Add(time.Duration(i)*time.Millisecond), "boom")
	}
	snap := s.Snapshot(now.Add(time.Second))
	if len(snap.Errors) != maxStoredErrors {
		t.Fatalf("stored errors = %d, want exactly %d", len(snap.Errors), maxStoredErrors)
	}
	if snap.TotalErrors != uint64(maxStoredErrors+100) {
		t.Fatalf("total errors = %d, want %d", snap.TotalErrors, maxStoredErrors+100)
	}
}

func TestStatsErrorExpiry(t *testing.T) {
	t.Parallel()
	s := newStats()
	now := time.Unix(5000, 0)
	s.reset(now)

	s.recordFailure(now, "old failure")
	snap := s.Snapshot(now.Add(errorExpiry + time.Minute))
	if len(snap.Errors) != 0 {
		t.Fatalf("stored errors = %d, want 0 after expiry", len(snap.Errors))
	}
	if snap.TotalErrors != 1 {
		t.Fatalf("total errors = %d, want 1 (aggregate survives expiry)", snap.TotalErrors)
	}
}

func TestStatsCountersAndReset(t *testing.T) {
	t.Parallel()
	s := newStats()
	now := time.Unix(5000, 0)
	s.reset(now)

	s.recordSuccess(now.Add(time.Second))
	s.recordSuccess(now.Add(2 * time.Second))
	s.recordFailure(now.Add(3*time.Second), "nope")

	snap := s.Snapshot(now.Add(4 * time.Second))
	if snap.Total != 3 || snap.Succeeded != 2 || snap.Failed != 1 {
		t.Fatalf("counters = %d/%d/%d, want 3/2/1", snap.Total, snap.Succeeded, snap.Failed)
	}
	if snap.SuccessRate < 66 || snap.SuccessRate > 67 {
		t.Fatalf("success rate = %.2f, want ~66.67", snap.SuccessRate)
	}
	if !snap.LastExecution.Equal(now.Add(2 * time.Second)) {
		t.Fatalf("last execution = %v, want %v", snap.LastExecution, now.Add(2*time.Second))
	}

	s.reset(now.Add(time.Minute))
	snap = s.Snapshot(now.Add(time.Minute))
	if snap.Total != 0 || snap.Failed != 0 || len(snap.Errors) != 0 || snap.TotalErrors != 0 {
		t.Fatalf("reset left residue: %+v", snap)
	}
	if snap.SuccessRate != 100 {
		t.Fatalf("success rate after reset = %.2f, want 100 (vacuous)", snap.SuccessRate)
	}
}
