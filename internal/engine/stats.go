package engine

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Error-log memory policy: a hard cap on stored entries, time-based expiry,
// and a per-minute admission limit. Rate-limited and evicted errors are still
// counted in the aggregate totals even when not stored verbatim.
const (
	maxStoredErrors   = 500
	errorExpiry       = 10 * time.Minute
	errorsPerMinute   = 30
	errorBurstAllowed = errorsPerMinute
)

type errorEntry struct {
	at  time.Time
	msg string
}

// Stats tracks execution counters and a bounded error log for one engine.
//
// The engine owns it exclusively; external consumers read through Snapshot().
type Stats struct {
	mu sync.Mutex

	total     uint64
	succeeded uint64
	failed    uint64

	startedAt     time.Time
	lastExecution time.Time

	errors      []errorEntry
	totalErrors uint64
	rateLimited uint64
	limiter     *rate.Limiter
}

func newStats() *Stats {
	return &Stats{
		limiter: rate.NewLimiter(rate.Every(time.Minute/errorsPerMinute), errorBurstAllowed),
	}
}

// StatsSnapshot is a read-only view of Stats.
type StatsSnapshot struct {
	Total     uint64
	Succeeded uint64
	Failed    uint64

	StartedAt     time.Time
	LastExecution time.Time
	Uptime        time.Duration
	SuccessRate   float64

	Errors      []string
	TotalErrors uint64
	RateLimited uint64
}

func (s *Stats) reset(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = 0
	s.succeeded = 0
	s.failed = 0
	s.startedAt = now
	s.lastExecution = time.Time{}
	s.errors = nil
	s.totalErrors = 0
	s.rateLimited = 0
	s.limiter = rate.NewLimiter(rate.Every(time.Minute/errorsPerMinute), errorBurstAllowed)
}

func (s *Stats) recordSuccess(now time.Time) {
	s.mu.Lock()
	s.total++
	s.succeeded++
	s.lastExecution = now
	s.mu.Unlock()
}

func (s *Stats) recordFailure(now time.Time, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.failed++
	s.totalErrors++

	s.expireLocked(now)

	if !s.limiter.AllowN(now, 1) {
		s.rateLimited++
		return
	}

	s.errors = append(s.errors, errorEntry{at: now, msg: msg})
	if len(s.errors) > maxStoredErrors {
		s.errors = s.errors[len(s.errors)-maxStoredErrors:]
	}
}

// expireLocked drops stored errors older than the expiry window.
func (s *Stats) expireLocked(now time.Time) {
	cutoff := now.Add(-errorExpiry)
	i := 0
	for i < len(s.errors) && s.errors[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.errors = append(s.errors[:0], s.errors[i:]...)
	}
}

// Snapshot returns a copy of the current statistics.
func (s *Stats) Snapshot(now time.Time) StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked(now)

	errs := make([]string, len(s.errors))
	for i, e := range s.errors {
		errs[i] = e.msg
	}

	successRate := 100.0
	if s.total > 0 {
		successRate = float64(s.succeeded) / float64(s.total) * 100.0
	}
	var up time.Duration
	if !s.startedAt.IsZero() {
		up = now.Sub(s.startedAt)
	}

	return StatsSnapshot{
		Total:         s.total,
		Succeeded:     s.succeeded,
		Failed:        s.failed,
		StartedAt:     s.startedAt,
		LastExecution: s.lastExecution,
		Uptime:        up,
		SuccessRate:   successRate,
		Errors:        errs,
		TotalErrors:   s.totalErrors,
		RateLimited:   s.rateLimited,
	}
}
