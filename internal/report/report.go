// Package report logs periodic engine summaries and prunes stored history
// on cron schedules.
package report

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"autotap/internal/engine"
	"autotap/internal/storage"
	logx "autotap/pkg/logx"
)

const jobTimeout = 10 * time.Second

// StatsSource is the engine surface the reporter reads.
type StatsSource interface {
	State() engine.State
	Stats() engine.StatsSnapshot
}

// Config holds the report schedules.
type Config struct {
	// Every is a cron spec or @every descriptor for the summary job.
	// Empty disables the summary.
	Every string

	// PruneSchedule triggers history pruning. Empty means daily at 03:00.
	PruneSchedule string

	// Retention is how much history pruning keeps.
	Retention time.Duration
}

type Service struct {
	cfg    Config
	src    StatsSource
	store  storage.Store
	log    logx.Logger
	parser cron.Parser

	mu sync.Mutex
	c  *cron.Cron
}

func New(cfg Config, src StatsSource, store storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:   cfg,
		src:   src,
		store: store,
		log:   log.With(logx.String("comp", "report")),
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Start registers the configured jobs and starts the cron runner.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	c := cron.New(cron.WithParser(s.parser))

	if spec := strings.TrimSpace(s.cfg.Every); spec != "" {
		if _, err := c.AddFunc(spec, s.summary); err != nil {
			return fmt.Errorf("summary schedule %q: %w", spec, err)
		}
	}
	if s.store != nil {
		spec := strings.TrimSpace(s.cfg.PruneSchedule)
		if spec == "" {
			spec = "0 3 * * *"
		}
		if _, err := c.AddFunc(spec, s.prune); err != nil {
			return fmt.Errorf("prune schedule %q: %w", spec, err)
		}
	}

	c.Start()
	s.c = c
	return nil
}

// Stop halts the cron runner and waits for in-flight jobs.
func (s *Service) Stop() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

func (s *Service) summary() {
	if s.src == nil {
		return
	}
	snap := s.src.Stats()
	fields := []logx.Field{
		logx.String("state", s.src.State().String()),
		logx.Uint64("total", snap.Total),
		logx.Uint64("succeeded", snap.Succeeded),
		logx.Uint64("failed", snap.Failed),
		logx.Float64("success_rate", snap.SuccessRate),
		logx.Duration("uptime", snap.Uptime),
	}
	if snap.RateLimited > 0 {
		fields = append(fields, logx.Uint64("errors_rate_limited", snap.RateLimited))
	}

	if s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		counts, err := s.store.CountSince(ctx, time.Now().Add(-time.Hour))
		cancel()
		if err == nil {
			parts := make([]string, 0, len(counts))
			for _, c := range counts {
				parts = append(parts, fmt.Sprintf("%s=%d/%d", c.Action, c.Succeeded, c.Total))
			}
			fields = append(fields, logx.String("last_hour", strings.Join(parts, " ")))
		}
	}

	s.log.Info("automation summary", fields...)
}

func (s *Service) prune() {
	if s.store == nil {
		return
	}
	retention := s.cfg.Retention
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.store.PruneBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		s.log.Warn("history prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("history pruned", logx.Int64("rows", n), logx.Duration("retention", retention))
	}
}
