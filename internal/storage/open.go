package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "autotap/pkg/logx"
)

// Store is the persistence API used by the recorder and report services.
type Store interface {
	AppendExecution(ctx context.Context, e ExecutionEntry) error
	Recent(ctx context.Context, limit int) ([]ExecutionEntry, error)
	CountSince(ctx context.Context, since time.Time) ([]ActionCount, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
