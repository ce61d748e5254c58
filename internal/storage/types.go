package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures execution-history storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite busy handler; 0 means default
}

// ExecutionEntry records one firing attempt.
// Keep it compact and schema-stable.
type ExecutionEntry struct {
	At     time.Time
	Action string
	OK     bool
	Error  string
	TookMS int64
}

// ActionCount aggregates firings per action over a window.
type ActionCount struct {
	Action    string
	Total     int64
	Succeeded int64
}
