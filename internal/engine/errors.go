package engine

import "errors"

var (
	ErrEmptyID           = errors.New("empty action id")
	ErrNotConfigured     = errors.New("engine not configured")
	ErrNotStopped        = errors.New("engine not stopped")
	ErrNotRunning        = errors.New("engine not running")
	ErrNotPaused         = errors.New("engine not paused")
	ErrSenderUnavailable = errors.New("action sender unavailable")
	ErrStartTimeout      = errors.New("worker failed to start in time")
	ErrStopTimeout       = errors.New("worker did not stop in time")
)
