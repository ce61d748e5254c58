// Package sender provides the input-injection backends behind the engine's
// Sender capability.
//
// Two drivers exist: "exec" spawns an external injector binary (xdotool by
// default) for every firing, and "log" is a dry-run backend that only logs.
package sender

import (
	"errors"
	"strings"
	"time"

	"autotap/internal/engine"
	logx "autotap/pkg/logx"
)

// Config selects and tunes the injection backend.
type Config struct {
	// Driver: "exec" (default) or "log".
	Driver string

	// Command is the injector binary for the exec driver. Default "xdotool".
	Command string

	// Args are passed before the action ID; the placeholder "{action}"
	// is substituted, otherwise the ID is appended. Default ["key"].
	Args []string

	// Timeout bounds a single injection. Default 3s.
	Timeout time.Duration
}

// Open builds the configured sender.
func Open(cfg Config, log logx.Logger) (engine.Sender, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "exec":
		return newExecSender(cfg, log), nil
	case "log", "dry-run":
		return &logSender{log: log.With(logx.String("comp", "sender"))}, nil
	default:
		return nil, errors.New("unknown sender driver: " + cfg.Driver)
	}
}

// logSender accepts every action and only logs it. Used for dry runs and as a
// safe default in environments without an injector binary.
type logSender struct {
	log logx.Logger
}

func (s *logSender) Send(actionID string) bool {
	s.log.Info("dry-run send", logx.String("action", actionID))
	return true
}

func (s *logSender) Available() bool { return true }
