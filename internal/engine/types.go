package engine

import (
	"fmt"
	"strings"
	"time"
)

// Validation bounds for actions and settings.
const (
	MinInterval = 100 * time.Millisecond
	MaxInterval = time.Hour

	MinFailureLimit = 1
	MaxFailureLimit = 100

	// defaultFailureLimit applies when an action leaves MaxConsecutiveFailures at 0.
	defaultFailureLimit = 10
)

// Action is one configured, repeatable input event with its own interval.
//
// Actions are validated once and treated as immutable afterwards; the engine
// keeps its own snapshot copy taken at Configure() time.
type Action struct {
	ID       string
	Interval time.Duration
	Enabled  bool

	// Priority is advisory metadata carried through snapshots and events.
	// It does not influence schedule ordering.
	Priority int

	// MaxConsecutiveFailures trips the fail-safe stop for this action.
	// 0 means the engine default.
	MaxConsecutiveFailures int
}

// Validate checks the action against the configured bounds.
func (a Action) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("action: %w", ErrEmptyID)
	}
	if a.Interval < MinInterval || a.Interval > MaxInterval {
		return fmt.Errorf("action %q: interval %v out of range [%v, %v]", a.ID, a.Interval, MinInterval, MaxInterval)
	}
	if a.MaxConsecutiveFailures != 0 &&
		(a.MaxConsecutiveFailures < MinFailureLimit || a.MaxConsecutiveFailures > MaxFailureLimit) {
		return fmt.Errorf("action %q: max_consecutive_failures %d out of range [%d, %d]",
			a.ID, a.MaxConsecutiveFailures, MinFailureLimit, MaxFailureLimit)
	}
	return nil
}

// failureLimit returns the effective fail-safe threshold.
func (a Action) failureLimit() int {
	if a.MaxConsecutiveFailures <= 0 {
		return defaultFailureLimit
	}
	return a.MaxConsecutiveFailures
}

// Settings controls schedule construction and runtime pacing.
type Settings struct {
	// Stagger spaces out the first firing of each enabled action.
	Stagger time.Duration

	// GlobalCooldown is the minimum spacing between ANY two firings,
	// engine-wide, regardless of per-action intervals.
	GlobalCooldown time.Duration

	// OrderObeyed keeps the caller-supplied action order for the initial
	// rollout. When false, actions are grouped by interval (ascending) and
	// order within an interval group is randomized.
	OrderObeyed bool
}

// Validate checks the settings.
func (s Settings) Validate() error {
	if s.Stagger < 0 {
		return fmt.Errorf("settings: stagger must be >= 0, got %v", s.Stagger)
	}
	if s.GlobalCooldown < 0 {
		return fmt.Errorf("settings: global_cooldown must be >= 0, got %v", s.GlobalCooldown)
	}
	return nil
}

// State is the engine lifecycle state.
//
// The worker goroutine is alive iff the state is one of
// Starting, Running, Paused, Stopping.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StatePaused
	StateStopping
	StateError
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StateCallback observes engine state transitions. Callbacks run synchronously
// on the goroutine that caused the transition and must not block.
type StateCallback func(old, new State)

// Sender injects one input event for a given action ID.
//
// Send reports delivery with a plain bool; expected failures must return false
// rather than panic. Implementations must be safe to call from the engine's
// worker goroutine.
type Sender interface {
	Send(actionID string) bool
	Available() bool
}

// Event types this package publishes on the bus.
const (
	EventState    = "engine.state"
	EventFired    = "engine.fired"
	EventFailed   = "engine.failed"
	EventFailsafe = "engine.failsafe"
)

// FireEvent is the payload published on the bus for fired/failed actions.
type FireEvent struct {
	Action   string        `json:"action"`
	At       time.Time     `json:"at"`
	OK       bool          `json:"ok"`
	Priority int           `json:"priority"`
	Took     time.Duration `json:"took"`
	Error    string        `json:"error,omitempty"`
}

// StateEvent is the payload published on the bus for state transitions.
type StateEvent struct {
	Old string `json:"old"`
	New string `json:"new"`
}
