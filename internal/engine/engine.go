package engine

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"autotap/internal/eventbus"
	logx "autotap/pkg/logx"
)

const (
	// startConfirmTimeout bounds how long Start() waits for the worker
	// goroutine to come up before giving up with ErrStartTimeout.
	startConfirmTimeout = 2 * time.Second

	// DefaultStopTimeout is a reasonable Stop() join timeout for callers
	// that have no opinion.
	DefaultStopTimeout = 5 * time.Second
)

// Engine orchestrates the automation lifecycle: it owns the background worker,
// the schedule cache and the execution statistics, and serializes all state
// transitions under a single lock.
//
// All public methods are safe for concurrent use. State callbacks run
// synchronously on the goroutine that caused the transition and must not
// block or call back into the engine.
type Engine struct {
	mu sync.Mutex

	log    logx.Logger
	bus    eventbus.Bus
	sender Sender

	state     State
	callbacks []StateCallback

	actions    []Action
	settings   Settings
	configured bool

	cache scheduleCache
	stats *Stats
	rng   *rand.Rand

	// Per-run channels; recreated by each Start().
	stopCh        chan struct{}
	workerDone    chan struct{}
	stopRequested bool

	paused   bool
	resumeCh chan struct{}

	scheduleLen atomic.Int32
}

// New builds an engine around the given sender. The bus is optional (nil
// disables event publishing).
func New(sender Sender, log logx.Logger, bus eventbus.Bus) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		log:    log.With(logx.String("comp", "engine")),
		bus:    bus,
		sender: sender,
		stats:  newStats(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsRunning reports whether the engine is actively executing actions.
func (e *Engine) IsRunning() bool { return e.State() == StateRunning }

// Stats returns a read-only snapshot of the execution statistics.
func (e *Engine) Stats() StatsSnapshot { return e.stats.Snapshot(time.Now()) }

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	State        State
	Actions      int
	ScheduleSize int
	Stats        StatsSnapshot
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	st := e.state
	n := len(e.actions)
	e.mu.Unlock()
	return Snapshot{
		State:        st,
		Actions:      n,
		ScheduleSize: int(e.scheduleLen.Load()),
		Stats:        e.stats.Snapshot(time.Now()),
	}
}

// RegisterStateCallback appends a listener invoked on every state transition.
// Panics in callbacks are recovered and logged, never propagated.
func (e *Engine) RegisterStateCallback(cb StateCallback) {
	if cb == nil {
		return
	}
	e.mu.Lock()
	e.callbacks = append(e.callbacks, cb)
	e.mu.Unlock()
}

// Configure validates and stores a new action/settings snapshot.
//
// It diffs field-by-field against the stored configuration and invalidates the
// schedule cache only on a material change; an identical configuration is a
// cheap no-op. Configure is rejected while the engine is not stopped so it can
// never race the worker; changes take effect on the next Start.
func (e *Engine) Configure(actions []Action, set Settings) error {
	if err := set.Validate(); err != nil {
		return err
	}
	for _, a := range actions {
		if err := a.Validate(); err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateStopped && e.state != StateError {
		return ErrNotStopped
	}

	if e.configured && !configDiffers(e.actions, e.settings, actions, set) {
		e.log.Debug("configure: no material change")
		return nil
	}

	e.actions = append([]Action(nil), actions...)
	e.settings = set
	e.configured = true
	e.cache.invalidate()

	// A fresh configuration clears a previous Error state.
	if e.state == StateError {
		e.setStateLocked(StateStopped)
	}

	e.log.Info("engine configured",
		logx.Int("actions", len(actions)),
		logx.Duration("stagger", set.Stagger),
		logx.Duration("cooldown", set.GlobalCooldown),
		logx.Bool("order_obeyed", set.OrderObeyed),
	)
	return nil
}

// configDiffers compares the schedule-relevant fields of two configurations.
func configDiffers(oldA []Action, oldS Settings, newA []Action, newS Settings) bool {
	if oldS.Stagger != newS.Stagger ||
		oldS.GlobalCooldown != newS.GlobalCooldown ||
		oldS.OrderObeyed != newS.OrderObeyed {
		return true
	}
	if len(oldA) != len(newA) {
		return true
	}
	for i := range oldA {
		if oldA[i].ID != newA[i].ID ||
			oldA[i].Interval != newA[i].Interval ||
			oldA[i].Enabled != newA[i].Enabled {
			return true
		}
	}
	return false
}

// Start spawns the worker and blocks until it is confirmed alive.
func (e *Engine) Start() error {
	e.mu.Lock()

	if e.state != StateStopped {
		e.mu.Unlock()
		return ErrNotStopped
	}
	if !e.configured || len(e.actions) == 0 {
		e.mu.Unlock()
		return ErrNotConfigured
	}
	if e.sender == nil || !e.sender.Available() {
		e.mu.Unlock()
		return ErrSenderUnavailable
	}

	e.stats.reset(time.Now())
	e.stopCh = make(chan struct{})
	e.workerDone = make(chan struct{})
	e.stopRequested = false
	e.paused = false
	e.resumeCh = nil
	e.setStateLocked(StateStarting)

	actions := append([]Action(nil), e.actions...)
	set := e.settings
	stopCh := e.stopCh
	done := e.workerDone

	ready := make(chan struct{})
	goCh := make(chan struct{})
	go e.run(ready, goCh, stopCh, done, actions, set)
	e.mu.Unlock()

	select {
	case <-ready:
	case <-time.After(startConfirmTimeout):
		e.mu.Lock()
		e.log.Error("worker failed to start within timeout")
		if !e.stopRequested {
			e.stopRequested = true
			close(stopCh)
		}
		e.setStateLocked(StateError)
		e.mu.Unlock()
		return ErrStartTimeout
	}

	e.mu.Lock()
	e.setStateLocked(StateRunning)
	e.mu.Unlock()
	close(goCh)

	e.log.Info("automation started", logx.Int("actions", len(actions)))
	return nil
}

// Stop signals the worker and joins it cooperatively.
//
// A timeout leaves the engine in Stopping (the worker is never killed); the
// call may be retried and completes the transition once the worker exits.
func (e *Engine) Stop(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}

	e.mu.Lock()
	switch e.state {
	case StateStopped:
		e.mu.Unlock()
		return nil
	case StateRunning, StatePaused:
		e.setStateLocked(StateStopping)
		if !e.stopRequested {
			e.stopRequested = true
			close(e.stopCh)
		}
	case StateStopping:
		// Retry after a previous timed-out Stop: just re-join below.
	default:
		e.mu.Unlock()
		return ErrNotRunning
	}
	done := e.workerDone
	e.mu.Unlock()

	select {
	case <-done:
	case <-time.After(timeout):
		e.log.Error("worker did not stop within timeout", logx.Duration("timeout", timeout))
		return ErrStopTimeout
	}

	e.mu.Lock()
	if e.state == StateStopping {
		e.setStateLocked(StateStopped)
	}
	e.mu.Unlock()

	e.log.Info("automation stopped")
	return nil
}

// Pause parks the worker before its next heap pop; the schedule position is
// retained until Resume. Stop wins over pause.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning {
		return ErrNotRunning
	}
	e.paused = true
	e.resumeCh = make(chan struct{})
	e.setStateLocked(StatePaused)
	return nil
}

// Resume releases a paused worker.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePaused {
		return ErrNotPaused
	}
	e.paused = false
	close(e.resumeCh)
	e.resumeCh = nil
	e.setStateLocked(StateRunning)
	return nil
}

// setStateLocked publishes a state transition. Caller holds e.mu.
func (e *Engine) setStateLocked(next State) {
	old := e.state
	if old == next {
		return
	}
	e.state = next
	e.log.Debug("state changed", logx.String("old", old.String()), logx.String("new", next.String()))

	if e.bus != nil {
		e.bus.Publish(eventbus.Event{
			Type: EventState,
			Data: StateEvent{Old: old.String(), New: next.String()},
		})
	}

	for _, cb := range e.callbacks {
		e.invokeCallback(cb, old, next)
	}
}

func (e *Engine) invokeCallback(cb StateCallback, old, next State) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("state callback panicked", logx.Any("panic", r))
		}
	}()
	cb(old, next)
}
