package engine

import (
	"fmt"
	"time"

	"autotap/internal/eventbus"
	logx "autotap/pkg/logx"
)

// run is the engine's worker loop. Exactly one instance runs per Start().
//
// It owns the schedule heap and the per-action failure counters for the whole
// run; the control plane only reads stats and state through the engine lock.
// The loop suspends only inside stop-aware waits, so a Stop() request is
// observed immediately rather than at the next interval boundary.
func (e *Engine) run(ready, goCh, stopCh, done chan struct{}, actions []Action, set Settings) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("worker crashed", logx.Any("panic", r))
			e.mu.Lock()
			e.setStateLocked(StateError)
			e.mu.Unlock()
			return
		}
		e.mu.Lock()
		switch e.state {
		case StateStarting, StateRunning, StatePaused:
			// Natural exit: drained schedule or fail-safe.
			e.setStateLocked(StateStopped)
		}
		// Stopping is completed by Stop(); Error stays as set.
		e.mu.Unlock()
	}()
	defer e.scheduleLen.Store(0)

	// Handshake: confirm liveness, then wait for the Running transition.
	close(ready)
	select {
	case <-goCh:
	case <-stopCh:
		return
	}

	e.mu.Lock()
	sched := e.cache.getOrBuild(actions, set, time.Now(), e.rng)
	e.mu.Unlock()
	e.scheduleLen.Store(int32(sched.Len()))

	e.log.Debug("worker started", logx.Int("schedule", sched.Len()))

	// Worker-owned for the duration of the run.
	var lastExecution time.Time
	consecFails := make(map[string]int, len(actions))

	for {
		select {
		case <-stopCh:
			return
		default:
		}
		if !e.pauseGate(stopCh) {
			return
		}

		entry, ok := sched.pop()
		if !ok {
			e.log.Info("schedule drained; stopping")
			return
		}
		e.scheduleLen.Store(int32(sched.Len()))

		if !e.waitUntil(entry.fireAt, stopCh) {
			return
		}

		// Global cooldown takes precedence over the entry's own fire time:
		// the effective fire time is max(fireAt, lastExecution+cooldown).
		if set.GlobalCooldown > 0 && !lastExecution.IsZero() {
			if next := lastExecution.Add(set.GlobalCooldown); next.After(time.Now()) {
				if !e.waitUntil(next, stopCh) {
					return
				}
			}
		}

		a := entry.action
		sent := e.fire(a)
		now := time.Now()

		if sent {
			lastExecution = now
			consecFails[a.ID] = 0
		} else {
			consecFails[a.ID]++
			if n := consecFails[a.ID]; n >= a.failureLimit() {
				e.log.Error("too many consecutive failures; stopping automation",
					logx.String("action", a.ID), logx.Int("failures", n))
				if e.bus != nil {
					e.bus.Publish(eventbus.Event{
						Type: EventFailsafe,
						Data: FireEvent{Action: a.ID, At: now, Priority: a.Priority},
					})
				}
				return
			}
		}

		if sched.Len() >= maxScheduleEntries {
			e.log.Warn("schedule size cap reached; skipping reschedule",
				logx.String("action", a.ID), logx.Int("cap", maxScheduleEntries))
		} else {
			sched.push(now.Add(a.Interval), a)
		}
		e.scheduleLen.Store(int32(sched.Len()))
	}
}

// fire dispatches one action through the sender and records the outcome.
// Sender panics are treated as failures, never propagated into the loop.
func (e *Engine) fire(a Action) (sent bool) {
	now := time.Now()
	defer func() {
		if r := recover(); r != nil {
			sent = false
			msg := fmt.Sprintf("sender panicked for action %s: %v", a.ID, r)
			e.stats.recordFailure(time.Now(), msg)
			e.log.Error("sender panicked", logx.String("action", a.ID), logx.Any("panic", r))
			e.publishFire(a, now, false, msg)
		}
	}()

	sent = e.sender.Send(a.ID)
	if sent {
		e.stats.recordSuccess(time.Now())
		e.log.Trace("action fired", logx.String("action", a.ID))
		e.publishFire(a, now, true, "")
	} else {
		msg := fmt.Sprintf("failed to send action %s", a.ID)
		e.stats.recordFailure(time.Now(), msg)
		e.log.Warn("action send failed", logx.String("action", a.ID))
		e.publishFire(a, now, false, msg)
	}
	return sent
}

func (e *Engine) publishFire(a Action, at time.Time, ok bool, errMsg string) {
	if e.bus == nil {
		return
	}
	typ := EventFired
	if !ok {
		typ = EventFailed
	}
	e.bus.Publish(eventbus.Event{
		Type: typ,
		Data: FireEvent{
			Action:   a.ID,
			At:       at,
			OK:       ok,
			Priority: a.Priority,
			Took:     time.Since(at),
			Error:    errMsg,
		},
	})
}

// waitUntil blocks until t or until stop is requested.
// Returns false when the wait was interrupted by stop.
func (e *Engine) waitUntil(t time.Time, stopCh <-chan struct{}) bool {
	d := time.Until(t)
	if d <= 0 {
		return true
	}
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-stopCh:
		return false
	case <-tmr.C:
		return true
	}
}

// pauseGate blocks while the engine is paused.
// Returns false when stop was requested while (or before) waiting.
func (e *Engine) pauseGate(stopCh <-chan struct{}) bool {
	e.mu.Lock()
	paused := e.paused
	resume := e.resumeCh
	e.mu.Unlock()

	if !paused {
		return true
	}
	select {
	case <-resume:
		return true
	case <-stopCh:
		return false
	}
}
