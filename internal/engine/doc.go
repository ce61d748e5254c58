// Package engine implements autotap's automation core.
//
// # Overview
//
// The engine repeatedly fires a configured set of actions (input events
// injected through a Sender) on independent per-action intervals, while
// enforcing a single global minimum spacing between any two firings and a
// staggered initial rollout.
//
// # Scheduling
//
// Schedules are binary min-heaps of (fireAt, action) entries. The builder is a
// pure function of (actions, settings, now); a fingerprint-keyed cache reuses
// the resolved relative order across runs and only re-anchors fire times to the
// new start instant. With order_obeyed=false, actions sharing an interval are
// shuffled within their group, which is the only non-deterministic part of
// schedule construction.
//
// # Lifecycle
//
// Stopped -> Starting -> Running -> Stopping -> Stopped, with Running <-> Paused
// and a terminal Error state that a fresh Configure clears. Exactly one worker
// goroutine runs per Start; Stop is cooperative and never kills the worker.
// Repeated send failures for a single action trip a deliberate fail-safe stop
// (ending in Stopped, not Error).
//
// The engine performs no I/O of its own: configuration arrives through
// Configure, delivery goes through the injected Sender, and observers consume
// state callbacks, the event bus, or stats snapshots.
package engine
