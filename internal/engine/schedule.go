package engine

import (
	"container/heap"
	"math/rand"
	"sort"
	"time"
)

// maxScheduleEntries caps the live heap so a misbehaving re-insert path can
// never grow it unboundedly.
const maxScheduleEntries = 1000

// scheduleEntry pairs a fire time with the action it fires.
type scheduleEntry struct {
	fireAt time.Time
	action Action

	// seq keeps ties stable: entries with equal fireAt pop in insertion order.
	seq uint64
}

// scheduleHeap implements heap.Interface ordered by fireAt ascending.
type scheduleHeap struct {
	entries []scheduleEntry
	nextSeq uint64
}

func (h *scheduleHeap) Len() int { return len(h.entries) }

func (h *scheduleHeap) Less(i, j int) bool {
	a, b := h.entries[i], h.entries[j]
	if a.fireAt.Equal(b.fireAt) {
		return a.seq < b.seq
	}
	return a.fireAt.Before(b.fireAt)
}

func (h *scheduleHeap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
}

func (h *scheduleHeap) Push(x any) {
	h.entries = append(h.entries, x.(scheduleEntry))
}

func (h *scheduleHeap) Pop() any {
	old := h.entries
	n := len(old)
	e := old[n-1]
	h.entries = old[:n-1]
	return e
}

// push adds an entry with the next stable sequence number.
func (h *scheduleHeap) push(fireAt time.Time, a Action) {
	h.nextSeq++
	heap.Push(h, scheduleEntry{fireAt: fireAt, action: a, seq: h.nextSeq})
}

// pop removes and returns the earliest entry. ok is false when empty.
func (h *scheduleHeap) pop() (scheduleEntry, bool) {
	if h.Len() == 0 {
		return scheduleEntry{}, false
	}
	return heap.Pop(h).(scheduleEntry), true
}

// resolveOrder returns the enabled actions in initial-rollout order.
//
// With OrderObeyed the caller order is preserved. Otherwise actions are grouped
// by identical interval, groups are sorted ascending by interval, and the order
// WITHIN a group of more than one action is randomized. The intra-group shuffle
// is deliberately non-deterministic so equal-interval actions do not always
// fire in configuration order.
func resolveOrder(actions []Action, set Settings, rng *rand.Rand) []Action {
	enabled := make([]Action, 0, len(actions))
	for _, a := range actions {
		if a.Enabled {
			enabled = append(enabled, a)
		}
	}
	if set.OrderObeyed || len(enabled) < 2 {
		return enabled
	}

	// Group by interval, preserving first-seen group order before the sort.
	groups := make(map[time.Duration][]Action, len(enabled))
	intervals := make([]time.Duration, 0, len(enabled))
	for _, a := range enabled {
		if _, seen := groups[a.Interval]; !seen {
			intervals = append(intervals, a.Interval)
		}
		groups[a.Interval] = append(groups[a.Interval], a)
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i] < intervals[j] })

	out := make([]Action, 0, len(enabled))
	for _, iv := range intervals {
		g := groups[iv]
		if len(g) > 1 && rng != nil {
			rng.Shuffle(len(g), func(i, j int) { g[i], g[j] = g[j], g[i] })
		}
		out = append(out, g...)
	}
	return out
}

// buildSchedule produces a valid min-heap of (fireAt, action) entries.
//
// The k-th action in the resolved order is scheduled at now + k*Stagger.
// Pure given now and rng: no I/O, no side effects.
func buildSchedule(actions []Action, set Settings, now time.Time, rng *rand.Rand) (*scheduleHeap, []Action) {
	order := resolveOrder(actions, set, rng)
	h := &scheduleHeap{entries: make([]scheduleEntry, 0, len(order))}
	for k, a := range order {
		h.push(now.Add(time.Duration(k)*set.Stagger), a)
	}
	return h, order
}

// heapFromOrder rebuilds a schedule from an already-resolved order, anchored at
// a new now. Used by the cache to refresh a hit without re-sorting/re-shuffling.
func heapFromOrder(order []Action, set Settings, now time.Time) *scheduleHeap {
	h := &scheduleHeap{entries: make([]scheduleEntry, 0, len(order))}
	for k, a := range order {
		h.nextSeq++
		h.entries = append(h.entries, scheduleEntry{
			fireAt: now.Add(time.Duration(k) * set.Stagger),
			action: a,
			seq:    h.nextSeq,
		})
	}
	heap.Init(h)
	return h
}
