package coro

import (
	"container/heap"
	"time"
)

// timerEntry parks a coroutine until a deadline elapses, grounded on
// eventloop's timerHeap. seq breaks ties between equal deadlines in
// insertion order, since wall-clock resolution is too coarse to be a stable
// sort key on its own.
type timerEntry struct {
	when time.Time
	seq  uint64
	c    *Coroutine
}

// timerHeap is a min-heap of timerEntry, indexed by coroutine id so the
// scheduler can remove a specific coroutine's outstanding timer in O(log n)
// when its fd becomes ready first or it's interrupted while sleeping (at
// most one outstanding timer per coroutine, per spec.md §3).
type timerHeap struct {
	entries []timerEntry
	index   map[uint64]int
}

func newTimerHeap() *timerHeap {
	return &timerHeap{index: make(map[uint64]int)}
}

func (h *timerHeap) Len() int { return len(h.entries) }

func (h *timerHeap) Less(i, j int) bool {
	if h.entries[i].when.Equal(h.entries[j].when) {
		return h.entries[i].seq < h.entries[j].seq
	}
	return h.entries[i].when.Before(h.entries[j].when)
}

func (h *timerHeap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
	h.index[h.entries[i].c.id] = i
	h.index[h.entries[j].c.id] = j
}

func (h *timerHeap) Push(x any) {
	e := x.(timerEntry)
	h.index[e.c.id] = len(h.entries)
	h.entries = append(h.entries, e)
}

func (h *timerHeap) Pop() any {
	old := h.entries
	n := len(old)
	e := old[n-1]
	h.entries = old[:n-1]
	delete(h.index, e.c.id)
	return e
}

// removeCoroutine removes coroutine id's outstanding timer entry, if any.
func (h *timerHeap) removeCoroutine(id uint64) {
	if idx, ok := h.index[id]; ok {
		heap.Remove(h, idx)
	}
}

// popExpired removes and returns every timer entry whose deadline is not
// after now, in deadline order.
func popExpired(h *timerHeap, now time.Time) []timerEntry {
	var expired []timerEntry
	for h.Len() > 0 && !h.entries[0].when.After(now) {
		expired = append(expired, heap.Pop(h).(timerEntry))
	}
	return expired
}

// nextDeadline reports the earliest pending timer deadline, if any.
func (h *timerHeap) nextDeadline() (time.Time, bool) {
	if len(h.entries) == 0 {
		return time.Time{}, false
	}
	return h.entries[0].when, true
}
