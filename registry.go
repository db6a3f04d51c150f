package coro

import (
	"sync"
	"weak"
)

// coroRegistry tracks every coroutine a scheduler has ever created, using
// weak pointers so a finished, unreferenced coroutine can still be collected
// by the GC. Grounded on eventloop.registry: a ring buffer of ids gives the
// scavenger (and Scheduler.Stats) a deterministic, low-overhead way to sweep
// for garbage-collected or finished entries instead of a live map scan.
type coroRegistry struct {
	mu     sync.RWMutex
	data   map[uint64]weak.Pointer[Coroutine]
	ring   []uint64
	head   int
	scavMu sync.Mutex
}

func newCoroRegistry() *coroRegistry {
	return &coroRegistry{
		data: make(map[uint64]weak.Pointer[Coroutine]),
		ring: make([]uint64, 0, 1024),
	}
}

func (r *coroRegistry) add(c *Coroutine) {
	wp := weak.Make(c)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[c.id] = wp
	r.ring = append(r.ring, c.id)
}

// forEach calls fn for every coroutine still reachable via the registry.
// Used by Scheduler.RequestStop to interrupt every live coroutine.
func (r *coroRegistry) forEach(fn func(*Coroutine)) {
	r.mu.RLock()
	ids := make([]uint64, len(r.ring))
	copy(ids, r.ring)
	r.mu.RUnlock()

	for _, id := range ids {
		if id == 0 {
			continue
		}
		r.mu.RLock()
		wp, ok := r.data[id]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		if c := wp.Value(); c != nil {
			fn(c)
		}
	}
}

// scavenge sweeps batchSize ring entries, forgetting ones whose coroutine has
// been collected or has finished and had both its references released.
func (r *coroRegistry) scavenge(batchSize int) {
	r.scavMu.Lock()
	defer r.scavMu.Unlock()

	if batchSize <= 0 {
		return
	}

	r.mu.RLock()
	ringLen := len(r.ring)
	if ringLen == 0 {
		r.mu.RUnlock()
		return
	}
	start := r.head
	end := min(start+batchSize, ringLen)
	batch := append([]uint64(nil), r.ring[start:end]...)
	r.mu.RUnlock()

	var dead []uint64
	for _, id := range batch {
		if id == 0 {
			continue
		}
		r.mu.RLock()
		wp, ok := r.data[id]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		c := wp.Value()
		if c == nil || (c.state.Load() == StateFinished && c.refs.Load() <= 0) {
			dead = append(dead, id)
		}
	}

	nextHead := end
	cycleDone := nextHead >= ringLen
	if cycleDone {
		nextHead = 0
	}

	r.mu.Lock()
	for _, id := range dead {
		delete(r.data, id)
	}
	for i := start; i < end; i++ {
		if i < len(r.ring) {
			for _, id := range dead {
				if r.ring[i] == id {
					r.ring[i] = 0
				}
			}
		}
	}
	r.head = nextHead
	if cycleDone {
		compact := r.ring[:0]
		for _, id := range r.ring {
			if id != 0 {
				compact = append(compact, id)
			}
		}
		r.ring = compact
		r.head = 0
	}
	r.mu.Unlock()
}

// count returns the number of registry slots still holding an id (an upper
// bound on live coroutines, since scavenging is incremental).
func (r *coroRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, id := range r.ring {
		if id != 0 {
			n++
		}
	}
	return n
}
