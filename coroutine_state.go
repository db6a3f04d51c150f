package coro

import "sync/atomic"

// CoroutineState is one of the states in spec.md §3's coroutine lifecycle.
type CoroutineState uint32

const (
	// StateNew is assigned at construction, before the coroutine's goroutine
	// has started running its body.
	StateNew CoroutineState = iota
	// StateReady means the coroutine is in the scheduler's ready queue.
	StateReady
	// StateRunning means the coroutine's body currently holds control.
	StateRunning
	// StateBlocked means the coroutine is parked in the fd-blocked map or the
	// timer heap.
	StateBlocked
	// StateFinished is terminal: the coroutine's body has returned (or
	// panicked) and control has been transferred back to the scheduler for
	// the last time.
	StateFinished
)

func (s CoroutineState) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateReady:
		return "Ready"
	case StateRunning:
		return "Running"
	case StateBlocked:
		return "Blocked"
	case StateFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// atomicCoroutineState is a small atomic CAS wrapper, modeled directly on
// eventloop's FastState: pure CAS transitions, no validation, trusting the
// caller to only attempt legal transitions.
type atomicCoroutineState struct {
	v atomic.Uint32
}

func (s *atomicCoroutineState) init(initial CoroutineState) {
	s.v.Store(uint32(initial))
}

func (s *atomicCoroutineState) Load() CoroutineState {
	return CoroutineState(s.v.Load())
}

func (s *atomicCoroutineState) Store(state CoroutineState) {
	s.v.Store(uint32(state))
}

func (s *atomicCoroutineState) TryTransition(from, to CoroutineState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
