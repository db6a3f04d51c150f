package coro

import "sync/atomic"

// SchedulerState mirrors eventloop.LoopState: a run-state for the scheduler
// itself, independent of any individual coroutine's CoroutineState.
type SchedulerState uint32

const (
	// SchedulerAwake is the state from construction until Run is first
	// called.
	SchedulerAwake SchedulerState = iota
	// SchedulerRunning means the run loop is actively resuming coroutines or
	// draining its submission queue.
	SchedulerRunning
	// SchedulerPolling means the run loop is blocked in the poller waiting
	// for readiness or a timer deadline.
	SchedulerPolling
	// SchedulerStopping names a draining-toward-shutdown state. No code path
	// stores it: RequestStop interrupts coroutines without changing the run
	// state, and Run goes from SchedulerRunning/SchedulerPolling straight to
	// SchedulerStopped.
	SchedulerStopping
	// SchedulerStopped is terminal.
	SchedulerStopped
)

func (s SchedulerState) String() string {
	switch s {
	case SchedulerAwake:
		return "Awake"
	case SchedulerRunning:
		return "Running"
	case SchedulerPolling:
		return "Polling"
	case SchedulerStopping:
		return "Stopping"
	case SchedulerStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// fastSchedulerState is a lock-free CAS state machine, modeled on
// eventloop.FastState.
type fastSchedulerState struct {
	v atomic.Uint32
}

func newFastSchedulerState() *fastSchedulerState {
	s := &fastSchedulerState{}
	s.v.Store(uint32(SchedulerAwake))
	return s
}

func (s *fastSchedulerState) Load() SchedulerState { return SchedulerState(s.v.Load()) }

func (s *fastSchedulerState) Store(state SchedulerState) { s.v.Store(uint32(state)) }

func (s *fastSchedulerState) TryTransition(from, to SchedulerState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

func (s *fastSchedulerState) IsTerminal() bool { return s.Load() == SchedulerStopped }

func (s *fastSchedulerState) CanAcceptWork() bool {
	switch s.Load() {
	case SchedulerAwake, SchedulerRunning, SchedulerPolling:
		return true
	default:
		return false
	}
}
