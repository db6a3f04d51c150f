package coro

import (
	"errors"
	"fmt"
)

// Standard scheduler lifecycle errors.
var (
	// ErrSchedulerAlreadyRunning is returned when Run is called on a scheduler
	// that is already running.
	ErrSchedulerAlreadyRunning = errors.New("coro: scheduler is already running")

	// ErrSchedulerStopped is returned when operations are attempted on a
	// scheduler that has fully terminated.
	ErrSchedulerStopped = errors.New("coro: scheduler has stopped")

	// ErrReentrantRun is returned when Run is called from within a coroutine
	// belonging to that same scheduler.
	ErrReentrantRun = errors.New("coro: cannot call Run from within the scheduler it would run")

	// ErrAlreadyAttached is returned by AttachToCurrentThread when the calling
	// goroutine already has a scheduler attached.
	ErrAlreadyAttached = errors.New("coro: a scheduler is already attached to this thread")
)

// Interruption / timeout / fatal error kinds, per the taxonomy in spec.md §7.
var (
	// ErrInterrupted is raised inside a coroutine at its next suspension point
	// after Interrupt has been called on it, or after Scheduler.RequestStop.
	ErrInterrupted = errors.New("coro: coroutine was interrupted")

	// ErrTimedOut is raised when a deadline passed to AwaitFD, or a pipe/socket
	// operation with a deadline, elapses before the fd becomes ready.
	ErrTimedOut = errors.New("coro: operation timed out")

	// ErrOutOfStack names the out-of-stack error kind. No code in this
	// package returns it: a coroutine's goroutine that exceeds Go's maximum
	// stack size ends the process with a fatal runtime error, which cannot
	// be recovered into an error value.
	ErrOutOfStack = errors.New("coro: coroutine exhausted its stack")

	// ErrRegistrarFrozen is raised (as a panic, since it occurs before any
	// scheduler exists) when a context-local variable is registered after the
	// registrar's total size has been frozen by the creation of a block.
	ErrRegistrarFrozen = errors.New("coro: registrar is frozen; late registration rejected")

	// ErrClosed is returned by scheduler-aware I/O primitives once their
	// underlying descriptor has been closed.
	ErrClosed = errors.New("coro: descriptor closed")

	// ErrFDOutOfRange is returned when a file descriptor is outside the range
	// the poller supports.
	ErrFDOutOfRange = errors.New("coro: fd out of range")

	// ErrFDAlreadyRegistered is returned when a descriptor is already being
	// watched in the requested direction.
	ErrFDAlreadyRegistered = errors.New("coro: fd already registered")

	// ErrFDNotRegistered is returned when removing a watch that doesn't exist.
	ErrFDNotRegistered = errors.New("coro: fd not registered")

	// ErrPollerClosed is returned by poller operations after Close.
	ErrPollerClosed = errors.New("coro: poller closed")

	// ErrUnsupportedPlatform is returned by socket/pipe readiness registration
	// on platforms whose poller does not implement fd-based readiness (see
	// poller_windows.go).
	ErrUnsupportedPlatform = errors.New("coro: operation not supported on this platform")
)

// IOError wraps a syscall failure observed by a scheduler-aware I/O
// primitive, other than would-block (which the scheduler consumes
// internally and never surfaces). It satisfies errors.Unwrap so callers can
// match the underlying syscall error with errors.Is/errors.As.
type IOError struct {
	Op    string
	Cause error
}

func (e *IOError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("coro: io error: %v", e.Cause)
	}
	return fmt.Sprintf("coro: %s: %v", e.Op, e.Cause)
}

func (e *IOError) Unwrap() error { return e.Cause }

// NewIOError wraps cause as an *IOError tagged with the operation name.
// Returns nil if cause is nil.
func NewIOError(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &IOError{Op: op, Cause: cause}
}

// InterruptKind identifies why an interruption error was raised.
type InterruptKind int32

const (
	// interruptNone is the zero value: no interruption pending.
	interruptNone InterruptKind = iota
	// InterruptExecution is cooperative cancellation, e.g. via
	// Scheduler.RequestStop or Coroutine.Interrupt.
	InterruptExecution
	// InterruptTimeout, passed to Coroutine.Interrupt, raises ErrTimedOut at
	// the coroutine's next suspension point. AwaitFD's own deadline handling
	// does not go through it.
	InterruptTimeout
	// InterruptUser marks an externally-signalled interruption (e.g. wrapping
	// an OS signal delivered through the poller wake mechanism), distinct from
	// plain cooperative cancellation.
	InterruptUser
)

// errForKind maps an interrupt kind to the exported sentinel error that gets
// raised at the coroutine's next suspension point.
func errForKind(kind InterruptKind) error {
	switch kind {
	case InterruptTimeout:
		return ErrTimedOut
	case InterruptExecution, InterruptUser:
		return ErrInterrupted
	default:
		return nil
	}
}
