package coro

import (
	"fmt"
	"sync/atomic"
	"time"
)

// wakeReason records, from the scheduler's side, why a blocked coroutine is
// being resumed, so the suspension-point method that parked it (AwaitFD,
// SleepUntil) can tell a normal wake from a deadline firing.
type wakeReason uint8

const (
	wakeScheduled wakeReason = iota // plain ready-queue resume (new, yielded, or relocated-by-interrupt)
	wakeIOReady
	wakeTimedOut
)

// Task is a coroutine's user body. It receives its own *Coroutine handle so
// it can call suspension-point methods (Yield, SleepUntil, AwaitFD) and
// register deferred cleanup.
type Task func(c *Coroutine) error

// suspendReason classifies why a coroutine handed control back to the
// scheduler.
type suspendReason int

const (
	reasonYield suspendReason = iota
	reasonBlockIO
	reasonSleep
	reasonFinished
)

// suspendInfo is sent from a coroutine's goroutine to the scheduler's resume
// call when the coroutine hands control back.
type suspendInfo struct {
	reason suspendReason
	fd     int
	dir    Direction
	err    error // set only for reasonFinished
}

// Coroutine is a stackful-coroutine context per spec.md §3: a (goroutine-
// backed) stack, a state, a CRLS block it owns exclusively, and a pointer to
// the scheduler it's registered with.
//
// Go has no portable raw-stack-switch primitive for user code, so each
// Coroutine is realized as one dedicated goroutine, with hand-off enforced by
// a pair of unbuffered channels: only one of a scheduler's coroutines is ever
// runnable, because a parked coroutine's goroutine is blocked receiving from
// resumeCh until the scheduler's run loop explicitly sends to it. This
// reproduces every ordering/interruption/timeout property the spec requires
// without preemption ever being physically possible. See SPEC_FULL.md §0.
type Coroutine struct {
	id    uint64
	sched *Scheduler
	task  Task

	state atomicCoroutineState
	crls  *crlsBlock

	resumeCh  chan struct{}
	suspendCh chan suspendInfo

	pendingKind atomic.Int32 // InterruptKind, 0 (interruptNone) = none pending

	started atomic.Bool

	err error // terminal error, valid once state == StateFinished

	refs atomic.Int32 // scheduler ref + user handle ref; stack freed when it hits 0 and FINISHED

	// Scheduler-owned bookkeeping. Only ever read or written by the
	// scheduler's own goroutine (between a suspend and the matching resume,
	// or while the coroutine is parked), never concurrently with the
	// coroutine's own goroutine running.
	lastWake       wakeReason
	blockedFD      int // -1 when not registered with the poller
	blockedDir     Direction
	hasTimerActive bool
}

var coroutineIDCounter atomic.Uint64

func newCoroutine(sched *Scheduler, task Task) *Coroutine {
	c := &Coroutine{
		id:        coroutineIDCounter.Add(1),
		sched:     sched,
		task:      task,
		crls:      newCRLSBlock(),
		resumeCh:  make(chan struct{}),
		suspendCh: make(chan suspendInfo),
		blockedFD: -1,
	}
	c.state.init(StateNew)
	c.refs.Store(2) // one for the scheduler, one for the caller's handle
	return c
}

// ID returns a stable, process-unique identifier for the coroutine.
func (c *Coroutine) ID() uint64 { return c.id }

// State returns the coroutine's current lifecycle state.
func (c *Coroutine) State() CoroutineState { return c.state.Load() }

// Err returns the coroutine's terminal error, if it has reached StateFinished.
func (c *Coroutine) Err() error { return c.err }

// Release drops the caller's handle reference. Once both the scheduler and
// every user handle have released, and the coroutine has reached
// StateFinished, its goroutine has already exited and there is nothing left
// to free beyond normal GC of the Coroutine struct itself.
func (c *Coroutine) Release() {
	c.refs.Add(-1)
}

// start spins up the coroutine's backing goroutine. It blocks on resumeCh
// until the scheduler performs the first resume.
func (c *Coroutine) start() {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		<-c.resumeCh

		gid := getGoroutineID()
		aliasTLS(gid, c.sched.tls)
		defer unaliasTLS(gid)

		var runErr error
		func() {
			defer func() {
				if r := recover(); r != nil {
					runErr = fmt.Errorf("coro: coroutine panicked: %v", r)
				}
			}()
			runErr = c.task(c)
		}()

		c.err = runErr
		c.state.Store(StateFinished)
		c.suspendCh <- suspendInfo{reason: reasonFinished, err: runErr}
	}()
}

// resume is called only from the scheduler's run loop (never concurrently):
// it hands control to the coroutine and blocks until the coroutine suspends
// or finishes.
func (c *Coroutine) resume() suspendInfo {
	if !c.started.Load() {
		c.start()
	}
	c.state.Store(StateRunning)

	tls := currentTLS()
	prevCRLS := tls.currentCRLS
	tls.currentCRLS = c.crls

	c.resumeCh <- struct{}{}
	info := <-c.suspendCh

	tls.currentCRLS = prevCRLS
	return info
}

// checkInterruption atomically consumes any pending interruption and returns
// the corresponding error, or nil. Called at every suspension point, both
// before suspending and after resuming (spec.md §8 invariant 3).
func (c *Coroutine) checkInterruption() error {
	kind := InterruptKind(c.pendingKind.Swap(int32(interruptNone)))
	return errForKind(kind)
}

// Interrupt requests that this coroutine raise the error for kind at its next
// suspension point. First interruption wins: if one is already pending and
// unconsumed, this call is a no-op (spec.md §8's "at most one interrupted
// error per suspension point"). Safe to call from any goroutine.
func (c *Coroutine) Interrupt(kind InterruptKind) {
	c.pendingKind.CompareAndSwap(int32(interruptNone), int32(kind))
	c.sched.notifyInterrupt(c)
}

// suspend hands control back to the scheduler with the given reason, blocking
// the calling (coroutine) goroutine until the scheduler resumes it again.
// Must be called from within the coroutine's own goroutine.
func (c *Coroutine) suspend(info suspendInfo) {
	switch info.reason {
	case reasonBlockIO, reasonSleep:
		c.state.Store(StateBlocked)
	default:
		c.state.Store(StateReady)
	}
	c.suspendCh <- info
	<-c.resumeCh
}

// Yield re-enqueues the current coroutine at the tail of the ready queue and
// resumes the next one (spec.md §4.6). Must be called from within a
// coroutine.
func (c *Coroutine) Yield() error {
	if err := c.checkInterruption(); err != nil {
		return err
	}
	c.suspend(suspendInfo{reason: reasonYield})
	return c.checkInterruption()
}

// SleepUntil suspends the current coroutine until deadline. A timer firing
// normally is not itself an error (spec.md §4.6); only a genuine
// interruption received before or after the sleep is reported.
func (c *Coroutine) SleepUntil(deadline time.Time) error {
	if err := c.checkInterruption(); err != nil {
		return err
	}
	c.sched.registerSleepTimer(c, deadline)
	c.suspend(suspendInfo{reason: reasonSleep})
	return c.checkInterruption()
}

// SleepFor is sugar over SleepUntil(time.Now().Add(d)).
func (c *Coroutine) SleepFor(d time.Duration) error {
	return c.SleepUntil(time.Now().Add(d))
}

// AwaitFD suspends the current coroutine until fd becomes ready for dir, or
// (if deadline is non-nil) until deadline elapses first, whichever comes
// first. Returns ErrTimedOut if the deadline wins the race, the coroutine's
// pending interruption error if one was delivered, or nil once fd is ready.
func (c *Coroutine) AwaitFD(fd int, dir Direction, deadline *time.Time) error {
	if err := c.checkInterruption(); err != nil {
		return err
	}
	if err := c.sched.blockOnFD(c, fd, dir, deadline); err != nil {
		return err
	}
	c.suspend(suspendInfo{reason: reasonBlockIO, fd: fd, dir: dir})
	if c.lastWake == wakeTimedOut {
		return ErrTimedOut
	}
	return c.checkInterruption()
}

// Scheduler returns the scheduler this coroutine is registered with.
func (c *Coroutine) Scheduler() *Scheduler { return c.sched }
