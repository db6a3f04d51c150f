// Package coro implements a cooperative, stackful-coroutine runtime: a
// per-thread scheduler integrated with asynchronous file and socket I/O,
// interruption-based cancellation, and per-thread / per-coroutine
// context-local storage.
//
// # Architecture
//
// A [Scheduler] multiplexes any number of [Coroutine] values onto the
// goroutine that calls [Scheduler.Run]. Only one coroutine body ever
// executes at a time per scheduler; control transfers explicitly at
// suspension points ([Coroutine.Yield], [Coroutine.SleepUntil],
// [Coroutine.AwaitFD], or a scheduler-aware I/O call that would block).
// This is enforced by a hand-off protocol between goroutines, not by OS
// thread scheduling, so no coroutine can run unless the scheduler's run
// loop explicitly resumes it.
//
// # Platform support
//
// I/O readiness is reported by a platform-native poller:
//   - Linux: epoll
//   - Darwin: kqueue
//   - Windows: task/timer submission only (no socket readiness; see the
//     poller_windows.go source file for the documented limitation)
//
// # Usage
//
//	sched, err := coro.NewScheduler()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if _, err := sched.Submit(func(c *coro.Coroutine) error {
//	    fmt.Println("hello from a coroutine")
//	    return nil
//	}); err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := sched.Run(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
// # Error taxonomy
//
// See [ErrInterrupted], [ErrTimedOut], [ErrOutOfStack],
// [ErrRegistrarFrozen], and [IOError] for the error kinds raised at
// suspension points and I/O boundaries.
package coro
