package coro

import (
	"context"
)

// RunWithScheduler is the package's entry point: it constructs a scheduler,
// submits mainFn as its first coroutine, runs the scheduler to completion
// on the calling goroutine, and maps the outcome to a process exit code —
// 0 on success, 1 if mainFn (or any other coroutine, or the scheduler
// itself) returned a non-nil error. Grounded on eventloop's doc.go usage
// example, which wires a Loop's Run call directly to the caller (typically
// main).
func RunWithScheduler(mainFn func(c *Coroutine) error, opts ...SchedulerOption) int {
	sched, err := NewScheduler(opts...)
	if err != nil {
		return 1
	}

	if _, err := sched.Submit(mainFn); err != nil {
		return 1
	}

	if err := sched.Run(context.Background()); err != nil {
		return 1
	}

	return 0
}
