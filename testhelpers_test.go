package coro

import (
	"context"
	"testing"
	"time"
)

// runSchedulerWithTimeout runs sched.Run to completion on its own goroutine
// and fails the test if it doesn't terminate within a generous bound,
// instead of hanging the suite on a scheduler-loop bug.
func runSchedulerWithTimeout(t *testing.T, sched *Scheduler) error {
	t.Helper()

	done := make(chan error, 1)
	go func() { done <- sched.Run(context.Background()) }()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not terminate within the test timeout")
		return nil
	}
}
