package coro

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTerminatesOnceAllCoroutinesFinish(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	const n = 10
	finished := 0
	for i := 0; i < n; i++ {
		_, err := sched.Submit(func(c *Coroutine) error {
			finished++
			return nil
		})
		require.NoError(t, err)
	}

	require.NoError(t, runSchedulerWithTimeout(t, sched))
	assert.Equal(t, n, finished)
}

func TestRunWithNoCoroutinesTerminatesImmediately(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)
	require.NoError(t, runSchedulerWithTimeout(t, sched))
}

func TestRunReturnsFirstErrorOnly(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	err1 := errors.New("first")
	err2 := errors.New("second")

	// c1 yields once (so it's still alive, sitting in the ready queue, when
	// c2 finishes with an error and triggers RequestStop); by the time c1
	// resumes, its pending interruption wins the race with err1, so the
	// scheduler's firstErr must be err2, deterministically, given FIFO
	// submission/ready-queue ordering.
	_, err = sched.Submit(func(c *Coroutine) error {
		if err := c.Yield(); err != nil {
			return err
		}
		return err1
	})
	require.NoError(t, err)
	_, err = sched.Submit(func(c *Coroutine) error {
		return err2
	})
	require.NoError(t, err)

	runErr := runSchedulerWithTimeout(t, sched)
	assert.ErrorIs(t, runErr, err2)
}

func TestRequestStopInterruptsAllLiveCoroutines(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	const n = 5
	interrupted := make(chan error, n)
	for i := 0; i < n; i++ {
		_, err := sched.Submit(func(c *Coroutine) error {
			// Sleep far longer than the test should take; RequestStop must
			// interrupt this before the deadline naturally elapses.
			err := c.SleepFor(time.Hour)
			interrupted <- err
			return err
		})
		require.NoError(t, err)
	}

	_, err = sched.Submit(func(c *Coroutine) error {
		c.Scheduler().RequestStop()
		return nil
	})
	require.NoError(t, err)

	_ = runSchedulerWithTimeout(t, sched)

	for i := 0; i < n; i++ {
		select {
		case err := <-interrupted:
			assert.ErrorIs(t, err, ErrInterrupted)
		default:
			t.Fatal("expected all coroutines to have observed interruption")
		}
	}
}

func TestContextCancellationStopsScheduler(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	_, err = sched.Submit(func(c *Coroutine) error {
		return c.SleepFor(time.Hour)
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}
}

func TestSubmitAfterStopFails(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	_, err = sched.Submit(func(c *Coroutine) error { return nil })
	require.NoError(t, err)
	require.NoError(t, runSchedulerWithTimeout(t, sched))

	_, err = sched.Submit(func(c *Coroutine) error { return nil })
	assert.ErrorIs(t, err, ErrSchedulerStopped)
}
