package coro

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterruptFirstWinsOverSecondCall(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	var c *Coroutine
	ready := make(chan struct{})
	var resultErr error

	c, err = sched.Submit(func(co *Coroutine) error {
		c = co
		close(ready)
		err := co.SleepFor(time.Hour)
		resultErr = err
		return err
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sched.Run(nil) }()

	<-ready
	// First interruption wins; a second, different kind must be a no-op
	// (spec.md §8's "at most one interrupted error per suspension point").
	c.Interrupt(InterruptExecution)
	c.Interrupt(InterruptTimeout)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not terminate")
	}

	assert.ErrorIs(t, resultErr, ErrInterrupted)
}

func TestCheckInterruptionConsumesPendingKindOnce(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	var firstYield, secondYield error
	_, err = sched.Submit(func(c *Coroutine) error {
		c.Interrupt(InterruptExecution)
		firstYield = c.Yield()
		secondYield = c.Yield()
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, runSchedulerWithTimeout(t, sched))
	assert.ErrorIs(t, firstYield, ErrInterrupted, "the pending interruption must fire at the very next suspension point")
	assert.NoError(t, secondYield, "a consumed interruption must not fire again")
}

func TestInterruptRelocatesCoroutineBlockedOnFD(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	p, err := NewPipe()
	require.NoError(t, err)
	defer p.Close()

	var c *Coroutine
	blocked := make(chan struct{})
	var readErr error

	c, err = sched.Submit(func(co *Coroutine) error {
		c = co
		close(blocked)
		buf := make([]byte, 1)
		_, readErr = p.Read(co, buf)
		return readErr
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sched.Run(nil) }()

	<-blocked
	time.Sleep(10 * time.Millisecond) // give the coroutine a moment to actually register with the poller
	c.Interrupt(InterruptExecution)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not terminate")
	}

	assert.ErrorIs(t, readErr, ErrInterrupted)
	assert.Equal(t, 0, sched.Stats().Blocked, "the interrupted coroutine must have been relocated out of the blocked map")
}
