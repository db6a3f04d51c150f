package coro

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitFDTimesOutWhenDeadlineElapsesFirst(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	p, err := NewPipe()
	require.NoError(t, err)
	defer p.Close()

	var readErr error
	var elapsed time.Duration
	_, err = sched.Submit(func(c *Coroutine) error {
		start := time.Now()
		buf := make([]byte, 1)
		// Nothing is ever written to p, so this can only return via the
		// deadline (spec.md §8 invariant 4: never wakes before T, but must
		// wake by some T' >= T).
		_, readErr = p.ReadDeadline(c, buf, deadlinePtr(20*time.Millisecond))
		elapsed = time.Since(start)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, runSchedulerWithTimeout(t, sched))
	assert.ErrorIs(t, readErr, ErrTimedOut)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
}

func TestAwaitFDReturnsReadyBeforeDeadlineWhenDataArrives(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	p, err := NewPipe()
	require.NoError(t, err)
	defer p.Close()

	var readErr error
	var n int
	_, err = sched.Submit(func(c *Coroutine) error {
		buf := make([]byte, 5)
		n, readErr = p.ReadDeadline(c, buf, deadlinePtr(time.Hour))
		return nil
	})
	require.NoError(t, err)

	_, err = sched.Submit(func(c *Coroutine) error {
		if err := c.SleepFor(10 * time.Millisecond); err != nil {
			return err
		}
		_, werr := p.Write(c, []byte("hello"))
		return werr
	})
	require.NoError(t, err)

	require.NoError(t, runSchedulerWithTimeout(t, sched))
	require.NoError(t, readErr)
	assert.Equal(t, 5, n)
}

func TestSleepUntilDeadlineIsNotItselfAnError(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	var sleepErr error
	_, err = sched.Submit(func(c *Coroutine) error {
		sleepErr = c.SleepFor(5 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, runSchedulerWithTimeout(t, sched))
	assert.NoError(t, sleepErr, "a timer firing normally is not an interruption or a timeout")
}

func deadlinePtr(d time.Duration) *time.Time {
	t := time.Now().Add(d)
	return &t
}
