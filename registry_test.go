package coro

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A coroutine moves through the ready queue, the blocked map, and the timer
// heap one at a time, never in more than one simultaneously; Stats, sampled
// from inside a coroutine body (so it's happens-before ordered against the
// scheduler's own bookkeeping writes), must always show exactly one
// structure holding it at a time.
func TestRegistryReflectsExactlyOneStructurePerLiveCoroutine(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	p, err := NewPipe()
	require.NoError(t, err)
	defer p.Close()

	var whileBlockedOnFD, whileSleeping Stats

	_, err = sched.Submit(func(c *Coroutine) error {
		buf := make([]byte, 1)
		_, _ = p.Read(c, buf)
		return nil
	})
	require.NoError(t, err)

	_, err = sched.Submit(func(c *Coroutine) error {
		// Give the fd-reader a chance to actually register as blocked before
		// sampling.
		if err := c.Yield(); err != nil {
			return err
		}
		whileBlockedOnFD = c.Scheduler().Stats()

		if err := c.SleepFor(20 * time.Millisecond); err != nil {
			return err
		}
		return nil
	})
	require.NoError(t, err)

	_, err = sched.Submit(func(c *Coroutine) error {
		if err := c.Yield(); err != nil {
			return err
		}
		if err := c.Yield(); err != nil {
			return err
		}
		whileSleeping = c.Scheduler().Stats()
		return p.CloseWrite()
	})
	require.NoError(t, err)

	require.NoError(t, runSchedulerWithTimeout(t, sched))

	assert.Equal(t, 1, whileBlockedOnFD.Blocked, "the fd-reader must be in the blocked map")
	assert.Equal(t, 1, whileSleeping.Timers, "the sleeper must be in the timer heap")

	final := sched.Stats()
	assert.Equal(t, 0, final.Ready)
	assert.Equal(t, 0, final.Blocked)
	assert.Equal(t, 0, final.Timers)
}

func TestRegistryCountTracksSubmittedCoroutines(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	const n = 8
	var last Stats
	for i := 0; i < n; i++ {
		_, err := sched.Submit(func(c *Coroutine) error {
			last = c.Scheduler().Stats()
			return nil
		})
		require.NoError(t, err)
	}

	require.NoError(t, runSchedulerWithTimeout(t, sched))
	assert.GreaterOrEqual(t, last.Registered, 1)
	assert.LessOrEqual(t, last.Registered, n)
}
