package coro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipePingPongBetweenTwoCoroutines(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	ping, err := NewPipe()
	require.NoError(t, err)
	defer ping.Close()
	pong, err := NewPipe()
	require.NoError(t, err)
	defer pong.Close()

	const rounds = 20
	var pinger, ponger []byte

	_, err = sched.Submit(func(c *Coroutine) error {
		for i := 0; i < rounds; i++ {
			if _, werr := ping.Write(c, []byte{byte(i)}); werr != nil {
				return werr
			}
			buf := make([]byte, 1)
			n, rerr := pong.Read(c, buf)
			if rerr != nil {
				return rerr
			}
			ponger = append(ponger, buf[:n]...)
		}
		return nil
	})
	require.NoError(t, err)

	_, err = sched.Submit(func(c *Coroutine) error {
		for i := 0; i < rounds; i++ {
			buf := make([]byte, 1)
			n, rerr := ping.Read(c, buf)
			if rerr != nil {
				return rerr
			}
			pinger = append(pinger, buf[:n]...)
			if _, werr := pong.Write(c, buf[:n]); werr != nil {
				return werr
			}
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, runSchedulerWithTimeout(t, sched))
	require.Len(t, pinger, rounds)
	require.Len(t, ponger, rounds)
	for i := 0; i < rounds; i++ {
		assert.Equal(t, byte(i), pinger[i])
		assert.Equal(t, byte(i), ponger[i])
	}
}

func TestPipeReadObservesClosedWriteEnd(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	p, err := NewPipe()
	require.NoError(t, err)
	defer p.Close()

	var readErr error
	_, err = sched.Submit(func(c *Coroutine) error {
		buf := make([]byte, 1)
		_, readErr = p.Read(c, buf)
		return nil
	})
	require.NoError(t, err)

	_, err = sched.Submit(func(c *Coroutine) error {
		return p.CloseWrite()
	})
	require.NoError(t, err)

	require.NoError(t, runSchedulerWithTimeout(t, sched))
	assert.ErrorIs(t, readErr, ErrClosed)
}

func TestPipeWriteLargerThanBufferSuspendsAndRetries(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	p, err := NewPipe()
	require.NoError(t, err)
	defer p.Close()

	const total = 256 * 1024
	payload := make([]byte, total)
	for i := range payload {
		payload[i] = byte(i)
	}

	var written int
	var writeErr error
	_, err = sched.Submit(func(c *Coroutine) error {
		written, writeErr = p.Write(c, payload)
		return writeErr
	})
	require.NoError(t, err)

	var received []byte
	_, err = sched.Submit(func(c *Coroutine) error {
		buf := make([]byte, 4096)
		for len(received) < total {
			n, rerr := p.Read(c, buf)
			if rerr != nil {
				return rerr
			}
			received = append(received, buf[:n]...)
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, runSchedulerWithTimeout(t, sched))
	require.NoError(t, writeErr)
	assert.Equal(t, total, written)
	assert.Equal(t, payload, received)
}
