package coro

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/joeycumines/go-longpoll"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUDPEchoRoundTrip(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	server, err := ListenUDP(&net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer server.Close()
	client, err := ListenUDP(&net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer client.Close()

	const msg = "hello over udp"
	var echoed string
	var serverErr, clientErr error

	_, err = sched.Submit(func(c *Coroutine) error {
		buf := make([]byte, 64)
		n, from, rerr := server.Receive(c, buf)
		if rerr != nil {
			serverErr = rerr
			return rerr
		}
		_, werr := server.Send(c, buf[:n], from)
		serverErr = werr
		return werr
	})
	require.NoError(t, err)

	_, err = sched.Submit(func(c *Coroutine) error {
		if _, werr := client.Send(c, []byte(msg), server.Addr()); werr != nil {
			clientErr = werr
			return werr
		}
		buf := make([]byte, 64)
		n, _, rerr := client.Receive(c, buf)
		if rerr != nil {
			clientErr = rerr
			return rerr
		}
		echoed = string(buf[:n])
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, runSchedulerWithTimeout(t, sched))
	require.NoError(t, serverErr)
	require.NoError(t, clientErr)
	assert.Equal(t, msg, echoed)
}

func TestUDPReceiveBatchDrainsExpectedCount(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	server, err := ListenUDP(&net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer server.Close()
	client, err := ListenUDP(&net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer client.Close()

	const n = 5
	var batch []UDPDatagram
	var batchErr error

	_, err = sched.Submit(func(c *Coroutine) error {
		cfg := &longpoll.ChannelConfig{
			MinSize:        n,
			MaxSize:        n,
			PartialTimeout: 2 * time.Second,
		}
		batch, batchErr = server.ReceiveBatch(context.Background(), c, 64, cfg)
		return nil
	})
	require.NoError(t, err)

	_, err = sched.Submit(func(c *Coroutine) error {
		for i := 0; i < n; i++ {
			if _, werr := client.Send(c, []byte{byte(i)}, server.Addr()); werr != nil {
				return werr
			}
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, runSchedulerWithTimeout(t, sched))
	require.NoError(t, batchErr)
	assert.Len(t, batch, n)
}
