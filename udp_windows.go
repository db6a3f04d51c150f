//go:build windows

package coro

import (
	"context"
	"net"

	"github.com/joeycumines/go-longpoll"
)

// UDPSocket is unavailable on Windows through this package's poller: see
// poller_windows.go's channelPoller, which cannot register arbitrary fds for
// readiness.
type UDPSocket struct{}

type UDPDatagram struct {
	Data []byte
	From *net.UDPAddr
}

func ListenUDP(addr *net.UDPAddr) (*UDPSocket, error) {
	return nil, ErrUnsupportedPlatform
}

func (s *UDPSocket) Addr() *net.UDPAddr { return nil }

func (s *UDPSocket) Receive(c *Coroutine, buf []byte) (int, *net.UDPAddr, error) {
	return 0, nil, ErrUnsupportedPlatform
}

func (s *UDPSocket) Send(c *Coroutine, buf []byte, addr *net.UDPAddr) (int, error) {
	return 0, ErrUnsupportedPlatform
}

func (s *UDPSocket) Close() error { return ErrUnsupportedPlatform }

func (s *UDPSocket) ReceiveBatch(ctx context.Context, c *Coroutine, bufSize int, cfg *longpoll.ChannelConfig) ([]UDPDatagram, error) {
	return nil, ErrUnsupportedPlatform
}
