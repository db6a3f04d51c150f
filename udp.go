//go:build !windows

package coro

import (
	"context"
	"net"
	"time"

	"github.com/joeycumines/go-longpoll"
	"golang.org/x/sys/unix"
)

// UDPDatagram is one received packet plus the address it arrived from.
type UDPDatagram struct {
	Data []byte
	From *net.UDPAddr
}

// UDPSocket is a scheduler-aware connectionless UDP endpoint: bind once,
// then receive/send datagrams, each individually addressed (spec.md §4.7's
// UDP server/client operations).
type UDPSocket struct {
	fd     int
	addr   *net.UDPAddr
	closed bool
}

// ListenUDP binds a non-blocking UDP socket to addr (port 0 for ephemeral).
func ListenUDP(addr *net.UDPAddr) (*UDPSocket, error) {
	if addr == nil {
		addr = &net.UDPAddr{}
	}
	domain := unix.AF_INET
	if addr.IP.To4() == nil && addr.IP != nil {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return nil, NewIOError("socket", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, NewIOError("setnonblock", err)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)

	sa, err := udpAddrToSockaddr(addr, domain)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, NewIOError("bind", err)
	}

	local, err := sockaddrToUDPAddr(mustGetsockname(fd))
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	return &UDPSocket{fd: fd, addr: local}, nil
}

// Addr returns the socket's bound local address.
func (s *UDPSocket) Addr() *net.UDPAddr { return s.addr }

// Receive suspends until a datagram arrives, returning it and its sender.
func (s *UDPSocket) Receive(c *Coroutine, buf []byte) (int, *net.UDPAddr, error) {
	for {
		if s.closed {
			return 0, nil, ErrClosed
		}
		n, sa, err := unix.Recvfrom(s.fd, buf, 0)
		switch {
		case err == nil:
			from, ferr := sockaddrToUDPAddr(sa, nil)
			if ferr != nil {
				return 0, nil, ferr
			}
			return n, from, nil
		case err == unix.EAGAIN:
			if aerr := c.AwaitFD(s.fd, DirRead, nil); aerr != nil {
				return 0, nil, aerr
			}
		default:
			return 0, nil, NewIOError("recvfrom", err)
		}
	}
}

// Send transmits buf to addr, suspending if the socket's send buffer is
// momentarily full.
func (s *UDPSocket) Send(c *Coroutine, buf []byte, addr *net.UDPAddr) (int, error) {
	domain := unix.AF_INET
	if addr.IP.To4() == nil {
		domain = unix.AF_INET6
	}
	sa, err := udpAddrToSockaddr(addr, domain)
	if err != nil {
		return 0, err
	}
	for {
		if s.closed {
			return 0, ErrClosed
		}
		serr := unix.Sendto(s.fd, buf, 0, sa)
		switch {
		case serr == nil:
			return len(buf), nil
		case serr == unix.EAGAIN:
			if aerr := c.AwaitFD(s.fd, DirWrite, nil); aerr != nil {
				return 0, aerr
			}
		default:
			return 0, NewIOError("sendto", serr)
		}
	}
}

// Close releases the underlying socket.
func (s *UDPSocket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return NewIOError("close", unix.Close(s.fd))
}

// udpPollBackoff is how long the background reader spawned by ReceiveBatch
// sleeps between raw non-blocking recvfrom attempts when the socket has
// nothing to read. It never calls into the scheduler (see ReceiveBatch's
// doc comment), so this is a plain goroutine sleep, not AwaitFD.
const udpPollBackoff = time.Millisecond

// udpBatchResult carries ReceiveBatch's outcome from the goroutine that
// drives longpoll.Channel back to the suspended coroutine, over a buffered
// channel so the handoff is a proper Go-memory-model synchronization point
// (unlike the self-pipe close that wakes the coroutine, which only signals
// "the result is ready", not what it is).
type udpBatchResult struct {
	datagrams []UDPDatagram
	err       error
}

// ReceiveBatch drains up to cfg's constraints worth of datagrams in one
// call: a background goroutine performs raw non-blocking recvfrom syscalls
// directly against the socket's fd (backing off with a short sleep on
// EAGAIN) and feeds a plain Go channel, which github.com/joeycumines/
// go-longpoll's Channel bulk-drains with bounded MaxSize/MinSize/
// PartialTimeout semantics, trading a little latency for fewer, larger
// batches under load.
//
// Both of those are plain goroutines that never touch c or any *Coroutine
// method: c's resumeCh/suspendCh pair may only ever be driven by c's own
// backing goroutine (see coroutine.go's resume/suspend contract). Instead,
// c itself suspends on a private Pipe via AwaitFD (the same would-block/
// readiness pattern every other scheduler-aware I/O primitive in this
// package uses, and the same self-pipe idiom Scheduler's own poller wake
// uses to cross from another goroutine into the poller), and is woken once
// the background longpoll.Channel call completes and closes the pipe's
// write end. This keeps the scheduler's run-loop goroutine free to dispatch
// other ready coroutines for the whole time ReceiveBatch is waiting to
// fill a batch, rather than parking it for that entire duration the way a
// synchronous call to longpoll.Channel from c's own turn would.
func (s *UDPSocket) ReceiveBatch(ctx context.Context, c *Coroutine, bufSize int, cfg *longpoll.ChannelConfig) ([]UDPDatagram, error) {
	ch := make(chan UDPDatagram)
	readerErr := make(chan error, 1)
	stop := make(chan struct{})

	go func() {
		defer close(ch)
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			default:
			}

			buf := make([]byte, bufSize)
			n, sa, err := unix.Recvfrom(s.fd, buf, 0)
			switch {
			case err == nil:
				from, ferr := sockaddrToUDPAddr(sa, nil)
				if ferr != nil {
					readerErr <- ferr
					return
				}
				select {
				case ch <- UDPDatagram{Data: buf[:n], From: from}:
				case <-stop:
					return
				case <-ctx.Done():
					return
				}
			case err == unix.EAGAIN:
				select {
				case <-time.After(udpPollBackoff):
				case <-stop:
					return
				case <-ctx.Done():
					return
				}
			default:
				readerErr <- NewIOError("recvfrom", err)
				return
			}
		}
	}()
	defer close(stop)

	done, err := NewPipe()
	if err != nil {
		return nil, err
	}

	resultCh := make(chan udpBatchResult, 1)
	go func() {
		var out []UDPDatagram
		err := longpoll.Channel(ctx, cfg, ch, func(d UDPDatagram) error {
			out = append(out, d)
			return nil
		})

		select {
		case rerr := <-readerErr:
			if rerr != nil && err == nil {
				err = rerr
			}
		default:
		}

		resultCh <- udpBatchResult{datagrams: out, err: err}
		_ = done.CloseWrite()
	}()

	sig := make([]byte, 1)
	_, readErr := done.Read(c, sig)
	if readErr == ErrClosed {
		readErr = nil
	}

	// Wait for the writer goroutine's CloseWrite to actually happen, even on
	// the early-return (interrupted) path, then close only the read end here:
	// the write fd is closed exactly once, by CloseWrite, so no close can hit
	// an unrelated fd the OS has since reused for that same number.
	res := <-resultCh
	_ = unix.Close(done.readFD)

	if readErr != nil {
		return nil, readErr
	}
	return res.datagrams, res.err
}

func udpAddrToSockaddr(addr *net.UDPAddr, domain int) (unix.Sockaddr, error) {
	if domain == unix.AF_INET6 {
		var sa unix.SockaddrInet6
		sa.Port = addr.Port
		copy(sa.Addr[:], addr.IP.To16())
		return &sa, nil
	}
	var sa unix.SockaddrInet4
	sa.Port = addr.Port
	if ip4 := addr.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	}
	return &sa, nil
}

func sockaddrToUDPAddr(sa unix.Sockaddr, _ error) (*net.UDPAddr, error) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.UDPAddr{IP: append([]byte(nil), v.Addr[:]...), Port: v.Port}, nil
	case *unix.SockaddrInet6:
		return &net.UDPAddr{IP: append([]byte(nil), v.Addr[:]...), Port: v.Port}, nil
	default:
		return nil, NewIOError("getsockname", unix.EAFNOSUPPORT)
	}
}
