//go:build !windows

package coro

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// TCPServer is a scheduler-aware TCP listener implementing the state
// machine from spec.md §4.7: unbound → (bind+listen) → listening →
// (accept, may suspend) → listening, any → (close) → closed.
type TCPServer struct {
	fd     int
	addr   *net.TCPAddr
	closed bool
}

// ListenTCP creates, binds, and listens on a non-blocking TCP socket for
// addr (use port 0 for an ephemeral port).
func ListenTCP(addr *net.TCPAddr) (*TCPServer, error) {
	if addr == nil {
		addr = &net.TCPAddr{}
	}
	domain := unix.AF_INET
	if addr.IP.To4() == nil && addr.IP != nil {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, NewIOError("socket", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, NewIOError("setnonblock", err)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)

	sa, err := tcpAddrToSockaddr(addr, domain)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, NewIOError("bind", err)
	}
	if err := unix.Listen(fd, 128); err != nil {
		_ = unix.Close(fd)
		return nil, NewIOError("listen", err)
	}

	local, err := sockaddrToTCPAddr(mustGetsockname(fd))
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	return &TCPServer{fd: fd, addr: local}, nil
}

// Addr returns the server's bound local address.
func (s *TCPServer) Addr() *net.TCPAddr { return s.addr }

// Accept suspends the calling coroutine until a connection arrives,
// returning a TCPConn wrapping it.
func (s *TCPServer) Accept(c *Coroutine) (*TCPConn, error) {
	for {
		if s.closed {
			return nil, ErrClosed
		}
		connFD, sa, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch {
		case err == nil:
			remote, rerr := sockaddrToTCPAddr(sa, nil)
			if rerr != nil {
				_ = unix.Close(connFD)
				return nil, rerr
			}
			local, lerr := sockaddrToTCPAddr(mustGetsockname(connFD))
			if lerr != nil {
				_ = unix.Close(connFD)
				return nil, lerr
			}
			return &TCPConn{fd: connFD, local: local, remote: remote}, nil
		case err == unix.EAGAIN:
			if aerr := c.AwaitFD(s.fd, DirRead, nil); aerr != nil {
				return nil, aerr
			}
		default:
			return nil, NewIOError("accept4", err)
		}
	}
}

// Close stops accepting and releases the listening socket.
func (s *TCPServer) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return NewIOError("close", unix.Close(s.fd))
}

// TCPConn is a connected TCP socket: open → (read/write, may suspend) →
// open | half-closed → closed (spec.md §4.7).
type TCPConn struct {
	fd     int
	local  *net.TCPAddr
	remote *net.TCPAddr
	closed bool
}

// DialTCP connects to addr, suspending the calling coroutine until the
// non-blocking connect completes (or fails).
func DialTCP(c *Coroutine, addr *net.TCPAddr) (*TCPConn, error) {
	domain := unix.AF_INET
	if addr.IP.To4() == nil {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, NewIOError("socket", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, NewIOError("setnonblock", err)
	}

	sa, err := tcpAddrToSockaddr(addr, domain)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return nil, NewIOError("connect", err)
	}
	if err == unix.EINPROGRESS {
		if aerr := c.AwaitFD(fd, DirWrite, nil); aerr != nil {
			_ = unix.Close(fd)
			return nil, aerr
		}
		if serr, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR); gerr == nil && serr != 0 {
			_ = unix.Close(fd)
			return nil, NewIOError("connect", unix.Errno(serr))
		}
	}

	local, lerr := sockaddrToTCPAddr(mustGetsockname(fd))
	if lerr != nil {
		_ = unix.Close(fd)
		return nil, lerr
	}

	return &TCPConn{fd: fd, local: local, remote: addr}, nil
}

// LocalAddr and RemoteAddr return the connection's cached endpoint info.
func (cn *TCPConn) LocalAddr() *net.TCPAddr  { return cn.local }
func (cn *TCPConn) RemoteAddr() *net.TCPAddr { return cn.remote }

func (cn *TCPConn) Read(c *Coroutine, buf []byte) (int, error) {
	return cn.ReadDeadline(c, buf, nil)
}

func (cn *TCPConn) ReadDeadline(c *Coroutine, buf []byte, deadline *time.Time) (int, error) {
	for {
		if cn.closed {
			return 0, ErrClosed
		}
		n, err := unix.Read(cn.fd, buf)
		switch {
		case err == nil && n == 0:
			return 0, ErrClosed
		case err == nil:
			return n, nil
		case err == unix.EAGAIN:
			if aerr := c.AwaitFD(cn.fd, DirRead, deadline); aerr != nil {
				return 0, aerr
			}
		default:
			return 0, NewIOError("read", err)
		}
	}
}

func (cn *TCPConn) Write(c *Coroutine, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := unix.Write(cn.fd, buf[total:])
		switch {
		case err == nil:
			total += n
		case err == unix.EAGAIN:
			if aerr := c.AwaitFD(cn.fd, DirWrite, nil); aerr != nil {
				return total, aerr
			}
		case err == unix.EPIPE:
			return total, ErrClosed
		default:
			return total, NewIOError("write", err)
		}
	}
	return total, nil
}

// CloseRead / CloseWrite implement half-close.
func (cn *TCPConn) CloseRead() error  { return NewIOError("shutdown", unix.Shutdown(cn.fd, unix.SHUT_RD)) }
func (cn *TCPConn) CloseWrite() error { return NewIOError("shutdown", unix.Shutdown(cn.fd, unix.SHUT_WR)) }

func (cn *TCPConn) Close() error {
	if cn.closed {
		return nil
	}
	cn.closed = true
	return NewIOError("close", unix.Close(cn.fd))
}

func tcpAddrToSockaddr(addr *net.TCPAddr, domain int) (unix.Sockaddr, error) {
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

func sockaddrToTCPAddr(sa unix.Sockaddr, _ error) (*net.TCPAddr, error) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: append([]byte(nil), v.Addr[:]...), Port: v.Port}, nil
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: append([]byte(nil), v.Addr[:]...), Port: v.Port}, nil
	default:
		return nil, NewIOError("getsockname", unix.EAFNOSUPPORT)
	}
}

func mustGetsockname(fd int) (unix.Sockaddr, error) {
	return unix.Getsockname(fd)
}
