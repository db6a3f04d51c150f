//go:build !windows

package coro

import (
	"time"

	"golang.org/x/sys/unix"
)

// Pipe is a scheduler-aware byte-stream FIFO (spec.md §4.7). Reads and
// writes follow the would-block/AwaitFD pattern every scheduler-aware I/O
// primitive in this package uses: attempt the non-blocking syscall, and on
// EAGAIN suspend the calling coroutine until the scheduler's poller reports
// the fd ready, then retry.
type Pipe struct {
	readFD  int
	writeFD int
	closed  bool
}

// NewPipe creates an anonymous pipe whose ends are both placed in
// non-blocking mode, bypassing the Go runtime's own netpoller entirely so
// readiness is observed exclusively through the owning Scheduler's poller.
func NewPipe() (*Pipe, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, NewIOError("pipe", err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
		return nil, NewIOError("setnonblock", err)
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
		return nil, NewIOError("setnonblock", err)
	}
	return &Pipe{readFD: fds[0], writeFD: fds[1]}, nil
}

// Read fills buf with whatever is available, suspending the calling
// coroutine (via c.AwaitFD) while the pipe has nothing to read. It
// returns (0, io.EOF)-shaped behavior as (0, ErrClosed) once the write end
// has been closed and all buffered bytes are drained — callers wanting a
// literal io.EOF should compare against ErrClosed explicitly, since the
// pipe's own close is cooperative rather than OS-signaled the way a socket's
// is.
func (p *Pipe) Read(c *Coroutine, buf []byte) (int, error) {
	for {
		if p.closed {
			return 0, ErrClosed
		}
		n, err := unix.Read(p.readFD, buf)
		switch {
		case err == nil && n == 0:
			return 0, ErrClosed // peer (write end) closed
		case err == nil:
			return n, nil
		case err == unix.EAGAIN:
			if aerr := c.AwaitFD(p.readFD, DirRead, nil); aerr != nil {
				return 0, aerr
			}
		default:
			return 0, NewIOError("read", err)
		}
	}
}

// Write writes all of buf, suspending while the pipe's write buffer is full.
func (p *Pipe) Write(c *Coroutine, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := unix.Write(p.writeFD, buf[total:])
		switch {
		case err == nil:
			total += n
		case err == unix.EAGAIN:
			if aerr := c.AwaitFD(p.writeFD, DirWrite, nil); aerr != nil {
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

// ReadDeadline is Read with an optional absolute deadline; nil means no
// deadline.
func (p *Pipe) ReadDeadline(c *Coroutine, buf []byte, deadline *time.Time) (int, error) {
	for {
		if p.closed {
			return 0, ErrClosed
		}
		n, err := unix.Read(p.readFD, buf)
		switch {
		case err == nil && n == 0:
			return 0, ErrClosed
		case err == nil:
			return n, nil
		case err == unix.EAGAIN:
			if aerr := c.AwaitFD(p.readFD, DirRead, deadline); aerr != nil {
				return 0, aerr
			}
		default:
			return 0, NewIOError("read", err)
		}
	}
}

// CloseWrite closes the write end, causing subsequent Reads on the other
// coroutine to observe ErrClosed once the buffer drains.
func (p *Pipe) CloseWrite() error {
	return NewIOError("close", unix.Close(p.writeFD))
}

// Close closes both ends.
func (p *Pipe) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	err1 := unix.Close(p.readFD)
	err2 := unix.Close(p.writeFD)
	if err1 != nil {
		return NewIOError("close", err1)
	}
	if err2 != nil {
		return NewIOError("close", err2)
	}
	return nil
}
