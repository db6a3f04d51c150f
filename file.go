//go:build !windows

package coro

import (
	"os"

	"golang.org/x/sys/unix"
)

// File is a scheduler-aware wrapper around a regular file. Unlike Pipe,
// TCPConn, and UDPSocket, File never calls Coroutine.AwaitFD: epoll and
// kqueue both treat regular files as permanently ready (level-triggered
// readiness on a file fd never blocks), so there is no readiness signal to
// wait on. Reads and writes are plain blocking syscalls; since each
// coroutine owns its own goroutine, a slow disk read only parks that one
// goroutine rather than the scheduler's run loop.
type File struct {
	fd     int
	name   string
	closed bool
}

// OpenFile opens name with the given flag and permission bits, mirroring
// os.OpenFile's signature.
func OpenFile(name string, flag int, perm os.FileMode) (*File, error) {
	fd, err := unix.Open(name, flag, uint32(perm))
	if err != nil {
		return nil, NewIOError("open", err)
	}
	return &File{fd: fd, name: name}, nil
}

// Name returns the path File was opened with.
func (f *File) Name() string { return f.name }

// Read reads into buf at the file's current offset. A zero-length result
// with a nil error signals end of file, matching io.Reader only loosely:
// callers that want io.EOF specifically should treat (0, nil) as EOF
// themselves, since scheduler-aware primitives in this package reserve
// ErrClosed for descriptor lifecycle, not stream exhaustion.
func (f *File) Read(buf []byte) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	n, err := unix.Read(f.fd, buf)
	if err != nil {
		return 0, NewIOError("read", err)
	}
	return n, nil
}

// Write writes all of buf at the file's current offset.
func (f *File) Write(buf []byte) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	total := 0
	for total < len(buf) {
		n, err := unix.Write(f.fd, buf[total:])
		if err != nil {
			return total, NewIOError("write", err)
		}
		total += n
	}
	return total, nil
}

// ReadAt and WriteAt are positional variants, avoiding a separate seek
// syscall per call.
func (f *File) ReadAt(buf []byte, offset int64) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	n, err := unix.Pread(f.fd, buf, offset)
	if err != nil {
		return 0, NewIOError("pread", err)
	}
	return n, nil
}

func (f *File) WriteAt(buf []byte, offset int64) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	n, err := unix.Pwrite(f.fd, buf, offset)
	if err != nil {
		return 0, NewIOError("pwrite", err)
	}
	return n, nil
}

// Sync flushes the file's in-memory state to storage.
func (f *File) Sync() error {
	return NewIOError("fsync", unix.Fsync(f.fd))
}

// Close releases the underlying descriptor.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	return NewIOError("close", unix.Close(f.fd))
}
