//go:build windows

package coro

import "os"

// File is unavailable on Windows through this package for the same reason
// as Pipe and TCPConn: see poller_windows.go.
type File struct{}

func OpenFile(name string, flag int, perm os.FileMode) (*File, error) {
	return nil, ErrUnsupportedPlatform
}

func (f *File) Name() string { return "" }

func (f *File) Read(buf []byte) (int, error) { return 0, ErrUnsupportedPlatform }

func (f *File) Write(buf []byte) (int, error) { return 0, ErrUnsupportedPlatform }

func (f *File) ReadAt(buf []byte, offset int64) (int, error) { return 0, ErrUnsupportedPlatform }

func (f *File) WriteAt(buf []byte, offset int64) (int, error) { return 0, ErrUnsupportedPlatform }

func (f *File) Sync() error { return ErrUnsupportedPlatform }

func (f *File) Close() error { return nil }
