//go:build darwin

package coro

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// maxFDLimit bounds dynamic growth of the fd table, mirroring
// eventloop.FastPoller's Darwin variant.
const maxFDLimit = 100000000

const wakeIdent = 1 // arbitrary ident for the EVFILT_USER wake event

// kqueuePoller is a dynamic-slice kqueue poller, grounded on
// eventloop.FastPoller (Darwin): a growable fds slice instead of a fixed
// array, woken cross-goroutine via a dedicated EVFILT_USER event instead of
// an eventfd (kqueue has no portable fd-based wake primitive).
type kqueuePoller struct {
	kq       int
	eventBuf [256]unix.Kevent_t
	fds      []IOEvents // registered directions per fd; zero value = unregistered
	fdMu     sync.RWMutex
	closed   atomic.Bool
}

func newPoller() (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, NewIOError("kqueue", err)
	}
	unix.CloseOnExec(kq)

	p := &kqueuePoller{kq: kq, fds: make([]IOEvents, 256)}

	wakeEvents := []unix.Kevent_t{{
		Ident:  wakeIdent,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}}
	if _, err := unix.Kevent(p.kq, wakeEvents, nil, nil); err != nil {
		_ = unix.Close(kq)
		return nil, NewIOError("kevent(wake add)", err)
	}

	return p, nil
}

func (p *kqueuePoller) ensureCap(fd int) {
	if fd < len(p.fds) {
		return
	}
	newSize := fd*2 + 1
	if newSize > maxFDLimit {
		newSize = maxFDLimit + 1
	}
	grown := make([]IOEvents, newSize)
	copy(grown, p.fds)
	p.fds = grown
}

func (p *kqueuePoller) Add(fd int, dir Direction) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if fd < 0 || fd >= maxFDLimit {
		return ErrFDOutOfRange
	}

	want := dirToEvent(dir)

	p.fdMu.Lock()
	p.ensureCap(fd)
	if p.fds[fd].has(want) {
		p.fdMu.Unlock()
		return ErrFDAlreadyRegistered
	}
	p.fds[fd] |= want
	p.fdMu.Unlock()

	ev := []unix.Kevent_t{{
		Ident:  uint64(fd),
		Filter: directionFilter(dir),
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}}
	if _, err := unix.Kevent(p.kq, ev, nil, nil); err != nil {
		return NewIOError("kevent(add)", err)
	}
	return nil
}

func (p *kqueuePoller) Remove(fd int, dir Direction) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}

	remove := dirToEvent(dir)

	p.fdMu.Lock()
	if fd >= len(p.fds) || !p.fds[fd].has(remove) {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	p.fds[fd] &^= remove
	p.fdMu.Unlock()

	ev := []unix.Kevent_t{{
		Ident:  uint64(fd),
		Filter: directionFilter(dir),
		Flags:  unix.EV_DELETE,
	}}
	if _, err := unix.Kevent(p.kq, ev, nil, nil); err != nil {
		return NewIOError("kevent(delete)", err)
	}
	return nil
}

func (p *kqueuePoller) Wait(dst []ReadyEvent, timeout int64) ([]ReadyEvent, error) {
	if p.closed.Load() {
		return dst, ErrPollerClosed
	}

	var ts *unix.Timespec
	if timeout >= 0 {
		ts = &unix.Timespec{
			Sec:  timeout / 1000,
			Nsec: (timeout % 1000) * int64(1e6),
		}
	}

	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, NewIOError("kevent(wait)", err)
	}

	for i := 0; i < n; i++ {
		kv := p.eventBuf[i]
		if kv.Filter == unix.EVFILT_USER {
			continue
		}
		events := filterToEvents(kv.Filter)
		if kv.Flags&unix.EV_EOF != 0 {
			events |= EventHangup
		}
		if kv.Flags&unix.EV_ERROR != 0 {
			events |= EventError
		}
		dst = append(dst, ReadyEvent{FD: int(kv.Ident), Events: events})
	}
	return dst, nil
}

func (p *kqueuePoller) Wake() error {
	ev := []unix.Kevent_t{{
		Ident:  wakeIdent,
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}}
	if _, err := unix.Kevent(p.kq, ev, nil, nil); err != nil {
		return NewIOError("kevent(trigger)", err)
	}
	return nil
}

func (p *kqueuePoller) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(p.kq)
}

func dirToEvent(dir Direction) IOEvents {
	if dir == DirWrite {
		return EventWrite
	}
	return EventRead
}

func directionFilter(dir Direction) int16 {
	if dir == DirWrite {
		return unix.EVFILT_WRITE
	}
	return unix.EVFILT_READ
}

func filterToEvents(filter int16) IOEvents {
	if filter == unix.EVFILT_WRITE {
		return EventWrite
	}
	return EventRead
}
