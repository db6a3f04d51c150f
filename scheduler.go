package coro

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// registryScavengeBatchSize bounds how many ring slots Scheduler.Run sweeps
// per tick, so a long-running scheduler's registry doesn't grow unbounded
// while the per-tick cost of sweeping it stays flat.
const registryScavengeBatchSize = 20

// fdDirKey identifies one (fd, direction) blocked-map entry (spec.md §3's
// fd-binding entry, minus the token field — the coroutine pointer itself is
// the token).
type fdDirKey struct {
	fd  int
	dir Direction
}

// Scheduler is the per-thread coroutine multiplexer described in spec.md
// §4.6: a ready queue, an fd-blocked map, a timer heap, and a handle to the
// poller, owned by exactly one goroutine (the one that calls Run). Submit,
// RequestStop, and a coroutine's Interrupt are the only operations safe to
// call from other goroutines; everything else assumes the caller is running
// inside one of this scheduler's own coroutines, or is the goroutine that
// called Run.
type Scheduler struct {
	opts schedulerOptions

	state *fastSchedulerState

	poller Poller

	ready []*Coroutine // FIFO: append at tail, pop from head

	blocked map[fdDirKey]*Coroutine
	timers  *timerHeap
	timerSeq uint64

	running *Coroutine

	registry *coroRegistry

	submitMu    sync.Mutex
	submitQueue []*Coroutine
	submitSpare []*Coroutine

	interruptMu    sync.Mutex
	interruptReloc []*Coroutine
	interruptSpare []*Coroutine

	stopRequested bool
	firstErr      error

	readyEventBuf []ReadyEvent

	attachedGoroutine uint64
	tls               *tlsBlock // this scheduler's own thread's TLS block, aliased onto every coroutine's backing goroutine (see aliasTLS)

	wakePending atomic.Uint32 // deduplicates poller.Wake() calls between one Wait and the next

	metrics *schedulerMetrics // nil unless WithMetrics(true)
}

// NewScheduler constructs a scheduler. The scheduler does not attach to any
// thread or start its poller until Run is called.
func NewScheduler(opts ...SchedulerOption) (*Scheduler, error) {
	o := defaultSchedulerOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}

	poller, err := newPoller()
	if err != nil {
		return nil, err
	}

	sch := &Scheduler{
		opts:     o,
		state:    newFastSchedulerState(),
		poller:   poller,
		blocked:  make(map[fdDirKey]*Coroutine),
		timers:   newTimerHeap(),
		registry: newCoroRegistry(),
		metrics:  newSchedulerMetrics(o.metricsEnabled),
	}
	return sch, nil
}

// Stats summarizes a scheduler's live coroutine bookkeeping, for diagnostics
// and tests (exercises testable property #1: every live coroutine is
// reachable from exactly one of ready/blocked/timer-heap/running).
type Stats struct {
	Ready      int
	Blocked    int
	Timers     int
	Registered int
}

func (sch *Scheduler) Stats() Stats {
	return Stats{
		Ready:      len(sch.ready),
		Blocked:    len(sch.blocked),
		Timers:     sch.timers.Len(),
		Registered: sch.registry.count(),
	}
}

// AttachToCurrentThread binds this scheduler to the calling goroutine's TLS,
// so that coroutine bodies and Run (if called from the same goroutine
// later) can find it via CurrentScheduler. Run calls this automatically if
// no scheduler is yet attached.
func (sch *Scheduler) AttachToCurrentThread() error {
	tls := currentTLS()
	if tls.scheduler != nil && tls.scheduler != sch {
		return ErrAlreadyAttached
	}
	tls.scheduler = sch
	sch.tls = tls
	return nil
}

// CurrentScheduler returns the scheduler attached to the calling goroutine,
// or nil if none.
func CurrentScheduler() *Scheduler {
	return currentTLS().scheduler
}

// Submit adds task to the scheduler as a new coroutine, thread-safe per
// spec.md §4.6. The coroutine is appended to the ready queue the next time
// the run loop drains its submission queue, after all currently-ready
// coroutines but before the next poll (spec.md §4.6 tie-break rules).
func (sch *Scheduler) Submit(task Task) (*Coroutine, error) {
	if !sch.state.CanAcceptWork() {
		return nil, ErrSchedulerStopped
	}

	c := newCoroutine(sch, task)

	sch.submitMu.Lock()
	sch.submitQueue = append(sch.submitQueue, c)
	sch.submitMu.Unlock()

	sch.wake()
	return c, nil
}

// RequestStop atomically requests shutdown: every currently-registered
// coroutine is interrupted with InterruptExecution (spec.md §4.6). Run
// returns once all coroutines have drained to StateFinished (or immediately,
// if none are outstanding). RequestStop does not change the scheduler's run
// state: Submit keeps accepting new coroutines until Run has returned.
func (sch *Scheduler) RequestStop() {
	sch.registry.forEach(func(c *Coroutine) {
		c.Interrupt(InterruptExecution)
	})
	sch.wake()
}

// notifyInterrupt is called by Coroutine.Interrupt, possibly from a
// goroutine other than the scheduler's own. It stages the coroutine for
// blocked-structure relocation (if applicable) on the run loop's next tick
// and wakes the poller so a sleeping scheduler notices promptly.
func (sch *Scheduler) notifyInterrupt(c *Coroutine) {
	sch.interruptMu.Lock()
	sch.interruptReloc = append(sch.interruptReloc, c)
	sch.interruptMu.Unlock()
	sch.wake()
}

// wake nudges the poller out of a blocking Wait, deduplicated with a single
// pending flag: bursts of Submit/RequestStop/Interrupt calls between two
// Wait calls collapse into at most one underlying wake syscall.
func (sch *Scheduler) wake() {
	if sch.wakePending.CompareAndSwap(0, 1) {
		_ = sch.poller.Wake()
	}
}

// Run executes the run loop (spec.md §4.6's numbered algorithm) until every
// coroutine finishes, ctx is cancelled, or RequestStop is called. It returns
// the first uncaught coroutine error (spec.md §7), or ctx.Err(), or nil.
func (sch *Scheduler) Run(ctx context.Context) error {
	if CurrentScheduler() == sch && sch.state.Load() != SchedulerAwake {
		return ErrReentrantRun
	}

	if !sch.state.TryTransition(SchedulerAwake, SchedulerRunning) {
		return ErrSchedulerAlreadyRunning
	}

	if err := sch.AttachToCurrentThread(); err != nil {
		return err
	}
	sch.attachedGoroutine = getGoroutineID()
	defer releaseTLS()
	defer func() { _ = sch.poller.Close() }()

	var ctxDone <-chan struct{}
	if ctx != nil {
		ctxDone = ctx.Done()
	}
	if ctxDone != nil {
		// Wake the poller when ctx is cancelled, so a Wait blocked on a
		// distant timer or on fd readiness alone notices promptly. The watcher
		// exits before the poller is closed.
		stopWatch := make(chan struct{})
		watchDone := make(chan struct{})
		defer func() { close(stopWatch); <-watchDone }()
		go func() {
			defer close(watchDone)
			select {
			case <-ctxDone:
				sch.wake()
			case <-stopWatch:
			}
		}()
	}

	for {
		sch.drainSubmissions()
		sch.drainInterruptRelocations()
		sch.registry.scavenge(registryScavengeBatchSize)
		sch.metrics.recordQueueDepths(len(sch.ready), len(sch.blocked), sch.timers.Len())

		if ctxDone != nil {
			select {
			case <-ctxDone:
				if !sch.stopRequested {
					sch.stopRequested = true
					sch.recordError(ctx.Err())
				}
				sch.RequestStop()
				ctxDone = nil
			default:
			}
		}

		if len(sch.ready) > 0 {
			c := sch.popReady()
			sch.running = c
			turnStart := time.Now()
			info := c.resume()
			sch.metrics.recordTurn(time.Since(turnStart))
			sch.running = nil
			sch.handleSuspend(c, info)
			continue
		}

		if sch.isQuiescent() {
			break
		}

		timeout := sch.computeTimeout()
		sch.state.Store(SchedulerPolling)
		events, err := sch.poller.Wait(sch.readyEventBuf[:0], timeout)
		sch.state.Store(SchedulerRunning)
		sch.wakePending.Store(0)
		sch.readyEventBuf = events
		if err != nil && err != ErrPollerClosed {
			sch.logError("poll", "poller wait failed", err)
			continue
		}

		sch.handlePollerEvents(events)
		sch.handleExpiredTimers()
	}

	sch.state.Store(SchedulerStopped)
	return sch.firstErr
}

func (sch *Scheduler) popReady() *Coroutine {
	c := sch.ready[0]
	sch.ready = sch.ready[1:]
	if len(sch.ready) == 0 {
		sch.ready = nil
	}
	return c
}

func (sch *Scheduler) pushReady(c *Coroutine) {
	sch.ready = append(sch.ready, c)
}

func (sch *Scheduler) drainSubmissions() {
	sch.submitMu.Lock()
	q := sch.submitQueue
	sch.submitQueue = sch.submitSpare[:0]
	sch.submitSpare = q
	sch.submitMu.Unlock()

	for _, c := range q {
		sch.registry.add(c)
		c.state.Store(StateReady)
		sch.pushReady(c)
	}
}

func (sch *Scheduler) drainInterruptRelocations() {
	sch.interruptMu.Lock()
	q := sch.interruptReloc
	sch.interruptReloc = sch.interruptSpare[:0]
	sch.interruptSpare = q
	sch.interruptMu.Unlock()

	for _, c := range q {
		sch.relocateIfBlocked(c)
	}
}

// relocateIfBlocked implements spec.md §4.8's "if the coroutine is currently
// BLOCKED in the poller, the scheduler additionally removes its fd/timer
// registration and re-enqueues it": checkInterruption will fire immediately
// on its next resume since the pending kind is already installed.
func (sch *Scheduler) relocateIfBlocked(c *Coroutine) {
	if c.state.Load() != StateBlocked {
		return
	}
	sch.unblockFD(c)
	sch.timers.removeCoroutine(c.id)
	c.hasTimerActive = false
	c.lastWake = wakeScheduled
	c.state.Store(StateReady)
	sch.pushReady(c)
}

func (sch *Scheduler) unblockFD(c *Coroutine) {
	if c.blockedFD < 0 {
		return
	}
	key := fdDirKey{c.blockedFD, c.blockedDir}
	delete(sch.blocked, key)
	_ = sch.poller.Remove(c.blockedFD, c.blockedDir)
	c.blockedFD = -1
}

func (sch *Scheduler) handleSuspend(c *Coroutine, info suspendInfo) {
	switch info.reason {
	case reasonYield:
		c.state.Store(StateReady)
		sch.pushReady(c)
	case reasonBlockIO, reasonSleep:
		// State, blocked-map/poller/timer registration already recorded by
		// blockOnFD / registerSleepTimer before suspend() was called.
	case reasonFinished:
		if info.err != nil {
			sch.recordError(info.err)
			sch.RequestStop()
		}
		c.refs.Add(-1)
	}
}

func (sch *Scheduler) recordError(err error) {
	if err == nil || sch.firstErr != nil {
		return
	}
	sch.firstErr = err
}

func (sch *Scheduler) isQuiescent() bool {
	sch.submitMu.Lock()
	pendingSubmits := len(sch.submitQueue)
	sch.submitMu.Unlock()

	sch.interruptMu.Lock()
	pendingInterrupts := len(sch.interruptReloc)
	sch.interruptMu.Unlock()

	return len(sch.ready) == 0 && len(sch.blocked) == 0 && sch.timers.Len() == 0 &&
		pendingSubmits == 0 && pendingInterrupts == 0
}

// computeTimeout returns the next poller wait timeout in milliseconds, or -1
// to block indefinitely (there's at least one fd-blocked coroutine with no
// deadline and no pending timer).
func (sch *Scheduler) computeTimeout() int64 {
	if when, ok := sch.timers.nextDeadline(); ok {
		d := time.Until(when)
		if d < 0 {
			d = 0
		}
		ms := d.Milliseconds()
		if d%time.Millisecond != 0 {
			ms++ // round up: never wake before the deadline (spec.md §8 invariant 4)
		}
		if max := sch.opts.pollTimeout; max > 0 && ms > max.Milliseconds() {
			return max.Milliseconds()
		}
		return ms
	}
	if max := sch.opts.pollTimeout; max > 0 {
		return max.Milliseconds()
	}
	return -1
}

func (sch *Scheduler) handlePollerEvents(events []ReadyEvent) {
	for _, ev := range events {
		checkRead := ev.Events.has(EventRead) || ev.Events.has(EventError) || ev.Events.has(EventHangup)
		checkWrite := ev.Events.has(EventWrite) || ev.Events.has(EventError) || ev.Events.has(EventHangup)

		if checkRead {
			sch.wakeBlockedFD(ev.FD, DirRead)
		}
		if checkWrite {
			sch.wakeBlockedFD(ev.FD, DirWrite)
		}
	}
}

func (sch *Scheduler) wakeBlockedFD(fd int, dir Direction) {
	key := fdDirKey{fd, dir}
	c, ok := sch.blocked[key]
	if !ok {
		return
	}
	delete(sch.blocked, key)
	_ = sch.poller.Remove(fd, dir)
	c.blockedFD = -1

	if c.hasTimerActive {
		sch.timers.removeCoroutine(c.id)
		c.hasTimerActive = false
	}

	c.lastWake = wakeIOReady
	c.state.Store(StateReady)
	sch.pushReady(c)
}

func (sch *Scheduler) handleExpiredTimers() {
	for _, e := range popExpired(sch.timers, time.Now()) {
		c := e.c
		c.hasTimerActive = false
		sch.unblockFD(c)
		c.lastWake = wakeTimedOut
		c.state.Store(StateReady)
		sch.pushReady(c)
	}
}

// blockOnFD registers c as awaiting fd/dir with the poller, and optionally a
// deadline timer, then returns. The caller (Coroutine.AwaitFD) suspends
// immediately afterward; this exists as a separate step so the blocked-map
// and poller registration are visible before the coroutine's goroutine parks
// (avoiding a window where a resume could race the registration).
func (sch *Scheduler) blockOnFD(c *Coroutine, fd int, dir Direction, deadline *time.Time) error {
	key := fdDirKey{fd, dir}
	if _, exists := sch.blocked[key]; exists {
		return ErrFDAlreadyRegistered
	}
	if err := sch.poller.Add(fd, dir); err != nil {
		return err
	}

	sch.blocked[key] = c
	c.blockedFD = fd
	c.blockedDir = dir

	if deadline != nil {
		sch.registerTimer(c, *deadline)
	}
	return nil
}

func (sch *Scheduler) registerSleepTimer(c *Coroutine, deadline time.Time) {
	sch.registerTimer(c, deadline)
}

func (sch *Scheduler) registerTimer(c *Coroutine, deadline time.Time) {
	sch.timerSeq++
	heap.Push(sch.timers, timerEntry{when: deadline, seq: sch.timerSeq, c: c})
	c.hasTimerActive = true
}

func (sch *Scheduler) logError(category, message string, err error) {
	l := sch.opts.logger
	if l == nil || !l.IsEnabled(LevelError) {
		return
	}
	if !sch.opts.diagnostics.allow(category) {
		return
	}
	l.Log(LogEntry{Level: LevelError, Category: category, Message: message, Err: err, Timestamp: time.Now()})
}
