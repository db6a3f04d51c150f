package coro

import (
	"sync"
	"time"
)

// schedulerMetrics tracks optional runtime statistics for a Scheduler,
// enabled via WithMetrics(true). Grounded on eventloop.Metrics/QueueMetrics:
// a mutex-guarded accumulator, safe for concurrent reads, with Scheduler.
// Metrics() returning a snapshot copy rather than a live pointer.
type schedulerMetrics struct {
	mu sync.Mutex

	turns        uint64
	turnSum      time.Duration
	turnMax      time.Duration

	readyCurrent, readyMax int
	readyAvg               float64
	readyWarm              bool

	blockedCurrent, blockedMax int
	timerCurrent, timerMax     int
}

func newSchedulerMetrics(enabled bool) *schedulerMetrics {
	if !enabled {
		return nil
	}
	return &schedulerMetrics{}
}

// recordTurn is called once per coroutine resume/suspend round-trip, with
// the wall-clock time that turn occupied the scheduler's own goroutine.
func (m *schedulerMetrics) recordTurn(d time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns++
	m.turnSum += d
	if d > m.turnMax {
		m.turnMax = d
	}
}

// recordQueueDepths is called once per run-loop tick with the current size
// of the ready queue, the fd-blocked map, and the timer heap.
func (m *schedulerMetrics) recordQueueDepths(ready, blocked, timers int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readyCurrent = ready
	if ready > m.readyMax {
		m.readyMax = ready
	}
	if !m.readyWarm {
		m.readyAvg = float64(ready)
		m.readyWarm = true
	} else {
		m.readyAvg = 0.9*m.readyAvg + 0.1*float64(ready)
	}

	m.blockedCurrent = blocked
	if blocked > m.blockedMax {
		m.blockedMax = blocked
	}

	m.timerCurrent = timers
	if timers > m.timerMax {
		m.timerMax = timers
	}
}

// MetricsSnapshot is a point-in-time, concurrency-safe copy of a Scheduler's
// metrics, as returned by Scheduler.Metrics().
type MetricsSnapshot struct {
	Turns uint64

	MeanTurnLatency time.Duration
	MaxTurnLatency  time.Duration

	ReadyCurrent, ReadyMax     int
	ReadyAvg                   float64
	BlockedCurrent, BlockedMax int
	TimerCurrent, TimerMax     int
}

func (m *schedulerMetrics) snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var mean time.Duration
	if m.turns > 0 {
		mean = m.turnSum / time.Duration(m.turns)
	}
	return MetricsSnapshot{
		Turns:           m.turns,
		MeanTurnLatency: mean,
		MaxTurnLatency:  m.turnMax,
		ReadyCurrent:    m.readyCurrent,
		ReadyMax:        m.readyMax,
		ReadyAvg:        m.readyAvg,
		BlockedCurrent:  m.blockedCurrent,
		BlockedMax:      m.blockedMax,
		TimerCurrent:    m.timerCurrent,
		TimerMax:        m.timerMax,
	}
}

// Metrics returns a snapshot of the scheduler's runtime metrics, and
// whether metrics collection is enabled (via WithMetrics(true)). A disabled
// scheduler returns the zero MetricsSnapshot and false.
func (sch *Scheduler) Metrics() (MetricsSnapshot, bool) {
	if sch.metrics == nil {
		return MetricsSnapshot{}, false
	}
	return sch.metrics.snapshot(), true
}
