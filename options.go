package coro

import "time"

// schedulerOptions holds a Scheduler's construction-time configuration,
// grounded on eventloop.loopOptions.
type schedulerOptions struct {
	logger         Logger
	diagnostics    *diagnostics
	metricsEnabled bool
	pollTimeout    time.Duration // 0 = no cap, block until the next timer/fd event
}

func defaultSchedulerOptions() schedulerOptions {
	return schedulerOptions{
		logger: nopLogger{},
	}
}

// SchedulerOption configures a Scheduler at construction time.
type SchedulerOption interface {
	apply(*schedulerOptions)
}

type schedulerOptionFunc func(*schedulerOptions)

func (f schedulerOptionFunc) apply(o *schedulerOptions) { f(o) }

// WithLogger sets the structured logger the scheduler reports recurring
// internal diagnostics through (poll errors). The default is a
// no-op logger.
func WithLogger(l Logger) SchedulerOption {
	return schedulerOptionFunc(func(o *schedulerOptions) {
		if l == nil {
			l = nopLogger{}
		}
		o.logger = l
	})
}

// WithDiagnosticRateLimit caps how often a given recurring diagnostic
// category (e.g. repeated poll errors on a misbehaving fd) is actually
// logged, using a sliding-window limiter, so a hot failure loop can't flood
// the configured Logger. See diagnostics.go.
func WithDiagnosticRateLimit(windows map[RateWindow]int) SchedulerOption {
	return schedulerOptionFunc(func(o *schedulerOptions) {
		o.diagnostics = newDiagnostics(windows)
	})
}

// WithMetrics enables runtime metrics collection on the Scheduler. When
// enabled, per-turn latency and ready/blocked/timer queue depths are tracked
// and exposed via Scheduler.Metrics(); this adds a small amount of per-tick
// bookkeeping, so it is off by default.
func WithMetrics(enabled bool) SchedulerOption {
	return schedulerOptionFunc(func(o *schedulerOptions) {
		o.metricsEnabled = enabled
	})
}

// WithPollTimeout caps how long the scheduler will ever block in a single
// poller Wait, even when no timer or ctx deadline would otherwise wake it.
// Without this, a scheduler with only fd-blocked coroutines and no pending
// timers blocks indefinitely in Wait until fd readiness or an external Wake
// (Submit/RequestStop/Interrupt); capping it bounds how stale the registry's
// periodic scavenging (see registry.go) and diagnostic rate-limit windows
// can get between wakeups. max must be positive; zero (the default) means
// no cap.
func WithPollTimeout(max time.Duration) SchedulerOption {
	return schedulerOptionFunc(func(o *schedulerOptions) {
		o.pollTimeout = max
	})
}
