package coro

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// RateWindow names a sliding window (e.g. time.Second) in a diagnostic rate
// limit configuration. It's a plain time.Duration alias so configuration
// reads as WithDiagnosticRateLimit(map[RateWindow]int{time.Second: 5}).
type RateWindow = time.Duration

// diagnostics throttles the scheduler's own recurring internal warnings
// (poll errors from the poller's Wait) so a
// hot failure loop can't flood the configured Logger. Built on
// github.com/joeycumines/go-catrate's sliding-window Limiter, keyed by
// diagnostic category rather than per-fd, since the volume concern here is
// "how often do we log about polling", not per-resource accounting.
type diagnostics struct {
	limiter *catrate.Limiter
}

func newDiagnostics(rates map[RateWindow]int) *diagnostics {
	if len(rates) == 0 {
		return nil
	}
	return &diagnostics{limiter: catrate.NewLimiter(rates)}
}

// allow reports whether category may emit another diagnostic right now,
// given its configured sliding windows. logError consults this before
// logging a recurring internal warning (e.g. category "poll"), so a hot
// failure loop is throttled instead of flooding the configured Logger.
func (d *diagnostics) allow(category string) bool {
	if d == nil || d.limiter == nil {
		return true
	}
	_, ok := d.limiter.Allow(category)
	return ok
}
