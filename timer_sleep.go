package coro

import "time"

// SleepFor and SleepUntil are package-level sugar for the corresponding
// Coroutine methods, kept as free functions so timer-driven code reads the
// same way the rest of this package's scheduler-aware I/O primitives do
// (function takes the coroutine, not a receiver on it). SleepFor is defined
// purely in terms of SleepUntil, per spec.md §4.7: sleeping for a duration
// is sugar over sleeping until now+duration.
func SleepFor(c *Coroutine, d time.Duration) error {
	return c.SleepFor(d)
}

func SleepUntil(c *Coroutine, deadline time.Time) error {
	return c.SleepUntil(deadline)
}
