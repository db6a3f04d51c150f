package coro

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnosticsAllowPermitsWithoutALimiter(t *testing.T) {
	var nilDiag *diagnostics
	assert.True(t, nilDiag.allow("poll"), "a nil *diagnostics (no WithDiagnosticRateLimit) must always allow")
	assert.Nil(t, newDiagnostics(nil), "newDiagnostics with no configured windows should return nil")
}

func TestDiagnosticsAllowThrottlesWithinWindow(t *testing.T) {
	d := newDiagnostics(map[RateWindow]int{time.Minute: 1})
	require.NotNil(t, d)

	assert.True(t, d.allow("poll"), "first call within the window must be allowed")
	assert.False(t, d.allow("poll"), "second call within the same window must be throttled")
	assert.True(t, d.allow("fd-churn"), "a different category has its own independent window")
}

// recordingLogger captures every LogEntry it's given, so tests can assert on
// how many times logError actually emitted.
type recordingLogger struct {
	entries []LogEntry
}

func (l *recordingLogger) Log(entry LogEntry)      { l.entries = append(l.entries, entry) }
func (l *recordingLogger) IsEnabled(LogLevel) bool { return true }

// logError must gate on diagnostics.allow before calling through to the
// configured Logger, so a hot poll-error loop under a tight rate limit only
// reaches the Logger once per window.
func TestLogErrorThrottledByDiagnosticRateLimit(t *testing.T) {
	logger := &recordingLogger{}
	sched, err := NewScheduler(
		WithLogger(logger),
		WithDiagnosticRateLimit(map[RateWindow]int{time.Minute: 1}),
	)
	require.NoError(t, err)

	probe := errors.New("boom")
	sched.logError("poll", "poller wait failed", probe)
	sched.logError("poll", "poller wait failed", probe)
	sched.logError("poll", "poller wait failed", probe)

	assert.Len(t, logger.entries, 1, "only the first call within the window should reach the Logger")
	assert.Equal(t, probe, logger.entries[0].Err)
}

func TestLogErrorUnthrottledWithoutRateLimit(t *testing.T) {
	logger := &recordingLogger{}
	sched, err := NewScheduler(WithLogger(logger))
	require.NoError(t, err)

	probe := errors.New("boom")
	for i := 0; i < 3; i++ {
		sched.logError("poll", "poller wait failed", probe)
	}

	assert.Len(t, logger.entries, 3, "without WithDiagnosticRateLimit every call should reach the Logger")
}
