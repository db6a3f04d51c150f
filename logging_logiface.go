package coro

import (
	"io"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// logifaceLogger adapts a *logiface.Logger[*stumpy.Event] (structured,
// newline-delimited JSON) to this package's Logger interface. Grounded on
// eventloop's DefaultLogger, which plays the same "adapt a structured
// LogEntry onto a real logging backend" role using only the standard
// library; here the backend is the pack's own logiface/stumpy stack instead.
type logifaceLogger struct {
	log   *logiface.Logger[*stumpy.Event]
	level LogLevel
}

// NewLogifaceLogger builds a Logger backed by logiface+stumpy, writing
// newline-delimited JSON to w. minLevel suppresses entries below it before
// any encoding work happens.
func NewLogifaceLogger(w io.Writer, minLevel LogLevel) Logger {
	return &logifaceLogger{
		log:   stumpy.L.New(stumpy.L.WithStumpy(stumpy.WithWriter(w))),
		level: minLevel,
	}
}

func (l *logifaceLogger) IsEnabled(level LogLevel) bool {
	return level >= l.level
}

func (l *logifaceLogger) Log(entry LogEntry) {
	if !l.IsEnabled(entry.Level) {
		return
	}

	var b *logiface.Builder[*stumpy.Event]
	switch entry.Level {
	case LevelDebug:
		b = l.log.Debug()
	case LevelWarn:
		b = l.log.Warning()
	case LevelError:
		b = l.log.Err()
	default:
		b = l.log.Info()
	}

	if entry.Category != "" {
		b = b.Str(`category`, entry.Category)
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	b.Log(entry.Message)
}
