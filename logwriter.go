package coro

import (
	"context"
	"io"
	"time"

	"github.com/joeycumines/go-microbatch"
)

// BatchingWriter coalesces many small Write calls (one structured log line
// per call, from potentially many coroutines) into fewer underlying writes,
// grounded on github.com/joeycumines/go-microbatch's Batcher: each Write
// submits a copy of its argument as a job; the batcher groups pending jobs
// and a single BatchProcessor invocation writes them to dst in order.
type BatchingWriter struct {
	batcher *microbatch.Batcher[[]byte]
	dst     io.Writer
}

// NewBatchingWriter wraps dst so that writes are coalesced: up to maxLines
// buffered, or flushed after flushInterval elapses, whichever comes first.
func NewBatchingWriter(dst io.Writer, maxLines int, flushInterval time.Duration) *BatchingWriter {
	w := &BatchingWriter{dst: dst}
	w.batcher = microbatch.NewBatcher(&microbatch.BatcherConfig{
		MaxSize:       maxLines,
		FlushInterval: flushInterval,
	}, w.flush)
	return w
}

func (w *BatchingWriter) flush(ctx context.Context, lines [][]byte) error {
	for _, line := range lines {
		if _, err := w.dst.Write(line); err != nil {
			return err
		}
	}
	return nil
}

// Write copies p (the caller retains ownership of its backing array) and
// submits it to the batcher, blocking only long enough to enqueue.
func (w *BatchingWriter) Write(p []byte) (int, error) {
	line := append([]byte(nil), p...)
	result, err := w.batcher.Submit(context.Background(), line)
	if err != nil {
		return 0, err
	}
	_ = result // fire-and-forget: a structured logger doesn't need per-line confirmation
	return len(p), nil
}

// Close flushes any pending batch and stops the batcher.
func (w *BatchingWriter) Close() error {
	return w.batcher.Shutdown(context.Background())
}
