package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer allows flushing and stopping the async handler.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// pipe is the queue shared by an AsyncHandler and all handlers derived from it.
type pipe struct {
	records chan queued
	wg      sync.WaitGroup
	dropped atomic.Int64
	once    sync.Once
}

// queued pairs a record with the handler (and its attrs/groups) that must write it.
type queued struct {
	h   slog.Handler
	rec slog.Record
}

// AsyncHandler hands records to background workers so logging never blocks
// a session initialization on a slow stdout. Records are dropped when the
// buffer is full.
type AsyncHandler struct {
	inner slog.Handler
	p     *pipe
}

// NewAsyncHandler creates an AsyncHandler with the given buffer size and worker count.
func NewAsyncHandler(inner slog.Handler, buffer, workers int) *AsyncHandler {
	if workers < 1 {
		workers = 1
	}
	p := &pipe{records: make(chan queued, buffer)}
	for range workers {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for q := range p.records {
				_ = q.h.Handle(context.Background(), q.rec)
			}
		}()
	}
	return &AsyncHandler{inner: inner, p: p}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record. Drops if the buffer is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.p.records <- queued{h: h.inner, rec: rec.Clone()}:
	default:
		h.p.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a handler writing through the same queue.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), p: h.p}
}

// WithGroup returns a handler writing through the same queue.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), p: h.p}
}

// DroppedCount returns the number of dropped records.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.p.dropped.Load()
}

// Close stops accepting records and waits until the queue is drained.
// Safe to call more than once.
func (h *AsyncHandler) Close() {
	h.p.once.Do(func() { close(h.p.records) })
	h.p.wg.Wait()
}
