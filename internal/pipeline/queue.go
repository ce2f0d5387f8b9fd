package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/stresslens/internal/observe"
	"github.com/MrWong99/stresslens/pkg/audio"
)

// DefaultQueueCapacity is the number of chunks buffered between capture and
// inference.
const DefaultQueueCapacity = 8

// ErrQueueClosed is returned by [Queue.Enqueue] after [Queue.Close].
var ErrQueueClosed = errors.New("pipeline: queue closed")

// Queue is a bounded FIFO of chunks between exactly one producer and one
// consumer. A full queue blocks the producer instead of dropping audio.
type Queue struct {
	ch        chan audio.Chunk
	closed    atomic.Bool
	closeOnce sync.Once
	metrics   *observe.Metrics
}

// NewQueue returns a Queue holding up to capacity chunks. A non-positive
// capacity selects [DefaultQueueCapacity]. A nil m uses
// [observe.DefaultMetrics].
func NewQueue(capacity int, m *observe.Metrics) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Queue{ch: make(chan audio.Chunk, capacity), metrics: m}
}

// Enqueue adds c to the tail of the queue, blocking while it is full. It
// returns ctx.Err() if ctx ends first and [ErrQueueClosed] after Close.
// Only the producer may call Enqueue.
func (q *Queue) Enqueue(ctx context.Context, c audio.Chunk) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	select {
	case q.ch <- c:
		q.metrics.QueueDepth.Add(context.Background(), 1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue removes the head of the queue, waiting up to timeout for one to
// arrive. ok is false on timeout or once the queue is closed and empty.
func (q *Queue) Dequeue(timeout time.Duration) (audio.Chunk, bool) {
	select {
	case c, ok := <-q.ch:
		return q.took(c, ok)
	default:
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case c, ok := <-q.ch:
		return q.took(c, ok)
	case <-t.C:
		return audio.Chunk{}, false
	}
}

func (q *Queue) took(c audio.Chunk, ok bool) (audio.Chunk, bool) {
	if !ok {
		return audio.Chunk{}, false
	}
	q.metrics.QueueDepth.Add(context.Background(), -1)
	return c, true
}

// Close marks the end of input. Chunks already queued can still be
// dequeued. Only the producer may call Close; extra calls are no-ops.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		close(q.ch)
	})
}

// Drained reports whether the queue is closed and empty.
func (q *Queue) Drained() bool {
	return q.closed.Load() && len(q.ch) == 0
}

// Flush discards every queued chunk and returns how many were dropped.
// Only the consumer may call Flush.
func (q *Queue) Flush() int {
	n := 0
	for {
		select {
		case _, ok := <-q.ch:
			if !ok {
				return n
			}
			q.metrics.QueueDepth.Add(context.Background(), -1)
			n++
		default:
			return n
		}
	}
}

// Len returns the number of queued chunks.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }
