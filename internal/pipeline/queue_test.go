package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/stresslens/internal/pipeline"
	"github.com/MrWong99/stresslens/pkg/audio"
)

func TestQueue_FIFOUnderConcurrency(t *testing.T) {
	q := pipeline.NewQueue(2, testMetrics(t))
	const n = 500

	go func() {
		defer q.Close()
		for i := range n {
			if err := q.Enqueue(context.Background(), audio.Chunk{Seq: uint64(i + 1)}); err != nil {
				t.Errorf("Enqueue: %v", err)
				return
			}
		}
	}()

	var want uint64 = 1
	for !q.Drained() {
		c, ok := q.Dequeue(50 * time.Millisecond)
		if !ok {
			continue
		}
		if c.Seq != want {
			t.Fatalf("dequeued seq %d, want %d", c.Seq, want)
		}
		want++
	}
	if want != n+1 {
		t.Fatalf("dequeued %d chunks, want %d", want-1, n)
	}
}

func TestQueue_EnqueueBlocksWhenFull(t *testing.T) {
	q := pipeline.NewQueue(1, testMetrics(t))
	if err := q.Enqueue(context.Background(), audio.Chunk{Seq: 1}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Enqueue(ctx, audio.Chunk{Seq: 2}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Enqueue on full queue = %v, want DeadlineExceeded", err)
	}
	if q.Len() != 1 {
		t.Fatalf("Len = %d, want 1", q.Len())
	}

	done := make(chan error, 1)
	go func() { done <- q.Enqueue(context.Background(), audio.Chunk{Seq: 3}) }()
	if c, ok := q.Dequeue(time.Second); !ok || c.Seq != 1 {
		t.Fatalf("Dequeue = %d/%v, want 1/true", c.Seq, ok)
	}
	if err := <-done; err != nil {
		t.Fatalf("blocked Enqueue: %v", err)
	}
	if c, ok := q.Dequeue(time.Second); !ok || c.Seq != 3 {
		t.Fatalf("Dequeue = %d/%v, want 3/true", c.Seq, ok)
	}
}

func TestQueue_DequeueTimeout(t *testing.T) {
	q := pipeline.NewQueue(0, testMetrics(t))
	if q.Cap() != pipeline.DefaultQueueCapacity {
		t.Errorf("Cap = %d, want %d", q.Cap(), pipeline.DefaultQueueCapacity)
	}
	start := time.Now()
	if _, ok := q.Dequeue(20 * time.Millisecond); ok {
		t.Fatal("Dequeue on empty queue returned ok")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Dequeue returned before the timeout")
	}
	if q.Drained() {
		t.Error("open queue reported drained")
	}
}

func TestQueue_CloseThenDrain(t *testing.T) {
	q := pipeline.NewQueue(4, testMetrics(t))
	for i := range 3 {
		_ = q.Enqueue(context.Background(), audio.Chunk{Seq: uint64(i)})
	}
	q.Close()
	q.Close()

	if err := q.Enqueue(context.Background(), audio.Chunk{}); !errors.Is(err, pipeline.ErrQueueClosed) {
		t.Fatalf("Enqueue after Close = %v, want ErrQueueClosed", err)
	}
	if q.Drained() {
		t.Fatal("Drained with chunks still queued")
	}
	if _, ok := q.Dequeue(time.Second); !ok {
		t.Fatal("queued chunk lost after Close")
	}
	if n := q.Flush(); n != 2 {
		t.Fatalf("Flush = %d, want 2", n)
	}
	if !q.Drained() {
		t.Fatal("not drained after Flush")
	}
	if _, ok := q.Dequeue(time.Second); ok {
		t.Fatal("Dequeue on drained queue returned ok")
	}
}
