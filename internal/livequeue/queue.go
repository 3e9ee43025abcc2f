// Package livequeue provides the bounded frame queue between the mixed
// ingest loop and the preview consumer. Producers never block: a push into
// a full queue drops the incoming frame.
package livequeue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/zsiec/rovlink/internal/media"
)

// Queue is a bounded FIFO of decoded frames with an end-of-stream signal.
type Queue struct {
	frames chan *media.Frame
	done   chan struct{}
	once   sync.Once

	pushed  atomic.Int64
	dropped atomic.Int64
	popped  atomic.Int64
}

// Stats is a point-in-time snapshot of queue activity.
type Stats struct {
	Capacity int   `json:"capacity"`
	Depth    int   `json:"depth"`
	Pushed   int64 `json:"pushed"`
	Dropped  int64 `json:"dropped"`
	Popped   int64 `json:"popped"`
	Closed   bool  `json:"closed"`
}

// New returns a Queue holding at most capacity frames. A non-positive
// capacity selects media.LiveQueueSize.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = media.LiveQueueSize
	}
	return &Queue{
		frames: make(chan *media.Frame, capacity),
		done:   make(chan struct{}),
	}
}

// TryPush enqueues f without blocking. It reports false when the queue is
// full or closed, in which case f is dropped.
func (q *Queue) TryPush(f *media.Frame) bool {
	select {
	case <-q.done:
		q.dropped.Add(1)
		return false
	default:
	}
	select {
	case q.frames <- f:
		q.pushed.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Pop blocks until a frame is available, the queue is closed or ctx is
// done. It reports false once no further frames will be delivered.
func (q *Queue) Pop(ctx context.Context) (*media.Frame, bool) {
	select {
	case f := <-q.frames:
		q.popped.Add(1)
		return f, true
	case <-q.done:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// Close signals end of stream to consumers. It is safe to call more than
// once.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}

// Done is closed by Close.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	return len(q.frames)
}

// Stats returns a snapshot of queue counters.
func (q *Queue) Stats() Stats {
	closed := false
	select {
	case <-q.done:
		closed = true
	default:
	}
	return Stats{
		Capacity: cap(q.frames),
		Depth:    len(q.frames),
		Pushed:   q.pushed.Load(),
		Dropped:  q.dropped.Load(),
		Popped:   q.popped.Load(),
		Closed:   closed,
	}
}
