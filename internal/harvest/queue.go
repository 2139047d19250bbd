package harvest

import (
	"context"
	"errors"
	"sync"

	"github.com/tanaste/tanaste/internal/debug"
)

// DefaultQueueCapacity bounds the pending harvest backlog.
const DefaultQueueCapacity = 500

// ErrQueueClosed is returned by Dequeue after Close.
var ErrQueueClosed = errors.New("harvest: queue closed")

// Queue is a bounded multi-writer single-reader queue with a drop-oldest
// overflow policy. Enqueue never blocks: when the queue is full the oldest
// pending request is discarded so ingestion never stalls on harvest.
type Queue struct {
	mu       sync.Mutex
	items    []*Request
	capacity int
	closed   bool
	ready    chan struct{}
}

// NewQueue creates a queue with the given capacity; zero or negative means
// DefaultQueueCapacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// Enqueue adds a request without blocking. On overflow the oldest pending
// request is dropped; enqueueing on a closed queue is a no-op.
func (q *Queue) Enqueue(req *Request) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if len(q.items) >= q.capacity {
		dropped := q.items[0]
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
		debug.Logf("harvest: queue full, dropped oldest request for %s\n", dropped.EntityID)
	}
	q.items = append(q.items, req)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Dequeue blocks until a request is available, the context is cancelled,
// or the queue is closed and drained.
func (q *Queue) Dequeue(ctx context.Context) (*Request, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			req := q.items[0]
			copy(q.items, q.items[1:])
			q.items[len(q.items)-1] = nil
			q.items = q.items[:len(q.items)-1]
			q.mu.Unlock()
			return req, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.ready:
		}
	}
}

// Len reports the pending request count.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting new requests and wakes the reader. Pending
// requests can still be dequeued.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
