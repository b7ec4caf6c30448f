package actor

import (
	"context"
	"sync"

	"github.com/roach88/chii/internal/store"
)

// Mutation is one unit of local writes. It must only touch the store through
// the batch it is given.
type Mutation func(ctx context.Context, b *store.Batch) error

type request struct {
	ctx      context.Context
	name     string
	mutation Mutation
	done     chan reply // buffered, size 1
}

type reply struct {
	result Result
	err    error
}

// unitQueue is a thread-safe FIFO queue of submitted units.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type unitQueue struct {
	mu     sync.Mutex
	items  []*request
	closed bool
	signal chan struct{} // buffered, size 1
}

func newUnitQueue() *unitQueue {
	return &unitQueue{
		items:  make([]*request, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a unit to the back of the queue.
// Returns false if the queue is closed.
func (q *unitQueue) Enqueue(r *request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, r)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front unit without blocking.
func (q *unitQueue) TryDequeue() (*request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	r := q.items[0]
	q.items[0] = nil
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return r, true
}

// Wait returns a channel that signals when units may be available. The
// channel is closed once the queue is closed.
func (q *unitQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *unitQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drained reports whether the queue is closed and empty.
func (q *unitQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

// Close stops accepting units and wakes any waiter.
func (q *unitQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
