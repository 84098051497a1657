package webhook

import "sync"

// Queue is an unbounded FIFO for webhook events.
//
// Producers call Push, which never blocks. The single consumer calls Pop,
// which blocks until an item is available or the queue has been closed and
// fully drained. Close acts as the delivery sentinel: items pushed before
// Close are still handed out in order, so the worker finishes the backlog
// before terminating.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	closed bool
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an item. Returns false if the queue is already closed, in
// which case the item is discarded.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, v)
	q.cond.Signal()
	return true
}

// Pop removes and returns the oldest item, blocking while the queue is open
// and empty. Once the queue is closed and drained it returns the zero value
// and false.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}

	if len(q.items) == 0 {
		var zero T
		return zero, false
	}

	v := q.items[0]
	q.items = q.items[1:]
	return v, true
}

// Close marks the queue as closed and wakes the consumer. Pending items
// remain poppable. Safe to call more than once.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of items waiting for delivery.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
