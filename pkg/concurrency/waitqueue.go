package concurrency

import "context"

// WaitQueue is a thread-safe FIFO with a blocking Pop, the Go rendering
// of spec.md C11's wait_queue<T>. A buffered channel already gives FIFO
// order and blocking receive for free; this wrapper just names the
// operations the spec calls for and adds context-aware Pop/Push.
type WaitQueue[T any] struct {
	ch chan T
}

// NewWaitQueue creates a queue with the given buffer capacity.
// pkg/markov's Engine drains one as its ingest queue.
func NewWaitQueue[T any](capacity int) *WaitQueue[T] {
	return &WaitQueue[T]{ch: make(chan T, capacity)}
}

// Push enqueues v, blocking if the queue is full, until ctx is done.
func (q *WaitQueue[T]) Push(ctx context.Context, v T) error {
	select {
	case q.ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPush enqueues v without blocking, reporting whether it fit.
func (q *WaitQueue[T]) TryPush(v T) bool {
	select {
	case q.ch <- v:
		return true
	default:
		return false
	}
}

// Pop blocks until an item is available or ctx is done.
func (q *WaitQueue[T]) Pop(ctx context.Context) (T, bool) {
	select {
	case v, ok := <-q.ch:
		return v, ok
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}

// Len reports the number of items currently buffered.
func (q *WaitQueue[T]) Len() int { return len(q.ch) }
