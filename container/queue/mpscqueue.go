package queue

import (
	"sync"
)

// MPSCQueue is an unbounded multi-producer single-consumer queue. The
// consumer takes every pending item at once by swapping buffers.
type MPSCQueue[T any] struct {
	in         []T
	out        []T
	mu         sync.Mutex
	cond       *sync.Cond
	maxSize    int
	shrinkSize int
	closed     bool
}

func NewMPSCQueue[T any](maxSize, shrinkSize int) *MPSCQueue[T] {
	q := &MPSCQueue[T]{
		maxSize:    maxSize,
		shrinkSize: shrinkSize,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends v. It reports false when the queue is closed or full.
func (q *MPSCQueue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.closed || (q.maxSize > 0 && len(q.in) >= q.maxSize) {
		q.mu.Unlock()
		return false
	}
	q.in = append(q.in, v)
	q.mu.Unlock()
	q.cond.Signal()
	return true
}

// Close wakes the consumer; items pushed before Close are still popped.
func (q *MPSCQueue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Pop blocks until at least one item is pending or the queue is closed.
// The returned slice is only valid until the next Pop. ok is false once
// the queue is closed and drained.
func (q *MPSCQueue[T]) Pop() (items []T, ok bool) {
	q.clearOrShrinkOut()
	q.mu.Lock()
	for len(q.in) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.in) == 0 {
		q.mu.Unlock()
		return nil, false
	}
	q.in, q.out = q.out, q.in
	q.mu.Unlock()
	return q.out, true
}

func (q *MPSCQueue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.in)
}

func (q *MPSCQueue[T]) clearOrShrinkOut() {
	var zero T
	for i := range q.out {
		q.out[i] = zero
	}
	if q.shrinkSize == 0 || cap(q.out) < q.shrinkSize {
		q.out = q.out[0:0]
	} else {
		q.out = []T{}
	}
}
