package queue

import (
	"sync/atomic"
)

// Queue is a FIFO whose backing slice is swapped atomically, so Len can be
// read from any goroutine while a single owner pushes and pops.
type Queue[T any] struct {
	items atomic.Pointer[[]T]
}

func (q *Queue[T]) load() []T {
	items := q.items.Load()
	if items == nil {
		return nil
	}
	return *items
}

func (q *Queue[T]) Len() int {
	return len(q.load())
}

// Pop removes the oldest item. ok is false when the queue is empty.
func (q *Queue[T]) Pop() (item T, ok bool) {
	items := q.load()
	if len(items) == 0 {
		return item, false
	}
	item = items[0]
	rest := items[1:]
	q.items.Store(&rest)
	return item, true
}

func (q *Queue[T]) Push(item T) {
	items := append(q.load(), item)
	q.items.Store(&items)
}

func New[T any](maybeCapacity ...int) *Queue[T] {
	var items []T
	if len(maybeCapacity) > 0 {
		items = make([]T, 0, maybeCapacity[0])
	}
	q := &Queue[T]{}
	q.items.Store(&items)
	return q
}
