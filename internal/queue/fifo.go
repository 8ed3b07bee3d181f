// Package queue provides the bounded FIFO container behind a ready set.
//
// A FIFO is a fixed-capacity ring buffer with an identity index: append at
// the tail, remove from the head, or remove any element by key while the
// remaining elements keep their relative order. It is not safe for
// concurrent use; callers serialize access.
package queue

import (
	"errors"

	"github.com/me/uthread/pkg/model"
)

// MaxCapacity bounds the size of a single FIFO allocation.
const MaxCapacity = 1 << 20

var (
	// ErrCapacity is returned by New for a capacity it cannot allocate.
	ErrCapacity = errors.New("queue: invalid capacity")
	// ErrFull is returned by Push when the FIFO holds Cap elements.
	ErrFull = errors.New("queue: full")
	// ErrDuplicate is returned by Push when the key is already queued.
	ErrDuplicate = errors.New("queue: duplicate key")
)

// Keyed is implemented by values that can be removed by identity.
type Keyed interface {
	ID() model.Tid
}

// FIFO is a bounded first-in first-out queue keyed by thread id.
type FIFO[T Keyed] struct {
	buf   []T
	head  int
	n     int
	index map[model.Tid]struct{}
}

// New allocates a FIFO holding at most capacity elements.
func New[T Keyed](capacity int) (*FIFO[T], error) {
	if capacity < 1 || capacity > MaxCapacity {
		return nil, ErrCapacity
	}
	return &FIFO[T]{
		buf:   make([]T, capacity),
		index: make(map[model.Tid]struct{}, capacity),
	}, nil
}

// Push appends v at the tail. A full FIFO is left unchanged.
func (q *FIFO[T]) Push(v T) error {
	q.mustLive()
	if q.n == len(q.buf) {
		return ErrFull
	}
	id := v.ID()
	if _, ok := q.index[id]; ok {
		return ErrDuplicate
	}
	q.buf[q.slot(q.n)] = v
	q.n++
	q.index[id] = struct{}{}
	return nil
}

// Pop removes and returns the head element, or false if the FIFO is empty.
func (q *FIFO[T]) Pop() (T, bool) {
	q.mustLive()
	var zero T
	if q.n == 0 {
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = q.slot(1)
	q.n--
	delete(q.index, v.ID())
	return v, true
}

// Remove takes the element with the given key out of the FIFO, wherever it
// sits. Elements behind it move up one position.
func (q *FIFO[T]) Remove(key model.Tid) (T, bool) {
	q.mustLive()
	var zero T
	if _, ok := q.index[key]; !ok {
		return zero, false
	}
	i := 0
	for ; i < q.n; i++ {
		if q.buf[q.slot(i)].ID() == key {
			break
		}
	}
	v := q.buf[q.slot(i)]
	for ; i < q.n-1; i++ {
		q.buf[q.slot(i)] = q.buf[q.slot(i+1)]
	}
	q.buf[q.slot(q.n-1)] = zero
	q.n--
	delete(q.index, key)
	return v, true
}

// Contains reports whether key is queued.
func (q *FIFO[T]) Contains(key model.Tid) bool {
	q.mustLive()
	_, ok := q.index[key]
	return ok
}

// Len returns the number of queued elements.
func (q *FIFO[T]) Len() int { return q.n }

// Cap returns the fixed capacity.
func (q *FIFO[T]) Cap() int { return len(q.buf) }

// Keys returns the queued keys from head to tail.
func (q *FIFO[T]) Keys() []model.Tid {
	q.mustLive()
	keys := make([]model.Tid, q.n)
	for i := range q.n {
		keys[i] = q.buf[q.slot(i)].ID()
	}
	return keys
}

// Destroy drops every reference held by the FIFO. Any later call other
// than Len or Cap panics.
func (q *FIFO[T]) Destroy() {
	q.buf = nil
	q.index = nil
	q.head, q.n = 0, 0
}

func (q *FIFO[T]) slot(offset int) int {
	return (q.head + offset) % len(q.buf)
}

func (q *FIFO[T]) mustLive() {
	if q.index == nil {
		panic("queue: use after Destroy")
	}
}
