// Package sched implements the ready-queue scheduling policy of the thread
// library.
//
// A ReadySet is a strict FIFO over ready threads. It has no notion of a time
// slice: first-come first-served order holds when the dispatcher admits only
// new threads, and round-robin falls out when the dispatcher re-admits a
// preempted thread before selecting the next one (see Rotate).
//
// Every operation runs inside one critical section of the set's Mask, so it
// is atomic with respect to the preemption handler. Contract violations
// (double Init, use before Init, duplicate admission) panic; they are bugs
// in the dispatcher, not runtime conditions.
package sched

import (
	"errors"
	"fmt"

	"github.com/me/uthread/internal/interrupt"
	"github.com/me/uthread/internal/queue"
	"github.com/me/uthread/pkg/model"
)

var (
	// ErrOutOfMemory is returned by Init when the container cannot be allocated.
	ErrOutOfMemory = errors.New("sched: out of memory")
	// ErrCapacityExceeded is returned by Admit when the set is full.
	ErrCapacityExceeded = errors.New("sched: capacity exceeded")
)

// Ref is a non-owning reference to a thread.
type Ref interface {
	ID() model.Tid
}

// Container is the bounded FIFO a ReadySet orders its references in.
type Container[T Ref] interface {
	Push(v T) error
	Pop() (T, bool)
	Remove(id model.Tid) (T, bool)
	Contains(id model.Tid) bool
	Keys() []model.Tid
	Len() int
	Cap() int
	Destroy()
}

// Factory creates a container of the given capacity.
type Factory[T Ref] func(capacity int) (Container[T], error)

// QueueFactory builds containers with queue.New.
func QueueFactory[T Ref](capacity int) (Container[T], error) {
	q, err := queue.New[T](capacity)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Option configures a ReadySet.
type Option[T Ref] func(*ReadySet[T])

// WithMask sets the critical section guarding each operation.
// The default is a mutex-backed interrupt.LockMask.
func WithMask[T Ref](m interrupt.Mask) Option[T] {
	return func(s *ReadySet[T]) { s.mask = m }
}

// WithFactory replaces the container constructor.
func WithFactory[T Ref](f Factory[T]) Option[T] {
	return func(s *ReadySet[T]) { s.factory = f }
}

// ReadySet is the ordered set of threads eligible for dispatch.
type ReadySet[T Ref] struct {
	capacity int
	mask     interrupt.Mask
	factory  Factory[T]
	q        Container[T] // nil until Init and after Destroy
}

// New returns an uninitialized ReadySet that will hold up to capacity
// references once Init succeeds.
func New[T Ref](capacity int, opts ...Option[T]) *ReadySet[T] {
	s := &ReadySet[T]{
		capacity: capacity,
		mask:     interrupt.NewMask(),
		factory:  QueueFactory[T],
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init allocates the container. It panics if the set is already initialized.
func (s *ReadySet[T]) Init() error {
	defer s.mask.Disable()()
	if s.q != nil {
		panic("sched: Init on initialized ready set")
	}
	q, err := s.factory(s.capacity)
	if err != nil {
		return fmt.Errorf("%w: ready set of %d: %v", ErrOutOfMemory, s.capacity, err)
	}
	s.q = q
	return nil
}

// Admit appends ref at the tail of the ready order. A full set is left
// unchanged and ErrCapacityExceeded is returned.
func (s *ReadySet[T]) Admit(ref T) error {
	defer s.mask.Disable()()
	return s.admit(ref)
}

// SelectNext removes and returns the head of the ready order. It returns
// false when no thread is ready; that is the dispatcher's idle signal.
func (s *ReadySet[T]) SelectNext() (T, bool) {
	defer s.mask.Disable()()
	s.mustInit()
	return s.q.Pop()
}

// Evict removes the thread with the given id from wherever it sits,
// keeping the order of the rest. It returns false if id is not ready.
func (s *ReadySet[T]) Evict(id model.Tid) (T, bool) {
	defer s.mask.Disable()()
	s.mustInit()
	return s.q.Remove(id)
}

// Rotate re-admits the preempted thread and selects the next head in a
// single critical section. If preempted was the only ready thread it is
// returned again.
func (s *ReadySet[T]) Rotate(preempted T) (T, error) {
	defer s.mask.Disable()()
	if err := s.admit(preempted); err != nil {
		var zero T
		return zero, err
	}
	next, _ := s.q.Pop()
	return next, nil
}

// Destroy releases the container. Calling it on an uninitialized set is a
// no-op, and Init may be called again afterwards.
func (s *ReadySet[T]) Destroy() {
	defer s.mask.Disable()()
	if s.q == nil {
		return
	}
	s.q.Destroy()
	s.q = nil
}

// Len returns the number of ready threads, or 0 if uninitialized.
func (s *ReadySet[T]) Len() int {
	defer s.mask.Disable()()
	if s.q == nil {
		return 0
	}
	return s.q.Len()
}

// Cap returns the configured capacity.
func (s *ReadySet[T]) Cap() int {
	return s.capacity
}

// Initialized reports whether Init has succeeded without a later Destroy.
func (s *ReadySet[T]) Initialized() bool {
	defer s.mask.Disable()()
	return s.q != nil
}

// Snapshot returns the ready ids from head to tail.
func (s *ReadySet[T]) Snapshot() []model.Tid {
	defer s.mask.Disable()()
	s.mustInit()
	return s.q.Keys()
}

func (s *ReadySet[T]) admit(ref T) error {
	s.mustInit()
	id := ref.ID()
	if s.q.Contains(id) {
		panic(fmt.Sprintf("sched: thread %s admitted twice", id))
	}
	if err := s.q.Push(ref); err != nil {
		if errors.Is(err, queue.ErrFull) {
			return ErrCapacityExceeded
		}
		return fmt.Errorf("admit thread %s: %w", id, err)
	}
	return nil
}

func (s *ReadySet[T]) mustInit() {
	if s.q == nil {
		panic("sched: ready set used before Init")
	}
}
