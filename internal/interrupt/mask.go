// Package interrupt models preemption delivery for the thread library.
//
// A Mask excludes the preemption handler for the duration of one ready-set
// operation. A Timer raises the preemption signal; the dispatcher observes
// it only between thread steps, never inside a masked section.
package interrupt

import "sync"

// Mask provides a scoped critical section. Disable blocks delivery and
// returns the function that restores it. Callers defer the restore so it
// runs on every exit path:
//
//	defer m.Disable()()
type Mask interface {
	Disable() (restore func())
}

// LockMask is a Mask backed by a mutex, for when the preemption handler
// runs on a different goroutine than the dispatcher. It is not reentrant.
type LockMask struct {
	mu sync.Mutex
}

// NewMask returns a mutex-backed Mask.
func NewMask() *LockMask {
	return &LockMask{}
}

// Disable acquires the mask.
func (m *LockMask) Disable() func() {
	m.mu.Lock()
	return m.mu.Unlock
}

// NopMask is a Mask for ready sets only ever touched by one goroutine.
type NopMask struct{}

// Disable does nothing.
func (NopMask) Disable() func() { return func() {} }

var (
	_ Mask = (*LockMask)(nil)
	_ Mask = NopMask{}
)
