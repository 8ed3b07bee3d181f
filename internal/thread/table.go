package thread

import (
	"errors"

	"github.com/me/uthread/pkg/model"
)

// ErrNoMore is returned by Allocate when every slot is in use.
var ErrNoMore = errors.New("thread: no more threads")

// Table is a fixed-size array of thread-control blocks indexed by Tid.
type Table struct {
	slots []*Thread
	live  int
}

// NewTable creates a table for up to size threads.
func NewTable(size int) *Table {
	return &Table{slots: make([]*Thread, size)}
}

// Allocate creates a READY thread in the lowest free slot.
func (t *Table) Allocate(name string, body Body) (*Thread, error) {
	for i, s := range t.slots {
		if s != nil {
			continue
		}
		th := &Thread{
			id:    model.Tid(i),
			Name:  name,
			State: model.ThreadStateReady,
			Body:  body,
		}
		t.slots[i] = th
		t.live++
		return th, nil
	}
	return nil, ErrNoMore
}

// Get returns the live thread with the given id.
func (t *Table) Get(id model.Tid) (*Thread, bool) {
	if !id.Valid(len(t.slots)) || t.slots[id] == nil {
		return nil, false
	}
	return t.slots[id], true
}

// Free releases the slot of id so it can be reallocated.
func (t *Table) Free(id model.Tid) {
	if !id.Valid(len(t.slots)) || t.slots[id] == nil {
		return
	}
	t.slots[id] = nil
	t.live--
}

// Live returns the number of allocated threads.
func (t *Table) Live() int { return t.live }

// Size returns the number of slots.
func (t *Table) Size() int { return len(t.slots) }
