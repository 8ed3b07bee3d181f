package model

import "strconv"

// Tid identifies a user-level thread. Valid ids are 0 .. MaxThreads-1.
type Tid int

// MaxThreads is the library-wide limit on concurrently existing threads.
// It is also the default capacity of a dispatcher's ready set.
const MaxThreads = 1024

// Special identifiers accepted as yield targets.
const (
	TidAny  Tid = -1 // any ready thread (the head of the ready set)
	TidSelf Tid = -2 // the calling thread
	TidNone Tid = -3 // no thread; used in traces for events without a target
)

// Valid reports whether t names a real thread slot under max.
func (t Tid) Valid(max int) bool {
	return t >= 0 && int(t) < max
}

func (t Tid) String() string {
	switch t {
	case TidAny:
		return "any"
	case TidSelf:
		return "self"
	case TidNone:
		return "none"
	}
	return strconv.Itoa(int(t))
}
