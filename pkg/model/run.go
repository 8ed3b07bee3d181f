package model

import "time"

// EventKind names a ready-set or dispatch transition recorded in a trace.
type EventKind string

const (
	EventAdmit    EventKind = "admit"    // thread appended to the ready set
	EventDispatch EventKind = "dispatch" // thread selected and made current
	EventPreempt  EventKind = "preempt"  // running thread re-admitted by the timer
	EventYield    EventKind = "yield"    // running thread gave up the CPU
	EventKill     EventKind = "kill"     // ready thread evicted and destroyed
	EventExit     EventKind = "exit"     // running thread terminated
	EventIdle     EventKind = "idle"     // nothing left to run
)

// Event is one entry of a dispatch trace.
type Event struct {
	Seq    int       `json:"seq"`
	Step   int       `json:"step"`
	Kind   EventKind `json:"kind"`
	Tid    Tid       `json:"tid"`
	Target Tid       `json:"target"`
	Ready  []Tid     `json:"ready"`
}

// Run is a stored scheduling run: the workload that produced it and the
// resulting dispatch order.
type Run struct {
	ID          string    `json:"id"`
	Workload    string    `json:"workload"`
	State       RunState  `json:"state"`
	Preemptive  bool      `json:"preemptive"`
	Quantum     int       `json:"quantum"`
	MaxThreads  int       `json:"max_threads"`
	Threads     int       `json:"threads"`
	Steps       int       `json:"steps"`
	Switches    int       `json:"switches"`
	Preemptions int       `json:"preemptions"`
	Order       []Tid     `json:"order"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Duration    string    `json:"duration"`
}
