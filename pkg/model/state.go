package model

// ThreadState represents the lifecycle state of a user-level thread.
type ThreadState string

const (
	ThreadStateReady   ThreadState = "READY"
	ThreadStateRunning ThreadState = "RUNNING"
	ThreadStateExited  ThreadState = "EXITED"
	ThreadStateKilled  ThreadState = "KILLED"
)

// String returns the string representation of the thread state.
func (s ThreadState) String() string {
	return string(s)
}

// IsTerminal returns true if the thread can never run again.
func (s ThreadState) IsTerminal() bool {
	switch s {
	case ThreadStateExited, ThreadStateKilled:
		return true
	}
	return false
}

// ValidThreadTransitions defines the allowed state transitions for threads.
// A running thread goes back to READY when it yields or is preempted.
// Only a READY thread can be killed; the running thread exits instead.
var ValidThreadTransitions = map[ThreadState][]ThreadState{
	ThreadStateReady:   {ThreadStateRunning, ThreadStateKilled},
	ThreadStateRunning: {ThreadStateReady, ThreadStateExited},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s ThreadState) CanTransitionTo(next ThreadState) bool {
	for _, allowed := range ValidThreadTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RunState represents the outcome of a scheduling run.
type RunState string

const (
	RunStateCompleted RunState = "COMPLETED" // every thread exited or was killed
	RunStateCancelled RunState = "CANCELLED" // context cancelled mid-run
	RunStateFailed    RunState = "FAILED"    // step limit or dispatcher error
)

// IsTerminal returns true for every RunState; runs are stored after they finish.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateCompleted, RunStateCancelled, RunStateFailed:
		return true
	}
	return false
}
