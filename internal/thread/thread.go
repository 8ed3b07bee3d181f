// Package thread holds the thread-control blocks of the user-level thread
// library: identity allocation, lifecycle state, and the step functions
// that stand in for a thread's machine context.
package thread

import (
	"context"
	"fmt"

	"github.com/me/uthread/pkg/model"
)

// StepContext is what a thread body sees while it runs one step.
type StepContext struct {
	Ctx  context.Context // done when the run is cancelled; may be nil
	Tid  model.Tid
	Name string
	Step int // zero-based index of this step within the thread
}

// Body is the code of a thread. Step runs one unit of work and returns
// what the thread does next. Bodies never switch threads themselves.
type Body interface {
	Step(c StepContext) Action
}

// BodyFunc adapts a function to Body.
type BodyFunc func(c StepContext) Action

// Step calls f(c).
func (f BodyFunc) Step(c StepContext) Action { return f(c) }

// Thread is a thread-control block. It is owned by a Table; ready sets and
// the dispatcher only hold references.
type Thread struct {
	id    model.Tid
	Name  string
	State model.ThreadState
	Steps int
	Body  Body
}

// ID returns the thread identifier.
func (t *Thread) ID() model.Tid { return t.id }

// Transition moves the thread to next if the lifecycle allows it.
func (t *Thread) Transition(next model.ThreadState) error {
	if !t.State.CanTransitionTo(next) {
		return &model.InvalidTransitionError{Tid: t.id, From: t.State, To: next}
	}
	t.State = next
	return nil
}

// Run executes one step of the body and advances the step counter.
// Bodies that can block or loop should give up when ctx is done.
func (t *Thread) Run(ctx context.Context) Action {
	a := t.Body.Step(StepContext{Ctx: ctx, Tid: t.id, Name: t.Name, Step: t.Steps})
	t.Steps++
	return a
}

func (t *Thread) String() string {
	return fmt.Sprintf("%s(%s)", t.Name, t.id)
}
