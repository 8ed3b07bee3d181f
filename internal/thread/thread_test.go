package thread

import (
	"context"
	"errors"
	"testing"

	"github.com/me/uthread/pkg/model"
)

func idle() Body {
	return BodyFunc(func(StepContext) Action { return Continue() })
}

func TestTable_AllocateLowestFree(t *testing.T) {
	tb := NewTable(3)
	a, _ := tb.Allocate("a", idle())
	b, _ := tb.Allocate("b", idle())
	c, _ := tb.Allocate("c", idle())
	if a.ID() != 0 || b.ID() != 1 || c.ID() != 2 {
		t.Fatalf("ids = %d %d %d, want 0 1 2", a.ID(), b.ID(), c.ID())
	}
	if _, err := tb.Allocate("d", idle()); !errors.Is(err, ErrNoMore) {
		t.Fatalf("Allocate on full table = %v, want ErrNoMore", err)
	}

	tb.Free(1)
	d, err := tb.Allocate("d", idle())
	if err != nil {
		t.Fatalf("Allocate after Free: %v", err)
	}
	if d.ID() != 1 {
		t.Errorf("reused id = %d, want 1", d.ID())
	}
	if tb.Live() != 3 {
		t.Errorf("Live = %d, want 3", tb.Live())
	}
}

func TestTable_GetAndFree(t *testing.T) {
	tb := NewTable(2)
	th, _ := tb.Allocate("a", idle())
	if got, ok := tb.Get(th.ID()); !ok || got != th {
		t.Fatal("Get did not return the allocated thread")
	}
	tb.Free(th.ID())
	tb.Free(th.ID())
	tb.Free(model.TidAny)
	if _, ok := tb.Get(th.ID()); ok {
		t.Error("Get found a freed thread")
	}
	if tb.Live() != 0 {
		t.Errorf("Live = %d, want 0", tb.Live())
	}
}

func TestThread_RunCountsSteps(t *testing.T) {
	tb := NewTable(1)
	var seen []int
	th, _ := tb.Allocate("counter", BodyFunc(func(c StepContext) Action {
		seen = append(seen, c.Step)
		if c.Step == 2 {
			return Exit()
		}
		return Continue()
	}))
	for th.Run(context.Background()).Kind != ActExit {
	}
	if th.Steps != 3 || len(seen) != 3 || seen[2] != 2 {
		t.Errorf("Steps = %d, seen = %v", th.Steps, seen)
	}
}

func TestThread_Transition(t *testing.T) {
	tb := NewTable(1)
	th, _ := tb.Allocate("a", idle())
	if err := th.Transition(model.ThreadStateRunning); err != nil {
		t.Fatalf("READY -> RUNNING: %v", err)
	}
	err := th.Transition(model.ThreadStateKilled)
	var terr *model.InvalidTransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("RUNNING -> KILLED = %v, want InvalidTransitionError", err)
	}
	if th.State != model.ThreadStateRunning {
		t.Errorf("State = %s after rejected transition", th.State)
	}
}

func TestAction_String(t *testing.T) {
	tests := []struct {
		a    Action
		want string
	}{
		{Continue(), "continue"},
		{Yield(model.TidAny), "yield:any"},
		{Yield(4), "yield:4"},
		{Kill(2), "kill:2"},
		{Exit(), "exit"},
		{Spawn("w", idle()), "spawn:w"},
	}
	for _, tt := range tests {
		if got := tt.a.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
