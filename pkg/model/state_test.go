package model

import "testing"

func TestThreadState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    ThreadState
		terminal bool
	}{
		{ThreadStateReady, false},
		{ThreadStateRunning, false},
		{ThreadStateExited, true},
		{ThreadStateKilled, true},
	}
	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.terminal {
			t.Errorf("ThreadState(%q).IsTerminal() = %v, want %v", tt.state, got, tt.terminal)
		}
	}
}

func TestThreadState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from  ThreadState
		to    ThreadState
		valid bool
	}{
		{ThreadStateReady, ThreadStateRunning, true},
		{ThreadStateReady, ThreadStateKilled, true},
		{ThreadStateRunning, ThreadStateReady, true},
		{ThreadStateRunning, ThreadStateExited, true},

		{ThreadStateRunning, ThreadStateKilled, false},
		{ThreadStateReady, ThreadStateExited, false},
		{ThreadStateExited, ThreadStateReady, false},
		{ThreadStateKilled, ThreadStateRunning, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestTid_String(t *testing.T) {
	tests := []struct {
		tid  Tid
		want string
	}{
		{TidAny, "any"},
		{TidSelf, "self"},
		{TidNone, "none"},
		{0, "0"},
		{17, "17"},
	}
	for _, tt := range tests {
		if got := tt.tid.String(); got != tt.want {
			t.Errorf("Tid(%d).String() = %q, want %q", int(tt.tid), got, tt.want)
		}
	}
}

func TestTid_Valid(t *testing.T) {
	if !Tid(0).Valid(4) || !Tid(3).Valid(4) {
		t.Error("ids inside the table should be valid")
	}
	if Tid(4).Valid(4) || TidAny.Valid(4) || TidSelf.Valid(4) {
		t.Error("ids outside the table should be invalid")
	}
}
