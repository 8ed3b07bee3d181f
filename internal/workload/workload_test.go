package workload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/me/uthread/internal/dispatch"
	"github.com/me/uthread/internal/logging"
	"github.com/me/uthread/internal/thread"
	"github.com/me/uthread/pkg/model"
)

const demo = `
name: demo
scheduler:
  preemptive: true
  quantum: 2
threads:
  - name: a
    kind: spin
    steps: 4
  - name: b
    kind: fib
    n: 10
    steps: 2
  - name: c
    kind: script
    script: 'step < 2 ? "continue" : "exit"'
`

func runWorkload(t *testing.T, src string, cfg dispatch.Config) (dispatch.Summary, *dispatch.Dispatcher) {
	t.Helper()
	w, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	d, err := dispatch.New(w.Apply(cfg), logging.Discard())
	if err != nil {
		t.Fatalf("dispatch.New: %v", err)
	}
	t.Cleanup(d.Close)
	if _, err := w.Spawn(d, NewBuilder(logging.Discard())); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	sum, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return sum, d
}

func TestParse_Demo(t *testing.T) {
	w, err := Parse([]byte(demo))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if w.Name != "demo" || len(w.Threads) != 3 {
		t.Fatalf("workload = %+v", w)
	}
	cfg := w.Apply(dispatch.DefaultConfig())
	if !cfg.Preemptive || cfg.Quantum != 2 {
		t.Errorf("Apply = %+v", cfg)
	}
	if cfg.MaxThreads != model.MaxThreads {
		t.Errorf("MaxThreads = %d, want default", cfg.MaxThreads)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	src := `
scheduler:
  quantum: -1
threads:
  - kind: spin
  - name: f
    kind: fib
    n: 99
  - name: s
    kind: script
  - name: x
    kind: coroutine
  - name: broken
    kind: script
    script: 'step <'
`
	_, err := Parse([]byte(src))
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Parse = %v, want *model.APIError", err)
	}
	var fields []string
	for _, d := range apiErr.Details {
		fields = append(fields, d.Field)
	}
	want := []string{"name", "scheduler.quantum", "threads[0].name", "threads[1].n", "threads[2].script", "threads[3].kind", "threads[4].script"}
	if !slices.Equal(fields, want) {
		t.Errorf("fields = %v\nwant     %v", fields, want)
	}
}

func TestParse_BadYAML(t *testing.T) {
	if _, err := Parse([]byte("threads: {")); err == nil {
		t.Error("malformed YAML accepted")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.yaml")
	if err := os.WriteFile(path, []byte(demo), 0o644); err != nil {
		t.Fatal(err)
	}
	w, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if w.Count() != 3 {
		t.Errorf("Count = %d, want 3", w.Count())
	}
}

func TestRun_DemoRoundRobin(t *testing.T) {
	sum, _ := runWorkload(t, demo, dispatch.DefaultConfig())
	// a:2 b:2(exit) c:2 a:2(exit) c:1(exit)
	if want := []model.Tid{0, 1, 2, 0, 2}; !slices.Equal(sum.Order, want) {
		t.Errorf("order = %v, want %v", sum.Order, want)
	}
}

func TestRun_SpinYieldEvery(t *testing.T) {
	src := `
name: yielders
threads:
  - {name: a, kind: spin, steps: 4, yield_every: 2}
  - {name: b, kind: spin, steps: 4, yield_every: 2}
`
	sum, _ := runWorkload(t, src, dispatch.DefaultConfig())
	// Each thread yields after its second step.
	if want := []model.Tid{0, 1, 0, 1}; !slices.Equal(sum.Order, want) {
		t.Errorf("order = %v, want %v", sum.Order, want)
	}
}

func TestRun_ScriptTargetedYieldAndKill(t *testing.T) {
	src := `
name: targeted
threads:
  - name: boss
    kind: script
    script: |
      step == 0 ? "kill:1" : step == 1 ? "yield:2" : "exit"
  - {name: victim, kind: spin, steps: 1}
  - {name: favourite, kind: spin, steps: 1}
  - {name: last, kind: spin, steps: 1}
`
	sum, d := runWorkload(t, src, dispatch.DefaultConfig())
	if want := []model.Tid{0, 2, 3, 0}; !slices.Equal(sum.Order, want) {
		t.Errorf("order = %v, want %v", sum.Order, want)
	}
	var kills int
	for _, ev := range d.Events() {
		if ev.Kind == model.EventKill {
			kills++
		}
	}
	if kills != 1 {
		t.Errorf("kill events = %d, want 1", kills)
	}
}

func TestRun_Children(t *testing.T) {
	src := `
name: family
threads:
  - name: parent
    kind: spin
    steps: 1
    children:
      - {name: kid1, kind: spin, steps: 1}
      - {name: kid2, kind: fib, n: 5}
`
	w, _ := Parse([]byte(src))
	if w.Count() != 3 {
		t.Errorf("Count = %d, want 3", w.Count())
	}
	sum, _ := runWorkload(t, src, dispatch.DefaultConfig())
	if want := []model.Tid{0, 1, 2}; !slices.Equal(sum.Order, want) {
		t.Errorf("order = %v, want %v", sum.Order, want)
	}
	if sum.Threads != 3 {
		t.Errorf("threads = %d, want 3", sum.Threads)
	}
}

func TestSpawn_TooManyThreads(t *testing.T) {
	src := `
name: crowd
scheduler: {max_threads: 2}
threads:
  - {name: a, kind: spin}
  - {name: b, kind: spin}
  - {name: c, kind: spin}
`
	w, err := Parse([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	d, err := dispatch.New(w.Apply(dispatch.DefaultConfig()), logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	tids, err := w.Spawn(d, NewBuilder(logging.Discard()))
	if !errors.Is(err, dispatch.ErrNoMore) {
		t.Fatalf("Spawn = %v, want ErrNoMore", err)
	}
	if len(tids) != 2 {
		t.Errorf("created %d threads, want 2", len(tids))
	}
}

func TestScript_Errors(t *testing.T) {
	b := NewBuilder(logging.Discard())
	if _, err := b.Body(ThreadSpec{Name: "bad", Kind: KindScript, Script: "step <"}); err == nil {
		t.Error("syntax error compiled")
	}

	body, err := b.Body(ThreadSpec{Name: "throw", Kind: KindScript, Script: "undefinedFn()"})
	if err != nil {
		t.Fatal(err)
	}
	if a := body.Step(thread.StepContext{}); a.Kind != thread.ActExit {
		t.Errorf("runtime error action = %s, want exit", a)
	}

	body, _ = b.Body(ThreadSpec{Name: "junk", Kind: KindScript, Script: `"dance"`})
	if a := body.Step(thread.StepContext{}); a.Kind != thread.ActExit {
		t.Errorf("unknown result action = %s, want exit", a)
	}
}

func TestScript_InterruptedByContext(t *testing.T) {
	b := NewBuilder(logging.Discard())
	body, err := b.Body(ThreadSpec{Name: "spin", Kind: KindScript, Script: "while (true) {}"})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := make(chan thread.Action, 1)
	go func() { done <- body.Step(thread.StepContext{Ctx: ctx}) }()

	select {
	case a := <-done:
		if a.Kind != thread.ActExit {
			t.Errorf("interrupted script action = %s, want exit", a)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("looping script still running 3s after a 200ms deadline")
	}
}

func TestScript_ReusableAfterStep(t *testing.T) {
	b := NewBuilder(logging.Discard())
	body, err := b.Body(ThreadSpec{Name: "s", Kind: KindScript, Script: `step < 2 ? "continue" : "exit"`})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for step, want := range []thread.ActionKind{thread.ActContinue, thread.ActContinue, thread.ActExit} {
		if a := body.Step(thread.StepContext{Ctx: ctx, Step: step}); a.Kind != want {
			t.Errorf("step %d action = %s, want %s", step, a, want)
		}
	}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in   string
		want thread.Action
		ok   bool
	}{
		{"continue", thread.Continue(), true},
		{" exit ", thread.Exit(), true},
		{"yield", thread.Yield(model.TidAny), true},
		{"yield:any", thread.Yield(model.TidAny), true},
		{"yield:self", thread.Yield(model.TidSelf), true},
		{"yield:7", thread.Yield(7), true},
		{"kill:3", thread.Kill(3), true},
		{"kill", thread.Action{}, false},
		{"kill:-1", thread.Action{}, false},
		{"yield:abc", thread.Action{}, false},
		{"sleep", thread.Action{}, false},
	}
	for _, tt := range tests {
		got, err := ParseAction(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ParseAction(%q) error = %v, want ok=%v", tt.in, err, tt.ok)
			continue
		}
		if tt.ok && (got.Kind != tt.want.Kind || got.Target != tt.want.Target) {
			t.Errorf("ParseAction(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
