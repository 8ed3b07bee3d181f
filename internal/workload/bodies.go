package workload

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dop251/goja"
	"github.com/hackebrot/go-fibonacci"
	"github.com/me/uthread/internal/thread"
	"github.com/me/uthread/pkg/model"
)

// maxFibN bounds the naive recursive computation a fib thread runs per step.
const maxFibN = 35

// Builder turns thread specs into thread bodies.
type Builder struct {
	logger *slog.Logger
}

// NewBuilder creates a Builder with the given logger.
func NewBuilder(logger *slog.Logger) *Builder {
	return &Builder{logger: logger.With("component", "workload")}
}

// Body builds the body for spec, wrapping it so its children are spawned
// first, one per step.
func (b *Builder) Body(spec ThreadSpec) (thread.Body, error) {
	var (
		body thread.Body
		err  error
	)
	switch spec.Kind {
	case KindSpin:
		body = spin{steps: max(spec.Steps, 1), yieldEvery: spec.YieldEvery}
	case KindFib:
		body = &fib{steps: max(spec.Steps, 1), n: spec.N, strategy: fibonacci.NewRecursive(), logger: b.logger}
	case KindScript:
		body, err = newScript(spec.Name, spec.Script, b.logger)
	default:
		err = fmt.Errorf("unknown thread kind %q", spec.Kind)
	}
	if err != nil {
		return nil, err
	}
	if len(spec.Children) == 0 {
		return body, nil
	}

	s := &spawner{inner: body, names: make([]string, len(spec.Children))}
	for i, c := range spec.Children {
		cb, err := b.Body(c)
		if err != nil {
			return nil, fmt.Errorf("children[%d] %s: %w", i, c.Name, err)
		}
		s.names[i] = c.Name
		s.bodies = append(s.bodies, cb)
	}
	return s, nil
}

// spin runs a fixed number of steps, yielding every yieldEvery steps.
type spin struct {
	steps      int
	yieldEvery int
}

func (s spin) Step(c thread.StepContext) thread.Action {
	if c.Step >= s.steps-1 {
		return thread.Exit()
	}
	if s.yieldEvery > 0 && (c.Step+1)%s.yieldEvery == 0 {
		return thread.Yield(model.TidAny)
	}
	return thread.Continue()
}

// fib computes the n-th Fibonacci number once per step.
type fib struct {
	steps    int
	n        int
	strategy fibonacci.Strategy
	logger   *slog.Logger
}

func (f *fib) Step(c thread.StepContext) thread.Action {
	r := f.strategy.Compute(f.n)
	f.logger.Debug("computation complete", "tid", c.Tid, "step", c.Step, "n", f.n, "result", r)
	if c.Step >= f.steps-1 {
		return thread.Exit()
	}
	return thread.Continue()
}

// script evaluates a JavaScript expression each step. The expression sees
// step, tid and name and yields one of: "continue", "yield", "yield:<tid>",
// "yield:self", "kill:<tid>", "exit".
type script struct {
	name   string
	prog   *goja.Program
	vm     *goja.Runtime
	logger *slog.Logger
}

func newScript(name, src string, logger *slog.Logger) (*script, error) {
	prog, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, fmt.Errorf("compile script: %w", err)
	}
	return &script{name: name, prog: prog, vm: goja.New(), logger: logger}, nil
}

func (s *script) Step(c thread.StepContext) thread.Action {
	s.vm.Set("step", c.Step)
	s.vm.Set("tid", int(c.Tid))
	s.vm.Set("name", c.Name)

	v, err := s.run(c.Ctx)
	if err != nil {
		s.logger.Warn("script failed, thread exits", "tid", c.Tid, "name", s.name, "error", err)
		return thread.Exit()
	}
	a, err := ParseAction(v.String())
	if err != nil {
		s.logger.Warn("bad script result, thread exits", "tid", c.Tid, "name", s.name, "error", err)
		return thread.Exit()
	}
	return a
}

// run evaluates the program, interrupting it when ctx is done.
func (s *script) run(ctx context.Context) (goja.Value, error) {
	if ctx == nil {
		return s.vm.RunProgram(s.prog)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		s.vm.Interrupt(ctx.Err())
		close(interrupted)
	})
	defer func() {
		// A callback already running must finish before the flag is cleared.
		if !stop() {
			<-interrupted
		}
		s.vm.ClearInterrupt()
	}()
	return s.vm.RunProgram(s.prog)
}

// ParseAction converts a script result into an Action.
func ParseAction(s string) (thread.Action, error) {
	verb, arg, hasArg := strings.Cut(strings.TrimSpace(s), ":")
	switch verb {
	case "continue":
		return thread.Continue(), nil
	case "exit":
		return thread.Exit(), nil
	case "yield":
		if !hasArg {
			return thread.Yield(model.TidAny), nil
		}
		tid, err := parseTid(arg)
		if err != nil {
			return thread.Action{}, err
		}
		return thread.Yield(tid), nil
	case "kill":
		if !hasArg {
			return thread.Action{}, fmt.Errorf("kill needs a thread id")
		}
		tid, err := parseTid(arg)
		if err != nil {
			return thread.Action{}, err
		}
		return thread.Kill(tid), nil
	}
	return thread.Action{}, fmt.Errorf("unknown action %q", s)
}

func parseTid(s string) (model.Tid, error) {
	switch s {
	case "any":
		return model.TidAny, nil
	case "self":
		return model.TidSelf, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid thread id %q", s)
	}
	return model.Tid(n), nil
}

// spawner creates one child per step, then hands over to inner.
type spawner struct {
	inner  thread.Body
	names  []string
	bodies []thread.Body
}

func (s *spawner) Step(c thread.StepContext) thread.Action {
	if c.Step < len(s.bodies) {
		return thread.Spawn(s.names[c.Step], s.bodies[c.Step])
	}
	c.Step -= len(s.bodies)
	return s.inner.Step(c)
}
