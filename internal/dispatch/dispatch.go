// Package dispatch runs user-level threads on top of a sched.ReadySet.
//
// The Dispatcher owns the policy. It admits threads when they are created,
// selects the head of the ready set whenever the CPU is free, and pulls a
// specific thread out of the set (Evict) for a targeted yield or a kill.
// With Preemptive set, a thread whose quantum expires, or that is running
// when the preemption timer fires, is re-admitted at the tail before the
// next selection; that is the whole of round-robin.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/me/uthread/internal/queue"
	"github.com/me/uthread/internal/sched"
	"github.com/me/uthread/internal/thread"
	"github.com/me/uthread/pkg/model"
)

var (
	// ErrNoMore is returned by Create when the thread limit is reached.
	ErrNoMore = errors.New("dispatch: no more threads")
	// ErrNone is returned by Yield(TidAny) when no other thread is ready.
	ErrNone = errors.New("dispatch: no ready thread")
	// ErrInvalid is returned for a yield or kill target that is not ready.
	ErrInvalid = errors.New("dispatch: invalid thread")
	// ErrStepLimit is returned by Run when Config.MaxSteps is exhausted.
	ErrStepLimit = errors.New("dispatch: step limit reached")
)

// Config holds dispatcher configuration.
type Config struct {
	MaxThreads int  // ready-set capacity and thread-table size
	Preemptive bool // round-robin instead of FCFS
	Quantum    int  // steps per time slice; 0 leaves preemption to the timer signal
	MaxSteps   int  // abort Run after this many steps; 0 means unlimited
}

// DefaultConfig returns an FCFS configuration at the library thread limit.
func DefaultConfig() Config {
	return Config{
		MaxThreads: model.MaxThreads,
		Quantum:    4,
		MaxSteps:   1_000_000,
	}
}

// Validate checks the configuration for values the dispatcher cannot use.
func (c Config) Validate() error {
	if c.MaxThreads < 1 || c.MaxThreads > queue.MaxCapacity {
		return fmt.Errorf("max threads %d out of range [1, %d]", c.MaxThreads, queue.MaxCapacity)
	}
	if c.Quantum < 0 {
		return fmt.Errorf("quantum %d must not be negative", c.Quantum)
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("max steps %d must not be negative", c.MaxSteps)
	}
	return nil
}

// Signal is a source of asynchronous preemption requests, such as
// interrupt.Timer. Ack consumes a pending request.
type Signal interface {
	Ack() bool
}

// Recorder receives every trace event as it happens.
type Recorder interface {
	Record(ev model.Event)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ev model.Event)

// Record calls f(ev).
func (f RecorderFunc) Record(ev model.Event) { f(ev) }

// Option configures optional Dispatcher dependencies.
type Option func(*Dispatcher)

// WithSignal attaches an asynchronous preemption source.
func WithSignal(s Signal) Option {
	return func(d *Dispatcher) { d.signal = s }
}

// WithRecorder sets a trace observer.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithReadySetOptions passes options through to the ready set.
func WithReadySetOptions(opts ...sched.Option[*thread.Thread]) Option {
	return func(d *Dispatcher) { d.readyOpts = append(d.readyOpts, opts...) }
}

// Summary describes a finished run.
type Summary struct {
	Threads     int         `json:"threads"`
	Steps       int         `json:"steps"`
	Switches    int         `json:"switches"`
	Preemptions int         `json:"preemptions"`
	Order       []model.Tid `json:"order"`
}

// Dispatcher schedules the threads of one process. It is driven by a single
// goroutine; only Signal may be raised from elsewhere.
type Dispatcher struct {
	cfg       Config
	logger    *slog.Logger
	table     *thread.Table
	ready     *sched.ReadySet[*thread.Thread]
	readyOpts []sched.Option[*thread.Thread]
	signal    Signal
	recorder  Recorder

	current *thread.Thread
	step    int // steps executed by all threads
	slice   int // steps executed by current since it was dispatched
	events  []model.Event
	summary Summary
}

// New creates a Dispatcher and initializes its ready set.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("dispatch config: %w", err)
	}
	d := &Dispatcher{
		cfg:    cfg,
		logger: logger.With("component", "dispatcher"),
		table:  thread.NewTable(cfg.MaxThreads),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.ready = sched.New[*thread.Thread](cfg.MaxThreads, d.readyOpts...)
	if err := d.ready.Init(); err != nil {
		return nil, fmt.Errorf("init ready set: %w", err)
	}
	return d, nil
}

// Close releases the ready set. It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.ready.Destroy()
}

// Config returns the configuration the dispatcher was built with.
func (d *Dispatcher) Config() Config { return d.cfg }

// Current returns the id of the running thread, or TidNone.
func (d *Dispatcher) Current() model.Tid {
	if d.current == nil {
		return model.TidNone
	}
	return d.current.ID()
}

// Ready returns the ready order from head to tail.
func (d *Dispatcher) Ready() []model.Tid {
	return d.ready.Snapshot()
}

// Events returns the trace recorded so far.
func (d *Dispatcher) Events() []model.Event {
	return d.events
}

// Create allocates a thread running body and admits it at the tail of the
// ready set.
func (d *Dispatcher) Create(name string, body thread.Body) (model.Tid, error) {
	th, err := d.table.Allocate(name, body)
	if err != nil {
		return model.TidNone, fmt.Errorf("%w: %w", ErrNoMore, err)
	}
	if err := d.ready.Admit(th); err != nil {
		d.table.Free(th.ID())
		if errors.Is(err, sched.ErrCapacityExceeded) {
			return model.TidNone, fmt.Errorf("%w: %w", ErrNoMore, err)
		}
		return model.TidNone, err
	}
	d.summary.Threads++
	d.record(model.EventAdmit, th.ID(), model.TidNone)
	d.logger.Debug("thread created", "tid", th.ID(), "name", name)
	return th.ID(), nil
}

// Yield gives the CPU from the running thread to target: TidAny for the
// head of the ready set, TidSelf (or the caller's own id) to keep running,
// or the id of a specific ready thread, which is evicted ahead of its turn.
// The caller is re-admitted at the tail. It returns the thread now running.
func (d *Dispatcher) Yield(target model.Tid) (model.Tid, error) {
	cur := d.mustCurrent("Yield")

	switch {
	case target == model.TidSelf || target == cur.ID():
		d.record(model.EventYield, cur.ID(), cur.ID())
		return cur.ID(), nil

	case target == model.TidAny:
		if d.ready.Len() == 0 {
			return cur.ID(), ErrNone
		}
		cur.State = model.ThreadStateReady
		next, err := d.ready.Rotate(cur)
		if err != nil {
			cur.State = model.ThreadStateRunning
			return cur.ID(), fmt.Errorf("yield: %w", err)
		}
		d.record(model.EventYield, cur.ID(), next.ID())
		d.switchTo(next)
		return next.ID(), nil
	}

	next, ok := d.ready.Evict(target)
	if !ok {
		return cur.ID(), fmt.Errorf("%w: %s is not ready", ErrInvalid, target)
	}
	cur.State = model.ThreadStateReady
	if err := d.ready.Admit(cur); err != nil {
		// An eviction just freed a slot, so this only fails on a broken set.
		panic(fmt.Sprintf("dispatch: re-admit %s after evicting %s: %v", cur, next, err))
	}
	d.record(model.EventYield, cur.ID(), next.ID())
	d.switchTo(next)
	return next.ID(), nil
}

// Kill destroys a thread that is waiting in the ready set. The running
// thread cannot be killed; it exits instead.
func (d *Dispatcher) Kill(target model.Tid) (model.Tid, error) {
	if target == model.TidAny || target == model.TidSelf ||
		(d.current != nil && target == d.current.ID()) {
		return model.TidNone, fmt.Errorf("%w: cannot kill %s", ErrInvalid, target)
	}
	th, ok := d.table.Get(target)
	if !ok || th.State != model.ThreadStateReady {
		return model.TidNone, fmt.Errorf("%w: %s is not ready", ErrInvalid, target)
	}
	// Transition before evicting so a refused kill leaves the set intact.
	if err := th.Transition(model.ThreadStateKilled); err != nil {
		return model.TidNone, err
	}
	if _, ok := d.ready.Evict(target); !ok {
		panic(fmt.Sprintf("dispatch: ready thread %s missing from the ready set", target))
	}
	d.table.Free(th.ID())
	d.record(model.EventKill, th.ID(), model.TidNone)
	d.logger.Debug("thread killed", "tid", th.ID(), "name", th.Name)
	return th.ID(), nil
}

// Exit terminates the running thread and dispatches the next ready one.
// It reports whether a thread is running afterwards.
func (d *Dispatcher) Exit() bool {
	cur := d.mustCurrent("Exit")
	if err := cur.Transition(model.ThreadStateExited); err != nil {
		panic(err)
	}
	d.table.Free(cur.ID())
	d.current = nil
	d.record(model.EventExit, cur.ID(), model.TidNone)
	d.logger.Debug("thread exited", "tid", cur.ID(), "name", cur.Name, "steps", cur.Steps)
	return d.dispatchNext()
}

// Preempt handles a preemption signal: the running thread goes to the tail
// of the ready set and the head runs. Without Preemptive it does nothing.
// It reports whether a different thread is now running.
func (d *Dispatcher) Preempt() bool {
	if !d.cfg.Preemptive || d.current == nil {
		return false
	}
	cur := d.current
	cur.State = model.ThreadStateReady
	next, err := d.ready.Rotate(cur)
	if err != nil {
		// cur was not in the set, so there is room for it; a failure here
		// means the set's capacity is smaller than the thread table.
		panic(fmt.Sprintf("dispatch: preempt %s: %v", cur, err))
	}
	d.summary.Preemptions++
	d.record(model.EventPreempt, cur.ID(), next.ID())
	if next == cur {
		cur.State = model.ThreadStateRunning
		d.slice = 0
		return false
	}
	d.switchTo(next)
	return true
}

// Run dispatches ready threads until none are left, the context is
// cancelled, or the step limit is hit.
func (d *Dispatcher) Run(ctx context.Context) (Summary, error) {
	d.logger.Info("run started",
		"threads", d.ready.Len(),
		"preemptive", d.cfg.Preemptive,
		"quantum", d.cfg.Quantum,
	)
	if d.current == nil {
		d.dispatchNext()
	}
	for d.current != nil {
		if err := ctx.Err(); err != nil {
			d.logger.Info("run cancelled", "steps", d.step)
			return d.summary, err
		}
		if d.cfg.MaxSteps > 0 && d.step >= d.cfg.MaxSteps {
			d.logger.Warn("step limit reached", "max_steps", d.cfg.MaxSteps)
			return d.summary, ErrStepLimit
		}
		d.runStep(ctx)
	}
	// A step cut short by cancellation may have ended the last thread.
	if err := ctx.Err(); err != nil {
		d.logger.Info("run cancelled", "steps", d.step)
		return d.summary, err
	}
	d.logger.Info("run complete",
		"steps", d.summary.Steps,
		"switches", d.summary.Switches,
		"preemptions", d.summary.Preemptions,
	)
	return d.summary, nil
}

// runStep executes one step of the current thread and applies its action.
func (d *Dispatcher) runStep(ctx context.Context) {
	cur := d.current
	a := cur.Run(ctx)
	d.step++
	d.slice++
	d.summary.Steps++

	switch a.Kind {
	case thread.ActContinue:
	case thread.ActYield:
		if _, err := d.Yield(a.Target); err != nil {
			d.logger.Debug("yield failed", "tid", cur.ID(), "target", a.Target, "error", err)
		}
	case thread.ActKill:
		if _, err := d.Kill(a.Target); err != nil {
			d.logger.Debug("kill failed", "tid", cur.ID(), "target", a.Target, "error", err)
		}
	case thread.ActSpawn:
		if _, err := d.Create(a.Name, a.Body); err != nil {
			d.logger.Warn("spawn failed", "tid", cur.ID(), "name", a.Name, "error", err)
		}
	case thread.ActExit:
		d.Exit()
		return
	default:
		panic(fmt.Sprintf("dispatch: unknown action %s from %s", a, cur))
	}

	if d.current != cur {
		return
	}
	if d.preemptDue() {
		d.Preempt()
	}
}

func (d *Dispatcher) preemptDue() bool {
	if !d.cfg.Preemptive {
		return false
	}
	fired := d.signal != nil && d.signal.Ack()
	return fired || (d.cfg.Quantum > 0 && d.slice >= d.cfg.Quantum)
}

// dispatchNext makes the head of the ready set current. It reports false,
// recording an idle event, when nothing is ready.
func (d *Dispatcher) dispatchNext() bool {
	next, ok := d.ready.SelectNext()
	if !ok {
		d.current = nil
		d.record(model.EventIdle, model.TidNone, model.TidNone)
		return false
	}
	d.switchTo(next)
	return true
}

func (d *Dispatcher) switchTo(next *thread.Thread) {
	if err := next.Transition(model.ThreadStateRunning); err != nil {
		panic(err)
	}
	d.current = next
	d.slice = 0
	d.summary.Switches++
	d.summary.Order = append(d.summary.Order, next.ID())
	d.record(model.EventDispatch, next.ID(), model.TidNone)
}

func (d *Dispatcher) mustCurrent(op string) *thread.Thread {
	if d.current == nil {
		panic("dispatch: " + op + " with no running thread")
	}
	return d.current
}

func (d *Dispatcher) record(kind model.EventKind, tid, target model.Tid) {
	ev := model.Event{
		Seq:    len(d.events),
		Step:   d.step,
		Kind:   kind,
		Tid:    tid,
		Target: target,
		Ready:  d.ready.Snapshot(),
	}
	d.events = append(d.events, ev)
	if d.recorder != nil {
		d.recorder.Record(ev)
	}
}
