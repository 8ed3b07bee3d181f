// Package execution runs workloads through a dispatcher and records the
// outcome as a model.Run. It is shared by the CLI and the HTTP server.
package execution

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/me/uthread/internal/dispatch"
	"github.com/me/uthread/internal/interrupt"
	"github.com/me/uthread/internal/store"
	"github.com/me/uthread/internal/workload"
	"github.com/me/uthread/pkg/model"
)

// Config holds engine configuration.
type Config struct {
	Logger       *slog.Logger
	Store        store.Store     // optional; required by Save
	Dispatch     dispatch.Config // base config; workload and overrides apply on top
	TickInterval time.Duration   // wall-clock preemption timer; 0 disables it
}

// Overrides replace scheduler settings after the workload's own.
type Overrides struct {
	Preemptive *bool
	Quantum    *int
}

// Engine executes workloads.
type Engine struct {
	logger *slog.Logger
	store  store.Store
	base   dispatch.Config
	tick   time.Duration
}

// NewEngine creates a new execution engine.
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	// An unset Dispatch takes every default; a partial one keeps its
	// fields and only gains the thread limit.
	base := cfg.Dispatch
	switch {
	case base == dispatch.Config{}:
		base = dispatch.DefaultConfig()
	case base.MaxThreads == 0:
		base.MaxThreads = dispatch.DefaultConfig().MaxThreads
	}
	return &Engine{
		logger: logger.With("component", "execution"),
		store:  cfg.Store,
		base:   base,
		tick:   cfg.TickInterval,
	}
}

// Result holds a finished run and its trace.
type Result struct {
	Run    *model.Run
	Events []model.Event
}

// Config returns the dispatcher configuration Execute would use for w.
func (e *Engine) Config(w *workload.Workload, ov Overrides) dispatch.Config {
	cfg := w.Apply(e.base)
	if ov.Preemptive != nil {
		cfg.Preemptive = *ov.Preemptive
	}
	if ov.Quantum != nil {
		cfg.Quantum = *ov.Quantum
	}
	return cfg
}

// Execute runs w to completion. A run that starts always yields a Result;
// its State records whether it completed, was cancelled, or failed. The
// returned error is non-nil only when the run could not start.
func (e *Engine) Execute(ctx context.Context, w *workload.Workload, ov Overrides) (*Result, error) {
	if len(w.Threads) == 0 {
		return nil, &ExecutionError{Phase: "config", Err: ErrNoThreads}
	}
	cfg := e.Config(w, ov)
	if err := cfg.Validate(); err != nil {
		return nil, &ExecutionError{Phase: "config", Err: err}
	}

	var opts []dispatch.Option
	var timer *interrupt.Timer
	if e.tick > 0 && cfg.Preemptive {
		timer = interrupt.NewTimer(e.tick, e.logger)
		timerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go timer.Start(timerCtx)
		defer timer.Stop()
		opts = append(opts, dispatch.WithSignal(timer))
	}

	d, err := dispatch.New(cfg, e.logger, opts...)
	if err != nil {
		return nil, &ExecutionError{Phase: "init", Err: err}
	}
	defer d.Close()

	if _, err := w.Spawn(d, workload.NewBuilder(e.logger)); err != nil {
		return nil, &ExecutionError{Phase: "spawn", Err: err}
	}

	run := &model.Run{
		ID:         "run_" + uuid.New().String(),
		Workload:   w.Name,
		Preemptive: cfg.Preemptive,
		Quantum:    cfg.Quantum,
		MaxThreads: cfg.MaxThreads,
		CreatedAt:  time.Now().UTC(),
	}

	start := time.Now()
	sum, runErr := d.Run(ctx)
	run.Duration = time.Since(start).String()
	run.Threads = sum.Threads
	run.Steps = sum.Steps
	run.Switches = sum.Switches
	run.Preemptions = sum.Preemptions
	run.Order = sum.Order

	switch {
	case runErr == nil:
		run.State = model.RunStateCompleted
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		run.State = model.RunStateCancelled
		run.Error = runErr.Error()
	default:
		run.State = model.RunStateFailed
		run.Error = runErr.Error()
	}

	if timer != nil {
		e.logger.Debug("preemption timer", "run_id", run.ID, "ticks", timer.Ticks())
	}
	e.logger.Info("run finished",
		"run_id", run.ID,
		"workload", run.Workload,
		"state", run.State,
		"steps", run.Steps,
		"duration", run.Duration,
	)
	return &Result{Run: run, Events: d.Events()}, nil
}

// Save persists a result's run and trace in one transaction.
func (e *Engine) Save(ctx context.Context, res *Result) error {
	if e.store == nil {
		return &ExecutionError{Phase: "persist", Err: errors.New("no store configured")}
	}
	if err := e.store.SaveRun(ctx, res.Run, res.Events); err != nil {
		return &ExecutionError{Phase: "persist", Err: err}
	}
	e.logger.Debug("run saved", "run_id", res.Run.ID, "events", len(res.Events))
	return nil
}
