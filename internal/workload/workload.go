// Package workload reads YAML descriptions of a set of threads and turns
// them into dispatcher threads.
package workload

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dop251/goja"
	"github.com/me/uthread/internal/dispatch"
	"github.com/me/uthread/pkg/model"
	"gopkg.in/yaml.v3"
)

// Thread kinds.
const (
	KindSpin   = "spin"
	KindFib    = "fib"
	KindScript = "script"
)

// Workload is a named set of threads, created in file order.
type Workload struct {
	Name      string         `yaml:"name"`
	Scheduler *SchedulerSpec `yaml:"scheduler,omitempty"`
	Threads   []ThreadSpec   `yaml:"threads"`
}

// SchedulerSpec overrides dispatcher settings for one workload.
type SchedulerSpec struct {
	Preemptive *bool `yaml:"preemptive,omitempty"`
	Quantum    *int  `yaml:"quantum,omitempty"`
	MaxThreads *int  `yaml:"max_threads,omitempty"`
}

// ThreadSpec describes one thread.
type ThreadSpec struct {
	Name       string       `yaml:"name"`
	Kind       string       `yaml:"kind"`
	Steps      int          `yaml:"steps,omitempty"`       // spin, fib
	YieldEvery int          `yaml:"yield_every,omitempty"` // spin
	N          int          `yaml:"n,omitempty"`           // fib
	Script     string       `yaml:"script,omitempty"`      // script
	Children   []ThreadSpec `yaml:"children,omitempty"`    // spawned one per step before the body runs
}

// Load reads and parses a workload file.
func Load(path string) (*Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workload: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a workload document. A validation failure
// is returned as a *model.APIError listing every offending field.
func Parse(data []byte) (*Workload, error) {
	var w Workload
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}
	if apiErr := w.Validate(); apiErr != nil {
		return nil, apiErr
	}
	return &w, nil
}

// Validate checks the workload and returns nil or a validation error.
func (w *Workload) Validate() *model.APIError {
	var details []model.FieldError
	if strings.TrimSpace(w.Name) == "" {
		details = append(details, model.FieldError{Field: "name", Message: "required"})
	}
	if len(w.Threads) == 0 {
		details = append(details, model.FieldError{Field: "threads", Message: "at least one thread is required"})
	}
	if s := w.Scheduler; s != nil {
		if s.Quantum != nil && *s.Quantum < 0 {
			details = append(details, model.FieldError{Field: "scheduler.quantum", Message: "must be >= 0"})
		}
		if s.MaxThreads != nil && (*s.MaxThreads < 1 || *s.MaxThreads > model.MaxThreads) {
			details = append(details, model.FieldError{
				Field:   "scheduler.max_threads",
				Message: fmt.Sprintf("must be between 1 and %d", model.MaxThreads),
			})
		}
	}
	for i, t := range w.Threads {
		details = append(details, validateThread(fmt.Sprintf("threads[%d]", i), t)...)
	}
	if len(details) > 0 {
		return model.NewValidationError("invalid workload", details...)
	}
	return nil
}

func validateThread(path string, t ThreadSpec) []model.FieldError {
	var details []model.FieldError
	add := func(field, msg string) {
		details = append(details, model.FieldError{Field: path + "." + field, Message: msg})
	}
	if t.Name == "" {
		add("name", "required")
	}
	if t.Steps < 0 {
		add("steps", "must be >= 0")
	}
	switch t.Kind {
	case KindSpin:
		if t.YieldEvery < 0 {
			add("yield_every", "must be >= 0")
		}
	case KindFib:
		if t.N < 0 || t.N > maxFibN {
			add("n", fmt.Sprintf("must be between 0 and %d", maxFibN))
		}
	case KindScript:
		if strings.TrimSpace(t.Script) == "" {
			add("script", "required for script threads")
		} else if _, err := goja.Compile(t.Name, t.Script, false); err != nil {
			add("script", "does not compile: "+err.Error())
		}
	case "":
		add("kind", "required")
	default:
		add("kind", fmt.Sprintf("unknown kind %q (want spin, fib or script)", t.Kind))
	}
	for i, c := range t.Children {
		details = append(details, validateThread(fmt.Sprintf("%s.children[%d]", path, i), c)...)
	}
	return details
}

// Apply returns cfg with the workload's scheduler overrides applied.
func (w *Workload) Apply(cfg dispatch.Config) dispatch.Config {
	s := w.Scheduler
	if s == nil {
		return cfg
	}
	if s.Preemptive != nil {
		cfg.Preemptive = *s.Preemptive
	}
	if s.Quantum != nil {
		cfg.Quantum = *s.Quantum
	}
	if s.MaxThreads != nil {
		cfg.MaxThreads = *s.MaxThreads
	}
	return cfg
}

// Spawn creates every top-level thread in the dispatcher, in file order.
// It stops at the first failure, which wraps dispatch.ErrNoMore when the
// workload has more threads than the ready set can hold.
func (w *Workload) Spawn(d *dispatch.Dispatcher, b *Builder) ([]model.Tid, error) {
	tids := make([]model.Tid, 0, len(w.Threads))
	for i, spec := range w.Threads {
		body, err := b.Body(spec)
		if err != nil {
			return tids, fmt.Errorf("threads[%d] %s: %w", i, spec.Name, err)
		}
		tid, err := d.Create(spec.Name, body)
		if err != nil {
			if errors.Is(err, dispatch.ErrNoMore) {
				return tids, fmt.Errorf("threads[%d] %s: %w (limit %d)", i, spec.Name, err, d.Config().MaxThreads)
			}
			return tids, fmt.Errorf("threads[%d] %s: %w", i, spec.Name, err)
		}
		tids = append(tids, tid)
	}
	return tids, nil
}

// Count returns the number of threads the workload creates, children included.
func (w *Workload) Count() int {
	var count func([]ThreadSpec) int
	count = func(specs []ThreadSpec) int {
		n := len(specs)
		for _, s := range specs {
			n += count(s.Children)
		}
		return n
	}
	return count(w.Threads)
}
