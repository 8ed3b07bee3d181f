package interrupt

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Timer delivers preemption signals at a fixed interval. A signal is a
// pending flag: it stays raised until the dispatcher acknowledges it, and
// signals that arrive while one is pending coalesce.
type Timer struct {
	interval time.Duration
	logger   *slog.Logger
	pending  atomic.Bool
	ticks    atomic.Int64
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewTimer creates a Timer firing every interval.
func NewTimer(interval time.Duration, logger *slog.Logger) *Timer {
	return &Timer{
		interval: interval,
		logger:   logger.With("component", "timer"),
		stopCh:   make(chan struct{}),
	}
}

// Start delivers signals until ctx is cancelled or Stop is called.
func (t *Timer) Start(ctx context.Context) error {
	t.logger.Debug("preemption timer started", "interval", t.interval)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Debug("preemption timer stopping (context cancelled)", "ticks", t.Ticks())
			return ctx.Err()
		case <-t.stopCh:
			t.logger.Debug("preemption timer stopping (stop called)", "ticks", t.Ticks())
			return nil
		case <-ticker.C:
			t.Fire()
		}
	}
}

// Stop ends Start. It is safe to call more than once.
func (t *Timer) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

// Fire raises the preemption signal immediately.
func (t *Timer) Fire() {
	t.ticks.Add(1)
	t.pending.Store(true)
}

// Pending reports whether a signal is waiting to be handled.
func (t *Timer) Pending() bool {
	return t.pending.Load()
}

// Ack clears the pending signal and reports whether one was raised.
func (t *Timer) Ack() bool {
	return t.pending.Swap(false)
}

// Ticks returns the number of signals delivered so far.
func (t *Timer) Ticks() int64 {
	return t.ticks.Load()
}
