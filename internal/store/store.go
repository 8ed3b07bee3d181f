package store

import (
	"context"

	"github.com/me/uthread/pkg/model"
)

// Store defines the persistence layer for scheduling runs and their traces.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error)

	// SaveRun stores a finished run together with its trace, atomically.
	SaveRun(ctx context.Context, run *model.Run, events []model.Event) error

	// Trace events
	AppendEvents(ctx context.Context, runID string, events []model.Event) error
	ListEvents(ctx context.Context, runID string) ([]model.Event, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
