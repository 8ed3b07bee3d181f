package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all uthread tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id           TEXT PRIMARY KEY,
		workload     TEXT NOT NULL,
		state        TEXT NOT NULL,
		preemptive   INTEGER NOT NULL DEFAULT 0,
		quantum      INTEGER NOT NULL DEFAULT 0,
		max_threads  INTEGER NOT NULL,
		threads      INTEGER NOT NULL DEFAULT 0,
		steps        INTEGER NOT NULL DEFAULT 0,
		switches     INTEGER NOT NULL DEFAULT 0,
		preemptions  INTEGER NOT NULL DEFAULT 0,
		dispatch_order TEXT NOT NULL DEFAULT '[]',
		error        TEXT NOT NULL DEFAULT '',
		created_at   TEXT NOT NULL,
		duration     TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq     INTEGER NOT NULL,
		step    INTEGER NOT NULL,
		kind    TEXT NOT NULL,
		tid     INTEGER NOT NULL,
		target  INTEGER NOT NULL,
		ready   TEXT NOT NULL DEFAULT '[]',
		PRIMARY KEY (run_id, seq)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_events_kind ON events(run_id, kind)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
