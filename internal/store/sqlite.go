package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/uthread/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)
	return insertRun(ctx, s.db, run)
}

// SaveRun stores a run and its trace in one transaction, so a run is never
// visible without its events.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.Run, events []model.Event) error {
	s.logger.Debug("sql", "op", "save", "id", run.ID, "events", len(events))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertRun(ctx, tx, run); err != nil {
		return err
	}
	if err := insertEvents(ctx, tx, run.ID, events); err != nil {
		return err
	}
	return tx.Commit()
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRun(ctx context.Context, ex execer, run *model.Run) error {
	orderJSON, err := json.Marshal(run.Order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	_, err = ex.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Workload, string(run.State), boolToInt(run.Preemptive), run.Quantum, run.MaxThreads,
		run.Threads, run.Steps, run.Switches, run.Preemptions, string(orderJSON), run.Error,
		run.CreatedAt.Format(time.RFC3339Nano), run.Duration,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

const runColumns = `id, workload, state, preemptive, quantum, max_threads, threads, steps, switches, preemptions, dispatch_order, error, created_at, duration`

// GetRun returns the run with the given id, or nil if there is none.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var whereClauses []string
	var countArgs []any
	if opts.State != "" {
		whereClauses = append(whereClauses, "state = ?")
		countArgs = append(countArgs, string(opts.State))
	}
	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`+whereSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT ` + runColumns + ` FROM runs` + whereSQL + ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	listArgs := append(countArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

// --- Events ---

// AppendEvents stores a run's trace in one transaction.
func (s *SQLiteStore) AppendEvents(ctx context.Context, runID string, events []model.Event) error {
	s.logger.Debug("sql", "op", "insert", "table", "events", "run_id", runID, "count", len(events))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertEvents(ctx, tx, runID, events); err != nil {
		return err
	}
	return tx.Commit()
}

func insertEvents(ctx context.Context, tx *sql.Tx, runID string, events []model.Event) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (run_id, seq, step, kind, tid, target, ready) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		readyJSON, err := json.Marshal(ev.Ready)
		if err != nil {
			return fmt.Errorf("marshal ready: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, runID, ev.Seq, ev.Step, string(ev.Kind), int(ev.Tid), int(ev.Target), string(readyJSON)); err != nil {
			return fmt.Errorf("insert event %d: %w", ev.Seq, err)
		}
	}
	return nil
}

// ListEvents returns a run's trace in sequence order.
func (s *SQLiteStore) ListEvents(ctx context.Context, runID string) ([]model.Event, error) {
	s.logger.Debug("sql", "op", "list", "table", "events", "run_id", runID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, step, kind, tid, target, ready FROM events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		var kind, readyJSON string
		var tid, target int
		if err := rows.Scan(&ev.Seq, &ev.Step, &kind, &tid, &target, &readyJSON); err != nil {
			return nil, err
		}
		ev.Kind = model.EventKind(kind)
		ev.Tid = model.Tid(tid)
		ev.Target = model.Tid(target)
		if err := json.Unmarshal([]byte(readyJSON), &ev.Ready); err != nil {
			return nil, fmt.Errorf("unmarshal ready: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*model.Run, error) {
	var run model.Run
	var state, orderJSON, createdAt string
	var preemptive int
	if err := sc.Scan(&run.ID, &run.Workload, &state, &preemptive, &run.Quantum, &run.MaxThreads,
		&run.Threads, &run.Steps, &run.Switches, &run.Preemptions, &orderJSON, &run.Error,
		&createdAt, &run.Duration); err != nil {
		return nil, err
	}
	run.State = model.RunState(state)
	run.Preemptive = preemptive != 0
	if err := json.Unmarshal([]byte(orderJSON), &run.Order); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*SQLiteStore)(nil)
