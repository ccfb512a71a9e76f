// Package history journals push and pull runs in SQLite so operators can see
// what each sync did after the fact.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/forcesync/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_runs (
    id TEXT PRIMARY KEY,
    direction TEXT NOT NULL,
    started_at TEXT NOT NULL, -- RFC3339 UTC
    duration_ms INTEGER NOT NULL,
    items INTEGER NOT NULL,
    applied INTEGER NOT NULL,
    skipped INTEGER NOT NULL,
    conflicts INTEGER NOT NULL,
    failed INTEGER NOT NULL,
    job_id TEXT NOT NULL,
    status TEXT NOT NULL,
    error TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs(started_at);
`

type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
)

const (
	StatusOK             = "ok"
	StatusNothingChanged = "nothing-changed"
	StatusPartial        = "partial"
	StatusFailed         = "failed"
)

type Run struct {
	ID        string
	Direction Direction
	StartedAt time.Time
	Duration  time.Duration
	// Items counts the items sent by a push, or the entries reconciled by a pull.
	Items     int
	Applied   int
	Skipped   int
	Conflicts int
	Failed    int
	// JobID is the remote retrieve or deploy job.
	JobID  string
	Status string
	Error  string
}

func NewRun(direction Direction) *Run {
	return &Run{ID: uuid.NewString(), Direction: direction, StartedAt: time.Now()}
}

// Fail marks the run failed with err and returns err.
func (r *Run) Fail(err error) error {
	r.Status = StatusFailed
	if err != nil {
		r.Error = err.Error()
	}
	return err
}

type dbRun struct {
	ID         string `db:"id"`
	Direction  string `db:"direction"`
	StartedAt  string `db:"started_at"`
	DurationMS int64  `db:"duration_ms"`
	Items      int    `db:"items"`
	Applied    int    `db:"applied"`
	Skipped    int    `db:"skipped"`
	Conflicts  int    `db:"conflicts"`
	Failed     int    `db:"failed"`
	JobID      string `db:"job_id"`
	Status     string `db:"status"`
	Error      string `db:"error"`
}

func (r *dbRun) toRun() (*Run, error) {
	started, err := time.Parse(time.RFC3339Nano, r.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at of run %s: %w", r.ID, err)
	}
	return &Run{
		ID:        r.ID,
		Direction: Direction(r.Direction),
		StartedAt: started,
		Duration:  time.Duration(r.DurationMS) * time.Millisecond,
		Items:     r.Items,
		Applied:   r.Applied,
		Skipped:   r.Skipped,
		Conflicts: r.Conflicts,
		Failed:    r.Failed,
		JobID:     r.JobID,
		Status:    r.Status,
		Error:     r.Error,
	}, nil
}

type Journal struct {
	db     *sqlx.DB
	dbPath string
}

// Open opens or creates the journal at dbPath.
func Open(dbPath string) (*Journal, error) {
	conn, err := db.Open(db.WithPath(dbPath), db.WithMaxOpenConns(1), db.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return &Journal{db: conn, dbPath: dbPath}, nil
}

func (j *Journal) Close() error {
	if err := j.db.Close(); err != nil {
		slog.Error("history close", "error", err)
		return err
	}
	return nil
}

// Record stores run, assigning an ID when it has none.
func (j *Journal) Record(run *Run) error {
	if run == nil {
		return errors.New("history: nil run")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	row := dbRun{
		ID:         run.ID,
		Direction:  string(run.Direction),
		StartedAt:  run.StartedAt.UTC().Format(time.RFC3339Nano),
		DurationMS: run.Duration.Milliseconds(),
		Items:      run.Items,
		Applied:    run.Applied,
		Skipped:    run.Skipped,
		Conflicts:  run.Conflicts,
		Failed:     run.Failed,
		JobID:      run.JobID,
		Status:     run.Status,
		Error:      run.Error,
	}

	query := `INSERT OR REPLACE INTO sync_runs
	          (id, direction, started_at, duration_ms, items, applied, skipped, conflicts, failed, job_id, status, error)
	          VALUES (:id, :direction, :started_at, :duration_ms, :items, :applied, :skipped, :conflicts, :failed, :job_id, :status, :error)`
	if _, err := j.db.NamedExec(query, row); err != nil {
		return fmt.Errorf("history: record run %s: %w", run.ID, err)
	}
	slog.Debug("history recorded", "id", run.ID, "direction", run.Direction, "status", run.Status)
	return nil
}

// Get returns the run with id, or nil when there is none.
func (j *Journal) Get(id string) (*Run, error) {
	var row dbRun
	err := j.db.Get(&row, "SELECT * FROM sync_runs WHERE id = ?", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: get run %s: %w", id, err)
	}
	return row.toRun()
}

// Recent returns up to limit runs, newest first. A limit of zero or less returns all.
func (j *Journal) Recent(limit int) ([]*Run, error) {
	query := "SELECT * FROM sync_runs ORDER BY started_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var rows []dbRun
	if err := j.db.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}

	runs := make([]*Run, 0, len(rows))
	for _, row := range rows {
		run, err := row.toRun()
		if err != nil {
			slog.Warn("history skipping run", "id", row.ID, "error", err)
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (j *Journal) Count() (int, error) {
	var count int
	if err := j.db.Get(&count, "SELECT COUNT(*) FROM sync_runs"); err != nil {
		return 0, fmt.Errorf("history: count runs: %w", err)
	}
	return count, nil
}
