package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/aoyama-lab/proximity-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS batch_runs (
	id          TEXT PRIMARY KEY,
	mode        TEXT NOT NULL,
	base_dir    TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	completed   INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS batch_units (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES batch_runs(id),
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT,
	workspace   TEXT,
	started_at  DATETIME,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_batch_runs_status ON batch_runs(status);
CREATE INDEX IF NOT EXISTS idx_batch_units_run_id ON batch_units(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, mode, baseDir string) (*BatchRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batch_runs (id, mode, base_dir, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, mode, baseDir, "running", now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &BatchRun{
		ID:        id,
		Mode:      mode,
		BaseDir:   baseDir,
		Status:    "running",
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, completed, skipped, failed int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE batch_runs SET status = ?, completed = ?, skipped = ?, failed = ?, finished_at = ? WHERE id = ?`,
		runStatus(failed), completed, skipped, failed, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*BatchRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, mode, base_dir, status, completed, skipped, failed, started_at, finished_at
		 FROM batch_runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]BatchRun, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, mode, base_dir, status, completed, skipped, failed, started_at, finished_at
		 FROM batch_runs ORDER BY started_at DESC LIMIT ?`
	args := []any{limit}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []BatchRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) RecordUnit(ctx context.Context, runID string, unit model.ProjectUnit) error {
	if !unit.Status.Terminal() {
		return eris.Errorf("sqlite: refusing to record non-terminal unit status %q", unit.Status)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batch_units (id, run_id, name, status, error, workspace, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), runID, unit.Name, string(unit.Status), unit.Error, unit.OutputDir,
		nullTime(unit.StartedAt), nullTime(unit.FinishedAt),
	)
	return eris.Wrapf(err, "sqlite: record unit %s", unit.Name)
}

func (s *SQLiteStore) ListUnits(ctx context.Context, runID string) ([]UnitRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, name, status, error, workspace, started_at, finished_at
		 FROM batch_units WHERE run_id = ? ORDER BY started_at`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list units for %s", runID)
	}
	defer rows.Close()

	var units []UnitRecord
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, *u)
	}
	return units, eris.Wrap(rows.Err(), "sqlite: list units iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*BatchRun, error) {
	var r BatchRun
	var finished sql.NullTime

	err := row.Scan(&r.ID, &r.Mode, &r.BaseDir, &r.Status, &r.Completed, &r.Skipped, &r.Failed,
		&r.StartedAt, &finished)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if finished.Valid {
		r.FinishedAt = finished.Time
	}
	return &r, nil
}

func scanUnit(row scannable) (*UnitRecord, error) {
	var u UnitRecord
	var unitErr, workspace sql.NullString
	var started, finished sql.NullTime

	err := row.Scan(&u.ID, &u.RunID, &u.Name, &u.Status, &unitErr, &workspace, &started, &finished)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan unit")
	}
	u.Error = unitErr.String
	u.Workspace = workspace.String
	if started.Valid {
		u.StartedAt = started.Time
	}
	if finished.Valid {
		u.FinishedAt = finished.Time
	}
	return &u, nil
}
