package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/aoyama-lab/proximity-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it in
// tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 5
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS batch_runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	mode        TEXT NOT NULL,
	base_dir    TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	completed   INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS batch_units (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id      TEXT NOT NULL REFERENCES batch_runs(id),
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT,
	workspace   TEXT,
	started_at  TIMESTAMPTZ,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_batch_runs_status ON batch_runs(status);
CREATE INDEX IF NOT EXISTS idx_batch_units_run_id ON batch_units(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, mode, baseDir string) (*BatchRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO batch_runs (id, mode, base_dir, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		id, mode, baseDir, "running", now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &BatchRun{
		ID:        id,
		Mode:      mode,
		BaseDir:   baseDir,
		Status:    "running",
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, completed, skipped, failed int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE batch_runs SET status = $1, completed = $2, skipped = $3, failed = $4, finished_at = $5 WHERE id = $6`,
		runStatus(failed), completed, skipped, failed, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*BatchRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, mode, base_dir, status, completed, skipped, failed, started_at, finished_at
		 FROM batch_runs WHERE id = $1`,
		runID,
	)

	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	return r, err
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]BatchRun, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, mode, base_dir, status, completed, skipped, failed, started_at, finished_at
		 FROM batch_runs ORDER BY started_at DESC LIMIT $1 OFFSET $2`,
		limit, filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []BatchRun
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) RecordUnit(ctx context.Context, runID string, unit model.ProjectUnit) error {
	if !unit.Status.Terminal() {
		return eris.Errorf("postgres: refusing to record non-terminal unit status %q", unit.Status)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO batch_units (id, run_id, name, status, error, workspace, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New().String(), runID, unit.Name, string(unit.Status), unit.Error, unit.OutputDir,
		nullTime(unit.StartedAt), nullTime(unit.FinishedAt),
	)
	return eris.Wrapf(err, "postgres: record unit %s", unit.Name)
}

func (s *PostgresStore) ListUnits(ctx context.Context, runID string) ([]UnitRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, name, status, error, workspace, started_at, finished_at
		 FROM batch_units WHERE run_id = $1 ORDER BY started_at`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list units for %s", runID)
	}
	defer rows.Close()

	var units []UnitRecord
	for rows.Next() {
		u, err := scanPgUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, *u)
	}
	return units, eris.Wrap(rows.Err(), "postgres: list units iterate")
}

func scanPgRun(row pgx.Row) (*BatchRun, error) {
	var r BatchRun
	var finished *time.Time

	err := row.Scan(&r.ID, &r.Mode, &r.BaseDir, &r.Status, &r.Completed, &r.Skipped, &r.Failed,
		&r.StartedAt, &finished)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan run")
	}
	if finished != nil {
		r.FinishedAt = *finished
	}
	return &r, nil
}

func scanPgUnit(row pgx.Row) (*UnitRecord, error) {
	var u UnitRecord
	var unitErr, workspace *string
	var started, finished *time.Time

	err := row.Scan(&u.ID, &u.RunID, &u.Name, &u.Status, &unitErr, &workspace, &started, &finished)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan unit")
	}
	if unitErr != nil {
		u.Error = *unitErr
	}
	if workspace != nil {
		u.Workspace = *workspace
	}
	if started != nil {
		u.StartedAt = *started
	}
	if finished != nil {
		u.FinishedAt = *finished
	}
	return &u, nil
}
