// Package store persists batch runs and per-unit outcomes so past batches can
// be inspected after the fact. Two backends exist: SQLite for local use and
// Postgres for shared deployments, selected by configuration.
package store

import (
	"context"
	"time"

	"github.com/aoyama-lab/proximity-cli/internal/model"
)

// BatchRun is one recorded batch invocation.
type BatchRun struct {
	ID      string
	Mode    string
	BaseDir string
	// Status is "running", then "completed" or "failed" (failed means at
	// least one unit failed, mirroring the process exit status).
	Status string

	Completed int
	Skipped   int
	Failed    int

	StartedAt  time.Time
	FinishedAt time.Time
}

// UnitRecord is one unit outcome within a run.
type UnitRecord struct {
	ID        string
	RunID     string
	Name      string
	Status    model.UnitStatus
	Error     string
	Workspace string

	StartedAt  time.Time
	FinishedAt time.Time
}

// RunFilter pages the run listing, newest first.
type RunFilter struct {
	Limit  int
	Offset int
}

// Store is the persistence contract for batch history.
type Store interface {
	CreateRun(ctx context.Context, mode, baseDir string) (*BatchRun, error)
	CompleteRun(ctx context.Context, runID string, completed, skipped, failed int) error
	GetRun(ctx context.Context, runID string) (*BatchRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]BatchRun, error)

	RecordUnit(ctx context.Context, runID string, unit model.ProjectUnit) error
	ListUnits(ctx context.Context, runID string) ([]UnitRecord, error)

	Migrate(ctx context.Context) error
	Close() error
}

// runStatus derives the terminal run status from the failure count.
func runStatus(failed int) string {
	if failed > 0 {
		return "failed"
	}
	return "completed"
}
