package batch

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aoyama-lab/proximity-cli/internal/model"
	"github.com/aoyama-lab/proximity-cli/internal/store"
)

// Orchestrator walks the discovered units sequentially, one at a time end to
// end. Each unit runs inside its own failure boundary: a failed or panicked
// unit is recorded and the batch moves to the next one.
type Orchestrator struct {
	pipeline Pipeline
	store    store.Store
}

// NewOrchestrator creates an orchestrator. A nil store disables run history.
func NewOrchestrator(pipeline Pipeline, st store.Store) *Orchestrator {
	return &Orchestrator{pipeline: pipeline, store: st}
}

// Result summarizes one batch invocation.
type Result struct {
	RunID     string
	Total     int
	Completed int
	Skipped   int
	Failed    int
	Units     []model.ProjectUnit
}

// AnyFailed reports whether the process exit status should be non-zero.
func (r *Result) AnyFailed() bool {
	return r.Failed > 0
}

// Run attempts every unit. Unit failures never abort the batch; the only
// errors returned here are batch-level (run-history bookkeeping at start).
func (o *Orchestrator) Run(ctx context.Context, units []model.ProjectUnit, mode, baseDir string) (*Result, error) {
	res := &Result{Total: len(units)}

	var runID string
	if o.store != nil {
		run, err := o.store.CreateRun(ctx, mode, baseDir)
		if err != nil {
			return nil, eris.Wrap(err, "batch: create run record")
		}
		runID = run.ID
		res.RunID = runID
	}

	for i := range units {
		unit := o.processUnit(ctx, units[i])
		res.Units = append(res.Units, unit)

		switch unit.Status {
		case model.UnitCompleted:
			res.Completed++
		case model.UnitSkipped:
			res.Skipped++
		case model.UnitFailed:
			res.Failed++
		}

		if o.store != nil {
			if err := o.store.RecordUnit(ctx, runID, unit); err != nil {
				zap.L().Warn("batch: unit record not persisted",
					zap.String("project", unit.Name), zap.Error(err))
			}
		}
	}

	if o.store != nil {
		if err := o.store.CompleteRun(ctx, runID, res.Completed, res.Skipped, res.Failed); err != nil {
			zap.L().Warn("batch: run record not finalized", zap.Error(err))
		}
	}

	zap.L().Info("batch: finished",
		zap.Int("total", res.Total),
		zap.Int("completed", res.Completed),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// processUnit drives one unit through the state machine. A missing input
// directory is absence, not failure: the unit is skipped with zero pipeline
// calls. Failed units keep their partial output workspace for inspection.
func (o *Orchestrator) processUnit(ctx context.Context, unit model.ProjectUnit) model.ProjectUnit {
	log := zap.L().With(zap.String("project", unit.Name))

	if info, err := os.Stat(unit.InputDir); err != nil || !info.IsDir() {
		unit.Status = model.UnitSkipped
		log.Info("batch: unit skipped, no input directory", zap.String("input_dir", unit.InputDir))
		return unit
	}
	unit.Status = model.UnitInputValidated

	if err := os.MkdirAll(unit.OutputDir, 0o755); err != nil {
		unit.Status = model.UnitFailed
		unit.Error = eris.ToString(eris.Wrapf(err, "batch: create output dir %s", unit.OutputDir), true)
		return unit
	}

	unit.Status = model.UnitProcessing
	unit.StartedAt = time.Now().UTC()

	err := o.runGuarded(ctx, unit)
	unit.FinishedAt = time.Now().UTC()

	if err != nil {
		unit.Status = model.UnitFailed
		unit.Error = eris.ToString(err, true)
		log.Error("batch: unit failed", zap.Error(err))
		return unit
	}

	unit.Status = model.UnitCompleted
	log.Info("batch: unit completed", zap.Duration("elapsed", unit.FinishedAt.Sub(unit.StartedAt)))
	return unit
}

// runGuarded is the per-unit failure boundary: a panic inside a stage is
// converted into this unit's error instead of taking down the batch.
func (o *Orchestrator) runGuarded(ctx context.Context, unit model.ProjectUnit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("batch: panic in unit %s: %v", unit.Name, r)
		}
	}()
	return o.pipeline.Run(ctx, unit)
}
