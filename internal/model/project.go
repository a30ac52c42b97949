package model

import "time"

// UnitStatus tracks a project unit through the batch state machine.
type UnitStatus string

const (
	UnitDiscovered     UnitStatus = "discovered"
	UnitInputValidated UnitStatus = "input_validated"
	UnitProcessing     UnitStatus = "processing"
	UnitCompleted      UnitStatus = "completed"
	UnitSkipped        UnitStatus = "skipped_missing_input"
	UnitFailed         UnitStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s UnitStatus) Terminal() bool {
	switch s {
	case UnitCompleted, UnitSkipped, UnitFailed:
		return true
	}
	return false
}

// ProjectUnit is one independent batch item: a city dataset with its own
// input and output locations and an isolated execution outcome. A unit's
// failure never mutates another unit's state.
type ProjectUnit struct {
	Name      string
	Dir       string
	InputDir  string
	OutputDir string

	Status UnitStatus
	// Error holds the failure message with stack context for failed units.
	Error string

	StartedAt  time.Time
	FinishedAt time.Time
}

// DiversityScore is the per-region Simpson-style diversity result.
// SecondaryFraction stores the complement of the secondary-category split:
// the share of population outside that category. Rows with no usable total
// store zero for both values.
type DiversityScore struct {
	RegionID          string
	Key               string
	Diversity         float64
	SecondaryFraction float64
	// Sanitized marks values reset to zero by the post-hoc bad-input pass.
	Sanitized bool
}
