// Package diversity computes a Simpson-style diversity index per region from
// subgroup population fractions, with a post-hoc sanitize pass for known
// bad-input signatures.
package diversity

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aoyama-lab/proximity-cli/internal/loader"
	"github.com/aoyama-lab/proximity-cli/internal/model"
)

// Params configures an index computation.
type Params struct {
	// TotalRole binds the total population column P.
	TotalRole string
	// SubgroupRoles bind the k subgroup population columns.
	SubgroupRoles []string
	// SecondaryRole binds the secondary-category population; its fraction
	// of P forms the binary category split. Empty means no split (the
	// category component degenerates to 1).
	SecondaryRole string
	// SanitizeThreshold resets any diversity at or above it to zero in the
	// second pass. Zero means the default 0.999.
	SanitizeThreshold float64
}

func (p Params) withDefaults() Params {
	if p.SanitizeThreshold <= 0 {
		p.SanitizeThreshold = 0.999
	}
	return p
}

// Compute derives one score per table row, keyed by keyCol. The work is two
// passes over the row set: the index formula first, then the sanitize pass.
// Missing or unparseable population cells contribute zero, never an error;
// rows with P <= 0 score (0, 0) by policy.
func Compute(table *loader.Table, keyCol string, binding model.FieldBinding, params Params) ([]model.DiversityScore, error) {
	p := params.withDefaults()
	if !binding.Has(p.TotalRole) {
		return nil, eris.Errorf("diversity: binding lacks total role %q", p.TotalRole)
	}
	if len(p.SubgroupRoles) == 0 {
		return nil, eris.New("diversity: no subgroup roles configured")
	}
	for _, role := range p.SubgroupRoles {
		if !binding.Has(role) {
			return nil, eris.Errorf("diversity: binding lacks subgroup role %q", role)
		}
	}
	if p.SecondaryRole != "" && !binding.Has(p.SecondaryRole) {
		return nil, eris.Errorf("diversity: binding lacks secondary role %q", p.SecondaryRole)
	}

	totalCol := binding.Column(p.TotalRole)
	secondaryCol := binding.Column(p.SecondaryRole)

	// First pass: the raw index.
	scores := make([]model.DiversityScore, 0, len(table.Rows))
	for _, row := range table.Rows {
		key := strings.TrimSpace(row[keyCol])
		if key == "" {
			continue
		}

		score := model.DiversityScore{RegionID: key, Key: key}
		total, ok := table.Numeric(row, totalCol)
		if ok && total > 0 {
			var raceComponent float64
			for _, role := range p.SubgroupRoles {
				s, _ := table.Numeric(row, binding.Column(role))
				frac := s / total
				raceComponent += frac * frac
			}

			var h float64
			if p.SecondaryRole != "" {
				if sec, secOK := table.Numeric(row, secondaryCol); secOK {
					h = sec / total
				}
			}
			categoryComponent := h*h + (1-h)*(1-h)

			score.Diversity = 1 - raceComponent*categoryComponent
			// The persisted fraction is the complement: the share of
			// population outside the secondary category.
			score.SecondaryFraction = 1 - h
		}
		scores = append(scores, score)
	}

	if len(scores) == 0 {
		return nil, eris.Wrap(&model.DataQualityError{
			Stage:  "diversity",
			Reason: "no keyed rows in attribute table",
		}, "diversity: compute")
	}

	// Second pass: values at or above the threshold are artifacts of
	// malformed rows and reset to zero.
	sanitized := 0
	for i := range scores {
		if scores[i].Diversity >= p.SanitizeThreshold {
			scores[i].Diversity = 0
			scores[i].Sanitized = true
			sanitized++
		}
	}

	zap.L().Info("diversity: index computed",
		zap.Int("rows", len(scores)),
		zap.Int("sanitized", sanitized),
	)
	return scores, nil
}
