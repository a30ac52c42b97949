// Package surface joins tabular attributes onto regions and derives the
// per-region rate field used by the comparison and clustering stages.
package surface

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aoyama-lab/proximity-cli/internal/loader"
	"github.com/aoyama-lab/proximity-cli/internal/model"
	"github.com/aoyama-lab/proximity-cli/internal/stats"
)

// Mode selects how the rate is derived.
type Mode string

const (
	// ModeDensity divides the joined numerator by the region's own area in
	// km². The denominator is never externally supplied.
	ModeDensity Mode = "density"
	// ModePercentage computes the subgroup share of a joined total, scaled
	// to percent.
	ModePercentage Mode = "percentage"
)

// Valid reports whether the mode is one of the supported values.
func (m Mode) Valid() bool {
	return m == ModeDensity || m == ModePercentage
}

// Params configures a surface build.
type Params struct {
	Mode Mode

	// NumeratorRole and DenominatorRole name the resolved binding roles.
	// DenominatorRole is ignored in density mode, where the region's own
	// area is the denominator.
	NumeratorRole   string
	DenominatorRole string

	// CapPercentile is the clamp percentile over the joined rates.
	// Zero means the default 99.
	CapPercentile float64

	// EpsilonFloor guards the division against a zero denominator the
	// region itself reports. Zero means the default 1e-9.
	EpsilonFloor float64

	// Cap, when positive, overrides the computed percentile cap.
	Cap float64
}

func (p Params) withDefaults() Params {
	if p.CapPercentile <= 0 {
		p.CapPercentile = 99
	}
	if p.EpsilonFloor <= 0 {
		p.EpsilonFloor = 1e-9
	}
	return p
}

// Result is the derived surface: clones of the surviving regions with Rate
// assigned, plus the applied cap and the join/cleaning counts.
type Result struct {
	Regions   []model.Region
	Cap       float64
	Dropped   int
	Unmatched int
}

type joinedRegion struct {
	region model.Region
	num    float64
	denom  float64
	rate   float64
	valid  bool
}

// Build joins the attribute table onto the regions by key, derives each
// region's rate, clamps rates above the cap percentile, and drops regions
// with missing or non-positive inputs. The input slices are never mutated.
func Build(regions []model.Region, table *loader.Table, joinKey string, binding model.FieldBinding, params Params) (*Result, error) {
	p := params.withDefaults()
	if !p.Mode.Valid() {
		return nil, eris.Errorf("surface: unknown mode %q", p.Mode)
	}
	if !binding.Has(p.NumeratorRole) {
		return nil, eris.Errorf("surface: binding lacks numerator role %q", p.NumeratorRole)
	}
	if p.Mode == ModePercentage && !binding.Has(p.DenominatorRole) {
		return nil, eris.Errorf("surface: binding lacks denominator role %q", p.DenominatorRole)
	}

	byKey := make(map[string]map[string]string, len(table.Rows))
	for _, row := range table.Rows {
		key := strings.TrimSpace(row[joinKey])
		if key == "" {
			continue
		}
		if _, dup := byKey[key]; !dup {
			byKey[key] = row
		}
	}

	numCol := binding.Column(p.NumeratorRole)
	denomCol := binding.Column(p.DenominatorRole)

	joined := make([]joinedRegion, 0, len(regions))
	unmatched := 0
	for i := range regions {
		row, ok := byKey[regions[i].Key]
		if !ok {
			unmatched++
			continue
		}

		clone := regions[i].Clone()
		num, numOK := table.Numeric(row, numCol)
		if numOK {
			clone.Attrs[numCol] = num
		}

		var denom float64
		denomOK := true
		switch p.Mode {
		case ModeDensity:
			denom = clone.AreaKm2
		case ModePercentage:
			denom, denomOK = table.Numeric(row, denomCol)
			if denomOK {
				clone.Attrs[denomCol] = denom
			}
		}

		rate := math.NaN()
		if numOK && denomOK {
			rate = num / math.Max(denom, p.EpsilonFloor)
			if p.Mode == ModePercentage {
				rate *= 100
			}
		}

		joined = append(joined, joinedRegion{
			region: clone,
			num:    num,
			denom:  denom,
			rate:   rate,
			valid:  numOK && denomOK,
		})
	}

	capValue := p.Cap
	if capValue <= 0 {
		rates := make([]float64, 0, len(joined))
		for _, j := range joined {
			if j.valid && !math.IsNaN(j.rate) && !math.IsInf(j.rate, 0) {
				rates = append(rates, j.rate)
			}
		}
		capValue = stats.Percentile(rates, p.CapPercentile)
	}

	out := make([]model.Region, 0, len(joined))
	dropped := 0
	for _, j := range joined {
		if !j.valid || j.num <= 0 || j.denom <= 0 || j.region.AreaKm2 <= 0 ||
			math.IsNaN(j.rate) || math.IsInf(j.rate, 0) || j.rate <= 0 {
			dropped++
			continue
		}

		r := j.region
		r.Rate = math.Min(j.rate, capValue)
		out = append(out, r)
	}

	if len(out) == 0 {
		return nil, eris.Wrap(&model.DataQualityError{
			Stage:  "surface",
			Reason: "no regions survived join and cleaning",
		}, "surface: build")
	}

	zap.L().Info("surface: rate field built",
		zap.String("mode", string(p.Mode)),
		zap.Int("regions", len(out)),
		zap.Int("dropped", dropped),
		zap.Int("unmatched", unmatched),
		zap.Float64("cap", capValue),
	)

	return &Result{Regions: out, Cap: capValue, Dropped: dropped, Unmatched: unmatched}, nil
}
