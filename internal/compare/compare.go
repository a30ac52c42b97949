// Package compare runs the point-process comparison: observed facility
// locations against an equal-sized uniform control set, both measured by
// nearest-neighbor distance to a fixed reference point set.
package compare

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aoyama-lab/proximity-cli/internal/geoengine"
	"github.com/aoyama-lab/proximity-cli/internal/model"
	"github.com/aoyama-lab/proximity-cli/internal/stats"
)

// Comparator orchestrates control-set generation, distance measurement, and
// the optional significance test.
type Comparator struct {
	engine geoengine.Engine
	tester stats.TTester
}

// NewComparator creates a comparator. A nil tester means no statistical-test
// capability: results carry descriptive statistics only.
func NewComparator(engine geoengine.Engine, tester stats.TTester) *Comparator {
	return &Comparator{engine: engine, tester: tester}
}

// Compare measures nearest-neighbor distances for the observed set and a
// freshly generated control set of the same size, constrained to the study
// regions. The significance test is best-effort: a tester failure degrades
// the result to descriptive-only, it never fails the comparison.
func (c *Comparator) Compare(ctx context.Context, observed []model.Point, regions []model.Region, reference []model.Point, metricName, projectID string) (*model.ComparisonResult, error) {
	if len(observed) == 0 {
		return nil, eris.Wrap(&model.DataQualityError{
			Stage:  "compare",
			Reason: "observed point set is empty",
		}, "compare: "+projectID)
	}
	if len(reference) == 0 {
		return nil, eris.Wrap(&model.DataQualityError{
			Stage:  "compare",
			Reason: "reference point set is empty",
		}, "compare: "+projectID)
	}

	control, err := c.engine.RandomPoints(ctx, regions, len(observed))
	if err != nil {
		return nil, eris.Wrapf(err, "compare: control set for %s", projectID)
	}
	if len(control) != len(observed) {
		return nil, eris.Errorf("compare: engine returned %d control points for %d observed",
			len(control), len(observed))
	}

	observedDist, err := c.distances(ctx, observed, reference)
	if err != nil {
		return nil, eris.Wrapf(err, "compare: observed distances for %s", projectID)
	}
	controlDist, err := c.distances(ctx, control, reference)
	if err != nil {
		return nil, eris.Wrapf(err, "compare: control distances for %s", projectID)
	}

	result := &model.ComparisonResult{
		Metric:    metricName,
		ProjectID: projectID,
		Observed:  stats.Describe(observedDist),
		Control:   stats.Describe(controlDist),
	}

	if c.tester != nil {
		stat, p, terr := c.tester.TwoSample(observedDist, controlDist)
		if terr != nil {
			zap.L().Warn("compare: significance test unavailable, descriptive only",
				zap.String("project", projectID),
				zap.Error(terr),
			)
		} else {
			result.TStat = &stat
			result.PValue = &p
		}
	}

	zap.L().Info("compare: point process compared",
		zap.String("project", projectID),
		zap.Int("observed", result.Observed.N),
		zap.Int("control", result.Control.N),
		zap.Float64("observed_mean", result.Observed.Mean),
		zap.Float64("control_mean", result.Control.Mean),
	)
	return result, nil
}

func (c *Comparator) distances(ctx context.Context, src, ref []model.Point) ([]float64, error) {
	obs, err := c.engine.NearTable(ctx, src, ref)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(obs))
	for _, o := range obs {
		out = append(out, o.Distance)
	}
	return stats.DropNonFinite(out), nil
}
