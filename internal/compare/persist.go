package compare

import (
	"os"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/aoyama-lab/proximity-cli/internal/model"
)

// resultRecord is the persisted row shape. Nil test fields marshal as empty
// cells.
type resultRecord struct {
	Metric         string   `csv:"metric"`
	ObservedMean   float64  `csv:"observed_mean"`
	ControlMean    float64  `csv:"control_mean"`
	ObservedMedian float64  `csv:"observed_median"`
	ControlMedian  float64  `csv:"control_median"`
	ObservedStd    float64  `csv:"observed_std"`
	ControlStd     float64  `csv:"control_std"`
	TStat          *float64 `csv:"t_stat"`
	PValue         *float64 `csv:"p_value"`
	ProjectID      string   `csv:"project_id"`
}

// WriteResult persists one comparison as a single-row CSV with a header.
// Reruns overwrite; the file never accumulates rows.
func WriteResult(path string, res *model.ComparisonResult) error {
	data, err := csvutil.Marshal([]resultRecord{{
		Metric:         res.Metric,
		ObservedMean:   res.Observed.Mean,
		ControlMean:    res.Control.Mean,
		ObservedMedian: res.Observed.Median,
		ControlMedian:  res.Control.Median,
		ObservedStd:    res.Observed.StdDev,
		ControlStd:     res.Control.StdDev,
		TStat:          res.TStat,
		PValue:         res.PValue,
		ProjectID:      res.ProjectID,
	}})
	if err != nil {
		return eris.Wrap(err, "compare: marshal result")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "compare: write result %s", path)
	}
	return nil
}
