package stats

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat/distuv"
)

// TTester is the optional two-sample statistical-test capability. A nil
// TTester means the capability is unavailable and comparisons degrade to
// descriptive-only output.
type TTester interface {
	// TwoSample runs an unequal-variance two-sample test and returns the
	// test statistic and two-sided p-value.
	TwoSample(a, b []float64) (t, p float64, err error)
}

// WelchTTester implements TTester with Welch's unequal-variance t-test,
// taking the p-value from the Student's t distribution with
// Welch-Satterthwaite degrees of freedom.
type WelchTTester struct{}

// TwoSample implements TTester. Non-finite values are omitted before the
// test. Samples smaller than two values after omission, or with zero
// variance in both samples, cannot be tested.
func (WelchTTester) TwoSample(a, b []float64) (float64, float64, error) {
	a = DropNonFinite(a)
	b = DropNonFinite(b)
	if len(a) < 2 || len(b) < 2 {
		return 0, 0, eris.Errorf("stats: welch test needs at least 2 values per sample, got %d and %d", len(a), len(b))
	}

	na, nb := float64(len(a)), float64(len(b))
	va, vb := Variance(a), Variance(b)

	sea := va / na
	seb := vb / nb
	se := sea + seb
	if se == 0 {
		return 0, 0, eris.New("stats: welch test undefined for two zero-variance samples")
	}

	t := (Mean(a) - Mean(b)) / math.Sqrt(se)

	// Welch-Satterthwaite approximation.
	df := se * se / (sea*sea/(na-1) + seb*seb/(nb-1))

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * dist.CDF(-math.Abs(t))

	return t, p, nil
}
