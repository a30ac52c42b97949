// Package stats provides the descriptive statistics and the two-sample test
// used by the comparison stage.
package stats

import (
	"math"
	"sort"

	"github.com/aoyama-lab/proximity-cli/internal/model"
)

// Mean returns the arithmetic mean, or 0 for an empty sample.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Median returns the middle value, averaging the two central values for even
// sample sizes. The input is not modified.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// Variance returns the sample variance (n-1 denominator), or 0 when fewer
// than two values are present.
func Variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return sumSq / float64(len(values)-1)
}

// StdDev returns the sample standard deviation (n-1 denominator).
func StdDev(values []float64) float64 {
	return math.Sqrt(Variance(values))
}

// Describe summarizes one sample.
func Describe(values []float64) model.Summary {
	return model.Summary{
		N:      len(values),
		Mean:   Mean(values),
		Median: Median(values),
		StdDev: StdDev(values),
	}
}

// Percentile returns the p-th percentile (0-100) using linear interpolation
// between closest ranks. The input is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	q := p / 100.0
	index := q * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))

	if lower == upper {
		return sorted[lower]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// DropNonFinite returns a copy of the sample with NaN and infinite values
// omitted.
func DropNonFinite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}
