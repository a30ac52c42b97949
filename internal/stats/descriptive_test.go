package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMean(t *testing.T) {
	assert.InDelta(t, 2.5, Mean([]float64{1, 2, 3, 4}), 1e-12)
	assert.Zero(t, Mean(nil))
}

func TestMedian(t *testing.T) {
	assert.InDelta(t, 3, Median([]float64{5, 1, 3}), 1e-12)
	assert.InDelta(t, 2.5, Median([]float64{4, 1, 2, 3}), 1e-12)
	assert.Zero(t, Median(nil))

	// Input order preserved.
	in := []float64{5, 1, 3}
	Median(in)
	assert.Equal(t, []float64{5, 1, 3}, in)
}

func TestStdDevSampleDenominator(t *testing.T) {
	// Variance of {2,4,4,4,5,5,7,9} with n-1 is 32/7.
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, math.Sqrt(32.0/7.0), StdDev(values), 1e-12)
	assert.Zero(t, StdDev([]float64{3}))
}

func TestPercentileInterpolation(t *testing.T) {
	values := []float64{10, 20, 30, 40, 50}

	assert.InDelta(t, 10, Percentile(values, 0), 1e-12)
	assert.InDelta(t, 50, Percentile(values, 100), 1e-12)
	assert.InDelta(t, 30, Percentile(values, 50), 1e-12)
	// index = 0.99 * 4 = 3.96 -> between 40 and 50.
	assert.InDelta(t, 49.6, Percentile(values, 99), 1e-12)
}

func TestPercentileClampsRange(t *testing.T) {
	values := []float64{1, 2}
	assert.InDelta(t, 1, Percentile(values, -5), 1e-12)
	assert.InDelta(t, 2, Percentile(values, 150), 1e-12)
	assert.Zero(t, Percentile(nil, 50))
}

func TestDescribe(t *testing.T) {
	s := Describe([]float64{1, 2, 3})
	assert.Equal(t, 3, s.N)
	assert.InDelta(t, 2, s.Mean, 1e-12)
	assert.InDelta(t, 2, s.Median, 1e-12)
	assert.InDelta(t, 1, s.StdDev, 1e-12)
}

func TestDropNonFinite(t *testing.T) {
	in := []float64{1, math.NaN(), 2, math.Inf(1), math.Inf(-1), 3}
	assert.Equal(t, []float64{1, 2, 3}, DropNonFinite(in))
}

func TestWelchEqualSamples(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	b := []float64{1, 2, 3, 4, 5}

	stat, p, err := WelchTTester{}.TwoSample(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 0, stat, 1e-12)
	assert.InDelta(t, 1, p, 1e-9)
}

func TestWelchKnownStatistic(t *testing.T) {
	// Hand-computed: means 3 and 7, variances 2.5 and 2.5, n=5 each:
	// t = (3-7)/sqrt(0.5+0.5) = -4.
	a := []float64{1, 2, 3, 4, 5}
	b := []float64{5, 6, 7, 8, 9}

	stat, p, err := WelchTTester{}.TwoSample(a, b)
	require.NoError(t, err)
	assert.InDelta(t, -4, stat, 1e-9)
	assert.Greater(t, p, 0.0)
	assert.Less(t, p, 0.01)
}

func TestWelchOmitsNonFinite(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5, math.NaN()}
	b := []float64{5, 6, 7, 8, 9, math.Inf(1)}

	stat, _, err := WelchTTester{}.TwoSample(a, b)
	require.NoError(t, err)
	assert.InDelta(t, -4, stat, 1e-9)
}

func TestWelchRejectsTinySamples(t *testing.T) {
	_, _, err := WelchTTester{}.TwoSample([]float64{1}, []float64{2, 3})
	assert.Error(t, err)
}

func TestWelchRejectsZeroVariance(t *testing.T) {
	_, _, err := WelchTTester{}.TwoSample([]float64{2, 2, 2}, []float64{2, 2, 2})
	assert.Error(t, err)
}
