package geoengine

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aoyama-lab/proximity-cli/internal/model"
)

// significanceZ is the two-sided 5% threshold used to label cluster and
// hot-spot categories.
const significanceZ = 1.96

// LocalMorans computes the local Moran's I statistic (LISA) for each region
// over the given numeric field, using binary fixed-distance-band weights over
// region centroids, row-standardized. Z-scores use the standard randomization
// moments; regions without neighbors inside the band are reported as
// not significant with a zero score.
func (e *PlanarEngine) LocalMorans(ctx context.Context, regions []model.Region, values map[string]float64, bandMeters float64) ([]MoranScore, error) {
	n := len(regions)
	if n < 3 {
		return nil, eris.Errorf("geoengine: local morans needs at least 3 regions, got %d", n)
	}
	if bandMeters <= 0 {
		return nil, eris.New("geoengine: distance band must be positive")
	}

	centroids, err := e.Centroids(ctx, regions)
	if err != nil {
		return nil, err
	}

	x := make([]float64, n)
	for i, r := range regions {
		x[i] = values[r.ID]
	}

	mean := meanOf(x)
	dev := make([]float64, n)
	var m2, m4 float64
	for i, v := range x {
		d := v - mean
		dev[i] = d
		m2 += d * d
		m4 += d * d * d * d
	}
	m2 /= float64(n)
	m4 /= float64(n)
	if m2 == 0 {
		return nil, eris.New("geoengine: local morans undefined for a constant field")
	}
	b2 := m4 / (m2 * m2)

	neighbors := neighborLists(e.metric, centroids, bandMeters, false)

	scores := make([]MoranScore, 0, n)
	for i, r := range regions {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "geoengine: local morans cancelled")
		}

		nb := neighbors[i]
		if len(nb) == 0 {
			scores = append(scores, MoranScore{RegionID: r.ID, Category: ClusterNotSignificant})
			continue
		}

		// Row-standardized weights: each neighbor gets 1/len(nb).
		w := 1.0 / float64(len(nb))
		var lag float64
		for _, j := range nb {
			lag += w * dev[j]
		}
		localI := dev[i] / m2 * lag

		// Randomization moments (Anselin 1995) with row weights.
		wiSum := 1.0
		wi2Sum := w // sum of squared weights = len * (1/len)^2
		nf := float64(n)
		eI := -wiSum / (nf - 1)
		varI := wi2Sum*(nf-b2)/(nf-1) +
			(wiSum*wiSum-wi2Sum)*(2*b2-nf)/((nf-1)*(nf-2)) -
			eI*eI
		z := 0.0
		if varI > 0 {
			z = (localI - eI) / math.Sqrt(varI)
		}

		scores = append(scores, MoranScore{
			RegionID: r.ID,
			I:        localI,
			Z:        z,
			Category: moranCategory(z, dev[i], lag),
		})
	}

	zap.L().Debug("geoengine: local morans computed",
		zap.Int("regions", n),
		zap.Float64("band_m", bandMeters),
	)
	return scores, nil
}

// HotSpots computes the Getis-Ord Gi* statistic over per-region counts with
// binary fixed-distance-band weights that include each region itself.
func (e *PlanarEngine) HotSpots(ctx context.Context, regions []model.Region, counts map[string]int, bandMeters float64) ([]HotSpotScore, error) {
	n := len(regions)
	if n < 3 {
		return nil, eris.Errorf("geoengine: hot spots need at least 3 regions, got %d", n)
	}
	if bandMeters <= 0 {
		return nil, eris.New("geoengine: distance band must be positive")
	}

	centroids, err := e.Centroids(ctx, regions)
	if err != nil {
		return nil, err
	}

	x := make([]float64, n)
	for i, r := range regions {
		x[i] = float64(counts[r.ID])
	}

	mean := meanOf(x)
	var sumSq float64
	for _, v := range x {
		sumSq += v * v
	}
	nf := float64(n)
	s := math.Sqrt(sumSq/nf - mean*mean)
	if s == 0 {
		return nil, eris.New("geoengine: hot spots undefined for a constant count field")
	}

	neighbors := neighborLists(e.metric, centroids, bandMeters, true)

	scores := make([]HotSpotScore, 0, n)
	for i, r := range regions {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "geoengine: hot spots cancelled")
		}

		nb := neighbors[i]
		wSum := float64(len(nb))
		var localSum float64
		for _, j := range nb {
			localSum += x[j]
		}

		denom := s * math.Sqrt((nf*wSum-wSum*wSum)/(nf-1))
		z := 0.0
		if denom > 0 {
			z = (localSum - mean*wSum) / denom
		}

		category := "ns"
		switch {
		case z >= significanceZ:
			category = "hot"
		case z <= -significanceZ:
			category = "cold"
		}

		scores = append(scores, HotSpotScore{
			RegionID: r.ID,
			Count:    counts[r.ID],
			Z:        z,
			Category: category,
		})
	}

	return scores, nil
}

// neighborLists returns, for each centroid, the indices of centroids within
// the band. includeSelf controls the Gi* "star" convention.
func neighborLists(metric Metric, centroids []model.Point, band float64, includeSelf bool) [][]int {
	n := len(centroids)
	lists := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j && !includeSelf {
				continue
			}
			if i == j || metric.Distance(centroids[i].Coord, centroids[j].Coord) <= band {
				lists[i] = append(lists[i], j)
			}
		}
	}
	return lists
}

func moranCategory(z, dev, lag float64) ClusterCategory {
	if math.Abs(z) < significanceZ {
		return ClusterNotSignificant
	}
	switch {
	case dev >= 0 && lag >= 0:
		return ClusterHighHigh
	case dev < 0 && lag < 0:
		return ClusterLowLow
	case dev >= 0 && lag < 0:
		return ClusterHighLow
	default:
		return ClusterLowHigh
	}
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
