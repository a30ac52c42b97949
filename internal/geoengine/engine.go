// Package geoengine is the spatial-operations collaborator consumed by the
// analysis pipeline: constrained random point generation, nearest-neighbor
// distance tables, per-polygon point counts, and the spatial-clustering
// statistics (local Moran's I and Gi*).
//
// The pipeline depends only on the Engine interface; PlanarEngine is the
// default implementation for projected datasets.
package geoengine

import (
	"context"

	"github.com/aoyama-lab/proximity-cli/internal/model"
)

// ClusterCategory labels a region's local Moran's I outcome.
type ClusterCategory string

const (
	ClusterHighHigh       ClusterCategory = "HH"
	ClusterLowLow         ClusterCategory = "LL"
	ClusterHighLow        ClusterCategory = "HL"
	ClusterLowHigh        ClusterCategory = "LH"
	ClusterNotSignificant ClusterCategory = "ns"
)

// MoranScore is one region's local spatial-autocorrelation result.
type MoranScore struct {
	RegionID string
	I        float64
	Z        float64
	Category ClusterCategory
}

// HotSpotScore is one region's Gi* hot-spot result over a count field.
type HotSpotScore struct {
	RegionID string
	Count    int
	Z        float64
	// Category is "hot", "cold", or "ns".
	Category string
}

// Engine is the geometry/statistics collaborator contract. Every call takes
// typed geometry input and returns a new dataset or an error on malformed
// input; calls are synchronous and never retried by the caller.
type Engine interface {
	// RandomPoints generates exactly n points uniformly distributed within
	// the union of the region polygons.
	RandomPoints(ctx context.Context, regions []model.Region, n int) ([]model.Point, error)

	// NearTable returns, for every source point, the nearest reference
	// point and its distance. Undefined distances are excluded, not zeroed.
	NearTable(ctx context.Context, src, ref []model.Point) ([]model.NearestNeighborObservation, error)

	// Centroids returns one interior representative point per region, in
	// region order.
	Centroids(ctx context.Context, regions []model.Region) ([]model.Point, error)

	// CountWithin counts points per region polygon. Every region appears in
	// the result, zero counts included.
	CountWithin(ctx context.Context, regions []model.Region, pts []model.Point) (map[string]int, error)

	// LocalMorans computes local Moran's I (LISA) over a per-region numeric
	// field with fixed-distance-band spatial weights.
	LocalMorans(ctx context.Context, regions []model.Region, values map[string]float64, bandMeters float64) ([]MoranScore, error)

	// HotSpots computes Gi* over per-region counts with a fixed-distance
	// band that includes each region itself.
	HotSpots(ctx context.Context, regions []model.Region, counts map[string]int, bandMeters float64) ([]HotSpotScore, error)
}
