package geoengine

import (
	"context"
	"math"
	"math/rand"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/aoyama-lab/proximity-cli/internal/model"
)

// maxRejectionAttempts bounds rejection sampling per generated point.
// Exhausting it means the constraining geometry is degenerate relative to
// its bounding box.
const maxRejectionAttempts = 100000

// PlanarEngine implements Engine with in-process geometry on go-geom types.
// The random source is seeded from configuration so control point sets are
// reproducible across reruns.
type PlanarEngine struct {
	metric Metric
	rng    *rand.Rand
}

// NewPlanarEngine creates an engine with the given distance metric and seed.
func NewPlanarEngine(metric Metric, seed int64) (*PlanarEngine, error) {
	if !metric.Valid() {
		return nil, eris.Errorf("geoengine: unknown metric %q", metric)
	}
	return &PlanarEngine{
		metric: metric,
		rng:    rand.New(rand.NewSource(seed)),
	}, nil
}

// RandomPoints generates exactly n points uniformly distributed within the
// union of the region polygons, by rejection sampling over the combined
// bounding box.
func (e *PlanarEngine) RandomPoints(ctx context.Context, regions []model.Region, n int) ([]model.Point, error) {
	if n <= 0 {
		return nil, eris.Errorf("geoengine: random point count must be positive, got %d", n)
	}
	if len(regions) == 0 {
		return nil, eris.New("geoengine: no constraining regions")
	}

	minX, minY, maxX, maxY, err := combinedBounds(regions)
	if err != nil {
		return nil, err
	}

	points := make([]model.Point, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "geoengine: random points cancelled")
		}

		placed := false
		for attempt := 0; attempt < maxRejectionAttempts; attempt++ {
			c := geom.Coord{
				minX + e.rng.Float64()*(maxX-minX),
				minY + e.rng.Float64()*(maxY-minY),
			}
			if containsAny(regions, c) {
				points = append(points, model.Point{ID: i + 1, Coord: c})
				placed = true
				break
			}
		}
		if !placed {
			return nil, eris.Errorf("geoengine: failed to place random point %d of %d; constraining geometry is degenerate", i+1, n)
		}
	}

	zap.L().Debug("geoengine: random points generated", zap.Int("count", len(points)))
	return points, nil
}

// NearTable finds the nearest reference point for every source point.
func (e *PlanarEngine) NearTable(ctx context.Context, src, ref []model.Point) ([]model.NearestNeighborObservation, error) {
	if len(ref) == 0 {
		return nil, eris.New("geoengine: near table needs a non-empty reference set")
	}

	obs := make([]model.NearestNeighborObservation, 0, len(src))
	for _, s := range src {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "geoengine: near table cancelled")
		}

		best := math.Inf(1)
		bestID := 0
		for _, r := range ref {
			d := e.metric.Distance(s.Coord, r.Coord)
			if d < best {
				best = d
				bestID = r.ID
			}
		}
		if math.IsNaN(best) || math.IsInf(best, 0) {
			// Undefined distance: excluded from the table, never zeroed.
			continue
		}
		obs = append(obs, model.NearestNeighborObservation{
			SourceID: s.ID,
			NearID:   bestID,
			Distance: best,
		})
	}
	return obs, nil
}

// Centroids returns one interior representative point per region. The
// area-weighted centroid is used when it falls inside the polygon; for
// concave shapes whose centroid falls outside, an interior point is found by
// scanning the bounding box.
func (e *PlanarEngine) Centroids(ctx context.Context, regions []model.Region) ([]model.Point, error) {
	points := make([]model.Point, 0, len(regions))
	for i, r := range regions {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "geoengine: centroids cancelled")
		}

		c, err := interiorPoint(r.Geom)
		if err != nil {
			return nil, eris.Wrapf(err, "geoengine: centroid for region %s", r.ID)
		}
		points = append(points, model.Point{ID: i + 1, Coord: c})
	}
	return points, nil
}

// CountWithin counts points per region polygon.
func (e *PlanarEngine) CountWithin(ctx context.Context, regions []model.Region, pts []model.Point) (map[string]int, error) {
	counts := make(map[string]int, len(regions))
	for _, r := range regions {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "geoengine: count within cancelled")
		}

		counts[r.ID] = 0
		for _, p := range pts {
			if contains(r.Geom, p.Coord) {
				counts[r.ID]++
			}
		}
	}
	return counts, nil
}

// combinedBounds returns the bounding box over all region geometries.
func combinedBounds(regions []model.Region) (minX, minY, maxX, maxY float64, err error) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)

	for _, r := range regions {
		if r.Geom == nil {
			continue
		}
		b := r.Geom.Bounds()
		minX = math.Min(minX, b.Min(0))
		minY = math.Min(minY, b.Min(1))
		maxX = math.Max(maxX, b.Max(0))
		maxY = math.Max(maxY, b.Max(1))
	}

	if math.IsInf(minX, 1) || maxX <= minX || maxY <= minY {
		return 0, 0, 0, 0, eris.New("geoengine: empty or degenerate region bounds")
	}
	return minX, minY, maxX, maxY, nil
}

// containsAny reports whether any region polygon contains the coordinate.
func containsAny(regions []model.Region, c geom.Coord) bool {
	for _, r := range regions {
		if contains(r.Geom, c) {
			return true
		}
	}
	return false
}

// contains reports point-in-polygon for Polygon and MultiPolygon geometries,
// honoring interior rings as holes.
func contains(g geom.T, c geom.Coord) bool {
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonContains(t, c)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if polygonContains(t.Polygon(i), c) {
				return true
			}
		}
	}
	return false
}

func polygonContains(p *geom.Polygon, c geom.Coord) bool {
	if p == nil || p.NumLinearRings() == 0 {
		return false
	}
	if !xy.IsPointInRing(p.Layout(), c, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.IsPointInRing(p.Layout(), c, p.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}

// interiorPoint returns the area-weighted centroid of the largest polygon,
// falling back to a bounding-box scan when the centroid lies outside.
func interiorPoint(g geom.T) (geom.Coord, error) {
	poly := largestPolygon(g)
	if poly == nil || poly.NumLinearRings() == 0 {
		return nil, eris.New("geoengine: geometry has no polygon rings")
	}

	c := ringCentroid(poly.LinearRing(0).FlatCoords(), poly.Stride())
	if contains(g, c) {
		return c, nil
	}

	// Centroid outside a concave polygon: scan a coarse grid of the
	// bounding box for any interior cell center.
	b := poly.Bounds()
	const steps = 32
	dx := (b.Max(0) - b.Min(0)) / steps
	dy := (b.Max(1) - b.Min(1)) / steps
	for iy := 0; iy < steps; iy++ {
		for ix := 0; ix < steps; ix++ {
			cand := geom.Coord{
				b.Min(0) + (float64(ix)+0.5)*dx,
				b.Min(1) + (float64(iy)+0.5)*dy,
			}
			if contains(g, cand) {
				return cand, nil
			}
		}
	}
	return nil, eris.New("geoengine: no interior point found")
}

func largestPolygon(g geom.T) *geom.Polygon {
	switch t := g.(type) {
	case *geom.Polygon:
		return t
	case *geom.MultiPolygon:
		var best *geom.Polygon
		bestArea := -1.0
		for i := 0; i < t.NumPolygons(); i++ {
			p := t.Polygon(i)
			if a := p.Area(); a > bestArea {
				bestArea = a
				best = p
			}
		}
		return best
	}
	return nil
}

// ringCentroid computes the area-weighted centroid of a closed ring via the
// shoelace formula, falling back to the vertex mean for zero-area rings.
func ringCentroid(flat []float64, stride int) geom.Coord {
	var areaSum, cx, cy float64
	n := len(flat) / stride
	for i := 0; i < n; i++ {
		x1, y1 := flat[i*stride], flat[i*stride+1]
		j := (i + 1) % n
		x2, y2 := flat[j*stride], flat[j*stride+1]
		cross := x1*y2 - x2*y1
		areaSum += cross
		cx += (x1 + x2) * cross
		cy += (y1 + y2) * cross
	}
	if areaSum == 0 {
		var sx, sy float64
		for i := 0; i < n; i++ {
			sx += flat[i*stride]
			sy += flat[i*stride+1]
		}
		return geom.Coord{sx / float64(n), sy / float64(n)}
	}
	return geom.Coord{cx / (3 * areaSum), cy / (3 * areaSum)}
}
