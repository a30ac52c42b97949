package geoengine

import (
	"math"

	"github.com/golang/geo/s2"
	"github.com/twpayne/go-geom"
)

// EarthRadiusMeters is Earth's mean radius.
const EarthRadiusMeters = 6371000.0

// Metric selects the distance function consistent with the dataset's spatial
// reference: planar for projected coordinates, geodesic for lon/lat degrees.
type Metric string

const (
	MetricPlanar   Metric = "planar"
	MetricGeodesic Metric = "geodesic"
)

// Distance returns the distance between two coordinates. Geodesic input is
// interpreted as (lon, lat) degrees and measured on the sphere.
func (m Metric) Distance(a, b geom.Coord) float64 {
	if m == MetricGeodesic {
		p1 := s2.LatLngFromDegrees(a[1], a[0])
		p2 := s2.LatLngFromDegrees(b[1], b[0])
		return p1.Distance(p2).Radians() * EarthRadiusMeters
	}
	return math.Hypot(a[0]-b[0], a[1]-b[1])
}

// Valid reports whether the metric is one of the supported values.
func (m Metric) Valid() bool {
	return m == MetricPlanar || m == MetricGeodesic
}
