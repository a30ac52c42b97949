// Package model holds the domain types shared across the analysis pipeline.
package model

import (
	"github.com/twpayne/go-geom"
)

// Region is a polygon unit of spatial aggregation (a ward, tract, or
// municipality) with its joined numeric attributes.
type Region struct {
	// ID is stable within a dataset (shapefile record number as a string
	// unless the source carries its own identifier).
	ID string

	// Key is the join key value (e.g. an administrative code) used to
	// attach external tabular attributes.
	Key string

	// Geom is the region polygon. Either *geom.Polygon or *geom.MultiPolygon.
	Geom geom.T

	// AreaKm2 is the polygon area in square kilometers, computed from the
	// geometry in the dataset's projected coordinate system.
	AreaKm2 float64

	// Attrs holds numeric attributes, both native to the boundary dataset
	// and joined from external tables. Missing attributes are absent from
	// the map, never stored as zero.
	Attrs map[string]float64

	// Rate is the derived density or percentage sample. Zero until a
	// surface build assigns it.
	Rate float64
}

// Clone returns a deep copy of the region. Geometry is shared (treated as
// immutable); the attribute map is copied.
func (r *Region) Clone() Region {
	attrs := make(map[string]float64, len(r.Attrs))
	for k, v := range r.Attrs {
		attrs[k] = v
	}
	out := *r
	out.Attrs = attrs
	return out
}

// Point is a single point feature with a dataset-local identifier.
type Point struct {
	ID    int
	Coord geom.Coord
}
