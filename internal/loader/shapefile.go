// Package loader reads project input datasets: municipal boundary and point
// shapefiles, and tabular attribute files in CSV or XLSX form.
package loader

import (
	"math"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/aoyama-lab/proximity-cli/internal/model"
	"github.com/aoyama-lab/proximity-cli/internal/schema"
)

// LoadRegions reads a polygon shapefile into regions keyed by keyField. The
// returned column list describes the DBF attribute table for schema
// resolution. Records without usable polygon geometry are skipped.
func LoadRegions(path, keyField string) ([]model.Region, []schema.Column, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "loader: open boundary shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	columns := make([]schema.Column, 0, len(fields))
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		columns = append(columns, schema.Column{Name: name, Type: dbfColumnType(f.Fieldtype)})
		fieldIdx[strings.ToLower(name)] = i
	}

	keyIdx, ok := fieldIdx[strings.ToLower(keyField)]
	if !ok {
		return nil, columns, eris.Errorf("loader: key field %q not in %s", keyField, path)
	}

	var regions []model.Region
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		g := shapeToGeom(shape)
		if g == nil {
			skipped++
			continue
		}

		key := attributeValue(reader, keyIdx)
		if key == "" {
			skipped++
			continue
		}

		attrs := make(map[string]float64)
		for i, col := range columns {
			if col.Type != schema.TypeNumeric || i == keyIdx {
				continue
			}
			raw := attributeValue(reader, i)
			if raw == "" {
				continue
			}
			if v, perr := strconv.ParseFloat(raw, 64); perr == nil {
				attrs[col.Name] = v
			}
		}

		regions = append(regions, model.Region{
			ID:      key,
			Key:     key,
			Geom:    g,
			AreaKm2: geomArea(g) / 1e6,
			Attrs:   attrs,
		})
	}

	if skipped > 0 {
		zap.L().Warn("loader: skipped boundary records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	if len(regions) == 0 {
		return nil, columns, eris.Errorf("loader: no usable polygons in %s", path)
	}

	return regions, columns, nil
}

// LoadPoints reads a point shapefile. Records without point geometry are
// skipped; IDs are 1-based record numbers.
func LoadPoints(path string) ([]model.Point, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: open point shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	var points []model.Point
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		pt, ok := shape.(*shp.Point)
		if !ok || pt == nil {
			skipped++
			continue
		}
		points = append(points, model.Point{
			ID:    len(points) + 1,
			Coord: geom.Coord{pt.X, pt.Y},
		})
	}

	if skipped > 0 {
		zap.L().Warn("loader: skipped non-point records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return points, nil
}

// shapeToGeom converts a shapefile polygon to a go-geom MultiPolygon. Each
// part becomes its own outer ring; hole detection by ring winding is not
// attempted because municipal boundary sources ship holes as separate parts.
func shapeToGeom(shape shp.Shape) geom.T {
	p, ok := shape.(*shp.Polygon)
	if !ok || p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("loader: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("loader: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

func geomArea(g geom.T) float64 {
	switch t := g.(type) {
	case *geom.Polygon:
		return math.Abs(t.Area())
	case *geom.MultiPolygon:
		return math.Abs(t.Area())
	}
	return 0
}

func attributeValue(r *shp.Reader, idx int) string {
	return strings.TrimSpace(strings.TrimRight(r.Attribute(idx), "\x00"))
}

// dbfColumnType maps DBF field type codes onto resolver column types.
func dbfColumnType(code byte) schema.ColumnType {
	switch code {
	case 'N', 'F':
		return schema.TypeNumeric
	case 'C':
		return schema.TypeString
	case 'D':
		return schema.TypeDate
	case 'L':
		return schema.TypeLogical
	default:
		return schema.TypeOther
	}
}
