package utils

import (
	"fmt"
	"os"
	"strings"

	"github.com/bsaid97/go-geoprocessing/feature"
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/spf13/cast"
)

// ReadShapefile loads a shapefile into an in-memory source. Record numbers
// become feature ids. The .prj contents, when present, become the source CRS.
func ReadShapefile(path string, primaryKeys ...string) (*feature.MemorySource, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open shapefile: %w", err)
	}
	defer reader.Close()

	pk := make(map[string]bool, len(primaryKeys))
	for _, k := range primaryKeys {
		pk[k] = true
	}

	shpFields := reader.Fields()
	fields := make(feature.Fields, len(shpFields))
	for i, f := range shpFields {
		name := f.String()
		fields[i] = feature.Field{Name: name, Type: dbfFieldType(f), PrimaryKey: pk[name]}
	}

	src := feature.NewMemorySource(path, fields, readProjection(path))
	for reader.Next() {
		n, shape := reader.Shape()
		f := feature.Feature{ID: feature.ID(n), Attributes: make([]any, len(fields))}

		if g := shapeToOrb(shape); g != nil {
			f.Geometry, err = wkb.Marshal(g)
			if err != nil {
				return nil, fmt.Errorf("record %d: encoding geometry: %w", n, err)
			}
		}
		for i := range shpFields {
			f.Attributes[i] = parseDBFValue(fields[i].Type, shpFields[i], reader.ReadAttribute(n, i))
		}
		src.Add(f)
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("failed to read shapefile: %w", err)
	}
	return src, nil
}

func readProjection(path string) string {
	prj := strings.TrimSuffix(path, ".shp") + ".prj"
	data, err := os.ReadFile(prj)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func dbfFieldType(f shp.Field) feature.FieldType {
	switch f.Fieldtype {
	case 'N':
		if f.Precision == 0 {
			return feature.Integer
		}
		return feature.Real
	case 'F':
		return feature.Real
	case 'L':
		return feature.Bool
	case 'D':
		return feature.Date
	default:
		return feature.String
	}
}

func parseDBFValue(t feature.FieldType, _ shp.Field, raw string) any {
	raw = strings.TrimSpace(strings.Trim(raw, "\x00"))
	if raw == "" {
		return nil
	}
	switch t {
	case feature.Integer:
		if v, err := cast.ToInt64E(raw); err == nil {
			return v
		}
	case feature.Real:
		if v, err := cast.ToFloat64E(raw); err == nil {
			return v
		}
	case feature.Bool:
		switch strings.ToUpper(raw) {
		case "T", "Y":
			return true
		case "F", "N":
			return false
		}
		return nil
	}
	return raw
}

// shapeToOrb converts a 2D shape to an orb geometry. Polygon rings are
// grouped following the shapefile convention: clockwise rings start a new
// polygon, counter-clockwise rings are holes of the preceding one.
func shapeToOrb(shape shp.Shape) orb.Geometry {
	switch s := shape.(type) {
	case *shp.Point:
		return orb.Point{s.X, s.Y}
	case *shp.MultiPoint:
		mp := make(orb.MultiPoint, len(s.Points))
		for i, p := range s.Points {
			mp[i] = orb.Point{p.X, p.Y}
		}
		return mp
	case *shp.PolyLine:
		parts := splitParts(s.Parts, s.Points)
		mls := make(orb.MultiLineString, len(parts))
		for i, part := range parts {
			mls[i] = orb.LineString(part)
		}
		if len(mls) == 1 {
			return mls[0]
		}
		return mls
	case *shp.Polygon:
		var polygons orb.MultiPolygon
		for _, part := range splitParts(s.Parts, s.Points) {
			ring := orb.Ring(part)
			if !ring.Closed() && len(ring) > 0 {
				ring = append(ring, ring[0])
			}
			if ring.Orientation() == orb.CCW && len(polygons) > 0 {
				last := len(polygons) - 1
				polygons[last] = append(polygons[last], ring)
				continue
			}
			polygons = append(polygons, orb.Polygon{ring})
		}
		switch len(polygons) {
		case 0:
			return nil
		case 1:
			return polygons[0]
		}
		return polygons
	}
	return nil
}

func splitParts(parts []int32, points []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		part := make([]orb.Point, 0, end-start)
		for _, p := range points[start:end] {
			part = append(part, orb.Point{p.X, p.Y})
		}
		out = append(out, part)
	}
	return out
}
