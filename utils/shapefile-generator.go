package utils

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bsaid97/go-geoprocessing/feature"
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/spf13/cast"
)

var shapefileExtensions = []string{".shp", ".shx", ".dbf", ".prj"}

// ShapefileSink writes features to a shapefile. The file is created with the
// first feature, whose geometry decides the shape type.
type ShapefileSink struct {
	mu        sync.Mutex
	path      string
	fields    feature.Fields
	dbfFields []shp.Field
	crs       string
	writer    *shp.Writer
	shapeType shp.ShapeType
	done      bool
}

// NewShapefileSink creates a sink writing to path (which should end in .shp).
func NewShapefileSink(path string) *ShapefileSink {
	return &ShapefileSink{path: path}
}

func (s *ShapefileSink) Open(fields feature.Fields, crs string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = fields
	s.dbfFields = createFieldsFromSchema(fields)
	s.crs = crs
	return nil
}

func (s *ShapefileSink) create(shapeType shp.ShapeType) error {
	w, err := shp.Create(s.path, shapeType)
	if err != nil {
		return fmt.Errorf("failed to create shapefile: %w", err)
	}
	if err := w.SetFields(s.dbfFields); err != nil {
		w.Close()
		return fmt.Errorf("failed to set shapefile fields: %w", err)
	}
	if s.crs != "" {
		prj := strings.TrimSuffix(s.path, ".shp") + ".prj"
		if err := os.WriteFile(prj, []byte(s.crs), 0o644); err != nil {
			w.Close()
			return fmt.Errorf("failed to write projection: %w", err)
		}
	}
	s.writer = w
	s.shapeType = shapeType
	return nil
}

func (s *ShapefileSink) AddFeature(f feature.Feature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return feature.ErrSinkClosed
	}

	var (
		shape     shp.Shape = &shp.Null{}
		shapeType shp.ShapeType
	)
	if f.HasGeometry() {
		g, err := wkb.Unmarshal(f.Geometry)
		if err != nil {
			return fmt.Errorf("feature %d: decoding geometry: %w", f.ID, err)
		}
		shape, shapeType, err = orbToShape(g)
		if err != nil {
			return fmt.Errorf("feature %d: %w", f.ID, err)
		}
	}

	if s.writer == nil {
		if shapeType == shp.NULL {
			shapeType = shp.POLYGON
		}
		if err := s.create(shapeType); err != nil {
			return err
		}
	}
	if shapeType != shp.NULL && shapeType != s.shapeType {
		return fmt.Errorf("feature %d: shape type %d does not match layer type %d", f.ID, shapeType, s.shapeType)
	}

	row := int(s.writer.Write(shape))
	return s.writeAttributes(row, f)
}

func (s *ShapefileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return feature.ErrSinkClosed
	}
	s.done = true
	if s.writer == nil {
		if err := s.create(shp.POLYGON); err != nil {
			return err
		}
	}
	s.writer.Close()
	return nil
}

// Discard closes the writer and removes every file the sink created.
func (s *ShapefileSink) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	if s.writer == nil {
		return nil
	}
	s.writer.Close()
	s.writer = nil
	base := strings.TrimSuffix(s.path, ".shp")
	for _, ext := range shapefileExtensions {
		if err := os.Remove(base + ext); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// createFieldsFromSchema maps the output schema to DBF fields. Names are
// limited to 10 characters (DBF limitation) and kept unique.
func createFieldsFromSchema(fields feature.Fields) []shp.Field {
	out := make([]shp.Field, 0, len(fields))
	used := make(map[string]bool, len(fields))
	for i, f := range fields {
		name := dbfFieldName(f.Name, i, used)
		switch f.Type {
		case feature.Integer:
			out = append(out, shp.NumberField(name, 18))
		case feature.Real:
			out = append(out, shp.FloatField(name, 24, 8))
		case feature.Bool:
			out = append(out, shp.StringField(name, 5)) // Store as "true"/"false"
		case feature.Date:
			out = append(out, shp.StringField(name, 10))
		default:
			out = append(out, shp.StringField(name, 254))
		}
	}
	return out
}

func dbfFieldName(name string, i int, used map[string]bool) string {
	if len(name) > 10 {
		name = name[:10]
	}
	if used[strings.ToUpper(name)] {
		suffix := fmt.Sprintf("_%d", i)
		if len(name)+len(suffix) > 10 {
			name = name[:10-len(suffix)]
		}
		name += suffix
	}
	used[strings.ToUpper(name)] = true
	return name
}

func (s *ShapefileSink) writeAttributes(row int, f feature.Feature) error {
	for i, field := range s.fields {
		value := f.Attribute(i)
		var err error
		switch field.Type {
		case feature.Integer:
			v, cerr := cast.ToIntE(value)
			if value == nil || cerr != nil {
				err = s.writer.WriteAttribute(row, i, "")
			} else {
				err = s.writer.WriteAttribute(row, i, v)
			}
		case feature.Real:
			v, cerr := cast.ToFloat64E(value)
			if value == nil || cerr != nil {
				err = s.writer.WriteAttribute(row, i, "")
			} else {
				err = s.writer.WriteAttribute(row, i, v)
			}
		default:
			str := ""
			if value != nil {
				str = cast.ToString(value)
			}
			err = s.writer.WriteAttribute(row, i, str)
		}
		if err != nil {
			return fmt.Errorf("feature %d: writing attribute %s: %w", f.ID, field.Name, err)
		}
	}
	return nil
}

// orbToShape converts a geometry to its shapefile record. Polygon outer rings
// are written clockwise and holes counter-clockwise.
func orbToShape(g orb.Geometry) (shp.Shape, shp.ShapeType, error) {
	switch geom := g.(type) {
	case orb.Point:
		return &shp.Point{X: geom[0], Y: geom[1]}, shp.POINT, nil
	case orb.MultiPoint:
		mp := &shp.MultiPoint{Points: toShpPoints(geom)}
		mp.NumPoints = int32(len(mp.Points))
		mp.Box = shp.BBoxFromPoints(mp.Points)
		return mp, shp.MULTIPOINT, nil
	case orb.LineString:
		return shp.NewPolyLine([][]shp.Point{toShpPoints(geom)}), shp.POLYLINE, nil
	case orb.MultiLineString:
		parts := make([][]shp.Point, len(geom))
		for i, ls := range geom {
			parts[i] = toShpPoints(ls)
		}
		return shp.NewPolyLine(parts), shp.POLYLINE, nil
	case orb.Polygon:
		return polygonShape(orb.MultiPolygon{geom}), shp.POLYGON, nil
	case orb.MultiPolygon:
		return polygonShape(geom), shp.POLYGON, nil
	case orb.Collection:
		var polys orb.MultiPolygon
		for _, part := range geom {
			switch p := part.(type) {
			case orb.Polygon:
				polys = append(polys, p)
			case orb.MultiPolygon:
				polys = append(polys, p...)
			}
		}
		if len(polys) == 0 {
			return nil, shp.NULL, fmt.Errorf("unsupported geometry collection")
		}
		return polygonShape(polys), shp.POLYGON, nil
	}
	return nil, shp.NULL, fmt.Errorf("unsupported geometry type: %s", g.GeoJSONType())
}

func polygonShape(mp orb.MultiPolygon) *shp.Polygon {
	var parts [][]shp.Point
	for _, poly := range mp {
		for i, ring := range poly {
			ring = append(orb.Ring(nil), ring...)
			want := orb.CCW
			if i == 0 {
				want = orb.CW
			}
			if ring.Orientation() != want {
				ring.Reverse()
			}
			parts = append(parts, toShpPoints(ring))
		}
	}
	p := shp.Polygon(*shp.NewPolyLine(parts))
	return &p
}

func toShpPoints[P ~[]orb.Point](pts P) []shp.Point {
	out := make([]shp.Point, len(pts))
	for i, p := range pts {
		out[i] = shp.Point{X: p[0], Y: p[1]}
	}
	return out
}

// ZipEntry is an extra file added to a generated archive.
type ZipEntry struct {
	Name string
	Data []byte
}

// GenerateShapefileZip bundles a GeoJSON document and a shapefile of the same
// features into one zip archive. Every entry is named baseName plus its
// extension; extra entries follow under their own names.
func GenerateShapefileZip(baseName string, jsonData []byte, features []feature.Feature, fields feature.Fields, crs string, extra ...ZipEntry) ([]byte, error) {
	var zipBuffer bytes.Buffer
	zipWriter := zip.NewWriter(&zipBuffer)

	jsonFile, err := zipWriter.Create(baseName + ".json")
	if err != nil {
		return nil, fmt.Errorf("failed to create JSON file in zip: %w", err)
	}
	if _, err := jsonFile.Write(jsonData); err != nil {
		return nil, fmt.Errorf("failed to write JSON data to zip: %w", err)
	}

	if err := addShapefileToZip(zipWriter, baseName, features, fields, crs); err != nil {
		return nil, fmt.Errorf("failed to add shapefile to zip: %w", err)
	}

	for _, e := range extra {
		f, err := zipWriter.Create(e.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s in zip: %w", e.Name, err)
		}
		if _, err := f.Write(e.Data); err != nil {
			return nil, fmt.Errorf("failed to write %s to zip: %w", e.Name, err)
		}
	}

	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zip writer: %w", err)
	}
	return zipBuffer.Bytes(), nil
}

// addShapefileToZip writes the shapefile components to a temporary directory
// and copies them into the zip.
func addShapefileToZip(zipWriter *zip.Writer, baseName string, features []feature.Feature, fields feature.Fields, crs string) error {
	tempDir, err := os.MkdirTemp("", "shapefile_")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	shapefilePath := filepath.Join(tempDir, baseName+".shp")
	sink := NewShapefileSink(shapefilePath)
	if err := sink.Open(fields, crs); err != nil {
		return err
	}
	for _, f := range features {
		if err := sink.AddFeature(f); err != nil {
			sink.Discard()
			return err
		}
	}
	if err := sink.Close(); err != nil {
		return err
	}

	for _, ext := range shapefileExtensions {
		filePath := strings.TrimSuffix(shapefilePath, ".shp") + ext
		fileContent, err := os.ReadFile(filePath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read shapefile component %s: %w", ext, err)
		}

		zipFile, err := zipWriter.Create(baseName + ext)
		if err != nil {
			return fmt.Errorf("failed to create %s file in zip: %w", ext, err)
		}
		if _, err := zipFile.Write(fileContent); err != nil {
			return fmt.Errorf("failed to write %s data to zip: %w", ext, err)
		}
	}
	return nil
}
