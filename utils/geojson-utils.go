package utils

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/bsaid97/go-geoprocessing/feature"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"
)

// ReadGeoJSON parses a GeoJSON FeatureCollection into an in-memory source.
// Feature ids are assigned in document order. The schema is the sorted union
// of all property names; properties named in primaryKeys are flagged as keys.
func ReadGeoJSON(name string, data []byte, primaryKeys ...string) (*feature.MemorySource, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feature collection: %w", err)
	}

	fields := inferFields(fc, primaryKeys)
	src := feature.NewMemorySource(name, fields, collectionCRS(fc))

	for i, gf := range fc.Features {
		f := feature.Feature{ID: feature.ID(i), Attributes: make([]any, len(fields))}
		if gf.Geometry != nil {
			f.Geometry, err = wkb.Marshal(gf.Geometry)
			if err != nil {
				return nil, fmt.Errorf("feature %d: encoding geometry: %w", i, err)
			}
		}
		for j, field := range fields {
			f.Attributes[j] = gf.Properties[field.Name]
		}
		src.Add(f)
	}
	return src, nil
}

// ReadGeoJSONFile reads a GeoJSON file from disk.
func ReadGeoJSONFile(path string, primaryKeys ...string) (*feature.MemorySource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ReadGeoJSON(path, data, primaryKeys...)
}

func inferFields(fc *geojson.FeatureCollection, primaryKeys []string) feature.Fields {
	types := make(map[string]feature.FieldType)
	seen := make(map[string]bool)
	for _, gf := range fc.Features {
		for key, value := range gf.Properties {
			seen[key] = true
			if value == nil {
				continue
			}
			t := valueType(value)
			if prev, ok := types[key]; ok && prev != t {
				t = widen(prev, t)
			}
			types[key] = t
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	pk := make(map[string]bool, len(primaryKeys))
	for _, k := range primaryKeys {
		pk[k] = true
	}

	fields := make(feature.Fields, len(names))
	for i, name := range names {
		fields[i] = feature.Field{Name: name, Type: types[name], PrimaryKey: pk[name]}
	}
	return fields
}

func valueType(v any) feature.FieldType {
	switch x := v.(type) {
	case float64:
		if x == float64(int64(x)) {
			return feature.Integer
		}
		return feature.Real
	case bool:
		return feature.Bool
	default:
		return feature.String
	}
}

func widen(a, b feature.FieldType) feature.FieldType {
	if a.Numeric() && b.Numeric() {
		return feature.Real
	}
	return feature.String
}

func collectionCRS(fc *geojson.FeatureCollection) string {
	crs, ok := fc.ExtraMembers["crs"].(map[string]interface{})
	if !ok {
		return ""
	}
	props, ok := crs["properties"].(map[string]interface{})
	if !ok {
		return ""
	}
	name, _ := props["name"].(string)
	return name
}

// GeoJSONSink buffers written features and encodes them as one
// FeatureCollection when closed.
type GeoJSONSink struct {
	mu     sync.Mutex
	open   func() (io.WriteCloser, error)
	fields feature.Fields
	crs    string
	fc     *geojson.FeatureCollection
	done   bool
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewGeoJSONSink writes the collection to w on Close.
func NewGeoJSONSink(w io.Writer) *GeoJSONSink {
	return &GeoJSONSink{
		open: func() (io.WriteCloser, error) { return nopWriteCloser{w}, nil },
		fc:   geojson.NewFeatureCollection(),
	}
}

// NewGeoJSONFileSink creates path on Close. A discarded sink never touches the
// file system.
func NewGeoJSONFileSink(path string) *GeoJSONSink {
	return &GeoJSONSink{
		open: func() (io.WriteCloser, error) { return os.Create(path) },
		fc:   geojson.NewFeatureCollection(),
	}
}

func (s *GeoJSONSink) Open(fields feature.Fields, crs string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = fields
	s.crs = crs
	return nil
}

func (s *GeoJSONSink) AddFeature(f feature.Feature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return feature.ErrSinkClosed
	}

	gf := geojson.NewFeature(nil)
	if f.HasGeometry() {
		g, err := wkb.Unmarshal(f.Geometry)
		if err != nil {
			return fmt.Errorf("feature %d: decoding geometry: %w", f.ID, err)
		}
		gf.Geometry = g
	}
	for i, field := range s.fields {
		gf.Properties[field.Name] = f.Attribute(i)
	}
	s.fc.Append(gf)
	return nil
}

func (s *GeoJSONSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return feature.ErrSinkClosed
	}
	s.done = true

	if s.crs != "" {
		s.fc.ExtraMembers = geojson.Properties{
			"crs": map[string]interface{}{
				"type":       "name",
				"properties": map[string]interface{}{"name": s.crs},
			},
		}
	}
	data, err := s.fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal feature collection: %w", err)
	}

	w, err := s.open()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (s *GeoJSONSink) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	s.fc = geojson.NewFeatureCollection()
	return nil
}

// Len returns the number of buffered features.
func (s *GeoJSONSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fc.Features)
}
