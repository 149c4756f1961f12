// Package feature holds the vector feature model shared by the sources, sinks
// and overlay tools.
package feature

import "fmt"

// ID identifies a feature within its source. It is stable for the lifetime of
// the source.
type ID int64

// Feature is an identifier, an immutable WKB geometry and an ordered list of
// attribute values keyed by field position.
type Feature struct {
	ID         ID
	Geometry   []byte
	Attributes []any
}

// HasGeometry reports whether the feature carries a geometry.
func (f Feature) HasGeometry() bool {
	return len(f.Geometry) > 0
}

// WithGeometry returns a copy of f using wkb as its geometry.
func (f Feature) WithGeometry(wkb []byte) Feature {
	f.Geometry = wkb
	return f
}

// Attribute returns the value at field index i, or nil when out of range.
func (f Feature) Attribute(i int) any {
	if i < 0 || i >= len(f.Attributes) {
		return nil
	}
	return f.Attributes[i]
}

func (f Feature) String() string {
	return fmt.Sprintf("feature %d (%d attributes, geometry=%t)", f.ID, len(f.Attributes), f.HasGeometry())
}

// Ref names one feature of one layer, so a caller can highlight it.
type Ref struct {
	Layer string `json:"layer" yaml:"layer"`
	ID    ID     `json:"id" yaml:"id"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%d", r.Layer, r.ID)
}
