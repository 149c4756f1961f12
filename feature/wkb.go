package feature

import (
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// Extent is an axis-aligned bounding box.
type Extent struct {
	MinX, MinY, MaxX, MaxY float64
}

// GeometryExtent decodes the WKB of f and returns its bounding box. ok is false
// when f has no geometry or the geometry is empty. Decoding does not touch
// GEOS, so it is usable while building indices.
func GeometryExtent(f Feature) (ext Extent, ok bool, err error) {
	if !f.HasGeometry() {
		return Extent{}, false, nil
	}
	g, err := wkb.Unmarshal(f.Geometry)
	if err != nil {
		return Extent{}, false, fmt.Errorf("feature %d: decoding geometry: %w", f.ID, err)
	}
	ext, ok = extentOf(g)
	return ext, ok, nil
}

// extentOf walks collections member by member; go-geom cannot flatten the
// coordinates of a collection.
func extentOf(g geom.T) (Extent, bool) {
	if g == nil || g.Empty() {
		return Extent{}, false
	}
	gc, isCollection := g.(*geom.GeometryCollection)
	if !isCollection {
		b := g.Bounds()
		return Extent{MinX: b.Min(0), MinY: b.Min(1), MaxX: b.Max(0), MaxY: b.Max(1)}, true
	}
	var (
		ext   Extent
		found bool
	)
	for _, member := range gc.Geoms() {
		e, ok := extentOf(member)
		if !ok {
			continue
		}
		if !found {
			ext, found = e, true
			continue
		}
		ext.MinX, ext.MinY = min(ext.MinX, e.MinX), min(ext.MinY, e.MinY)
		ext.MaxX, ext.MaxY = max(ext.MaxX, e.MaxX), max(ext.MaxY, e.MaxY)
	}
	return ext, found
}

// IsPolygonal reports whether the WKB geometry of f is a polygon or multipolygon.
func IsPolygonal(f Feature) bool {
	if !f.HasGeometry() {
		return false
	}
	g, err := wkb.Unmarshal(f.Geometry)
	if err != nil {
		return false
	}
	switch g.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
		return true
	}
	return false
}
