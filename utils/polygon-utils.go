package utils

import (
	"errors"
	"fmt"
	"math"

	"github.com/twpayne/go-geos"
)

// ErrGeometry is wrapped by every failed or null geometry operation.
var ErrGeometry = errors.New("geometry operation failed")

// SafeOp runs a GEOS operation and turns a panic or a null result into an
// error wrapping ErrGeometry.
func SafeOp(name string, op func() *geos.Geom) (g *geos.Geom, err error) {
	defer func() {
		if r := recover(); r != nil {
			g = nil
			err = fmt.Errorf("%w: %s: %v", ErrGeometry, name, r)
		}
	}()

	g = op()
	if g == nil {
		return nil, fmt.Errorf("%w: %s returned null", ErrGeometry, name)
	}
	return g, nil
}

// SafeIntersects tests a and b for intersection, reporting GEOS failures as errors.
func SafeIntersects(prepared *geos.PrepGeom, other *geos.Geom) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("%w: intersects: %v", ErrGeometry, r)
		}
	}()
	return prepared.Intersects(other), nil
}

func Intersection(a, b *geos.Geom) (*geos.Geom, error) {
	return SafeOp("intersection", func() *geos.Geom { return a.Intersection(b) })
}

func Difference(a, b *geos.Geom) (*geos.Geom, error) {
	return SafeOp("difference", func() *geos.Geom { return a.Difference(b) })
}

// UnionAll computes the unary union of geoms. The inputs are cloned into a
// collection so callers keep ownership of them.
func UnionAll(ctx *geos.Context, geoms []*geos.Geom) (*geos.Geom, error) {
	if len(geoms) == 0 {
		return nil, fmt.Errorf("%w: union of nothing", ErrGeometry)
	}
	return SafeOp("union", func() *geos.Geom {
		clones := make([]*geos.Geom, len(geoms))
		for i, g := range geoms {
			clones[i] = g.Clone()
		}
		return ctx.NewCollection(geos.TypeIDGeometryCollection, clones).UnaryUnion()
	})
}

// CascadedUnion unions geometries pairwise, halving the input each round
func CascadedUnion(geometries []*geos.Geom) (*geos.Geom, error) {
	if len(geometries) == 0 {
		return nil, fmt.Errorf("%w: union of nothing", ErrGeometry)
	}
	// Base case: if there is only one geometry, return it
	if len(geometries) == 1 {
		return geometries[0], nil
	}

	mid := len(geometries) / 2
	left, err := CascadedUnion(geometries[:mid])
	if err != nil {
		return nil, err
	}
	right, err := CascadedUnion(geometries[mid:])
	if err != nil {
		return nil, err
	}

	return SafeOp("union", func() *geos.Geom { return left.Union(right) })
}

// BufferOptions are the GEOS buffer style parameters.
type BufferOptions struct {
	Segments    int
	EndCapStyle geos.BufCapStyle
	JoinStyle   geos.BufJoinStyle
	MitreLimit  float64
	SingleSided bool
}

// Buffer buffers g by distance. For single-sided buffers a positive distance
// buffers the left side and a negative one the right side.
func Buffer(ctx *geos.Context, g *geos.Geom, distance float64, opts BufferOptions) (*geos.Geom, error) {
	segments := opts.Segments
	if segments <= 0 {
		segments = 8
	}
	mitre := opts.MitreLimit
	if mitre <= 0 {
		mitre = 2
	}
	capStyle := opts.EndCapStyle
	if capStyle == 0 {
		capStyle = geos.BufCapStyleRound
	}
	joinStyle := opts.JoinStyle
	if joinStyle == 0 {
		joinStyle = geos.BufJoinStyleRound
	}
	return SafeOp("buffer", func() *geos.Geom {
		params := ctx.NewBufferParams().
			SetQuadrantSegments(segments).
			SetEndCapStyle(capStyle).
			SetJoinStyle(joinStyle).
			SetMitreLimit(mitre).
			SetSingleSided(opts.SingleSided)
		return g.BufferWithParams(params, distance)
	})
}

// PolygonParts flattens g into its non-empty polygon parts. Lines and points
// found in collections are dropped.
func PolygonParts(g *geos.Geom) []*geos.Geom {
	if g == nil || g.IsEmpty() {
		return nil
	}
	switch g.TypeID() {
	case geos.TypeIDPolygon:
		return []*geos.Geom{g}
	case geos.TypeIDMultiPolygon, geos.TypeIDGeometryCollection:
		var parts []*geos.Geom
		for i := 0; i < g.NumGeometries(); i++ {
			parts = append(parts, PolygonParts(g.Geometry(i))...)
		}
		return parts
	}
	return nil
}

// IsMulti reports whether g is a multi-part or collection type.
func IsMulti(g *geos.Geom) bool {
	switch g.TypeID() {
	case geos.TypeIDMultiPoint, geos.TypeIDMultiLineString, geos.TypeIDMultiPolygon, geos.TypeIDGeometryCollection:
		return true
	}
	return false
}

// ToPolygonal converts a geometry collection produced by an overlay into a
// polygon or multipolygon. A multipolygon is returned when multi is set or
// when more than one part survives. ok is false when no polygonal part is left.
func ToPolygonal(ctx *geos.Context, g *geos.Geom, multi bool) (*geos.Geom, bool) {
	parts := PolygonParts(g)
	switch {
	case len(parts) == 0:
		return nil, false
	case len(parts) == 1 && !multi:
		return parts[0].Clone(), true
	}
	clones := make([]*geos.Geom, len(parts))
	for i, p := range parts {
		clones[i] = p.Clone()
	}
	return ctx.NewCollection(geos.TypeIDMultiPolygon, clones), true
}

// BoxContains reports whether outer fully contains inner.
func BoxContains(outer, inner *geos.Box2D) bool {
	return outer.MinX <= inner.MinX && outer.MinY <= inner.MinY &&
		outer.MaxX >= inner.MaxX && outer.MaxY >= inner.MaxY
}

// RingCoords returns the exterior and interior rings of a polygon as
// coordinate lists.
func RingCoords(polygon *geos.Geom) [][][]float64 {
	if polygon == nil || polygon.IsEmpty() || polygon.TypeID() != geos.TypeIDPolygon {
		return nil
	}
	rings := [][][]float64{polygon.ExteriorRing().CoordSeq().ToCoords()}
	for i := 0; i < polygon.NumInteriorRings(); i++ {
		rings = append(rings, polygon.InteriorRing(i).CoordSeq().ToCoords())
	}
	return rings
}

// SharedBoundaryLength measures how much boundary polygons a and b have in
// common. Two segments share the part of their length where one lies within
// tol of the other's supporting line.
func SharedBoundaryLength(a, b *geos.Geom, tol float64) float64 {
	ringsA := RingCoords(a)
	ringsB := RingCoords(b)
	total := 0.0
	for _, ra := range ringsA {
		for i := 0; i+1 < len(ra); i++ {
			for _, rb := range ringsB {
				for j := 0; j+1 < len(rb); j++ {
					total += segmentOverlap(ra[i], ra[i+1], rb[j], rb[j+1], tol)
				}
			}
		}
	}
	return total
}

// segmentOverlap returns the length of q1q2 projected onto p1p2 when both q
// endpoints are within tol of the line through p1p2.
func segmentOverlap(p1, p2, q1, q2 []float64, tol float64) float64 {
	dx, dy := p2[0]-p1[0], p2[1]-p1[1]
	length := math.Hypot(dx, dy)
	if length == 0 {
		return 0
	}
	dist := func(q []float64) float64 {
		return math.Abs(dx*(q[1]-p1[1])-dy*(q[0]-p1[0])) / length
	}
	if dist(q1) > tol || dist(q2) > tol {
		return 0
	}
	proj := func(q []float64) float64 {
		return (dx*(q[0]-p1[0]) + dy*(q[1]-p1[1])) / length
	}
	t1, t2 := proj(q1), proj(q2)
	lo := math.Max(0, math.Min(t1, t2))
	hi := math.Min(length, math.Max(t1, t2))
	if hi > lo {
		return hi - lo
	}
	return 0
}
