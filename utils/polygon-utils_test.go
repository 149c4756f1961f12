package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geos"
)

func mustGeom(t *testing.T, ctx *geos.Context, wkt string) *geos.Geom {
	t.Helper()
	g, err := ctx.NewGeomFromWKT(wkt)
	require.NoError(t, err)
	return g
}

func TestSafeOp(t *testing.T) {
	_, err := SafeOp("boom", func() *geos.Geom { panic("geos failure") })
	require.ErrorIs(t, err, ErrGeometry)
	assert.Contains(t, err.Error(), "geos failure")

	_, err = SafeOp("null", func() *geos.Geom { return nil })
	assert.ErrorIs(t, err, ErrGeometry)
}

func TestOverlayWrappers(t *testing.T) {
	ctx := geos.NewContext()
	a := mustGeom(t, ctx, "POLYGON ((0 0, 10 0, 10 10, 0 10, 0 0))")
	b := mustGeom(t, ctx, "POLYGON ((5 0, 15 0, 15 10, 5 10, 5 0))")

	tests := []struct {
		name string
		op   func(a, b *geos.Geom) (*geos.Geom, error)
		area float64
	}{
		{"intersection", Intersection, 50},
		{"difference", Difference, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := tt.op(a, b)
			require.NoError(t, err)
			assert.InDelta(t, tt.area, g.Area(), 1e-9)
		})
	}
}

func TestUnions(t *testing.T) {
	ctx := geos.NewContext()
	geoms := []*geos.Geom{
		mustGeom(t, ctx, "POLYGON ((0 0, 10 0, 10 10, 0 10, 0 0))"),
		mustGeom(t, ctx, "POLYGON ((10 0, 20 0, 20 10, 10 10, 10 0))"),
		mustGeom(t, ctx, "POLYGON ((5 5, 15 5, 15 15, 5 15, 5 5))"),
	}

	u, err := UnionAll(ctx, geoms)
	require.NoError(t, err)
	assert.InDelta(t, 250.0, u.Area(), 1e-9)
	assert.Equal(t, geos.TypeIDPolygon, u.TypeID())
	// Inputs stay usable.
	assert.InDelta(t, 100.0, geoms[0].Area(), 1e-9)

	c, err := CascadedUnion(geoms)
	require.NoError(t, err)
	assert.True(t, c.Equals(u))

	_, err = UnionAll(ctx, nil)
	assert.ErrorIs(t, err, ErrGeometry)
	_, err = CascadedUnion(nil)
	assert.ErrorIs(t, err, ErrGeometry)
}

func TestBuffer(t *testing.T) {
	ctx := geos.NewContext()
	square := mustGeom(t, ctx, "POLYGON ((0 0, 10 0, 10 10, 0 10, 0 0))")

	g, err := Buffer(ctx, square, 1, BufferOptions{JoinStyle: geos.BufJoinStyleMitre})
	require.NoError(t, err)
	assert.InDelta(t, 144.0, g.Area(), 1e-9)

	g, err = Buffer(ctx, square, -1, BufferOptions{})
	require.NoError(t, err)
	assert.InDelta(t, 64.0, g.Area(), 1e-9)

	line := mustGeom(t, ctx, "LINESTRING (0 0, 10 0)")
	g, err = Buffer(ctx, line, 1, BufferOptions{SingleSided: true})
	require.NoError(t, err)
	assert.InDelta(t, 10.0, g.Area(), 1e-6)
	assert.GreaterOrEqual(t, g.Bounds().MinY, -1e-9)
}

func TestPolygonParts(t *testing.T) {
	ctx := geos.NewContext()
	tests := []struct {
		wkt   string
		parts int
		multi bool
	}{
		{"POLYGON ((0 0, 1 0, 1 1, 0 0))", 1, false},
		{"MULTIPOLYGON (((0 0, 1 0, 1 1, 0 0)), ((5 5, 6 5, 6 6, 5 5)))", 2, true},
		{"GEOMETRYCOLLECTION (POLYGON ((0 0, 1 0, 1 1, 0 0)), LINESTRING (0 0, 5 5), POINT (3 3))", 1, true},
		{"LINESTRING (0 0, 5 5)", 0, false},
		{"POLYGON EMPTY", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.wkt, func(t *testing.T) {
			g := mustGeom(t, ctx, tt.wkt)
			assert.Len(t, PolygonParts(g), tt.parts)
			assert.Equal(t, tt.multi, IsMulti(g))
		})
	}
}

func TestToPolygonal(t *testing.T) {
	ctx := geos.NewContext()
	mixed := mustGeom(t, ctx, "GEOMETRYCOLLECTION (POLYGON ((0 0, 1 0, 1 1, 0 0)), LINESTRING (0 0, 5 5))")

	g, ok := ToPolygonal(ctx, mixed, false)
	require.True(t, ok)
	assert.Equal(t, geos.TypeIDPolygon, g.TypeID())

	g, ok = ToPolygonal(ctx, mixed, true)
	require.True(t, ok)
	assert.Equal(t, geos.TypeIDMultiPolygon, g.TypeID())
	assert.InDelta(t, 0.5, g.Area(), 1e-9)

	two := mustGeom(t, ctx, "MULTIPOLYGON (((0 0, 1 0, 1 1, 0 0)), ((5 5, 6 5, 6 6, 5 5)))")
	g, ok = ToPolygonal(ctx, two, false)
	require.True(t, ok)
	assert.Equal(t, geos.TypeIDMultiPolygon, g.TypeID())

	_, ok = ToPolygonal(ctx, mustGeom(t, ctx, "POINT (1 1)"), false)
	assert.False(t, ok)
}

func TestSharedBoundaryLength(t *testing.T) {
	ctx := geos.NewContext()
	a := mustGeom(t, ctx, "POLYGON ((0 0, 10 0, 10 10, 0 10, 0 0))")
	tests := []struct {
		name string
		b    string
		want float64
	}{
		{"full edge", "POLYGON ((10 0, 20 0, 20 10, 10 10, 10 0))", 10},
		{"partial edge", "POLYGON ((10 2, 12 2, 12 5, 10 5, 10 2))", 3},
		{"corner only", "POLYGON ((10 10, 12 10, 12 12, 10 12, 10 10))", 0},
		{"apart", "POLYGON ((11 0, 20 0, 20 10, 11 10, 11 0))", 0},
		{"hole edge", "POLYGON ((-5 -5, 15 -5, 15 15, -5 15, -5 -5), (0 0, 0 10, 10 10, 10 0, 0 0))", 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := mustGeom(t, ctx, tt.b)
			assert.InDelta(t, tt.want, SharedBoundaryLength(a, b, 1e-9), 1e-9)
			assert.InDelta(t, tt.want, SharedBoundaryLength(b, a, 1e-9), 1e-9)
		})
	}
}

func TestBoxContains(t *testing.T) {
	outer := &geos.Box2D{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	assert.True(t, BoxContains(outer, &geos.Box2D{MinX: 0, MinY: 2, MaxX: 10, MaxY: 3}))
	assert.False(t, BoxContains(outer, &geos.Box2D{MinX: -1, MinY: 2, MaxX: 5, MaxY: 3}))
}
