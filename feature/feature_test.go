package feature

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

func polygonWKB(t *testing.T, coords ...float64) []byte {
	t.Helper()
	ring := geom.NewLinearRingFlat(geom.XY, coords)
	p := geom.NewPolygon(geom.XY)
	require.NoError(t, p.Push(ring))
	data, err := wkb.Marshal(p, wkb.NDR)
	require.NoError(t, err)
	return data
}

func ids(seq func(func(Feature) bool)) []ID {
	var out []ID
	seq(func(f Feature) bool {
		out = append(out, f.ID)
		return true
	})
	return out
}

func TestMemorySource(t *testing.T) {
	src := NewMemorySource("layer", Fields{{Name: "name"}}, "EPSG:4326")
	for _, id := range []ID{5, 1, 3} {
		src.Add(Feature{ID: id, Geometry: []byte{1}, Attributes: []any{"x"}})
	}
	src.Add(Feature{ID: 3, Attributes: []any{"replaced"}})
	src.Select(5, 3)

	assert.Equal(t, 3, src.Len())
	assert.Equal(t, []ID{1, 3, 5}, ids(src.Features(Request{})))
	assert.Equal(t, []ID{3, 5}, ids(src.Features(Request{SelectedOnly: true})))
	assert.Equal(t, []ID{1, 5}, ids(src.Features(Request{IDs: []ID{5, 1, 42}})))
	assert.Equal(t, []ID{3, 5}, src.Selection())
	assert.Equal(t, []ID{5}, CollectIDs(src, Request{IDs: []ID{5, 1}, SelectedOnly: true}))

	f, ok := src.Feature(3)
	require.True(t, ok)
	assert.Equal(t, "replaced", f.Attribute(0))
	assert.Nil(t, f.Attribute(1))
	_, ok = src.Feature(2)
	assert.False(t, ok)

	for f := range src.Features(Request{NoGeometry: true}) {
		assert.False(t, f.HasGeometry())
	}
	got, _ := src.Feature(1)
	assert.True(t, got.HasGeometry(), "NoGeometry must not touch stored features")
}

func TestMemorySource_EarlyBreak(t *testing.T) {
	src := NewMemorySource("layer", nil, "")
	for i := 0; i < 10; i++ {
		src.Add(Feature{ID: ID(i)})
	}
	var seen []ID
	for f := range src.Features(Request{}) {
		if f.ID == 3 {
			break
		}
		seen = append(seen, f.ID)
	}
	assert.Equal(t, []ID{0, 1, 2}, seen)
}

func TestMemorySink(t *testing.T) {
	sink := NewMemorySink()
	fields := Fields{{Name: "n", Type: Integer, PrimaryKey: true}, {Name: "label"}}
	require.NoError(t, sink.Open(fields, "EPSG:3857"))
	require.NoError(t, sink.AddFeature(Feature{ID: 99, Attributes: []any{int64(1), "a"}}))
	require.NoError(t, sink.AddFeature(Feature{ID: 99, Attributes: []any{int64(2), "b"}}))

	src := sink.Source("out")
	assert.Equal(t, []ID{0, 1}, ids(src.Features(Request{})))
	assert.Equal(t, "EPSG:3857", src.CRS())
	assert.Equal(t, []int{0}, src.Fields().PrimaryKeys())
	assert.Equal(t, 1, src.Fields().IndexOf("label"))
	assert.Equal(t, -1, src.Fields().IndexOf("missing"))

	require.NoError(t, sink.Close())
	assert.ErrorIs(t, sink.AddFeature(Feature{}), ErrSinkClosed)
	assert.Len(t, sink.Features(), 2)
	assert.False(t, sink.Discarded())

	require.NoError(t, sink.Discard())
	assert.Empty(t, sink.Features())
	assert.True(t, sink.Discarded())
}

func TestFeatureCopies(t *testing.T) {
	f := Feature{ID: 1, Attributes: []any{"a"}}
	assert.Equal(t, "a", f.Attribute(0))
	assert.Nil(t, f.Attribute(3))

	g := f.WithGeometry([]byte{1, 2})
	assert.False(t, f.HasGeometry())
	assert.True(t, g.HasGeometry())
	assert.Equal(t, "layer:7", Ref{Layer: "layer", ID: 7}.String())
}

func TestGeometryExtent(t *testing.T) {
	f := Feature{ID: 1, Geometry: polygonWKB(t, 0, 0, 4, 0, 4, 2, 0, 2, 0, 0)}
	ext, ok, err := GeometryExtent(f)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Extent{MinX: 0, MinY: 0, MaxX: 4, MaxY: 2}, ext)
	assert.True(t, IsPolygonal(f))

	_, ok, err = GeometryExtent(Feature{ID: 2})
	assert.NoError(t, err)
	assert.False(t, ok)

	_, _, err = GeometryExtent(Feature{ID: 3, Geometry: []byte{0xff}})
	assert.Error(t, err)
	assert.False(t, IsPolygonal(Feature{ID: 3, Geometry: []byte{0xff}}))
}

func TestGeometryExtent_Collection(t *testing.T) {
	square := geom.NewPolygonFlat(geom.XY, []float64{0, 0, 2, 0, 2, 2, 0, 2, 0, 0}, []int{10})
	inner := geom.NewGeometryCollection()
	require.NoError(t, inner.Push(geom.NewPointFlat(geom.XY, []float64{5, -1}), geom.NewPolygon(geom.XY)))
	gc := geom.NewGeometryCollection()
	require.NoError(t, gc.Push(square, inner))
	data, err := wkb.Marshal(gc, wkb.NDR)
	require.NoError(t, err)

	f := Feature{ID: 1, Geometry: data}
	ext, ok, err := GeometryExtent(f)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Extent{MinX: 0, MinY: -1, MaxX: 5, MaxY: 2}, ext)
	assert.False(t, IsPolygonal(f))

	data, err = wkb.Marshal(geom.NewGeometryCollection(), wkb.NDR)
	require.NoError(t, err)
	_, ok, err = GeometryExtent(Feature{ID: 2, Geometry: data})
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestFieldType(t *testing.T) {
	numeric := slices.DeleteFunc([]FieldType{String, Integer, Real, Bool, Date}, func(ft FieldType) bool { return !ft.Numeric() })
	assert.Equal(t, []FieldType{Integer, Real}, numeric)
	assert.Equal(t, "date", Date.String())
}
