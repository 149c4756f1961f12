package utils

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/bsaid97/go-geoprocessing/feature"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geos"
)

func wkbOf(t *testing.T, wkt string) []byte {
	t.Helper()
	return mustGeom(t, geos.NewContext(), wkt).ToWKB()
}

func areaOf(t *testing.T, f feature.Feature) float64 {
	t.Helper()
	g, err := geos.NewContext().NewGeomFromWKB(f.Geometry)
	require.NoError(t, err)
	return g.Area()
}

var parcelFields = feature.Fields{
	{Name: "fid", Type: feature.Integer, PrimaryKey: true},
	{Name: "name"},
	{Name: "area", Type: feature.Real},
}

func parcels(t *testing.T) []feature.Feature {
	return []feature.Feature{
		{ID: 0, Geometry: wkbOf(t, "POLYGON ((0 0, 10 0, 10 10, 0 10, 0 0))"), Attributes: []any{int64(1), "a", 100.5}},
		{ID: 1, Geometry: wkbOf(t, "POLYGON ((20 0, 30 0, 30 10, 20 10, 20 0), (22 2, 22 4, 24 4, 24 2, 22 2))"), Attributes: []any{int64(2), "b", nil}},
		{ID: 2, Geometry: wkbOf(t, "MULTIPOLYGON (((50 0, 51 0, 51 1, 50 1, 50 0)), ((60 0, 61 0, 61 1, 60 1, 60 0)))"), Attributes: []any{int64(3), nil, 2.0}},
	}
}

func TestSpatialIndex(t *testing.T) {
	log, _ := test.NewNullLogger()
	src := feature.NewMemorySource("parcels", parcelFields, "")
	for _, f := range parcels(t) {
		src.Add(f)
	}
	src.Add(feature.Feature{ID: 3, Attributes: []any{int64(4), "no geometry", nil}})
	src.Add(feature.Feature{ID: 4, Geometry: []byte{1, 2, 3}})
	src.Add(feature.Feature{ID: 5, Geometry: wkbOf(t, "GEOMETRYCOLLECTION (POLYGON ((80 0, 81 0, 81 1, 80 1, 80 0)), POINT (85 5))")})

	si := BuildSpatialIndex(src, feature.Request{}, log)
	assert.Equal(t, 4, si.Len())
	assert.Equal(t, []feature.ID{5}, si.Intersects(&geos.Box2D{MinX: 84, MinY: 4, MaxX: 86, MaxY: 6}))

	ids := si.Intersects(&geos.Box2D{MinX: 5, MinY: 5, MaxX: 25, MaxY: 6})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	assert.Equal(t, []feature.ID{0, 1}, ids)

	// The multipolygon's box spans the gap between its parts.
	assert.Equal(t, []feature.ID{2}, si.Intersects(&geos.Box2D{MinX: 55, MinY: 0, MaxX: 56, MaxY: 1}))
	assert.Empty(t, si.Intersects(&geos.Box2D{MinX: 100, MinY: 100, MaxX: 101, MaxY: 101}))
	assert.Nil(t, si.Intersects(nil))
}

func TestGeoJSON_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	sink := NewGeoJSONSink(&buf)
	require.NoError(t, sink.Open(parcelFields, "EPSG:2154"))
	for _, f := range parcels(t) {
		require.NoError(t, sink.AddFeature(f))
	}
	assert.Equal(t, 3, sink.Len())
	require.NoError(t, sink.Close())
	assert.ErrorIs(t, sink.AddFeature(parcels(t)[0]), feature.ErrSinkClosed)

	src, err := ReadGeoJSON("parcels", buf.Bytes(), "fid")
	require.NoError(t, err)
	assert.Equal(t, "EPSG:2154", src.CRS())
	assert.Equal(t, []string{"area", "fid", "name"}, src.Fields().Names())
	assert.Equal(t, []int{1}, src.Fields().PrimaryKeys())
	assert.Equal(t, feature.Real, src.Fields()[0].Type)
	assert.Equal(t, feature.Integer, src.Fields()[1].Type)
	require.Equal(t, 3, src.Len())

	f, ok := src.Feature(1)
	require.True(t, ok)
	assert.InDelta(t, 96.0, areaOf(t, f), 1e-9)
	assert.Equal(t, []any{nil, 2.0, "b"}, f.Attributes)
}

func TestReadGeoJSON_Widening(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":null,"properties":{"n":1,"mixed":1,"flag":true}},
		{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"n":1.5,"mixed":"x"}}
	]}`
	src, err := ReadGeoJSON("doc", []byte(doc))
	require.NoError(t, err)

	types := map[string]feature.FieldType{}
	for _, f := range src.Fields() {
		types[f.Name] = f.Type
	}
	assert.Equal(t, map[string]feature.FieldType{"flag": feature.Bool, "mixed": feature.String, "n": feature.Real}, types)
	assert.Empty(t, src.CRS())

	f, _ := src.Feature(0)
	assert.False(t, f.HasGeometry())

	_, err = ReadGeoJSON("bad", []byte("{"))
	assert.Error(t, err)
}

func TestGeoJSONFileSink_Discard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.geojson")
	sink := NewGeoJSONFileSink(path)
	require.NoError(t, sink.Open(parcelFields, ""))
	require.NoError(t, sink.AddFeature(parcels(t)[0]))
	require.NoError(t, sink.Discard())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestShapefile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parcels.shp")
	sink, err := CreateSink(path)
	require.NoError(t, err)
	require.NoError(t, sink.Open(parcelFields, "PROJCS[\"test\"]"))
	for _, f := range parcels(t) {
		require.NoError(t, sink.AddFeature(f))
	}
	require.NoError(t, sink.Close())

	src, err := OpenLayer(path, "fid")
	require.NoError(t, err)
	assert.Equal(t, "PROJCS[\"test\"]", src.CRS())
	assert.Equal(t, []string{"fid", "name", "area"}, src.Fields().Names())
	assert.Equal(t, []feature.FieldType{feature.Integer, feature.String, feature.Real},
		[]feature.FieldType{src.Fields()[0].Type, src.Fields()[1].Type, src.Fields()[2].Type})
	require.Equal(t, 3, src.Len())

	want := []struct {
		area  float64
		attrs []any
	}{
		{100, []any{int64(1), "a", 100.5}},
		{96, []any{int64(2), "b", nil}},
		{2, []any{int64(3), nil, 2.0}},
	}
	for i, w := range want {
		f, ok := src.Feature(feature.ID(i))
		require.True(t, ok)
		assert.InDelta(t, w.area, areaOf(t, f), 1e-9)
		assert.Equal(t, w.attrs, f.Attributes)
	}
}

func TestShapefileSink_MixedTypes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mixed.shp")
	sink := NewShapefileSink(path)
	require.NoError(t, sink.Open(parcelFields, ""))
	require.NoError(t, sink.AddFeature(parcels(t)[0]))
	err := sink.AddFeature(feature.Feature{ID: 9, Geometry: wkbOf(t, "POINT (1 1)"), Attributes: []any{int64(9), "p", 0.0}})
	assert.Error(t, err)
	require.NoError(t, sink.Close())
}

func TestShapefileSink_Discard(t *testing.T) {
	dir := t.TempDir()
	sink := NewShapefileSink(filepath.Join(dir, "gone.shp"))
	require.NoError(t, sink.Open(parcelFields, "EPSG:4326"))
	require.NoError(t, sink.AddFeature(parcels(t)[0]))
	require.NoError(t, sink.Discard())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDBFFieldNames(t *testing.T) {
	fields := feature.Fields{{Name: "population_total"}, {Name: "population_totals"}, {Name: "x"}}
	shpFields := createFieldsFromSchema(fields)
	names := make([]string, len(shpFields))
	for i, f := range shpFields {
		names[i] = f.String()
	}
	assert.Equal(t, []string{"population", "populati_1", "x"}, names)
}

func TestGenerateShapefileZip(t *testing.T) {
	data, err := GenerateShapefileZip("result", []byte(`{"type":"FeatureCollection","features":[]}`), parcels(t), parcelFields, "EPSG:3857",
		ZipEntry{Name: "report.yaml", Data: []byte("tool: test\n")})
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"result.json", "result.shp", "result.shx", "result.dbf", "result.prj", "report.yaml"}, names)
}

func TestLayerFormats(t *testing.T) {
	_, err := OpenLayer("layer.gpkg")
	assert.Error(t, err)
	_, err = CreateSink("out.kml")
	assert.Error(t, err)

	sink, err := CreateSink("out.GeoJSON")
	require.NoError(t, err)
	assert.IsType(t, &GeoJSONSink{}, sink)
}
