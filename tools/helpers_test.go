package tools

import (
	"fmt"
	"testing"

	"github.com/bsaid97/go-geoprocessing/feature"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geos"
)

type row struct {
	wkt   string
	attrs []any
}

func box(x0, y0, x1, y1 float64) string {
	return fmt.Sprintf("POLYGON ((%[1]g %[2]g, %[3]g %[2]g, %[3]g %[4]g, %[1]g %[4]g, %[1]g %[2]g))", x0, y0, x1, y1)
}

func mustWKB(t *testing.T, wkt string) []byte {
	t.Helper()
	g, err := geos.NewContext().NewGeomFromWKT(wkt)
	require.NoError(t, err)
	return g.ToWKB()
}

func newLayer(t *testing.T, name string, fields feature.Fields, rows ...row) *feature.MemorySource {
	t.Helper()
	src := feature.NewMemorySource(name, fields, "EPSG:3857")
	for i, r := range rows {
		f := feature.Feature{ID: feature.ID(i), Attributes: r.attrs}
		if r.wkt != "" {
			f.Geometry = mustWKB(t, r.wkt)
		}
		src.Add(f)
	}
	return src
}

func decode(t *testing.T, f feature.Feature) *geos.Geom {
	t.Helper()
	require.True(t, f.HasGeometry(), "feature %d has no geometry", f.ID)
	g, err := geos.NewContext().NewGeomFromWKB(f.Geometry)
	require.NoError(t, err)
	return g
}

func totalArea(t *testing.T, features []feature.Feature) float64 {
	t.Helper()
	sum := 0.0
	for _, f := range features {
		sum += decode(t, f).Area()
	}
	return sum
}

var layerFields = feature.Fields{{Name: "name"}, {Name: "value", Type: feature.Real}}
