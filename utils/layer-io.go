package utils

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bsaid97/go-geoprocessing/feature"
)

// OpenLayer reads a GeoJSON or shapefile layer, chosen by extension.
func OpenLayer(path string, primaryKeys ...string) (*feature.MemorySource, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return ReadShapefile(path, primaryKeys...)
	case ".json", ".geojson":
		return ReadGeoJSONFile(path, primaryKeys...)
	}
	return nil, fmt.Errorf("unsupported layer format: %s", path)
}

// CreateSink returns a sink writing path, chosen by extension.
func CreateSink(path string) (feature.Sink, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return NewShapefileSink(path), nil
	case ".json", ".geojson":
		return NewGeoJSONFileSink(path), nil
	}
	return nil, fmt.Errorf("unsupported output format: %s", path)
}
