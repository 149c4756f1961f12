package utils

import (
	"sync"

	"github.com/bsaid97/go-geoprocessing/feature"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/sirupsen/logrus"
	"github.com/twpayne/go-geos"
)

// SpatialIndex is a bounding-box index over the features of one source.
// Building is single-threaded; queries may come from many workers.
type SpatialIndex struct {
	tree *rtree.Rtree
	mu   sync.Mutex
	size int
}

// indexedFeature is an index entry; the embedded bounds satisfy geom.Geom.
type indexedFeature struct {
	*geom.Bounds
	id feature.ID
}

// NewSpatialIndex creates an empty index.
func NewSpatialIndex() *SpatialIndex {
	return &SpatialIndex{tree: rtree.NewTree(25, 50)}
}

// AddFeature inserts f using the bounding box of its geometry. Features without
// a geometry are skipped and reported as not added.
func (si *SpatialIndex) AddFeature(f feature.Feature) (bool, error) {
	ext, ok, err := feature.GeometryExtent(f)
	if err != nil || !ok {
		return false, err
	}

	si.mu.Lock()
	defer si.mu.Unlock()
	si.tree.Insert(&indexedFeature{Bounds: extentBounds(ext), id: f.ID})
	si.size++
	return true, nil
}

// Intersects returns the ids of every indexed feature whose bounding box meets
// box. It is a fast reject filter only; callers must test candidates exactly.
func (si *SpatialIndex) Intersects(box *geos.Box2D) []feature.ID {
	if box == nil {
		return nil
	}
	b := &geom.Bounds{
		Min: geom.Point{X: box.MinX, Y: box.MinY},
		Max: geom.Point{X: box.MaxX, Y: box.MaxY},
	}

	si.mu.Lock()
	hits := si.tree.SearchIntersect(b)
	si.mu.Unlock()

	ids := make([]feature.ID, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.(*indexedFeature).id)
	}
	return ids
}

// Len returns the number of indexed features.
func (si *SpatialIndex) Len() int {
	si.mu.Lock()
	defer si.mu.Unlock()
	return si.size
}

func extentBounds(ext feature.Extent) *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: ext.MinX, Y: ext.MinY},
		Max: geom.Point{X: ext.MaxX, Y: ext.MaxY},
	}
}

// BuildSpatialIndex indexes every feature of src matching req. Features that
// cannot be decoded are logged and left out; the job that fetches them later
// records the feature error.
func BuildSpatialIndex(src feature.Source, req feature.Request, log logrus.FieldLogger) *SpatialIndex {
	si := NewSpatialIndex()
	skipped := 0
	for f := range src.Features(req) {
		added, err := si.AddFeature(f)
		if err != nil {
			log.WithFields(logrus.Fields{"layer": src.Name(), "feature": f.ID}).Warnf("not indexed: %v", err)
		}
		if !added {
			skipped++
		}
	}
	log.WithFields(logrus.Fields{
		"layer":   src.Name(),
		"indexed": si.Len(),
		"skipped": skipped,
	}).Debug("spatial index built")
	return si
}
