package tools

import (
	"context"
	"fmt"
	"slices"

	"github.com/bsaid97/go-geoprocessing/feature"
	"github.com/bsaid97/go-geoprocessing/utils"
	"github.com/sirupsen/logrus"
	"github.com/twpayne/go-geos"
)

// jobResult is everything one job hands back to the aggregator.
type jobResult struct {
	job            Job
	outputs        []feature.Feature
	featureErrors  []Error
	geometryErrors []Error
	panic          string
	skipped        bool
}

// JobContext is the per-job view of a running phase. Geometries created on
// Geos belong to the job and must not outlive it.
type JobContext struct {
	Context context.Context
	Geos    *geos.Context
	Phase   int
	Log     logrus.FieldLogger

	result *jobResult
}

// FeatureAt fetches a feature and decodes its geometry. When the feature is
// missing, has no geometry or cannot be decoded, a feature error is recorded
// and ok is false; the caller should skip it.
func (jc *JobContext) FeatureAt(src feature.Source, id feature.ID) (f feature.Feature, g *geos.Geom, ok bool) {
	ref := feature.Ref{Layer: src.Name(), ID: id}
	f, found := src.Feature(id)
	if !found {
		jc.FeatureError("feature not found", ref)
		return f, nil, false
	}
	if !f.HasGeometry() {
		jc.FeatureError("feature has no geometry", ref)
		return f, nil, false
	}
	g, err := jc.Geos.NewGeomFromWKB(f.Geometry)
	if err != nil {
		jc.FeatureError(fmt.Sprintf("invalid geometry: %v", err), ref)
		return f, nil, false
	}
	if g.IsEmpty() {
		jc.FeatureError("feature has an empty geometry", ref)
		return f, nil, false
	}
	return f, g, true
}

// FeatureError records a failure to fetch an input feature.
func (jc *JobContext) FeatureError(message string, refs ...feature.Ref) {
	jc.result.featureErrors = append(jc.result.featureErrors, Error{Refs: refs, Message: message})
}

// GeometryError records a null, invalid or unexpectedly empty result.
func (jc *JobContext) GeometryError(message string, refs ...feature.Ref) {
	jc.result.geometryErrors = append(jc.result.geometryErrors, Error{Refs: refs, Message: message})
}

// Emit queues an output feature. The geometry is encoded immediately so
// nothing from the job's GEOS context crosses the job boundary.
func (jc *JobContext) Emit(g *geos.Geom, attrs []any) {
	out := feature.Feature{Attributes: attrs}
	if g != nil {
		out.Geometry = g.ToWKB()
	}
	jc.result.outputs = append(jc.result.outputs, out)
}

// Outputs returns the number of features emitted so far.
func (jc *JobContext) Outputs() int {
	return len(jc.result.outputs)
}

// Candidate is a feature of the other layer whose geometry truly intersects
// the job geometry.
type Candidate struct {
	Feature feature.Feature
	Geom    *geos.Geom
}

// Candidates queries index with the bounding box of g and keeps the features
// of src that exactly intersect it. Candidates that cannot be fetched are
// recorded as feature errors; failed intersects tests as geometry errors.
func (jc *JobContext) Candidates(index *utils.SpatialIndex, src feature.Source, g *geos.Geom, self feature.Ref) []Candidate {
	ids := index.Intersects(g.Bounds())
	if len(ids) == 0 {
		return nil
	}
	slices.Sort(ids)
	prepared := g.Prepare()
	candidates := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		f, cg, ok := jc.FeatureAt(src, id)
		if !ok {
			continue
		}
		hit, err := utils.SafeIntersects(prepared, cg)
		if err != nil {
			jc.GeometryError(err.Error(), self, feature.Ref{Layer: src.Name(), ID: id})
			continue
		}
		if hit {
			candidates = append(candidates, Candidate{Feature: f, Geom: cg})
		}
	}
	return candidates
}
