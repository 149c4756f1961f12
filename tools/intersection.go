package tools

import (
	"github.com/bsaid97/go-geoprocessing/feature"
	"github.com/bsaid97/go-geoprocessing/utils"
)

// NewIntersection writes the overlap of every A feature with every B feature
// it intersects, with attributes combined per opts.OutputFields.
func NewIntersection(a, b feature.Source, sink feature.Sink, opts OverlayOptions, toolOpts ...Option) *Tool {
	o := newOverlay(a, b, opts)
	return NewTool(o.strategy("intersection", false, o.intersection), sink, toolOpts...)
}

func (o *overlay) intersection(jc *JobContext, job Job) {
	fa, ga, ok := jc.FeatureAt(o.a, job.FeatureID)
	if !ok {
		return
	}
	refA := refOf(o.a, fa.ID)
	multi := utils.IsMulti(ga)

	for _, c := range jc.Candidates(o.indexB, o.b, ga, refA) {
		refB := refOf(o.b, c.Feature.ID)
		inter, err := utils.Intersection(ga, c.Geom)
		if err != nil {
			jc.GeometryError(err.Error(), refA, refB)
			continue
		}
		if inter.IsEmpty() {
			jc.GeometryError("features intersect but their intersection is empty", refA, refB)
			continue
		}
		emitPolygonal(jc, inter, multi, o.combiner.Combine(fa.Attributes, c.Feature.Attributes))
	}
}
