package tools

import (
	"github.com/bsaid97/go-geoprocessing/feature"
	"github.com/bsaid97/go-geoprocessing/utils"
)

// NewUnion splits A and B into the parts covered by only one layer and the
// parts covered by both. Single-layer parts carry nulls for the other layer's
// fields; overlaps carry both rows.
func NewUnion(a, b feature.Source, sink feature.Sink, opts OverlayOptions, toolOpts ...Option) *Tool {
	o := newOverlay(a, b, opts)
	return NewTool(o.strategy("union", true, o.union), sink, toolOpts...)
}

func (o *overlay) union(jc *JobContext, job Job) {
	own, other, index := o.layers(job.Task)
	f, g, ok := jc.FeatureAt(own, job.FeatureID)
	if !ok {
		return
	}
	ref := refOf(own, f.ID)
	multi := utils.IsMulti(g)
	candidates := jc.Candidates(index, other, g, ref)

	if rest, ok := subtractAll(jc, g, candidates, ref, other); ok {
		emitPolygonal(jc, rest, multi, o.attrs(job.Task, f.Attributes, nil))
	}

	// Overlaps are emitted by the A side only so each is written once.
	if job.Task != TaskLayerA {
		return
	}
	for _, c := range candidates {
		inter, err := utils.Intersection(g, c.Geom)
		if err != nil {
			jc.GeometryError(err.Error(), ref, refOf(other, c.Feature.ID))
			continue
		}
		emitPolygonal(jc, inter, multi, o.combiner.Combine(f.Attributes, c.Feature.Attributes))
	}
}
