package tools

import (
	"github.com/bsaid97/go-geoprocessing/attributes"
	"github.com/bsaid97/go-geoprocessing/feature"
	"github.com/bsaid97/go-geoprocessing/utils"
)

// NewDifference writes what is left of every A feature once all intersecting
// B features are removed. The output keeps A's schema.
func NewDifference(a, b feature.Source, sink feature.Sink, opts OverlayOptions, toolOpts ...Option) *Tool {
	opts.OutputFields = attributes.FieldsA
	o := newOverlay(a, b, opts)
	return NewTool(o.strategy("difference", false, o.difference), sink, toolOpts...)
}

func (o *overlay) difference(jc *JobContext, job Job) {
	f, g, ok := jc.FeatureAt(o.a, job.FeatureID)
	if !ok {
		return
	}
	ref := refOf(o.a, f.ID)
	rest, ok := subtractAll(jc, g, jc.Candidates(o.indexB, o.b, g, ref), ref, o.b)
	if !ok {
		return
	}
	emitPolygonal(jc, rest, utils.IsMulti(g), o.combiner.Combine(f.Attributes, nil))
}
