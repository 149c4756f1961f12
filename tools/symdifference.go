package tools

import (
	"github.com/bsaid97/go-geoprocessing/feature"
	"github.com/bsaid97/go-geoprocessing/utils"
)

// NewSymDifference writes the parts of A and B covered by exactly one layer.
func NewSymDifference(a, b feature.Source, sink feature.Sink, opts OverlayOptions, toolOpts ...Option) *Tool {
	o := newOverlay(a, b, opts)
	return NewTool(o.strategy("symdifference", true, o.symDifference), sink, toolOpts...)
}

func (o *overlay) symDifference(jc *JobContext, job Job) {
	own, other, index := o.layers(job.Task)
	f, g, ok := jc.FeatureAt(own, job.FeatureID)
	if !ok {
		return
	}
	ref := refOf(own, f.ID)
	rest, ok := subtractAll(jc, g, jc.Candidates(index, other, g, ref), ref, other)
	if !ok {
		return
	}
	emitPolygonal(jc, rest, utils.IsMulti(g), o.attrs(job.Task, f.Attributes, nil))
}
