package tools

import (
	"context"

	"github.com/bsaid97/go-geoprocessing/attributes"
	"github.com/bsaid97/go-geoprocessing/feature"
	"github.com/bsaid97/go-geoprocessing/utils"
	"github.com/sirupsen/logrus"
	"github.com/twpayne/go-geos"
)

// OverlayOptions configure the two-layer tools.
type OverlayOptions struct {
	OutputFields attributes.OutputFields
	OutputCRS    attributes.OutputCRS
	// SelectedOnly restricts layer A to its selection.
	SelectedOnly bool
}

// overlay is the state shared by the two-layer tools. The indices are built
// in prepare and only read afterwards.
type overlay struct {
	a, b     feature.Source
	opts     OverlayOptions
	combiner *attributes.Combiner
	indexA   *utils.SpatialIndex
	indexB   *utils.SpatialIndex
}

func newOverlay(a, b feature.Source, opts OverlayOptions) *overlay {
	return &overlay{
		a:        a,
		b:        b,
		opts:     opts,
		combiner: attributes.NewCombiner(a.Fields(), b.Fields(), opts.OutputFields),
	}
}

func (o *overlay) crs() string {
	if o.opts.OutputCRS == attributes.CRSFromB {
		return o.b.CRS()
	}
	return o.a.CRS()
}

func (o *overlay) strategy(name string, bothLayers bool, process func(*JobContext, Job)) Strategy {
	return Strategy{
		Name:    name,
		Phases:  1,
		Fields:  o.combiner.Fields(),
		CRS:     o.crs(),
		Prepare: o.prepare(bothLayers),
		Process: process,
	}
}

// prepare queues one job per feature of A, and of B too when bothLayers is
// set, and indexes the layer(s) the jobs are tested against.
func (o *overlay) prepare(bothLayers bool) func(context.Context, logrus.FieldLogger) ([]Job, error) {
	return func(ctx context.Context, log logrus.FieldLogger) ([]Job, error) {
		reqA := feature.Request{SelectedOnly: o.opts.SelectedOnly}

		var jobs []Job
		for _, id := range feature.CollectIDs(o.a, reqA) {
			jobs = append(jobs, Job{FeatureID: id, Task: TaskLayerA})
		}
		o.indexB = utils.BuildSpatialIndex(o.b, feature.Request{}, log)

		if bothLayers {
			for _, id := range feature.CollectIDs(o.b, feature.Request{}) {
				jobs = append(jobs, Job{FeatureID: id, Task: TaskLayerB})
			}
			o.indexA = utils.BuildSpatialIndex(o.a, reqA, log)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return jobs, nil
	}
}

// layers returns the job's own layer, the other layer and the other layer's
// index.
func (o *overlay) layers(task Task) (own, other feature.Source, index *utils.SpatialIndex) {
	if task == TaskLayerB {
		return o.b, o.a, o.indexA
	}
	return o.a, o.b, o.indexB
}

// attrs combines a job feature's own row with a row of the other layer,
// keeping A before B whichever layer drives the job.
func (o *overlay) attrs(task Task, own, other []any) []any {
	if task == TaskLayerB {
		return o.combiner.Combine(other, own)
	}
	return o.combiner.Combine(own, other)
}

// subtractAll removes every candidate from g. ok is false when a difference
// failed; the geometry error has been recorded.
func subtractAll(jc *JobContext, g *geos.Geom, candidates []Candidate, self feature.Ref, other feature.Source) (*geos.Geom, bool) {
	result := g
	for _, c := range candidates {
		diff, err := utils.Difference(result, c.Geom)
		if err != nil {
			jc.GeometryError(err.Error(), self, refOf(other, c.Feature.ID))
			return nil, false
		}
		result = diff
		if result.IsEmpty() {
			break
		}
	}
	return result, true
}

// emitPolygonal writes the polygonal part of g. Results with no polygonal
// part left (empty, or only the lines and points of a touch) are dropped.
func emitPolygonal(jc *JobContext, g *geos.Geom, multi bool, attrs []any) {
	if g == nil || g.IsEmpty() {
		return
	}
	out, ok := utils.ToPolygonal(jc.Geos, g, multi)
	if !ok {
		jc.Log.Debug("dropping result without polygonal parts")
		return
	}
	jc.Emit(out, attrs)
}

func refOf(src feature.Source, id feature.ID) feature.Ref {
	return feature.Ref{Layer: src.Name(), ID: id}
}
