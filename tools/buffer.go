package tools

import (
	"context"
	"fmt"
	"slices"

	"github.com/bsaid97/go-geoprocessing/feature"
	"github.com/bsaid97/go-geoprocessing/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// BufferSide picks the side of a single-sided buffer.
type BufferSide int

const (
	SideLeft BufferSide = iota
	SideRight
)

// BufferOptions configure NewBuffer. DistanceField, when set, names a numeric
// attribute that overrides Distance per feature.
type BufferOptions struct {
	Distance      float64
	DistanceField string
	Style         utils.BufferOptions
	Side          BufferSide
	SelectedOnly  bool
}

type buffer struct {
	src        feature.Source
	opts       BufferOptions
	fieldIndex int
}

// NewBuffer writes one buffered feature per input feature.
func NewBuffer(src feature.Source, sink feature.Sink, opts BufferOptions, toolOpts ...Option) (*Tool, error) {
	b := &buffer{src: src, opts: opts, fieldIndex: -1}
	if opts.DistanceField != "" {
		b.fieldIndex = src.Fields().IndexOf(opts.DistanceField)
		if b.fieldIndex < 0 {
			return nil, fmt.Errorf("distance field %q not found", opts.DistanceField)
		}
	}
	return NewTool(Strategy{
		Name:    "buffer",
		Fields:  src.Fields(),
		CRS:     src.CRS(),
		Prepare: b.prepare,
		Process: b.process,
	}, sink, toolOpts...), nil
}

func (b *buffer) prepare(ctx context.Context, _ logrus.FieldLogger) ([]Job, error) {
	var jobs []Job
	for _, id := range feature.CollectIDs(b.src, feature.Request{SelectedOnly: b.opts.SelectedOnly}) {
		jobs = append(jobs, Job{FeatureID: id, Task: TaskLayerA})
	}
	return jobs, ctx.Err()
}

func (b *buffer) process(jc *JobContext, job Job) {
	f, g, ok := jc.FeatureAt(b.src, job.FeatureID)
	if !ok {
		return
	}
	ref := refOf(b.src, f.ID)

	distance := b.opts.Distance
	if b.fieldIndex >= 0 {
		d, err := cast.ToFloat64E(f.Attribute(b.fieldIndex))
		if err != nil || f.Attribute(b.fieldIndex) == nil {
			jc.GeometryError(fmt.Sprintf("invalid buffer distance %v", f.Attribute(b.fieldIndex)), ref)
			return
		}
		distance = d
	}
	if b.opts.Style.SingleSided && b.opts.Side == SideRight {
		distance = -distance
	}

	out, err := utils.Buffer(jc.Geos, g, distance, b.opts.Style)
	if err != nil {
		jc.GeometryError(err.Error(), ref)
		return
	}
	if out.IsEmpty() {
		jc.GeometryError("buffer result is empty", ref)
		return
	}
	polygonal, ok := utils.ToPolygonal(jc.Geos, out, utils.IsMulti(g))
	if !ok {
		jc.GeometryError("buffer result is not polygonal", ref)
		return
	}
	jc.Emit(polygonal, slices.Clone(f.Attributes))
}
