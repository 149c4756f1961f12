package tools

import (
	"github.com/bsaid97/go-geoprocessing/attributes"
	"github.com/bsaid97/go-geoprocessing/feature"
	"github.com/bsaid97/go-geoprocessing/utils"
	"github.com/twpayne/go-geos"
)

// DissolveOptions configure NewDissolve. A non-zero BufferDistance buffers
// every member before the union.
type DissolveOptions struct {
	ClusterOptions
	AllowMultipart bool
	BufferDistance float64
	BufferStyle    utils.BufferOptions
}

type dissolve struct {
	*clusterTool
	opts DissolveOptions
}

// NewDissolve unions each cluster into one feature, or into one feature per
// connected part when AllowMultipart is false.
func NewDissolve(src feature.Source, sink feature.Sink, opts DissolveOptions, toolOpts ...Option) *Tool {
	d := &dissolve{clusterTool: newClusterTool(src, opts.ClusterOptions), opts: opts}
	return NewTool(Strategy{
		Name:    "dissolve",
		Fields:  src.Fields(),
		CRS:     src.CRS(),
		Prepare: d.prepare,
		Process: d.process,
	}, sink, toolOpts...)
}

func (d *dissolve) process(jc *JobContext, job Job) {
	members := d.members(jc, job)
	if len(members) == 0 {
		return
	}

	if d.opts.BufferDistance != 0 {
		for i := range members {
			buffered, err := utils.Buffer(jc.Geos, members[i].g, d.opts.BufferDistance, d.opts.BufferStyle)
			if err != nil {
				jc.GeometryError(err.Error(), members[i].ref)
				return
			}
			members[i].g = buffered
		}
	}

	union, err := unionMembers(jc, members)
	if err != nil {
		jc.GeometryError(err.Error(), memberRefs(members)...)
		return
	}

	if d.opts.AllowMultipart {
		emitPolygonal(jc, union, true, d.summarize(members))
		return
	}

	parts := utils.PolygonParts(union)
	for i, assigned := range assignToParts(parts, members) {
		attrs := d.summarize(assigned)
		if len(assigned) == 0 {
			attrs = d.keyOnly(members[0])
		}
		emitPolygonal(jc, parts[i], false, attrs)
	}
}

// keyOnly is the attribute row of a part no member was assigned to: nulls,
// except the group field.
func (d *dissolve) keyOnly(m member) []any {
	out := d.summarize(nil)
	if d.opts.Grouping.Mode != attributes.GroupByField {
		return out
	}
	if i := d.src.Fields().IndexOf(d.opts.Grouping.Field); i >= 0 && i < len(m.f.Attributes) {
		out[i] = m.f.Attributes[i]
	}
	return out
}

// assignToParts gives every member to the part that contains it: bounding
// box first, then an exact test. A member contained by no part (it straddles
// parts, or noding moved an edge) goes to the part holding its point on
// surface, else to the first part. Every member lands in exactly one part;
// a part may end up with none.
func assignToParts(parts []*geos.Geom, members []member) [][]member {
	assigned := make([][]member, len(parts))
	if len(parts) == 0 {
		return assigned
	}
	bounds := make([]*geos.Box2D, len(parts))
	for i, p := range parts {
		bounds[i] = p.Bounds()
	}

	for _, m := range members {
		target := -1
		mb := m.g.Bounds()
		for i, p := range parts {
			if utils.BoxContains(bounds[i], mb) && p.Contains(m.g) {
				target = i
				break
			}
		}
		if target < 0 {
			pt := m.g.PointOnSurface()
			for i, p := range parts {
				if p.Contains(pt) {
					target = i
					break
				}
			}
		}
		if target < 0 {
			target = 0
		}
		assigned[target] = append(assigned[target], m)
	}
	return assigned
}
