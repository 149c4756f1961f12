package tools

import (
	"github.com/bsaid97/go-geoprocessing/feature"
	"github.com/bsaid97/go-geoprocessing/utils"
	"github.com/twpayne/go-geos"
)

// NewConvexHull writes the convex hull of every cluster.
func NewConvexHull(src feature.Source, sink feature.Sink, opts ClusterOptions, toolOpts ...Option) *Tool {
	c := newClusterTool(src, opts)
	return NewTool(Strategy{
		Name:    "convexhull",
		Fields:  src.Fields(),
		CRS:     src.CRS(),
		Prepare: c.prepare,
		Process: c.convexHull,
	}, sink, toolOpts...)
}

func (c *clusterTool) convexHull(jc *JobContext, job Job) {
	members := c.members(jc, job)
	if len(members) == 0 {
		return
	}
	refs := memberRefs(members)

	union, err := unionMembers(jc, members)
	if err != nil {
		jc.GeometryError(err.Error(), refs...)
		return
	}
	hull, err := utils.SafeOp("convex hull", union.ConvexHull)
	if err != nil {
		jc.GeometryError(err.Error(), refs...)
		return
	}
	if hull.TypeID() != geos.TypeIDPolygon {
		jc.GeometryError("convex hull is not a polygon", refs...)
		return
	}
	jc.Emit(hull, c.summarize(members))
}
