package tools

import (
	"context"
	"slices"

	"github.com/bsaid97/go-geoprocessing/attributes"
	"github.com/bsaid97/go-geoprocessing/feature"
	"github.com/bsaid97/go-geoprocessing/utils"
	"github.com/sirupsen/logrus"
	"github.com/twpayne/go-geos"
)

// ClusterOptions configure the tools that process groups of features as one
// unit.
type ClusterOptions struct {
	Grouping          attributes.Grouping
	NumericSummary    attributes.Summarizer
	NonNumericSummary attributes.Summarizer
	SelectedOnly      bool
}

// clusterTool holds the clusters built in prepare. Fields excluded from
// summarizing (primary keys and the group field) keep the first member's value.
type clusterTool struct {
	src      feature.Source
	opts     ClusterOptions
	clusters attributes.Clusters
	excluded map[int]bool
}

func newClusterTool(src feature.Source, opts ClusterOptions) *clusterTool {
	excluded := make(map[int]bool)
	for _, i := range src.Fields().PrimaryKeys() {
		excluded[i] = true
	}
	if opts.Grouping.Mode == attributes.GroupByField {
		if i := src.Fields().IndexOf(opts.Grouping.Field); i >= 0 {
			excluded[i] = true
		}
	}
	return &clusterTool{src: src, opts: opts, excluded: excluded}
}

func (c *clusterTool) prepare(ctx context.Context, log logrus.FieldLogger) ([]Job, error) {
	clusters, err := attributes.GroupFeatures(c.src, c.opts.Grouping, c.opts.SelectedOnly)
	if err != nil {
		return nil, err
	}
	c.clusters = clusters

	keys := make([]string, 0, len(clusters))
	for key := range clusters {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	jobs := make([]Job, 0, len(keys))
	for _, key := range keys {
		jobs = append(jobs, Job{FeatureID: clusters[key][0], Task: TaskCluster, Cluster: key})
	}
	log.WithField("clusters", len(jobs)).Debug("features grouped")
	return jobs, ctx.Err()
}

type member struct {
	f   feature.Feature
	g   *geos.Geom
	ref feature.Ref
}

// members fetches the features of a cluster, skipping those that fail.
func (c *clusterTool) members(jc *JobContext, job Job) []member {
	ids := c.clusters[job.Cluster]
	out := make([]member, 0, len(ids))
	for _, id := range ids {
		f, g, ok := jc.FeatureAt(c.src, id)
		if !ok {
			continue
		}
		out = append(out, member{f: f, g: g, ref: refOf(c.src, id)})
	}
	return out
}

func (c *clusterTool) summarize(members []member) []any {
	sets := make([][]any, len(members))
	for i, m := range members {
		sets[i] = m.f.Attributes
	}
	return attributes.SummarizeAttributes(c.src.Fields(), sets, c.opts.NumericSummary, c.opts.NonNumericSummary, c.excluded)
}

func memberRefs(members []member) []feature.Ref {
	refs := make([]feature.Ref, len(members))
	for i, m := range members {
		refs[i] = m.ref
	}
	return refs
}

// unionMembers computes the unary union of the member geometries, falling
// back to a pairwise cascaded union when the unary union fails.
func unionMembers(jc *JobContext, members []member) (*geos.Geom, error) {
	geoms := make([]*geos.Geom, len(members))
	for i, m := range members {
		geoms[i] = m.g
	}
	u, err := utils.UnionAll(jc.Geos, geoms)
	if err == nil {
		return u, nil
	}
	jc.Log.WithError(err).Debug("unary union failed, retrying pairwise")
	return utils.CascadedUnion(geoms)
}
