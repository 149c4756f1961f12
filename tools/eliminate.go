package tools

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bsaid97/go-geoprocessing/feature"
	"github.com/bsaid97/go-geoprocessing/utils"
	"github.com/sirupsen/logrus"
	"github.com/twpayne/go-geos"
)

// MergeMethod picks the neighbour a sliver is merged into.
type MergeMethod int

const (
	MergeLargestArea MergeMethod = iota
	MergeLongestBoundary
)

func (m MergeMethod) String() string {
	if m == MergeLongestBoundary {
		return "boundary"
	}
	return "area"
}

func ParseMergeMethod(s string) (MergeMethod, error) {
	switch strings.ToLower(s) {
	case "", "area":
		return MergeLargestArea, nil
	case "boundary":
		return MergeLongestBoundary, nil
	}
	return 0, fmt.Errorf("unknown merge method %q", s)
}

// EliminateOptions configure NewEliminateSlivers. Parts with an area below
// AreaThreshold are slivers. Tolerance is the distance within which two
// boundary segments count as shared.
type EliminateOptions struct {
	AreaThreshold float64
	Method        MergeMethod
	Tolerance     float64
	// SelectedOnly only eliminates slivers of selected features. Every
	// feature can still absorb one.
	SelectedOnly bool
}

const defaultBoundaryTolerance = 1e-9

type eliminate struct {
	src      feature.Source
	opts     EliminateOptions
	index    *utils.SpatialIndex
	graph    *MergeGraph
	selected map[feature.ID]bool
}

// NewEliminateSlivers merges every sliver part into the neighbouring part
// with the largest area or the longest shared boundary. Phase 0 detects
// slivers and records merges; phase 1 unions every target with the parts
// merged into it.
func NewEliminateSlivers(src feature.Source, sink feature.Sink, opts EliminateOptions, toolOpts ...Option) *Tool {
	if opts.Tolerance <= 0 {
		opts.Tolerance = defaultBoundaryTolerance
	}
	e := &eliminate{src: src, opts: opts, graph: NewMergeGraph()}
	return NewTool(Strategy{
		Name:    "eliminate",
		Phases:  2,
		Fields:  src.Fields(),
		CRS:     src.CRS(),
		Prepare: e.prepare,
		Plan:    e.plan,
		Process: e.process,
	}, sink, toolOpts...)
}

func (e *eliminate) prepare(ctx context.Context, log logrus.FieldLogger) ([]Job, error) {
	e.index = utils.BuildSpatialIndex(e.src, feature.Request{}, log)
	if e.opts.SelectedOnly {
		e.selected = make(map[feature.ID]bool)
		for _, id := range e.src.Selection() {
			e.selected[id] = true
		}
	}
	var jobs []Job
	for _, id := range feature.CollectIDs(e.src, feature.Request{}) {
		jobs = append(jobs, Job{FeatureID: id, Task: TaskDetect})
	}
	return jobs, ctx.Err()
}

// plan turns the resolved merge graph into one job per feature that still
// owns a target.
func (e *eliminate) plan(ctx context.Context, phase int, log logrus.FieldLogger) ([]Job, error) {
	ids := e.graph.TargetFeatures()
	jobs := make([]Job, len(ids))
	for i, id := range ids {
		jobs[i] = Job{FeatureID: id, Task: TaskMerge}
	}
	log.WithFields(logrus.Fields{"merged": e.graph.Merged(), "targets": len(ids)}).Debug("merge graph resolved")
	return jobs, ctx.Err()
}

func (e *eliminate) process(jc *JobContext, job Job) {
	switch job.Task {
	case TaskDetect:
		e.detect(jc, job)
	case TaskMerge:
		e.merge(jc, job)
	}
}

func (e *eliminate) detect(jc *JobContext, job Job) {
	f, g, ok := jc.FeatureAt(e.src, job.FeatureID)
	if !ok {
		return
	}
	parts := utils.PolygonParts(g)
	if len(parts) == 0 {
		// Nothing to eliminate or absorb; the feature is written unchanged.
		jc.Emit(g, slices.Clone(f.Attributes))
		return
	}
	for i := range parts {
		e.graph.AddTarget(GeomIdx{Feature: f.ID, Part: i})
	}
	if e.opts.SelectedOnly && !e.selected[f.ID] {
		return
	}

	fetched := map[feature.ID][]*geos.Geom{f.ID: parts}
	for i, part := range parts {
		if part.Area() >= e.opts.AreaThreshold {
			continue
		}
		src := GeomIdx{Feature: f.ID, Part: i}
		if dest, ok := e.bestTarget(jc, src, part, fetched); ok {
			e.graph.Merge(src, dest)
		}
	}
}

// bestTarget picks the part sharing boundary with the sliver that has the
// largest area or the longest shared boundary. Slivers are valid targets; the
// merge graph follows them to their own target. Ties go to the first part in
// (feature, part) order. fetched caches the parts of candidate features for
// the duration of the job.
func (e *eliminate) bestTarget(jc *JobContext, src GeomIdx, sliver *geos.Geom, fetched map[feature.ID][]*geos.Geom) (GeomIdx, bool) {
	ids := e.index.Intersects(sliver.Bounds())
	slices.Sort(ids)

	var (
		best  GeomIdx
		score float64
		found bool
	)
	for _, id := range ids {
		parts, ok := e.partsOf(jc, id, fetched)
		if !ok {
			continue
		}
		for i, part := range parts {
			if id == src.Feature && i == src.Part {
				continue
			}
			shared := utils.SharedBoundaryLength(sliver, part, e.opts.Tolerance)
			if shared <= 0 {
				continue
			}
			s := part.Area()
			if e.opts.Method == MergeLongestBoundary {
				s = shared
			}
			if !found || s > score {
				best, score, found = GeomIdx{Feature: id, Part: i}, s, true
			}
		}
	}
	return best, found
}

func (e *eliminate) partsOf(jc *JobContext, id feature.ID, fetched map[feature.ID][]*geos.Geom) ([]*geos.Geom, bool) {
	if parts, ok := fetched[id]; ok {
		return parts, parts != nil
	}
	_, g, ok := jc.FeatureAt(e.src, id)
	if !ok {
		fetched[id] = nil
		return nil, false
	}
	parts := utils.PolygonParts(g)
	fetched[id] = parts
	return parts, true
}

// merge rebuilds one feature from its surviving targets, each unioned with
// the parts merged into it. Member geometries are fetched again here; phase 0
// only recorded references.
func (e *eliminate) merge(jc *JobContext, job Job) {
	f, g, ok := jc.FeatureAt(e.src, job.FeatureID)
	if !ok {
		return
	}
	ref := refOf(e.src, f.ID)
	parts := utils.PolygonParts(g)
	fetched := map[feature.ID][]*geos.Geom{f.ID: parts}

	var out []*geos.Geom
	for _, pi := range e.graph.TargetsOf(f.ID) {
		if pi >= len(parts) {
			continue
		}
		group := e.graph.Group(GeomIdx{Feature: f.ID, Part: pi})
		if group.Len() == 0 {
			out = append(out, parts[pi])
			continue
		}

		geoms := []*geos.Geom{parts[pi]}
		refs := []feature.Ref{ref}
		members := make([]feature.ID, 0, len(group))
		for id := range group {
			members = append(members, id)
		}
		slices.Sort(members)
		for _, id := range members {
			memberParts, ok := e.partsOf(jc, id, fetched)
			if !ok {
				continue
			}
			if id != f.ID {
				refs = append(refs, refOf(e.src, id))
			}
			for p := range group[id] {
				if p < len(memberParts) {
					geoms = append(geoms, memberParts[p])
				}
			}
		}

		union, err := utils.UnionAll(jc.Geos, geoms)
		if err != nil {
			jc.GeometryError(err.Error(), refs...)
			out = append(out, parts[pi])
			continue
		}
		out = append(out, utils.PolygonParts(union)...)
	}
	if len(out) == 0 {
		return
	}

	clones := make([]*geos.Geom, len(out))
	for i, p := range out {
		clones[i] = p.Clone()
	}
	merged := jc.Geos.NewCollection(geos.TypeIDGeometryCollection, clones)
	emitPolygonal(jc, merged, utils.IsMulti(g), f.Attributes)
}

