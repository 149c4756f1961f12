package tools

import (
	"slices"
	"sync"

	"github.com/bsaid97/go-geoprocessing/feature"
)

// GeomIdx names one polygon part of one feature.
type GeomIdx struct {
	Feature feature.ID
	Part    int
}

// MergeGroup lists the parts, by feature, that are unioned into a target.
type MergeGroup map[feature.ID]map[int]struct{}

func (g MergeGroup) add(idx GeomIdx) {
	parts, ok := g[idx.Feature]
	if !ok {
		parts = make(map[int]struct{})
		g[idx.Feature] = parts
	}
	parts[idx.Part] = struct{}{}
}

// Len returns the number of parts in the group.
func (g MergeGroup) Len() int {
	n := 0
	for _, parts := range g {
		n += len(parts)
	}
	return n
}

// MergeGraph records which parts are merged into which targets while
// slivers are detected concurrently. A part merged away is redirected to the
// root it was merged into and is never a target again.
type MergeGraph struct {
	mu       sync.Mutex
	targets  map[feature.ID]map[int]MergeGroup
	redirect map[GeomIdx]GeomIdx
}

func NewMergeGraph() *MergeGraph {
	return &MergeGraph{
		targets:  make(map[feature.ID]map[int]MergeGroup),
		redirect: make(map[GeomIdx]GeomIdx),
	}
}

// AddTarget registers idx as a target with an empty group. Existing groups
// and redirected parts are left alone.
func (m *MergeGraph) AddTarget(idx GeomIdx) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, gone := m.redirect[idx]; gone {
		return
	}
	m.group(idx)
}

// group returns the group of idx, registering idx as a target if needed.
func (m *MergeGraph) group(idx GeomIdx) MergeGroup {
	parts, ok := m.targets[idx.Feature]
	if !ok {
		parts = make(map[int]MergeGroup)
		m.targets[idx.Feature] = parts
	}
	g, ok := parts[idx.Part]
	if !ok {
		g = make(MergeGroup)
		parts[idx.Part] = g
	}
	return g
}

func (m *MergeGraph) resolve(idx GeomIdx) GeomIdx {
	for {
		next, ok := m.redirect[idx]
		if !ok {
			return idx
		}
		idx = next
	}
}

// Resolve returns the root idx has been merged into, or idx itself.
func (m *MergeGraph) Resolve(idx GeomIdx) GeomIdx {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolve(idx)
}

// Merge moves src, and everything already merged into it, into the root of
// dest. It reports false when nothing changed: src is already that root, or
// src was merged before.
func (m *MergeGraph) Merge(src, dest GeomIdx) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	root := m.resolve(dest)
	if root == src {
		return false
	}
	if _, gone := m.redirect[src]; gone {
		return false
	}

	rootGroup := m.group(root)
	if parts, ok := m.targets[src.Feature]; ok {
		for fid, members := range parts[src.Part] {
			for part := range members {
				idx := GeomIdx{Feature: fid, Part: part}
				rootGroup.add(idx)
				m.redirect[idx] = root
			}
		}
		delete(parts, src.Part)
		if len(parts) == 0 {
			delete(m.targets, src.Feature)
		}
	}
	rootGroup.add(src)
	m.redirect[src] = root
	return true
}

// Absorbed reports whether idx was merged into another part.
func (m *MergeGraph) Absorbed(idx GeomIdx) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, gone := m.redirect[idx]
	return gone
}

// Group returns a copy of the group of target idx, or nil if idx is not a
// target.
func (m *MergeGraph) Group(idx GeomIdx) MergeGroup {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.targets[idx.Feature][idx.Part]
	if !ok {
		return nil
	}
	out := make(MergeGroup, len(g))
	for fid, parts := range g {
		cp := make(map[int]struct{}, len(parts))
		for p := range parts {
			cp[p] = struct{}{}
		}
		out[fid] = cp
	}
	return out
}

// TargetFeatures returns, in id order, the features owning at least one
// target.
func (m *MergeGraph) TargetFeatures() []feature.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]feature.ID, 0, len(m.targets))
	for id := range m.targets {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// TargetsOf returns the target parts of a feature in part order.
func (m *MergeGraph) TargetsOf(id feature.ID) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	parts := make([]int, 0, len(m.targets[id]))
	for p := range m.targets[id] {
		parts = append(parts, p)
	}
	slices.Sort(parts)
	return parts
}

// Merged returns the number of parts merged into another part.
func (m *MergeGraph) Merged() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redirect)
}
