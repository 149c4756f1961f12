package feature

import (
	"iter"
	"slices"
	"sync"
)

// Request filters a feature iteration.
type Request struct {
	// IDs restricts the iteration to the listed features when non-empty.
	IDs []ID
	// SelectedOnly restricts the iteration to the source's selection.
	SelectedOnly bool
	// NoGeometry drops geometries from the yielded features.
	NoGeometry bool
}

// Source is a read-only collection of features.
type Source interface {
	Name() string
	Fields() Fields
	CRS() string
	// Feature fetches a single feature by id.
	Feature(id ID) (Feature, bool)
	// Features iterates the features matching req in id order.
	Features(req Request) iter.Seq[Feature]
	// Selection returns the ids of the pre-selected features.
	Selection() []ID
}

// MemorySource is a Source backed by a map. It is safe for concurrent reads;
// Add and Select must happen before the source is handed to a tool.
type MemorySource struct {
	name     string
	fields   Fields
	crs      string
	mu       sync.RWMutex
	features map[ID]Feature
	order    []ID
	selected map[ID]struct{}
}

// NewMemorySource creates an empty source with the given schema.
func NewMemorySource(name string, fields Fields, crs string) *MemorySource {
	return &MemorySource{
		name:     name,
		fields:   fields,
		crs:      crs,
		features: make(map[ID]Feature),
		selected: make(map[ID]struct{}),
	}
}

// Add stores f, replacing any feature with the same id.
func (s *MemorySource) Add(f Feature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.features[f.ID]; !ok {
		pos, _ := slices.BinarySearch(s.order, f.ID)
		s.order = slices.Insert(s.order, pos, f.ID)
	}
	s.features[f.ID] = f
}

// Select marks the given ids as selected.
func (s *MemorySource) Select(ids ...ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.selected[id] = struct{}{}
	}
}

func (s *MemorySource) Name() string   { return s.name }
func (s *MemorySource) Fields() Fields { return s.fields }
func (s *MemorySource) CRS() string    { return s.crs }

// Len returns the number of stored features.
func (s *MemorySource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *MemorySource) Feature(id ID) (Feature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.features[id]
	return f, ok
}

func (s *MemorySource) Selection() []ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]ID, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *MemorySource) Features(req Request) iter.Seq[Feature] {
	return func(yield func(Feature) bool) {
		s.mu.RLock()
		ids := s.order
		if len(req.IDs) > 0 {
			ids = slices.Clone(req.IDs)
			slices.Sort(ids)
		}
		matched := make([]Feature, 0, len(ids))
		for _, id := range ids {
			f, ok := s.features[id]
			if !ok {
				continue
			}
			if req.SelectedOnly {
				if _, sel := s.selected[id]; !sel {
					continue
				}
			}
			if req.NoGeometry {
				f.Geometry = nil
			}
			matched = append(matched, f)
		}
		s.mu.RUnlock()

		for _, f := range matched {
			if !yield(f) {
				return
			}
		}
	}
}

// CollectIDs returns the ids of all features of src matching req.
func CollectIDs(src Source, req Request) []ID {
	req.NoGeometry = true
	var ids []ID
	for f := range src.Features(req) {
		ids = append(ids, f.ID)
	}
	return ids
}
