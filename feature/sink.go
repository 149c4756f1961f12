package feature

import (
	"errors"
	"sync"
)

// ErrSinkClosed is returned when writing to a sink after Close or Discard.
var ErrSinkClosed = errors.New("sink closed")

// Sink receives the features produced by a tool run.
type Sink interface {
	// Open announces the output schema and coordinate reference system.
	Open(fields Fields, crs string) error
	// AddFeature writes one feature. A non-nil error is a write error; the run
	// continues.
	AddFeature(f Feature) error
	// Close flushes and releases the sink.
	Close() error
	// Discard releases the sink and drops everything written so far.
	Discard() error
}

// MemorySink collects features in memory.
type MemorySink struct {
	mu        sync.Mutex
	fields    Fields
	crs       string
	features  []Feature
	closed    bool
	discarded bool
	nextID    ID
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Open(fields Fields, crs string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = fields
	s.crs = crs
	return nil
}

// AddFeature stores f under a fresh sequential id.
func (s *MemorySink) AddFeature(f Feature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	f.ID = s.nextID
	s.nextID++
	s.features = append(s.features, f)
	return nil
}

func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemorySink) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.discarded = true
	s.features = nil
	return nil
}

// Features returns a copy of the written features.
func (s *MemorySink) Features() []Feature {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Feature(nil), s.features...)
}

func (s *MemorySink) Fields() Fields {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fields
}

func (s *MemorySink) CRS() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crs
}

// Discarded reports whether Discard was called.
func (s *MemorySink) Discarded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discarded
}

// Source exposes the written features as a read-only Source so a run can be
// fed into another tool.
func (s *MemorySink) Source(name string) *MemorySource {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := NewMemorySource(name, s.fields, s.crs)
	for _, f := range s.features {
		src.Add(f)
	}
	return src
}
