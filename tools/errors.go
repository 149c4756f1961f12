package tools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bsaid97/go-geoprocessing/feature"
)

var (
	// ErrNotInitialized is returned by Execute before Init has completed.
	ErrNotInitialized = errors.New("tool not initialized")
	// ErrAlreadyFinalized is returned by a second FinalizeOutput call.
	ErrAlreadyFinalized = errors.New("output already finalized")
	// ErrJobFailed is returned by a phase in which at least one job panicked.
	ErrJobFailed = errors.New("job failed")
	// ErrCancelled is returned by a phase that was cancelled.
	ErrCancelled = errors.New("cancelled")
)

// Error is a feature or geometry error. It always names at least one feature.
type Error struct {
	Refs    []feature.Ref `json:"features" yaml:"features"`
	Message string        `json:"message" yaml:"message"`
}

func (e Error) Error() string {
	refs := make([]string, len(e.Refs))
	for i, r := range e.Refs {
		refs[i] = r.String()
	}
	return fmt.Sprintf("%s [%s]", e.Message, strings.Join(refs, ", "))
}

// Report summarizes the outcome of a run.
type Report struct {
	Tool           string   `json:"tool" yaml:"tool"`
	Aborted        bool     `json:"aborted" yaml:"aborted"`
	FeatureErrors  []Error  `json:"featureErrors,omitempty" yaml:"feature_errors,omitempty"`
	GeometryErrors []Error  `json:"geometryErrors,omitempty" yaml:"geometry_errors,omitempty"`
	WriteErrors    []string `json:"writeErrors,omitempty" yaml:"write_errors,omitempty"`
	Exceptions     []string `json:"exceptions,omitempty" yaml:"exceptions,omitempty"`
}
