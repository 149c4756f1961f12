// Package attributes builds the attribute rows of output features: combining
// the rows of two input layers, summarizing clusters, and grouping features
// into clusters.
package attributes

import (
	"fmt"
	"strings"

	"github.com/bsaid97/go-geoprocessing/feature"
)

// OutputFields selects which input schema an output feature inherits.
type OutputFields int

const (
	FieldsA OutputFields = iota
	FieldsB
	FieldsAandB
)

func (o OutputFields) String() string {
	switch o {
	case FieldsA:
		return "a"
	case FieldsB:
		return "b"
	case FieldsAandB:
		return "both"
	default:
		return "unknown"
	}
}

// ParseOutputFields accepts the names produced by String.
func ParseOutputFields(s string) (OutputFields, error) {
	switch strings.ToLower(s) {
	case "", "a":
		return FieldsA, nil
	case "b":
		return FieldsB, nil
	case "both", "ab", "aandb":
		return FieldsAandB, nil
	}
	return 0, fmt.Errorf("unknown output fields policy %q", s)
}

// OutputCRS selects which input layer's coordinate reference system the
// output inherits.
type OutputCRS int

const (
	CRSFromA OutputCRS = iota
	CRSFromB
)

func (o OutputCRS) String() string {
	if o == CRSFromB {
		return "b"
	}
	return "a"
}

func ParseOutputCRS(s string) (OutputCRS, error) {
	switch strings.ToLower(s) {
	case "", "a":
		return CRSFromA, nil
	case "b":
		return CRSFromB, nil
	}
	return 0, fmt.Errorf("unknown output crs policy %q", s)
}

// Combiner merges attribute rows of layer A and layer B under a fixed
// OutputFields policy.
type Combiner struct {
	policy OutputFields
	lenA   int
	lenB   int
	fields feature.Fields
}

// NewCombiner builds the output schema once. With FieldsAandB a B field whose
// name is already taken is renamed with the first free numeric suffix
// (name_1, name_2, ...).
func NewCombiner(a, b feature.Fields, policy OutputFields) *Combiner {
	c := &Combiner{policy: policy, lenA: len(a), lenB: len(b)}
	switch policy {
	case FieldsA:
		c.fields = append(feature.Fields(nil), a...)
	case FieldsB:
		c.fields = append(feature.Fields(nil), b...)
	default:
		c.fields = append(feature.Fields(nil), a...)
		taken := make(map[string]bool, len(a)+len(b))
		for _, f := range a {
			taken[f.Name] = true
		}
		for _, f := range b {
			name := f.Name
			for n := 1; taken[name]; n++ {
				name = fmt.Sprintf("%s_%d", f.Name, n)
			}
			taken[name] = true
			f.Name = name
			c.fields = append(c.fields, f)
		}
	}
	return c
}

// Fields returns the output schema.
func (c *Combiner) Fields() feature.Fields {
	return c.fields
}

func (c *Combiner) Policy() OutputFields {
	return c.policy
}

// Combine returns the output row for a feature built from attribute rows a
// and b. A nil row means that side is absent and is replaced by nulls.
func (c *Combiner) Combine(a, b []any) []any {
	switch c.policy {
	case FieldsA:
		return fit(a, c.lenA)
	case FieldsB:
		return fit(b, c.lenB)
	}
	out := make([]any, 0, c.lenA+c.lenB)
	out = append(out, fit(a, c.lenA)...)
	return append(out, fit(b, c.lenB)...)
}

// fit copies row into a slice of exactly n values, padding with nil.
func fit(row []any, n int) []any {
	out := make([]any, n)
	copy(out, row)
	return out
}
