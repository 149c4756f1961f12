package attributes

import (
	"fmt"
	"math"
	"strings"

	"github.com/bsaid97/go-geoprocessing/feature"
	"github.com/spf13/cast"
	"gonum.org/v1/gonum/floats"
)

// Summarizer reduces the values of one field across a cluster to one value.
type Summarizer int

const (
	SummarizeFirst Summarizer = iota
	SummarizeLast
	SummarizeCount
	SummarizeSum
	SummarizeMean
	SummarizeMin
	SummarizeMax
	SummarizeRange
	SummarizeStdDev
	SummarizeNull
)

var summarizerNames = []string{"first", "last", "count", "sum", "mean", "min", "max", "range", "stddev", "null"}

func (s Summarizer) String() string {
	if s < 0 || int(s) >= len(summarizerNames) {
		return "unknown"
	}
	return summarizerNames[s]
}

// ParseSummarizer accepts the names produced by String.
func ParseSummarizer(name string) (Summarizer, error) {
	name = strings.ToLower(name)
	if name == "" {
		return SummarizeFirst, nil
	}
	for i, n := range summarizerNames {
		if n == name {
			return Summarizer(i), nil
		}
	}
	return 0, fmt.Errorf("unknown summarizer %q", name)
}

// Apply summarizes values. Numeric summarizers coerce every value to float64;
// a value that does not coerce counts as zero. Count only tests for nil.
// Mean, Min, Max, Range and StdDev of no values are nil.
func (s Summarizer) Apply(values []any) any {
	switch s {
	case SummarizeFirst:
		if len(values) == 0 {
			return nil
		}
		return values[0]
	case SummarizeLast:
		if len(values) == 0 {
			return nil
		}
		return values[len(values)-1]
	case SummarizeCount:
		var n int64
		for _, v := range values {
			if v != nil {
				n++
			}
		}
		return n
	case SummarizeNull:
		return nil
	}

	xs := toFloats(values)
	if s == SummarizeSum {
		return floats.Sum(xs)
	}
	if len(xs) == 0 {
		return nil
	}
	switch s {
	case SummarizeMean:
		return floats.Sum(xs) / float64(len(xs))
	case SummarizeMin:
		return floats.Min(xs)
	case SummarizeMax:
		return floats.Max(xs)
	case SummarizeRange:
		return floats.Max(xs) - floats.Min(xs)
	case SummarizeStdDev:
		n := float64(len(xs))
		mean := floats.Sum(xs) / n
		meanSq := floats.Dot(xs, xs) / n
		return math.Sqrt(math.Max(0, meanSq-mean*mean))
	}
	return nil
}

func toFloats(values []any) []float64 {
	xs := make([]float64, len(values))
	for i, v := range values {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			f = 0
		}
		xs[i] = f
	}
	return xs
}

// SummarizeAttributes builds one attribute row out of many. Excluded field
// positions copy the value of the first row; the rest use numeric or
// nonNumeric depending on the declared field type.
func SummarizeAttributes(fields feature.Fields, sets [][]any, numeric, nonNumeric Summarizer, excluded map[int]bool) []any {
	out := make([]any, len(fields))
	if len(sets) == 0 {
		return out
	}
	column := make([]any, len(sets))
	for i, field := range fields {
		if excluded[i] {
			out[i] = valueAt(sets[0], i)
			continue
		}
		for j, row := range sets {
			column[j] = valueAt(row, i)
		}
		if field.Type.Numeric() {
			out[i] = numeric.Apply(column)
		} else {
			out[i] = nonNumeric.Apply(column)
		}
	}
	return out
}

func valueAt(row []any, i int) any {
	if i < len(row) {
		return row[i]
	}
	return nil
}
