package attributes

import (
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/bsaid97/go-geoprocessing/feature"
	"github.com/spf13/cast"
)

// GroupMode selects how features are partitioned into clusters.
type GroupMode int

const (
	GroupAll GroupMode = iota
	GroupByField
	GroupByAllFields
	GroupByExpression
)

func (m GroupMode) String() string {
	switch m {
	case GroupAll:
		return "all"
	case GroupByField:
		return "field"
	case GroupByAllFields:
		return "allfields"
	case GroupByExpression:
		return "expression"
	default:
		return "unknown"
	}
}

func ParseGroupMode(s string) (GroupMode, error) {
	switch strings.ToLower(s) {
	case "", "all":
		return GroupAll, nil
	case "field":
		return GroupByField, nil
	case "allfields", "all_fields":
		return GroupByAllFields, nil
	case "expression":
		return GroupByExpression, nil
	}
	return 0, fmt.Errorf("unknown group mode %q", s)
}

// Grouping configures GroupFeatures. Field is used by GroupByField and
// Expression by GroupByExpression.
type Grouping struct {
	Mode       GroupMode
	Field      string
	Expression string
}

// Clusters maps a cluster key to the ids of its features, in id order.
type Clusters map[string][]feature.ID

const keySeparator = "|"

// GroupFeatures partitions the features of src into clusters. Every feature
// lands in exactly one cluster. With selectedOnly only the source selection is
// grouped.
func GroupFeatures(src feature.Source, grouping Grouping, selectedOnly bool) (Clusters, error) {
	keyOf, err := clusterKeyFunc(src.Fields(), grouping)
	if err != nil {
		return nil, err
	}

	clusters := make(Clusters)
	for f := range src.Features(feature.Request{SelectedOnly: selectedOnly, NoGeometry: true}) {
		key, err := keyOf(f)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", f.ID, err)
		}
		clusters[key] = append(clusters[key], f.ID)
	}
	return clusters, nil
}

func clusterKeyFunc(fields feature.Fields, grouping Grouping) (func(feature.Feature) (string, error), error) {
	switch grouping.Mode {
	case GroupAll:
		return func(feature.Feature) (string, error) { return "", nil }, nil

	case GroupByField:
		idx := fields.IndexOf(grouping.Field)
		if idx < 0 {
			return nil, fmt.Errorf("group field %q not found", grouping.Field)
		}
		return func(f feature.Feature) (string, error) {
			return stringValue(f.Attribute(idx)), nil
		}, nil

	case GroupByAllFields:
		return func(f feature.Feature) (string, error) {
			parts := make([]string, 0, len(fields))
			for i, field := range fields {
				if field.PrimaryKey {
					continue
				}
				parts = append(parts, escapeKey(stringValue(f.Attribute(i))))
			}
			return strings.Join(parts, keySeparator), nil
		}, nil

	case GroupByExpression:
		expr, err := govaluate.NewEvaluableExpression(grouping.Expression)
		if err != nil {
			return nil, fmt.Errorf("invalid group expression: %w", err)
		}
		return func(f feature.Feature) (string, error) {
			params := make(map[string]interface{}, len(fields))
			for i, field := range fields {
				params[field.Name] = f.Attribute(i)
			}
			result, err := expr.Evaluate(params)
			if err != nil {
				return "", fmt.Errorf("evaluating group expression: %w", err)
			}
			return stringValue(result), nil
		}, nil
	}
	return nil, fmt.Errorf("unknown group mode %d", grouping.Mode)
}

func stringValue(v any) string {
	if v == nil {
		return ""
	}
	return cast.ToString(v)
}

var keyEscaper = strings.NewReplacer(`\`, `\\`, keySeparator, `\`+keySeparator)

func escapeKey(s string) string {
	return keyEscaper.Replace(s)
}
