package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bsaid97/go-geoprocessing/attributes"
	"github.com/bsaid97/go-geoprocessing/feature"
	"github.com/bsaid97/go-geoprocessing/tools"
	"github.com/bsaid97/go-geoprocessing/utils"
	"github.com/twpayne/go-geos"
)

// Layers are the inputs of a run. Overlay is nil for single-layer tools.
type Layers struct {
	Input   *feature.MemorySource
	Overlay *feature.MemorySource
}

type builder struct {
	overlay bool
	build   func(l Layers, p Params, sink feature.Sink, opts []tools.Option) (*tools.Tool, error)
}

var registry = map[string]builder{
	"buffer": {build: func(l Layers, p Params, sink feature.Sink, opts []tools.Option) (*tools.Tool, error) {
		o, err := p.BufferOptions()
		if err != nil {
			return nil, err
		}
		return tools.NewBuffer(l.Input, sink, o, opts...)
	}},
	"intersection":  overlayBuilder(tools.NewIntersection),
	"union":         overlayBuilder(tools.NewUnion),
	"difference":    overlayBuilder(tools.NewDifference),
	"symdifference": overlayBuilder(tools.NewSymDifference),
	"dissolve": {build: func(l Layers, p Params, sink feature.Sink, opts []tools.Option) (*tools.Tool, error) {
		o, err := p.DissolveOptions()
		if err != nil {
			return nil, err
		}
		return tools.NewDissolve(l.Input, sink, o, opts...), nil
	}},
	"convexhull": {build: func(l Layers, p Params, sink feature.Sink, opts []tools.Option) (*tools.Tool, error) {
		o, err := p.ClusterOptions()
		if err != nil {
			return nil, err
		}
		return tools.NewConvexHull(l.Input, sink, o, opts...), nil
	}},
	"eliminate": {build: func(l Layers, p Params, sink feature.Sink, opts []tools.Option) (*tools.Tool, error) {
		o, err := p.EliminateOptions()
		if err != nil {
			return nil, err
		}
		return tools.NewEliminateSlivers(l.Input, sink, o, opts...), nil
	}},
}

func overlayBuilder(ctor func(a, b feature.Source, sink feature.Sink, o tools.OverlayOptions, opts ...tools.Option) *tools.Tool) builder {
	return builder{overlay: true, build: func(l Layers, p Params, sink feature.Sink, opts []tools.Option) (*tools.Tool, error) {
		o, err := p.OverlayOptions()
		if err != nil {
			return nil, err
		}
		return ctor(l.Input, l.Overlay, sink, o, opts...), nil
	}}
}

// ToolNames lists the registered tools.
func ToolNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NeedsOverlay reports whether the named tool reads a second layer.
func NeedsOverlay(name string) bool {
	return registry[strings.ToLower(name)].overlay
}

// Build constructs the named tool writing to sink. Params.Selected is applied
// to the input layer's selection first.
func Build(name string, l Layers, p Params, sink feature.Sink, opts ...tools.Option) (*tools.Tool, error) {
	b, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q (available: %s)", name, strings.Join(ToolNames(), ", "))
	}
	if l.Input == nil {
		return nil, fmt.Errorf("%s: no input layer", name)
	}
	if b.overlay && l.Overlay == nil {
		return nil, fmt.Errorf("%s: no overlay layer", name)
	}
	for _, id := range p.Selected {
		l.Input.Select(feature.ID(id))
	}
	return b.build(l, p, sink, opts)
}

func (p Params) OverlayOptions() (tools.OverlayOptions, error) {
	fields, err := attributes.ParseOutputFields(p.OutputFields)
	if err != nil {
		return tools.OverlayOptions{}, err
	}
	crs, err := attributes.ParseOutputCRS(p.OutputCRS)
	if err != nil {
		return tools.OverlayOptions{}, err
	}
	return tools.OverlayOptions{OutputFields: fields, OutputCRS: crs, SelectedOnly: p.SelectedOnly}, nil
}

func (p Params) bufferStyle() (utils.BufferOptions, error) {
	style := utils.BufferOptions{Segments: p.Segments, MitreLimit: p.MitreLimit, SingleSided: p.SingleSided}
	switch strings.ToLower(p.EndCap) {
	case "", "round":
		style.EndCapStyle = geos.BufCapStyleRound
	case "flat":
		style.EndCapStyle = geos.BufCapStyleFlat
	case "square":
		style.EndCapStyle = geos.BufCapStyleSquare
	default:
		return style, fmt.Errorf("unknown end cap style %q", p.EndCap)
	}
	switch strings.ToLower(p.Join) {
	case "", "round":
		style.JoinStyle = geos.BufJoinStyleRound
	case "mitre", "miter":
		style.JoinStyle = geos.BufJoinStyleMitre
	case "bevel":
		style.JoinStyle = geos.BufJoinStyleBevel
	default:
		return style, fmt.Errorf("unknown join style %q", p.Join)
	}
	return style, nil
}

func (p Params) BufferOptions() (tools.BufferOptions, error) {
	style, err := p.bufferStyle()
	if err != nil {
		return tools.BufferOptions{}, err
	}
	o := tools.BufferOptions{
		Distance:      p.Distance,
		DistanceField: p.DistanceField,
		Style:         style,
		SelectedOnly:  p.SelectedOnly,
	}
	switch strings.ToLower(p.Side) {
	case "", "left":
		o.Side = tools.SideLeft
	case "right":
		o.Side = tools.SideRight
	default:
		return tools.BufferOptions{}, fmt.Errorf("unknown buffer side %q", p.Side)
	}
	return o, nil
}

func (p Params) ClusterOptions() (tools.ClusterOptions, error) {
	mode, err := attributes.ParseGroupMode(p.GroupBy)
	if err != nil {
		return tools.ClusterOptions{}, err
	}
	numeric, err := attributes.ParseSummarizer(p.NumericSummary)
	if err != nil {
		return tools.ClusterOptions{}, err
	}
	nonNumeric, err := attributes.ParseSummarizer(p.NonNumericSummary)
	if err != nil {
		return tools.ClusterOptions{}, err
	}
	return tools.ClusterOptions{
		Grouping:          attributes.Grouping{Mode: mode, Field: p.GroupField, Expression: p.GroupExpression},
		NumericSummary:    numeric,
		NonNumericSummary: nonNumeric,
		SelectedOnly:      p.SelectedOnly,
	}, nil
}

func (p Params) DissolveOptions() (tools.DissolveOptions, error) {
	cluster, err := p.ClusterOptions()
	if err != nil {
		return tools.DissolveOptions{}, err
	}
	style, err := p.bufferStyle()
	if err != nil {
		return tools.DissolveOptions{}, err
	}
	return tools.DissolveOptions{
		ClusterOptions: cluster,
		AllowMultipart: p.AllowMultipart,
		BufferDistance: p.BufferDistance,
		BufferStyle:    style,
	}, nil
}

func (p Params) EliminateOptions() (tools.EliminateOptions, error) {
	method, err := tools.ParseMergeMethod(p.MergeMethod)
	if err != nil {
		return tools.EliminateOptions{}, err
	}
	if p.AreaThreshold <= 0 {
		return tools.EliminateOptions{}, fmt.Errorf("area_threshold must be positive, got %g", p.AreaThreshold)
	}
	return tools.EliminateOptions{
		AreaThreshold: p.AreaThreshold,
		Method:        method,
		Tolerance:     p.Tolerance,
		SelectedOnly:  p.SelectedOnly,
	}, nil
}
