// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"os"
	"strconv"

	"github.com/gomlx/accelconv/pkg/core/shapes"
	"github.com/gomlx/accelconv/pkg/support/xslices"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Graph files are YAML documents like:
//
//	name: example
//	inputs:
//	  - {name: x, dtype: float32, dims: [-1, 3, 8, 8], min: [1, 3, 8, 8], max: [16, 3, 8, 8]}
//	params:
//	  - {name: bn_mean, dims: [3], values: [0.1, 0.2, 0.3]}
//	ops:
//	  - type: scale
//	    inputs: [x]
//	    outputs: [y]
//	    attrs: {scale: 2.0, bias: 1.0, bias_after_scale: true}
//	outputs: [y]
//
// Attribute types follow the YAML values: booleans, integers, floats, strings or lists of them.

type graphFile struct {
	Name     string      `yaml:"name"`
	Inputs   []inputFile `yaml:"inputs"`
	Params   []paramFile `yaml:"params"`
	Ops      []opFile    `yaml:"ops"`
	Outputs  []string    `yaml:"outputs"`
	Retained []string    `yaml:"retained"`
}

type inputFile struct {
	Name  string `yaml:"name"`
	DType string `yaml:"dtype"`
	Dims  []int  `yaml:"dims"`
	Min   []int  `yaml:"min,omitempty"`
	Max   []int  `yaml:"max,omitempty"`
}

type paramFile struct {
	Name   string    `yaml:"name"`
	Dims   []int     `yaml:"dims"`
	Values []float32 `yaml:"values"`
}

type opFile struct {
	Type    string               `yaml:"type"`
	Inputs  []string             `yaml:"inputs"`
	Outputs []string             `yaml:"outputs"`
	Attrs   map[string]yaml.Node `yaml:"attrs,omitempty"`
}

// dtypeNames are the dtypes accepted in graph files.
var dtypeNames = map[string]dtypes.DType{
	"float32": dtypes.Float32,
	"float16": dtypes.Float16,
}

// LoadGraph reads and validates a graph from a YAML file.
func LoadGraph(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read graph file %q", path)
	}
	g, err := ParseGraph(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "graph file %q", path)
	}
	return g, nil
}

// ParseGraph parses and validates a graph from its YAML description.
func ParseGraph(data []byte) (g *Graph, err error) {
	var file graphFile
	if err = yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "failed to parse graph")
	}
	err = exceptions.TryCatch[error](func() {
		g = file.toGraph()
	})
	if err != nil {
		return nil, err
	}
	if err = g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (file *graphFile) toGraph() *Graph {
	g := &Graph{
		Name:     file.Name,
		Outputs:  file.Outputs,
		Retained: file.Retained,
	}
	for _, in := range file.Inputs {
		dtype, found := dtypeNames[in.DType]
		if !found {
			exceptions.Panicf("input %q has unsupported dtype %q", in.Name, in.DType)
		}
		spec := InputSpec{Name: in.Name, DType: dtype, Dims: in.Dims, Min: in.Min, Max: in.Max}
		for axis, dim := range spec.Dims {
			if dim <= 0 && dim != shapes.Dynamic {
				exceptions.Panicf("input %q has invalid dimension %d at axis %d", in.Name, dim, axis)
			}
		}
		g.Inputs = append(g.Inputs, spec)
	}
	for _, p := range file.Params {
		g.Params = append(g.Params, &Param{Name: p.Name, Dims: p.Dims, Values: p.Values})
	}
	for ii, op := range file.Ops {
		desc := &OpDesc{Type: op.Type, Inputs: op.Inputs, Outputs: op.Outputs}
		for name, node := range op.Attrs {
			attr, err := decodeAttribute(&node)
			if err != nil {
				panic(errors.WithMessagef(err, "operator #%d (%s) attribute %q", ii, op.Type, name))
			}
			desc.SetAttr(name, attr)
		}
		g.Ops = append(g.Ops, desc)
	}
	return g
}

// decodeAttribute converts a YAML scalar or sequence of scalars to a typed Attribute.
func decodeAttribute(node *yaml.Node) (Attribute, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return decodeScalar(node)
	case yaml.SequenceNode:
		elements := make([]Attribute, len(node.Content))
		numStrings, numFloats := 0, 0
		for ii, elementNode := range node.Content {
			if elementNode.Kind != yaml.ScalarNode {
				return Attribute{}, errors.Errorf("line %d: nested lists are not supported", elementNode.Line)
			}
			element, err := decodeScalar(elementNode)
			if err != nil {
				return Attribute{}, err
			}
			switch element.Type {
			case AttrString:
				numStrings++
			case AttrFloat:
				numFloats++
			case AttrInt:
			default:
				return Attribute{}, errors.Errorf("line %d: lists of %s are not supported", elementNode.Line, element.Type)
			}
			elements[ii] = element
		}
		switch {
		case numStrings > 0:
			if numStrings != len(elements) {
				return Attribute{}, errors.Errorf("line %d: list mixes strings and numbers", node.Line)
			}
			return Strings(xslices.Map(elements, func(e Attribute) string { return e.value.(string) })...), nil
		case numFloats > 0:
			return Floats(xslices.Map(elements, toFloat)...), nil
		default:
			return Ints(xslices.Map(elements, func(e Attribute) int { return e.value.(int) })...), nil
		}
	}
	return Attribute{}, errors.Errorf("line %d: attributes must be scalars or lists of scalars", node.Line)
}

func decodeScalar(node *yaml.Node) (Attribute, error) {
	switch node.ShortTag() {
	case "!!bool":
		var v bool
		if err := node.Decode(&v); err != nil {
			return Attribute{}, errors.Wrapf(err, "line %d", node.Line)
		}
		return Bool(v), nil
	case "!!int":
		v, err := strconv.Atoi(node.Value)
		if err != nil {
			var v64 int64
			if err := node.Decode(&v64); err != nil {
				return Attribute{}, errors.Wrapf(err, "line %d", node.Line)
			}
			v = int(v64)
		}
		return Int(v), nil
	case "!!float":
		var v float32
		if err := node.Decode(&v); err != nil {
			return Attribute{}, errors.Wrapf(err, "line %d", node.Line)
		}
		return Float(v), nil
	case "!!str":
		return String(node.Value), nil
	}
	return Attribute{}, errors.Errorf("line %d: unsupported attribute value %q (%s)", node.Line, node.Value, node.ShortTag())
}
