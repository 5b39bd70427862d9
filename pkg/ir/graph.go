// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"slices"

	"github.com/gomlx/accelconv/pkg/core/shapes"
	"github.com/gomlx/accelconv/pkg/support/sets"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// InputSpec describes an input of the graph. Dims may contain shapes.Dynamic axes, in which case
// Min and Max give the optimization profile: the range of dimensions accepted at execution.
type InputSpec struct {
	Name     string
	DType    dtypes.DType
	Dims     []int
	Min, Max []int
}

// Shape returns the (possibly dynamic) shape of the input.
func (in InputSpec) Shape() shapes.Shape {
	return shapes.Make(in.DType, in.Dims...)
}

// Param is a host parameter: a named weight loaded with the model, in float32.
type Param struct {
	Name   string
	Dims   []int
	Values []float32
}

// Size returns the number of elements given by Dims.
func (p *Param) Size() int {
	size := 1
	for _, dim := range p.Dims {
		size *= dim
	}
	return size
}

// String implements fmt.Stringer.
func (p *Param) String() string {
	return fmt.Sprintf("%q%v", p.Name, p.Dims)
}

// Scope gives access to the host parameters by name.
type Scope interface {
	Param(name string) (*Param, bool)
}

// MapScope is a Scope backed by a map.
type MapScope map[string]*Param

// Param implements Scope.
func (s MapScope) Param(name string) (*Param, bool) {
	p, found := s[name]
	return p, found
}

// Graph is the host graph to convert: operators are listed in topological order.
type Graph struct {
	Name    string
	Inputs  []InputSpec
	Params  []*Param
	Ops     []*OpDesc
	Outputs []string

	// Retained lists the tensors consumed by the retained inference graph. Operators none of whose outputs
	// are retained are skipped by the conversion. If nil, every tensor is retained.
	Retained []string
}

// Scope returns the parameters of the graph as a Scope.
func (g *Graph) Scope() Scope {
	scope := make(MapScope, len(g.Params))
	for _, p := range g.Params {
		scope[p.Name] = p
	}
	return scope
}

// RetainedSet returns the set of retained tensor names, including the graph outputs, or nil if every
// tensor is retained.
func (g *Graph) RetainedSet() sets.Set[string] {
	if g.Retained == nil {
		return nil
	}
	retained := sets.MakeWith(g.Retained...)
	for _, name := range g.Outputs {
		retained.Insert(name)
	}
	return retained
}

// Validate checks that names are unique, parameter sizes match their dimensions, and that every operator
// only consumes tensors defined before it.
func (g *Graph) Validate() error {
	defined := sets.Make[string]()
	define := func(kind, name string) error {
		if name == "" {
			return errors.Errorf("graph %q: %s with an empty name", g.Name, kind)
		}
		if defined.Has(name) {
			return errors.Errorf("graph %q: %s %q redefines an existing name", g.Name, kind, name)
		}
		defined.Insert(name)
		return nil
	}
	for _, in := range g.Inputs {
		if err := define("input", in.Name); err != nil {
			return err
		}
		if in.DType != dtypes.Float32 && in.DType != dtypes.Float16 {
			return errors.Errorf("graph %q: input %q must be float32 or float16, got %s", g.Name, in.Name, in.DType)
		}
		if slices.Contains(in.Dims, shapes.Dynamic) && (in.Min == nil || in.Max == nil) {
			return errors.Errorf("graph %q: dynamic input %q requires min and max dimensions", g.Name, in.Name)
		}
	}
	for _, p := range g.Params {
		if err := define("parameter", p.Name); err != nil {
			return err
		}
		if p.Size() != len(p.Values) {
			return errors.Errorf("graph %q: parameter %s has %d values, wanted %d", g.Name, p, len(p.Values), p.Size())
		}
	}
	for ii, op := range g.Ops {
		if op.Type == "" {
			return errors.Errorf("graph %q: operator #%d has no type", g.Name, ii)
		}
		for _, name := range op.Inputs {
			if !defined.Has(name) {
				return errors.Errorf("graph %q: operator #%d %s uses undefined tensor %q", g.Name, ii, op, name)
			}
		}
		for _, name := range op.Outputs {
			if err := define(fmt.Sprintf("operator #%d output", ii), name); err != nil {
				return err
			}
		}
	}
	if len(g.Outputs) == 0 {
		return errors.Errorf("graph %q has no outputs", g.Name)
	}
	for _, name := range g.Outputs {
		if !defined.Has(name) {
			return errors.Errorf("graph %q: output %q is not defined", g.Name, name)
		}
	}
	return nil
}
