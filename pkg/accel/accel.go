// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package accel is a reference, pure Go, accelerator: a layer-graph network definition API, a build step
// that negotiates plugin formats and freezes the network into an Engine, and the Engine that executes it
// and can be serialized and loaded back.
//
// It models the capability the converters in package github.com/gomlx/accelconv/pkg/convert call into:
// layers are added to a Network in DAG order, each consuming tensors already in the network and producing
// new ones. Tensor dimensions may be dynamic, in which case they are tracked symbolically (see package
// github.com/gomlx/accelconv/pkg/core/dimexpr) in terms of the dimensions of the network inputs, and
// bounded by the optimization profile given with each input.
//
// To simplify error handling, the Network definition methods throw (panic) with a stack trace in case of
// errors, see package github.com/gomlx/exceptions. Build, Execute, Serialize and Deserialize return errors.
package accel

import (
	"fmt"
	"slices"

	"github.com/gomlx/accelconv/pkg/core/dimexpr"
	"github.com/gomlx/accelconv/pkg/core/shapes"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// Network is an accelerator network being defined.
type Network struct {
	name  string
	built bool

	// layers are only created when their inputs have already been created. So this is a natural DAG
	// ordering of the network. The engine relies on this invariance.
	layers []*Layer

	// tensors created so far, indexed by Tensor.id.
	tensors []*Tensor

	inputs  []*Tensor
	outputs []*Tensor
}

// NewNetwork returns an empty network with the given name.
func NewNetwork(name string) *Network {
	return &Network{name: name}
}

// Name of the network.
func (n *Network) Name() string { return n.name }

// NumLayers returns the number of layers added so far.
func (n *Network) NumLayers() int { return len(n.layers) }

// Layers returns the layers added so far, in order.
func (n *Network) Layers() []*Layer { return slices.Clone(n.layers) }

// Inputs returns the network inputs, in the order they were added.
func (n *Network) Inputs() []*Tensor { return slices.Clone(n.inputs) }

// Outputs returns the tensors marked as outputs, in the order they were marked.
func (n *Network) Outputs() []*Tensor { return slices.Clone(n.outputs) }

// Tensor is a handle to a tensor of a Network: either a network input or the output of a layer.
type Tensor struct {
	network *Network
	id      int
	name    string

	dtype dtypes.DType

	// dims in terms of the dimensions of the network inputs.
	dims dimexpr.Dims

	// min and max bounds of each axis, given the optimization profile of the inputs.
	min, max []int

	// producer is nil for network inputs.
	producer *Layer
}

// Name of the tensor.
func (t *Tensor) Name() string { return t.name }

// SetName changes the name of the tensor. Output tensors are keyed by name in Engine.Execute.
func (t *Tensor) SetName(name string) {
	t.network.checkNotBuilt("Tensor.SetName")
	t.name = name
}

// DType of the tensor.
func (t *Tensor) DType() dtypes.DType { return t.dtype }

// Rank of the tensor.
func (t *Tensor) Rank() int { return len(t.dims) }

// Dims returns the symbolic dimensions, in terms of the network input dimensions.
func (t *Tensor) Dims() dimexpr.Dims { return t.dims.Clone() }

// Shape returns the build-time shape: dynamic axes are shapes.Dynamic.
func (t *Tensor) Shape() shapes.Shape {
	return shapes.Make(t.dtype, t.dims.Static()...)
}

// Min returns the lower bound of each axis.
func (t *Tensor) Min() []int { return slices.Clone(t.min) }

// Max returns the upper bound of each axis.
func (t *Tensor) Max() []int { return slices.Clone(t.max) }

// Producer returns the layer that produced the tensor, or nil for network inputs.
func (t *Tensor) Producer() *Layer { return t.producer }

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	return fmt.Sprintf("%q%s", t.name, t.Shape())
}

func (n *Network) checkNotBuilt(op string) {
	if n == nil {
		exceptions.Panicf("%s: Network is nil", op)
	}
	if n.built {
		exceptions.Panicf("%s: network %q was already built, it can't be modified", op, n.name)
	}
}

// checkTensors validates that the tensors are from this network, and that it is not built yet.
func (n *Network) checkTensors(op string, tensors ...*Tensor) {
	n.checkNotBuilt(op)
	for ii, t := range tensors {
		if t == nil {
			exceptions.Panicf("%s: input tensor #%d is nil", op, ii)
		}
		if t.network != n {
			exceptions.Panicf("%s: input tensor #%d %s is from network %q, not %q", op, ii, t, t.network.name, n.name)
		}
	}
}

// inputBounds returns the min and max dimensions of every network input.
func (n *Network) inputBounds() (mins, maxs [][]int) {
	mins = make([][]int, len(n.inputs))
	maxs = make([][]int, len(n.inputs))
	for ii, t := range n.inputs {
		mins[ii], maxs[ii] = t.min, t.max
	}
	return
}

// newTensor creates a tensor with symbolic dims in terms of the network inputs, and computes its bounds.
func (n *Network) newTensor(name string, dtype dtypes.DType, dims dimexpr.Dims, producer *Layer) *Tensor {
	t := &Tensor{network: n, id: len(n.tensors), name: name, dtype: dtype, dims: dims, producer: producer}
	mins, maxs := n.inputBounds()
	var err error
	t.min, err = dims.Eval(mins)
	if err != nil {
		panic(err)
	}
	t.max, err = dims.Eval(maxs)
	if err != nil {
		panic(err)
	}
	for axis := range dims {
		if t.min[axis] <= 0 || t.min[axis] > t.max[axis] {
			exceptions.Panicf("tensor %q has invalid bounds [%d, %d] for axis %d (dims=%s)",
				name, t.min[axis], t.max[axis], axis, dims)
		}
	}
	n.tensors = append(n.tensors, t)
	return t
}

// AddInput adds a network input with the given shape, where some axes may be shapes.Dynamic.
//
// min and max give the optimization profile: the bounds of each axis accepted at execution time. They
// can be nil if the shape is static. For static axes they must equal the dimension.
func (n *Network) AddInput(name string, shape shapes.Shape, min, max []int) *Tensor {
	n.checkNotBuilt("AddInput")
	if !shape.Ok() {
		exceptions.Panicf("AddInput(%q): invalid shape", name)
	}
	for _, input := range n.inputs {
		if input.name == name {
			exceptions.Panicf("AddInput(%q): network %q already has an input with that name", name, n.name)
		}
	}
	if min == nil && max == nil {
		if shape.IsDynamic() {
			exceptions.Panicf("AddInput(%q): dynamic shape %s requires min and max bounds", name, shape)
		}
		min, max = shape.Dimensions, shape.Dimensions
	}
	if len(min) != shape.Rank() || len(max) != shape.Rank() {
		exceptions.Panicf("AddInput(%q): shape %s has rank %d, but bounds are min=%v, max=%v", name, shape, shape.Rank(), min, max)
	}
	for axis, dim := range shape.Dimensions {
		if min[axis] <= 0 || min[axis] > max[axis] {
			exceptions.Panicf("AddInput(%q): invalid bounds [%d, %d] for axis %d", name, min[axis], max[axis], axis)
		}
		if dim != shapes.Dynamic && (min[axis] != dim || max[axis] != dim) {
			exceptions.Panicf("AddInput(%q): static axis %d of dimension %d has bounds [%d, %d]", name, axis, dim, min[axis], max[axis])
		}
	}
	index := len(n.inputs)
	t := &Tensor{
		network: n,
		id:      len(n.tensors),
		name:    name,
		dtype:   shape.DType,
		dims:    dimexpr.ForInput(index, shape.Dimensions),
		min:     slices.Clone(min),
		max:     slices.Clone(max),
	}
	n.tensors = append(n.tensors, t)
	n.inputs = append(n.inputs, t)
	return t
}

// MarkOutput marks t as an output of the network. Outputs are keyed by their name when executing, so
// their names must be unique.
func (n *Network) MarkOutput(t *Tensor) {
	n.checkTensors("MarkOutput", t)
	for _, output := range n.outputs {
		if output == t {
			return
		}
		if output.name == t.name {
			exceptions.Panicf("MarkOutput(%s): network %q already has an output with that name", t, n.name)
		}
	}
	n.outputs = append(n.outputs, t)
}
