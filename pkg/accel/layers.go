// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package accel

import (
	"fmt"
	"slices"

	"github.com/gomlx/accelconv/pkg/core/dimexpr"
	"github.com/gomlx/accelconv/pkg/plugin"
	"github.com/gomlx/accelconv/pkg/weights"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// LayerType enumerates the layers supported by the accelerator.
type LayerType int

//go:generate go tool enumer -type=LayerType -trimprefix=Layer -output=gen_layertype_enumer.go layers.go

const (
	LayerInvalid LayerType = iota
	LayerShuffle
	LayerScale
	LayerElementWise
	LayerActivation
	LayerPlugin
)

// MinScaleRank is the minimum rank of the input of a scale layer: [batch, channels, spatial...].
const MinScaleRank = 4

// ScaleMode defines how the weights of a scale layer are applied.
type ScaleMode uint8

const (
	// ScaleUniform uses one value for the whole tensor.
	ScaleUniform ScaleMode = iota

	// ScaleChannel uses one value per channel (axis 1).
	ScaleChannel

	// ScaleElementwise uses one value per element of each example (all axes but the batch axis 0).
	ScaleElementwise
)

var scaleModeNames = [...]string{"Uniform", "Channel", "Elementwise"}

// String implements fmt.Stringer.
func (m ScaleMode) String() string {
	if int(m) < len(scaleModeNames) {
		return scaleModeNames[m]
	}
	return fmt.Sprintf("ScaleMode(%d)", int(m))
}

// ElementWiseOp is the binary operation of an element-wise layer.
type ElementWiseOp uint8

const (
	ElementWiseSum ElementWiseOp = iota
	ElementWiseProd
	ElementWiseSub
	ElementWiseDiv
	ElementWiseMax
	ElementWiseMin
)

var elementWiseOpNames = [...]string{"Sum", "Prod", "Sub", "Div", "Max", "Min"}

// String implements fmt.Stringer.
func (op ElementWiseOp) String() string {
	if int(op) < len(elementWiseOpNames) {
		return elementWiseOpNames[op]
	}
	return fmt.Sprintf("ElementWiseOp(%d)", int(op))
}

// ActivationKind is the function of an activation layer.
type ActivationKind uint8

const (
	ActivationReLU ActivationKind = iota
	ActivationSigmoid
	ActivationTanh
)

var activationKindNames = [...]string{"ReLU", "Sigmoid", "Tanh"}

// String implements fmt.Stringer.
func (k ActivationKind) String() string {
	if int(k) < len(activationKindNames) {
		return activationKindNames[k]
	}
	return fmt.Sprintf("ActivationKind(%d)", int(k))
}

// Layer of a Network.
type Layer struct {
	network *Network
	index   int
	name    string

	layerType LayerType
	inputs    []*Tensor
	outputs   []*Tensor

	// data for the specific layer type.
	data any
}

// shuffleData holds the reshape target of a shuffle layer: 0 copies the input dimension, -1 is inferred.
// The output tensor dimensions are authoritative, reshape is kept for inspection.
type shuffleData struct {
	reshape []int
}

// scaleData holds the weights of a scale layer: y = (x * scale + shift) ^ power.
// Nil weights are the identity.
type scaleData struct {
	mode                ScaleMode
	shift, scale, power *weights.Weights
}

type elementWiseData struct {
	op ElementWiseOp
}

type activationData struct {
	kind ActivationKind
}

// pluginData holds the plugin of a plugin layer and its output dimensions in terms of the plugin inputs.
type pluginData struct {
	instance *plugin.Instance
	outDims  []dimexpr.Dims
}

// Name of the layer.
func (l *Layer) Name() string { return l.name }

// SetName changes the name of the layer.
func (l *Layer) SetName(name string) {
	l.network.checkNotBuilt("Layer.SetName")
	l.name = name
}

// Type of the layer.
func (l *Layer) Type() LayerType { return l.layerType }

// Index of the layer in the network.
func (l *Layer) Index() int { return l.index }

// NumOutputs returns the number of outputs of the layer.
func (l *Layer) NumOutputs() int { return len(l.outputs) }

// Output returns output #i of the layer.
func (l *Layer) Output(i int) *Tensor {
	if i < 0 || i >= len(l.outputs) {
		exceptions.Panicf("layer %q has %d outputs, output #%d requested", l.name, len(l.outputs), i)
	}
	return l.outputs[i]
}

// Inputs returns the input tensors of the layer.
func (l *Layer) Inputs() []*Tensor { return slices.Clone(l.inputs) }

// Plugin returns the plugin instance of a LayerPlugin, or nil.
func (l *Layer) Plugin() *plugin.Instance {
	if data, ok := l.data.(*pluginData); ok {
		return data.instance
	}
	return nil
}

// String implements fmt.Stringer.
func (l *Layer) String() string {
	return fmt.Sprintf("#%d %s(%q)", l.index, l.layerType, l.name)
}

// newLayer adds a new layer with one output per entry in outDims.
func (n *Network) newLayer(layerType LayerType, data any, inputs []*Tensor, outDTypes []dtypes.DType, outDims []dimexpr.Dims) *Layer {
	l := &Layer{
		network:   n,
		index:     len(n.layers),
		layerType: layerType,
		inputs:    slices.Clone(inputs),
		data:      data,
	}
	l.name = fmt.Sprintf("%s_%d", layerType, l.index)
	for ii := range outDims {
		name := fmt.Sprintf("%s_out%d", l.name, ii)
		l.outputs = append(l.outputs, n.newTensor(name, outDTypes[ii], outDims[ii], l))
	}
	n.layers = append(n.layers, l)
	return l
}

// AddShuffle adds a layer that reshapes x. In reshape, 0 copies the dimension of x at the same axis and
// -1 (at most one) is inferred from the number of elements.
func (n *Network) AddShuffle(x *Tensor, reshape []int) *Layer {
	n.checkTensors("AddShuffle", x)
	inferredAxis := -1
	total := dimexpr.Const(1)
	for _, dim := range x.dims {
		total = dimexpr.Prod(total, dim)
	}
	outDims := make(dimexpr.Dims, len(reshape))
	known := dimexpr.Const(1)
	for axis, dim := range reshape {
		switch {
		case dim == -1:
			if inferredAxis != -1 {
				exceptions.Panicf("AddShuffle(%s, %v): more than one axis to infer", x, reshape)
			}
			inferredAxis = axis
			continue
		case dim == 0:
			if axis >= x.Rank() {
				exceptions.Panicf("AddShuffle(%s, %v): axis %d copies an axis x doesn't have", x, reshape, axis)
			}
			outDims[axis] = x.dims[axis]
		case dim > 0:
			outDims[axis] = dimexpr.Const(dim)
		default:
			exceptions.Panicf("AddShuffle(%s, %v): invalid dimension %d", x, reshape, dim)
		}
		known = dimexpr.Prod(known, outDims[axis])
	}
	if inferredAxis != -1 {
		outDims[inferredAxis] = dimexpr.FloorDiv(total, known)
	} else if totalValue, ok := dimexpr.IsConstant(total); ok {
		if knownValue, ok := dimexpr.IsConstant(known); ok && totalValue != knownValue {
			exceptions.Panicf("AddShuffle(%s, %v): can't reshape %d elements into %d", x, reshape, totalValue, knownValue)
		}
	}
	return n.newLayer(LayerShuffle, &shuffleData{reshape: slices.Clone(reshape)},
		[]*Tensor{x}, []dtypes.DType{x.dtype}, []dimexpr.Dims{outDims})
}

// AddShuffleDims adds a layer that reshapes x to the given symbolic dimensions, expressed in terms of the
// network inputs like the dimensions of x. It allows reshapes AddShuffle can't express, e.g. moving
// several dynamic axes of x to other positions.
//
// The number of elements must be preserved: it is checked here when both sides are static, and at
// execution otherwise.
func (n *Network) AddShuffleDims(x *Tensor, dims dimexpr.Dims) *Layer {
	n.checkTensors("AddShuffleDims", x)
	total, target := dimexpr.Const(1), dimexpr.Const(1)
	for _, dim := range x.dims {
		total = dimexpr.Prod(total, dim)
	}
	for axis, dim := range dims {
		if dim == nil {
			exceptions.Panicf("AddShuffleDims(%s, %s): nil dimension for axis %d", x, dims, axis)
		}
		if c, ok := dimexpr.IsConstant(dim); ok && c < 0 {
			exceptions.Panicf("AddShuffleDims(%s, %s): negative dimension for axis %d", x, dims, axis)
		}
		target = dimexpr.Prod(target, dim)
	}
	totalValue, totalOk := dimexpr.IsConstant(total)
	targetValue, targetOk := dimexpr.IsConstant(target)
	if totalOk && targetOk && totalValue != targetValue {
		exceptions.Panicf("AddShuffleDims(%s, %s): can't reshape %d elements into %d", x, dims, totalValue, targetValue)
	}
	return n.newLayer(LayerShuffle, &shuffleData{reshape: dims.Static()},
		[]*Tensor{x}, []dtypes.DType{x.dtype}, []dimexpr.Dims{dims.Clone()})
}

// AddScale adds a layer computing y = (x * scale + shift) ^ power, with the weights applied according to mode.
//
// x must have at least MinScaleRank axes. Weights can be nil (or empty), meaning identity, and must be
// float32 otherwise. Weight counts must match the mode: 1 for ScaleUniform, the channel dimension (axis 1)
// for ScaleChannel, and the number of elements per example for ScaleElementwise.
func (n *Network) AddScale(x *Tensor, mode ScaleMode, shift, scale, power *weights.Weights) *Layer {
	n.checkTensors("AddScale", x)
	if x.Rank() < MinScaleRank {
		exceptions.Panicf("AddScale(%s): input rank must be at least %d, got %d", x, MinScaleRank, x.Rank())
	}
	if !isFloat(x.dtype) {
		exceptions.Panicf("AddScale(%s): input must be float32 or float16", x)
	}
	var want int
	switch mode {
	case ScaleUniform:
		want = 1
	case ScaleChannel:
		c, ok := dimexpr.IsConstant(x.dims[1])
		if !ok {
			exceptions.Panicf("AddScale(%s): %s mode requires a static channel axis", x, mode)
		}
		want = c
	case ScaleElementwise:
		want = 1
		for _, dim := range x.dims[1:] {
			c, ok := dimexpr.IsConstant(dim)
			if !ok {
				exceptions.Panicf("AddScale(%s): %s mode requires static non-batch axes", x, mode)
			}
			want *= c
		}
	default:
		exceptions.Panicf("AddScale(%s): invalid mode %s", x, mode)
	}
	for _, w := range []*weights.Weights{shift, scale, power} {
		if w == nil || w.Count == 0 {
			continue
		}
		if w.DType != dtypes.Float32 {
			exceptions.Panicf("AddScale(%s): weights %s must be float32", x, w)
		}
		if w.Count != want {
			exceptions.Panicf("AddScale(%s): %s mode requires %d weights, %s has %d", x, mode, want, w, w.Count)
		}
	}
	data := &scaleData{mode: mode, shift: shift, scale: scale, power: power}
	return n.newLayer(LayerScale, data, []*Tensor{x}, []dtypes.DType{x.dtype}, []dimexpr.Dims{x.Dims()})
}

// AddElementWise adds a layer computing op(a, b). Inputs must have the same rank and dtype, and each axis
// must have the same dimension or be 1 (broadcast).
func (n *Network) AddElementWise(a, b *Tensor, op ElementWiseOp) *Layer {
	n.checkTensors("AddElementWise", a, b)
	if a.Rank() != b.Rank() || a.dtype != b.dtype {
		exceptions.Panicf("AddElementWise(%s, %s, %s): inputs must have the same rank and dtype", a, b, op)
	}
	if !isFloat(a.dtype) {
		exceptions.Panicf("AddElementWise(%s, %s, %s): inputs must be float32 or float16", a, b, op)
	}
	if int(op) >= len(elementWiseOpNames) {
		exceptions.Panicf("AddElementWise: invalid op %s", op)
	}
	outDims := make(dimexpr.Dims, a.Rank())
	for axis := range outDims {
		da, db := a.dims[axis], b.dims[axis]
		ca, aStatic := dimexpr.IsConstant(da)
		cb, bStatic := dimexpr.IsConstant(db)
		switch {
		case da == db:
			outDims[axis] = da
		case aStatic && ca == 1:
			outDims[axis] = db
		case bStatic && cb == 1:
			outDims[axis] = da
		case aStatic && bStatic:
			exceptions.Panicf("AddElementWise(%s, %s, %s): axis %d dimensions %d and %d can't be broadcast", a, b, op, axis, ca, cb)
		default:
			// Resolved at execution time, where a mismatch is an error.
			outDims[axis] = dimexpr.Max(da, db)
		}
	}
	return n.newLayer(LayerElementWise, &elementWiseData{op: op}, []*Tensor{a, b}, []dtypes.DType{a.dtype}, []dimexpr.Dims{outDims})
}

// AddActivation adds a layer applying the activation function to x.
func (n *Network) AddActivation(x *Tensor, kind ActivationKind) *Layer {
	n.checkTensors("AddActivation", x)
	if !isFloat(x.dtype) {
		exceptions.Panicf("AddActivation(%s, %s): input must be float32 or float16", x, kind)
	}
	if int(kind) >= len(activationKindNames) {
		exceptions.Panicf("AddActivation: invalid kind %s", kind)
	}
	return n.newLayer(LayerActivation, &activationData{kind: kind}, []*Tensor{x}, []dtypes.DType{x.dtype}, []dimexpr.Dims{x.Dims()})
}

// AddPlugin adds a layer executing the plugin instance on the inputs. The network takes ownership of the
// instance: it is configured and initialized by Build, and destroyed with the Engine.
func (n *Network) AddPlugin(inputs []*Tensor, instance *plugin.Instance) *Layer {
	n.checkTensors("AddPlugin", inputs...)
	if instance == nil {
		exceptions.Panicf("AddPlugin: nil plugin instance")
	}
	if instance.State() != plugin.StateConstructed && instance.State() != plugin.StateDeserialized {
		exceptions.Panicf("AddPlugin(%s): plugin instance was already used", instance)
	}
	for _, l := range n.layers {
		if l.Plugin() == instance {
			exceptions.Panicf("AddPlugin(%s): plugin instance already used by layer %s", instance, l)
		}
	}
	inputTypes := make([]dtypes.DType, len(inputs))
	localDims := make([]dimexpr.Dims, len(inputs))
	networkDims := make([]dimexpr.Dims, len(inputs))
	for ii, input := range inputs {
		inputTypes[ii] = input.dtype
		localDims[ii] = dimexpr.ForInput(ii, input.dims.Static())
		networkDims[ii] = input.dims
	}
	numOutputs := instance.NumOutputs()
	data := &pluginData{instance: instance, outDims: make([]dimexpr.Dims, numOutputs)}
	outDTypes := make([]dtypes.DType, numOutputs)
	outDims := make([]dimexpr.Dims, numOutputs)
	for ii := range numOutputs {
		outDTypes[ii] = instance.OutputDataType(ii, inputTypes)
		data.outDims[ii] = instance.OutputDimensions(ii, localDims)
		outDims[ii] = data.outDims[ii].Substitute(networkDims)
	}
	l := n.newLayer(LayerPlugin, data, inputs, outDTypes, outDims)
	l.name = fmt.Sprintf("%s_%d", instance.Type(), l.index)
	for ii, out := range l.outputs {
		out.name = fmt.Sprintf("%s_out%d", l.name, ii)
	}
	return l
}

func isFloat(dtype dtypes.DType) bool {
	return dtype == dtypes.Float32 || dtype == dtypes.Float16
}
