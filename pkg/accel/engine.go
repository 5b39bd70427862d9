// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package accel

import (
	"fmt"
	"slices"

	"github.com/gomlx/accelconv/pkg/core/dimexpr"
	"github.com/gomlx/accelconv/pkg/core/shapes"
	"github.com/gomlx/accelconv/pkg/plugin"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Engine is a built network, ready to execute.
//
// It is read-only during execution, so Execute can be called concurrently on different streams.
type Engine struct {
	id   uuid.UUID
	name string
	fp16 bool

	tensors []*engineTensor
	inputs  []int
	outputs []int
	layers  []*engineLayer

	// workspaceSize is the largest workspace needed by any plugin, at the maximum dimensions.
	workspaceSize int

	destroyed bool
}

// engineTensor is the frozen version of a Tensor.
type engineTensor struct {
	name     string
	dtype    dtypes.DType
	dims     dimexpr.Dims
	min, max []int
}

// engineLayer is the frozen version of a Layer, with its weights copied.
type engineLayer struct {
	layerType       LayerType
	name            string
	inputs, outputs []int

	// LayerShuffle
	reshape []int

	// LayerScale
	scaleMode           ScaleMode
	shift, scale, power []float32

	// LayerElementWise
	elementWiseOp ElementWiseOp

	// LayerActivation
	activation ActivationKind

	// LayerPlugin: pluginOutDims are in terms of the plugin inputs, pluginDescs holds the negotiated
	// descriptors of the inputs followed by the outputs.
	plugin        *plugin.Instance
	pluginOutDims []dimexpr.Dims
	pluginDescs   []plugin.TensorDesc
}

// ID returns the build id of the engine. It is preserved by serialization.
func (e *Engine) ID() uuid.UUID { return e.id }

// Name returns the name of the network the engine was built from.
func (e *Engine) Name() string { return e.name }

// FP16 returns whether the engine was built preferring float16.
func (e *Engine) FP16() bool { return e.fp16 }

// WorkspaceSize returns the largest plugin workspace, in bytes, at the maximum dimensions of the profile.
func (e *Engine) WorkspaceSize() int { return e.workspaceSize }

// NumLayers returns the number of layers.
func (e *Engine) NumLayers() int { return len(e.layers) }

// TensorInfo describes an input or output of the engine.
type TensorInfo struct {
	Name     string
	Shape    shapes.Shape
	Dims     dimexpr.Dims
	Min, Max []int
}

func (e *Engine) tensorInfo(id int) TensorInfo {
	t := e.tensors[id]
	return TensorInfo{
		Name:  t.name,
		Shape: shapes.Make(t.dtype, t.dims.Static()...),
		Dims:  t.dims.Clone(),
		Min:   slices.Clone(t.min),
		Max:   slices.Clone(t.max),
	}
}

// Inputs describes the inputs of the engine, in order.
func (e *Engine) Inputs() []TensorInfo {
	infos := make([]TensorInfo, len(e.inputs))
	for ii, id := range e.inputs {
		infos[ii] = e.tensorInfo(id)
	}
	return infos
}

// Outputs describes the outputs of the engine, in order.
func (e *Engine) Outputs() []TensorInfo {
	infos := make([]TensorInfo, len(e.outputs))
	for ii, id := range e.outputs {
		infos[ii] = e.tensorInfo(id)
	}
	return infos
}

// LayerInfo describes a layer of the engine.
type LayerInfo struct {
	Index           int
	Type            LayerType
	Name            string
	Inputs, Outputs []string

	// Detail is a short description of the layer parameters.
	Detail string

	// WeightsCount is the number of weight values held by the layer.
	WeightsCount int

	// Plugin is set for LayerPlugin.
	Plugin *PluginInfo
}

// PluginInfo describes the plugin of a plugin layer.
type PluginInfo struct {
	Type, Version, Namespace string
	State                    plugin.State
	SerializedBytes          int
	Descs                    []plugin.TensorDesc
}

// Layers describes the layers of the engine, in execution order.
func (e *Engine) Layers() []LayerInfo {
	infos := make([]LayerInfo, len(e.layers))
	for ii, el := range e.layers {
		info := LayerInfo{Index: ii, Type: el.layerType, Name: el.name}
		for _, id := range el.inputs {
			info.Inputs = append(info.Inputs, e.tensors[id].name)
		}
		for _, id := range el.outputs {
			info.Outputs = append(info.Outputs, e.tensors[id].name)
		}
		switch el.layerType {
		case LayerShuffle:
			info.Detail = fmt.Sprintf("reshape=%v", el.reshape)
		case LayerScale:
			info.Detail = fmt.Sprintf("mode=%s", el.scaleMode)
			info.WeightsCount = len(el.shift) + len(el.scale) + len(el.power)
		case LayerElementWise:
			info.Detail = fmt.Sprintf("op=%s", el.elementWiseOp)
		case LayerActivation:
			info.Detail = fmt.Sprintf("kind=%s", el.activation)
		case LayerPlugin:
			if !e.destroyed {
				info.Detail = el.plugin.String()
				info.Plugin = &PluginInfo{
					Type:            el.plugin.Type(),
					Version:         el.plugin.Version(),
					Namespace:       el.plugin.Namespace(),
					State:           el.plugin.State(),
					SerializedBytes: el.plugin.SerializationSize(),
					Descs:           slices.Clone(el.pluginDescs),
				}
			}
		}
		infos[ii] = info
	}
	return infos
}

func (e *Engine) numPlugins() int {
	var count int
	for _, el := range e.layers {
		if el.plugin != nil {
			count++
		}
	}
	return count
}

// weightsBytes returns the total size of the weights held by the engine.
func (e *Engine) weightsBytes() int {
	var total int
	for _, el := range e.layers {
		total += 4 * (len(el.shift) + len(el.scale) + len(el.power))
	}
	return total
}

// WeightsBytes returns the total size of the weights held by the engine.
func (e *Engine) WeightsBytes() int { return e.weightsBytes() }

// Destroy terminates and destroys every plugin of the engine. The engine can't be used afterward.
// It is safe to call it more than once.
func (e *Engine) Destroy() {
	if e.destroyed {
		return
	}
	for _, el := range e.layers {
		if el.plugin != nil && el.plugin.State() != plugin.StateDestroyed {
			el.plugin.Destroy()
		}
	}
	e.destroyed = true
	klog.V(1).Infof("destroyed engine %s", e.id)
}

// Execute runs the engine on the given inputs, keyed by input name, and returns the outputs keyed by
// output name.
//
// The input dimensions must match the static axes of each input and be within the bounds of the
// optimization profile. Each call allocates its own intermediate buffers and plugin workspace, so
// concurrent calls on different streams are safe.
func (e *Engine) Execute(stream plugin.Stream, inputs map[string]*Buffer) (map[string]*Buffer, error) {
	if e.destroyed {
		return nil, errors.Errorf("engine %s was destroyed", e.id)
	}
	values := make([]*Buffer, len(e.tensors))
	inputDims := make([][]int, len(e.inputs))
	for ii, id := range e.inputs {
		t := e.tensors[id]
		b, found := inputs[t.name]
		if !found || b == nil {
			return nil, errors.Errorf("missing input %q", t.name)
		}
		if err := e.checkInput(t, b); err != nil {
			return nil, err
		}
		values[id] = b
		inputDims[ii] = b.Dims
	}
	if len(inputs) != len(e.inputs) {
		for name := range inputs {
			if !slices.ContainsFunc(e.inputs, func(id int) bool { return e.tensors[id].name == name }) {
				return nil, errors.Errorf("unknown input %q", name)
			}
		}
	}

	for _, el := range e.layers {
		err := exceptions.TryCatch[error](func() {
			if err := e.executeLayer(el, values, inputDims, stream); err != nil {
				panic(err)
			}
		})
		if err != nil {
			return nil, errors.WithMessagef(err, "executing layer %q", el.name)
		}
	}

	outputs := make(map[string]*Buffer, len(e.outputs))
	for _, id := range e.outputs {
		outputs[e.tensors[id].name] = values[id]
	}
	return outputs, nil
}

// checkInput validates the buffer of an input against its shape and optimization profile.
func (e *Engine) checkInput(t *engineTensor, b *Buffer) error {
	if err := b.check(); err != nil {
		return errors.WithMessagef(err, "input %q", t.name)
	}
	if b.DType != t.dtype {
		return errors.Errorf("input %q must be %s, got %s", t.name, t.dtype, b.DType)
	}
	if err := shapes.Make(t.dtype, t.dims.Static()...).Accepts(b.Dims); err != nil {
		return errors.WithMessagef(err, "input %q", t.name)
	}
	for axis, dim := range b.Dims {
		if dim < t.min[axis] || dim > t.max[axis] {
			return errors.Errorf("input %q axis %d has dimension %d, outside the optimization profile [%d, %d]",
				t.name, axis, dim, t.min[axis], t.max[axis])
		}
	}
	return nil
}

// executeLayer computes the outputs of the layer and stores them in values.
func (e *Engine) executeLayer(el *engineLayer, values []*Buffer, inputDims [][]int, stream plugin.Stream) error {
	inputs := make([]*Buffer, len(el.inputs))
	for ii, id := range el.inputs {
		inputs[ii] = values[id]
	}
	if el.layerType == LayerPlugin {
		outputs, err := e.executePlugin(el, inputs, stream)
		if err != nil {
			return err
		}
		for ii, id := range el.outputs {
			values[id] = outputs[ii]
		}
		return nil
	}

	out := e.tensors[el.outputs[0]]
	outDims, err := out.dims.Eval(inputDims)
	if err != nil {
		return err
	}
	var result []float32
	switch el.layerType {
	case LayerShuffle:
		result, err = execShuffle(inputs[0], outDims)
	case LayerScale:
		result, err = execScale(el, inputs[0])
	case LayerElementWise:
		result, err = execElementWise(el.elementWiseOp, inputs[0], inputs[1], outDims)
	case LayerActivation:
		result = execActivation(el.activation, inputs[0])
	default:
		return errors.Errorf("unknown layer type %s", el.layerType)
	}
	if err != nil {
		return err
	}
	values[el.outputs[0]] = bufferFromFloat32(out.dtype, outDims, result)
	return nil
}

// executePlugin converts the inputs to the negotiated dtypes, runs the plugin and converts the outputs
// back to the dtypes of the output tensors.
func (e *Engine) executePlugin(el *engineLayer, inputs []*Buffer, stream plugin.Stream) ([]*Buffer, error) {
	numInputs := len(el.inputs)
	inDescs := make([]plugin.TensorDesc, numInputs)
	inFlat := make([]any, numInputs)
	pluginInputDims := make([][]int, numInputs)
	for ii, b := range inputs {
		desc := el.pluginDescs[ii]
		converted := b.convert(desc.DType)
		desc.Dims = slices.Clone(b.Dims)
		inDescs[ii] = desc
		inFlat[ii] = converted.Flat
		pluginInputDims[ii] = b.Dims
	}
	outDescs := make([]plugin.TensorDesc, len(el.outputs))
	outBuffers := make([]*Buffer, len(el.outputs))
	outFlat := make([]any, len(el.outputs))
	for ii := range el.outputs {
		dims, err := el.pluginOutDims[ii].Eval(pluginInputDims)
		if err != nil {
			return nil, err
		}
		desc := el.pluginDescs[numInputs+ii]
		desc.Dims = dims
		outDescs[ii] = desc
		outBuffers[ii] = newZeroBuffer(desc.DType, dims)
		outFlat[ii] = outBuffers[ii].Flat
	}
	workspace := make([]byte, el.plugin.WorkspaceSize(inDescs, outDescs))
	if err := el.plugin.Execute(inDescs, outDescs, inFlat, outFlat, workspace, stream); err != nil {
		return nil, err
	}
	for ii, id := range el.outputs {
		outBuffers[ii] = outBuffers[ii].convert(e.tensors[id].dtype)
	}
	return outBuffers, nil
}
