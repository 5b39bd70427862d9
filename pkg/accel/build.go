// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package accel

import (
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/accelconv/pkg/core/formats"
	"github.com/gomlx/accelconv/pkg/plugin"
	"github.com/gomlx/accelconv/pkg/weights"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DefaultMaxWorkspaceSize is the default bound of the scratch memory a plugin can request.
const DefaultMaxWorkspaceSize = 1 << 30

// BuildConfig configures Network.Build.
type BuildConfig struct {
	// FP16 prefers float16 when negotiating the formats of plugins: plugins that support it run in
	// float16, and their inputs and outputs are converted as needed.
	FP16 bool

	// MaxWorkspaceSize is the largest scratch memory, in bytes, any plugin may request at the maximum
	// dimensions of the optimization profile. If 0, DefaultMaxWorkspaceSize is used.
	MaxWorkspaceSize int
}

// candidates returns the (dtype, format) combinations tried for plugins, in order of preference.
// The reference accelerator only moves data in the linear format.
func (c BuildConfig) candidates() []plugin.TensorDesc {
	precisions := []dtypes.DType{dtypes.Float32, dtypes.Float16}
	if c.FP16 {
		precisions = []dtypes.DType{dtypes.Float16, dtypes.Float32}
	}
	candidates := make([]plugin.TensorDesc, 0, len(precisions))
	for _, dtype := range precisions {
		candidates = append(candidates, plugin.TensorDesc{DType: dtype, Format: formats.FormatLinear})
	}
	return candidates
}

// Build freezes the network and builds an Engine.
//
// For every plugin layer it negotiates the (dtype, format) of its inputs and outputs, configures it once,
// checks its workspace against BuildConfig.MaxWorkspaceSize and initializes it. Weights are copied into
// the engine, so the weights store can be released after Build returns.
//
// On failure every plugin of the network is destroyed, and the network can't be built again.
func (n *Network) Build(config BuildConfig) (engine *Engine, err error) {
	if n.built {
		return nil, errors.Errorf("network %q was already built", n.name)
	}
	if len(n.outputs) == 0 {
		return nil, errors.Errorf("network %q has no outputs marked", n.name)
	}
	n.built = true
	if config.MaxWorkspaceSize <= 0 {
		config.MaxWorkspaceSize = DefaultMaxWorkspaceSize
	}
	e := &Engine{
		id:   uuid.New(),
		name: n.name,
		fp16: config.FP16,
	}
	err = exceptions.TryCatch[error](func() {
		n.buildInto(e, config)
	})
	if err != nil {
		for _, l := range n.layers {
			if p := l.Plugin(); p != nil && p.State() != plugin.StateDestroyed {
				p.Destroy()
			}
		}
		return nil, errors.WithMessagef(err, "building network %q", n.name)
	}
	klog.V(1).Infof("built engine %s for network %q: %d layers, %d plugins, weights %s, workspace %s",
		e.id, n.name, len(e.layers), e.numPlugins(), humanize.Bytes(uint64(e.weightsBytes())), humanize.Bytes(uint64(e.workspaceSize)))
	return e, nil
}

func (n *Network) buildInto(e *Engine, config BuildConfig) {
	for _, t := range n.tensors {
		e.tensors = append(e.tensors, &engineTensor{
			name:  t.name,
			dtype: t.dtype,
			dims:  t.dims.Clone(),
			min:   slices.Clone(t.min),
			max:   slices.Clone(t.max),
		})
	}
	for _, t := range n.inputs {
		e.inputs = append(e.inputs, t.id)
	}
	for _, t := range n.outputs {
		e.outputs = append(e.outputs, t.id)
	}
	for _, l := range n.layers {
		el := &engineLayer{
			layerType: l.layerType,
			name:      l.name,
			inputs:    tensorIDs(l.inputs),
			outputs:   tensorIDs(l.outputs),
		}
		switch data := l.data.(type) {
		case *shuffleData:
			el.reshape = slices.Clone(data.reshape)
		case *scaleData:
			el.scaleMode = data.mode
			el.shift = copyWeights(data.shift, l)
			el.scale = copyWeights(data.scale, l)
			el.power = copyWeights(data.power, l)
		case *elementWiseData:
			el.elementWiseOp = data.op
		case *activationData:
			el.activation = data.kind
		case *pluginData:
			el.plugin = data.instance
			el.pluginOutDims = data.outDims
			e.layers = append(e.layers, el)
			el.pluginDescs = negotiateFormats(l, data.instance, config)
			e.configurePlugin(el)
			e.workspaceSize = max(e.workspaceSize, e.pluginWorkspace(el, config))
			if err := el.plugin.Initialize(); err != nil {
				panic(err)
			}
			klog.V(1).Infof("plugin layer %s: %s, negotiated %v", l, data.instance, el.pluginDescs)
			continue
		}
		e.layers = append(e.layers, el)
	}
}

func tensorIDs(tensors []*Tensor) []int {
	ids := make([]int, len(tensors))
	for ii, t := range tensors {
		ids[ii] = t.id
	}
	return ids
}

// copyWeights deep-copies the weights into the engine. Nil or empty weights mean identity.
func copyWeights(w *weights.Weights, l *Layer) []float32 {
	if w == nil {
		return nil
	}
	values, err := w.CloneValues()
	if err != nil {
		exceptions.Panicf("layer %s: %+v", l, err)
	}
	flat, ok := values.([]float32)
	if !ok {
		exceptions.Panicf("layer %s: weights must be float32, got %T", l, values)
	}
	if len(flat) == 0 {
		return nil
	}
	return flat
}

// negotiateFormats picks the first candidate (dtype, format) accepted by the plugin at every position.
func negotiateFormats(l *Layer, instance *plugin.Instance, config BuildConfig) []plugin.TensorDesc {
	numInputs := len(l.inputs)
	numPositions := numInputs + len(l.outputs)
	for _, candidate := range config.candidates() {
		inOut := make([]plugin.TensorDesc, numPositions)
		for pos := range inOut {
			var t *Tensor
			if pos < numInputs {
				t = l.inputs[pos]
			} else {
				t = l.outputs[pos-numInputs]
			}
			inOut[pos] = plugin.TensorDesc{DType: candidate.DType, Format: candidate.Format, Dims: t.dims.Static()}
		}
		accepted := true
		for pos := range inOut {
			if !instance.SupportsFormat(pos, inOut, numInputs) {
				klog.V(2).Infof("plugin layer %s rejects %s at position %d", l, inOut[pos], pos)
				accepted = false
				break
			}
		}
		if accepted {
			return inOut
		}
	}
	exceptions.Panicf("plugin layer %s: no supported format among %v", l, config.candidates())
	return nil
}

// configurePlugin configures the plugin of the layer with its negotiated descriptors and the bounds of
// its tensors.
func (e *Engine) configurePlugin(el *engineLayer) {
	descs := el.pluginDescs
	dynamicDescs := make([]plugin.DynamicTensorDesc, len(descs))
	tensorIDs := append(slices.Clone(el.inputs), el.outputs...)
	for pos, id := range tensorIDs {
		t := e.tensors[id]
		dynamicDescs[pos] = plugin.DynamicTensorDesc{Desc: descs[pos], Min: slices.Clone(t.min), Max: slices.Clone(t.max)}
	}
	numInputs := len(el.inputs)
	el.plugin.Configure(dynamicDescs[:numInputs], dynamicDescs[numInputs:])
}

// pluginWorkspace returns the workspace the plugin of the layer needs at the maximum dimensions, and
// panics if it exceeds the configured limit.
func (e *Engine) pluginWorkspace(el *engineLayer, config BuildConfig) int {
	numInputs := len(el.inputs)
	descs := make([]plugin.TensorDesc, len(el.pluginDescs))
	for pos, desc := range el.pluginDescs {
		var id int
		if pos < numInputs {
			id = el.inputs[pos]
		} else {
			id = el.outputs[pos-numInputs]
		}
		desc.Dims = slices.Clone(e.tensors[id].max)
		descs[pos] = desc
	}
	size := el.plugin.WorkspaceSize(descs[:numInputs], descs[numInputs:])
	if size > config.MaxWorkspaceSize {
		exceptions.Panicf("plugin layer %q requires a workspace of %s, more than the limit of %s",
			el.name, humanize.Bytes(uint64(size)), humanize.Bytes(uint64(config.MaxWorkspaceSize)))
	}
	return size
}
