// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package accel

import (
	"github.com/dustin/go-humanize"
	"github.com/gomlx/accelconv/pkg/core/dimexpr"
	"github.com/gomlx/accelconv/pkg/core/formats"
	"github.com/gomlx/accelconv/pkg/plugin"
	"github.com/gomlx/accelconv/pkg/plugin/wire"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// engineMagic starts every serialized engine.
	engineMagic = "ACCE"

	// EngineFormatVersion is the version of the serialized engine layout.
	EngineFormatVersion int32 = 1
)

// Expression node tags.
const (
	exprConstant uint8 = iota
	exprInputDim
	exprBinary
)

// Serialize returns the engine in a self-contained binary form: layers, weights, and for each plugin
// its type, version, namespace, serialized configuration and negotiated descriptors.
//
// Deserialize loads it back, reconstructing plugins only from their serialized bytes.
func (e *Engine) Serialize() (data []byte, err error) {
	if e.destroyed {
		return nil, errors.Errorf("engine %s was destroyed", e.id)
	}
	err = exceptions.TryCatch[error](func() {
		w := wire.NewGrowingWriter(1024)
		for _, c := range []byte(engineMagic) {
			wire.Put(w, c)
		}
		wire.Put(w, EngineFormatVersion)
		wire.PutBytes(w, e.id[:])
		wire.PutString(w, e.name)
		wire.Put(w, e.fp16)
		wire.Put(w, int64(e.workspaceSize))

		wire.Put(w, int32(len(e.tensors)))
		for _, t := range e.tensors {
			wire.PutString(w, t.name)
			wire.Put(w, int32(t.dtype))
			putDims(w, t.dims)
			putInts(w, t.min)
			putInts(w, t.max)
		}
		putInts(w, e.inputs)
		putInts(w, e.outputs)

		wire.Put(w, int32(len(e.layers)))
		for _, el := range e.layers {
			putLayer(w, el)
		}
		data = w.Bytes()
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "serializing engine %s", e.id)
	}
	klog.V(1).Infof("serialized engine %s: %s", e.id, humanize.Bytes(uint64(len(data))))
	return data, nil
}

func putLayer(w *wire.Writer, el *engineLayer) {
	wire.Put(w, uint8(el.layerType))
	wire.PutString(w, el.name)
	putInts(w, el.inputs)
	putInts(w, el.outputs)
	switch el.layerType {
	case LayerShuffle:
		putInts(w, el.reshape)
	case LayerScale:
		wire.Put(w, uint8(el.scaleMode))
		wire.PutSlice(w, el.shift)
		wire.PutSlice(w, el.scale)
		wire.PutSlice(w, el.power)
	case LayerElementWise:
		wire.Put(w, uint8(el.elementWiseOp))
	case LayerActivation:
		wire.Put(w, uint8(el.activation))
	case LayerPlugin:
		wire.PutString(w, el.plugin.Type())
		wire.PutString(w, el.plugin.Version())
		wire.PutString(w, el.plugin.Namespace())
		wire.PutBytes(w, el.plugin.Serialize())
		wire.Put(w, int32(len(el.pluginDescs)))
		for _, desc := range el.pluginDescs {
			wire.Put(w, int32(desc.DType))
			wire.Put(w, int32(desc.Format))
		}
	default:
		exceptions.Panicf("can't serialize layer %q of type %s", el.name, el.layerType)
	}
}

func putInts(w *wire.Writer, values []int) {
	converted := make([]int64, len(values))
	for ii, v := range values {
		converted[ii] = int64(v)
	}
	wire.PutSlice(w, converted)
}

func getInts(r *wire.Reader) []int {
	values := wire.GetSlice[int64](r)
	converted := make([]int, len(values))
	for ii, v := range values {
		converted[ii] = int(v)
	}
	return converted
}

func putDims(w *wire.Writer, dims dimexpr.Dims) {
	wire.Put(w, int32(len(dims)))
	for _, expr := range dims {
		putExpr(w, expr)
	}
}

func getDims(r *wire.Reader) dimexpr.Dims {
	// Each expression takes at least its tag byte.
	dims := make(dimexpr.Dims, wire.GetCount(r, 1))
	for axis := range dims {
		dims[axis] = getExpr(r)
	}
	return dims
}

func putExpr(w *wire.Writer, expr dimexpr.Expr) {
	switch e := expr.(type) {
	case dimexpr.Constant:
		wire.Put(w, exprConstant)
		wire.Put(w, int64(e))
	case dimexpr.InputDim:
		wire.Put(w, exprInputDim)
		wire.Put(w, int32(e.Input))
		wire.Put(w, int32(e.Axis))
	case dimexpr.Binary:
		wire.Put(w, exprBinary)
		wire.Put(w, uint8(e.Op))
		putExpr(w, e.LHS)
		putExpr(w, e.RHS)
	default:
		exceptions.Panicf("can't serialize dimension expression of type %T", expr)
	}
}

func getExpr(r *wire.Reader) dimexpr.Expr {
	switch tag := wire.Get[uint8](r); tag {
	case exprConstant:
		return dimexpr.Const(int(wire.Get[int64](r)))
	case exprInputDim:
		input := int(wire.Get[int32](r))
		return dimexpr.Dim(input, int(wire.Get[int32](r)))
	case exprBinary:
		op := dimexpr.Op(wire.Get[uint8](r))
		lhs := getExpr(r)
		rhs := getExpr(r)
		return dimexpr.Binary{Op: op, LHS: lhs, RHS: rhs}
	default:
		exceptions.Panicf("invalid dimension expression tag %d", tag)
	}
	return nil
}

// Deserialize loads an engine serialized with Engine.Serialize.
//
// Plugins are reconstructed through the registry from their serialized bytes only, then configured with
// the negotiated descriptors and initialized. It doesn't need the original graph or network.
func Deserialize(data []byte, registry *plugin.Registry) (engine *Engine, err error) {
	e := &Engine{}
	err = exceptions.TryCatch[error](func() {
		r := wire.NewReader(data)
		magic := make([]byte, len(engineMagic))
		for ii := range magic {
			magic[ii] = wire.Get[uint8](r)
		}
		if string(magic) != engineMagic {
			exceptions.Panicf("not a serialized engine, invalid magic %q", magic)
		}
		if version := wire.Get[int32](r); version != EngineFormatVersion {
			exceptions.Panicf("unsupported engine format version %d, wanted %d", version, EngineFormatVersion)
		}
		id, err := uuid.FromBytes(wire.GetBytes(r))
		if err != nil {
			panic(errors.Wrap(err, "invalid engine id"))
		}
		e.id = id
		e.name = wire.GetString(r)
		e.fp16 = wire.Get[bool](r)
		e.workspaceSize = int(wire.Get[int64](r))

		numTensors := int(wire.Get[int32](r))
		for range numTensors {
			t := &engineTensor{}
			t.name = wire.GetString(r)
			t.dtype = dtypes.DType(wire.Get[int32](r))
			t.dims = getDims(r)
			t.min = getInts(r)
			t.max = getInts(r)
			e.tensors = append(e.tensors, t)
		}
		e.inputs = e.checkedTensorIDs(getInts(r))
		e.outputs = e.checkedTensorIDs(getInts(r))

		numLayers := int(wire.Get[int32](r))
		for range numLayers {
			e.getLayer(r, registry)
		}
		if r.Remaining() != 0 {
			exceptions.Panicf("%d trailing bytes after the engine", r.Remaining())
		}
	})
	if err != nil {
		e.Destroy()
		return nil, errors.WithMessagef(err, "deserializing engine from %d bytes", len(data))
	}
	klog.V(1).Infof("loaded engine %s for network %q: %d layers, %d plugins", e.id, e.name, len(e.layers), e.numPlugins())
	return e, nil
}

func (e *Engine) checkedTensorIDs(ids []int) []int {
	for _, id := range ids {
		if id < 0 || id >= len(e.tensors) {
			exceptions.Panicf("invalid tensor id %d, engine has %d tensors", id, len(e.tensors))
		}
	}
	return ids
}

// getLayer reads the next layer and appends it to the engine.
func (e *Engine) getLayer(r *wire.Reader, registry *plugin.Registry) {
	el := &engineLayer{}
	e.layers = append(e.layers, el)
	el.layerType = LayerType(wire.Get[uint8](r))
	el.name = wire.GetString(r)
	el.inputs = e.checkedTensorIDs(getInts(r))
	el.outputs = e.checkedTensorIDs(getInts(r))
	switch el.layerType {
	case LayerShuffle:
		el.reshape = getInts(r)
	case LayerScale:
		el.scaleMode = ScaleMode(wire.Get[uint8](r))
		el.shift = nilIfEmpty(wire.GetSlice[float32](r))
		el.scale = nilIfEmpty(wire.GetSlice[float32](r))
		el.power = nilIfEmpty(wire.GetSlice[float32](r))
	case LayerElementWise:
		el.elementWiseOp = ElementWiseOp(wire.Get[uint8](r))
	case LayerActivation:
		el.activation = ActivationKind(wire.Get[uint8](r))
	case LayerPlugin:
		pluginType := wire.GetString(r)
		version := wire.GetString(r)
		namespace := wire.GetString(r)
		blob := wire.GetBytes(r)
		numDescs := int(wire.Get[int32](r))
		if numDescs != len(el.inputs)+len(el.outputs) {
			exceptions.Panicf("plugin layer %q has %d descriptors for %d inputs and %d outputs",
				el.name, numDescs, len(el.inputs), len(el.outputs))
		}
		el.pluginDescs = make([]plugin.TensorDesc, numDescs)
		for pos := range el.pluginDescs {
			el.pluginDescs[pos].DType = dtypes.DType(wire.Get[int32](r))
			el.pluginDescs[pos].Format = formats.Format(wire.Get[int32](r))
		}
		instance, err := registry.Deserialize(pluginType, version, blob)
		if err != nil {
			panic(errors.WithMessagef(err, "plugin layer %q", el.name))
		}
		// Owned by the engine from now on, so it's destroyed if loading fails.
		el.plugin = instance
		instance.SetNamespace(namespace)
		e.restorePlugin(el)
	default:
		exceptions.Panicf("invalid layer type %s for layer %q", el.layerType, el.name)
	}
}

// restorePlugin recomputes the plugin output dimensions, then configures and initializes it.
func (e *Engine) restorePlugin(el *engineLayer) {
	localDims := make([]dimexpr.Dims, len(el.inputs))
	for ii, id := range el.inputs {
		localDims[ii] = dimexpr.ForInput(ii, e.tensors[id].dims.Static())
		el.pluginDescs[ii].Dims = e.tensors[id].dims.Static()
	}
	if el.plugin.NumOutputs() != len(el.outputs) {
		exceptions.Panicf("plugin layer %q has %d outputs, plugin %s has %d", el.name, len(el.outputs), el.plugin, el.plugin.NumOutputs())
	}
	el.pluginOutDims = make([]dimexpr.Dims, len(el.outputs))
	for ii, id := range el.outputs {
		el.pluginOutDims[ii] = el.plugin.OutputDimensions(ii, localDims)
		el.pluginDescs[len(el.inputs)+ii].Dims = e.tensors[id].dims.Static()
	}
	e.configurePlugin(el)
	if err := el.plugin.Initialize(); err != nil {
		panic(err)
	}
}

func nilIfEmpty(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	return values
}
