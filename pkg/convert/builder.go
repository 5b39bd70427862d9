// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package convert converts host graphs (see package ir) into accelerator networks and engines (see
// package accel).
//
// Each operator type is converted by a Converter, looked up in a Registry. A Builder holds the state of
// one conversion: the accelerator network, the tensor namespace mapping host tensor names to network
// tensors, the weights staged for the build and the plugin instances created.
//
// Example:
//
//	b := convert.NewBuilder(g.Name, converters.NewRegistry(), plugins.NewRegistry(), g.Scope(), convert.Options{})
//	if err := b.ConvertGraph(g); err != nil { ... }
//	engine, err := b.Build(accel.BuildConfig{})
package convert

import (
	"fmt"
	"slices"

	"github.com/gomlx/accelconv/pkg/accel"
	"github.com/gomlx/accelconv/pkg/ir"
	"github.com/gomlx/accelconv/pkg/plugin"
	"github.com/gomlx/accelconv/pkg/support/sets"
	"github.com/gomlx/accelconv/pkg/weights"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Options of a conversion.
type Options struct {
	// FP16 enables float16 in plugins that support it, and makes the engine prefer float16.
	FP16 bool

	// Retained is the set of host tensors consumed by the retained inference graph: operators none of
	// whose outputs are retained are skipped. If nil, the graph's own retained list is used by
	// ConvertGraph, and if that is also nil, every tensor is retained. ConvertGraph always retains
	// the graph outputs in addition.
	Retained sets.Set[string]

	// TestMode marks every converted output as a network output.
	TestMode bool

	// OnOpConverted, if set, is called after each operator of ConvertGraph is processed, converted or
	// skipped.
	OnOpConverted func(op *ir.OpDesc)
}

// Builder holds the state of one conversion. It is not safe for concurrent use.
type Builder struct {
	name       string
	converters *Registry
	plugins    *plugin.Registry
	scope      ir.Scope
	options    Options
	retained   sets.Set[string]

	network *accel.Network
	store   *weights.Store

	// tensors is the committed namespace, and pending the outputs registered by the converter running.
	// pendingMarks are the test mode outputs of the converter running, marked when it succeeds.
	tensors      map[string]*accel.Tensor
	pending      map[string]*accel.Tensor
	pendingMarks []*accel.Tensor
	converting   bool

	// created are the plugin instances created and not yet handed to the network.
	created []*plugin.Instance

	built bool
}

// NewBuilder creates a Builder for a network with the given name. The scope gives access to the host
// parameters, and can be nil if no converter uses them.
func NewBuilder(name string, converters *Registry, plugins *plugin.Registry, scope ir.Scope, options Options) *Builder {
	return &Builder{
		name:       name,
		converters: converters,
		plugins:    plugins,
		scope:      scope,
		options:    options,
		retained:   options.Retained,
		network:    accel.NewNetwork(name),
		store:      weights.NewStore(),
		tensors:    make(map[string]*accel.Tensor),
	}
}

// Name of the network being built.
func (b *Builder) Name() string { return b.name }

// Options of the conversion.
func (b *Builder) Options() Options { return b.options }

// Network being built. Converters add their layers to it.
func (b *Builder) Network() *accel.Network { return b.network }

// Weights returns the store of the weights staged for this build.
func (b *Builder) Weights() *weights.Store { return b.store }

// DeclareInput adds a network input for the host graph input.
func (b *Builder) DeclareInput(spec ir.InputSpec) *accel.Tensor {
	if b.HasTensor(spec.Name) {
		exceptions.Panicf("DeclareInput(%q): tensor already defined", spec.Name)
	}
	t := b.network.AddInput(spec.Name, spec.Shape(), spec.Min, spec.Max)
	b.SetTensor(spec.Name, t)
	return t
}

// Tensor returns the network tensor for the host tensor name. It panics if it is not defined.
func (b *Builder) Tensor(name string) *accel.Tensor {
	t, found := b.lookup(name)
	if !found {
		exceptions.Panicf("tensor %q not defined in network %q", name, b.name)
	}
	return t
}

// HasTensor returns whether the host tensor name is defined.
func (b *Builder) HasTensor(name string) bool {
	_, found := b.lookup(name)
	return found
}

func (b *Builder) lookup(name string) (*accel.Tensor, bool) {
	if t, found := b.pending[name]; found {
		return t, true
	}
	t, found := b.tensors[name]
	return t, found
}

// SetTensor maps the host tensor name to the network tensor. During ConvertOp the mapping is only
// committed when the converter succeeds.
func (b *Builder) SetTensor(name string, t *accel.Tensor) {
	if t == nil {
		exceptions.Panicf("SetTensor(%q): nil tensor", name)
	}
	if b.converting {
		b.pending[name] = t
		return
	}
	b.tensors[name] = t
}

// IsRetained returns whether the host tensor is consumed by the retained inference graph.
func (b *Builder) IsRetained(name string) bool {
	return b.retained == nil || b.retained.Has(name)
}

// StageScalar stages a single-element float32 weight.
func (b *Builder) StageScalar(name string, value float32) *weights.Weights {
	w, err := weights.StageScalar(b.store, name, value)
	if err != nil {
		panic(err)
	}
	return w
}

// StageWeights stages float32 weights.
func (b *Builder) StageWeights(name string, values []float32) *weights.Weights {
	w, err := b.store.Stage(name, dtypes.Float32, values)
	if err != nil {
		panic(err)
	}
	return w
}

// Param returns the host parameter with the given name. It panics if it is not in scope.
func (b *Builder) Param(name string) *ir.Param {
	if b.scope == nil {
		exceptions.Panicf("parameter %q requested, but network %q has no scope", name, b.name)
	}
	p, found := b.scope.Param(name)
	if !found {
		exceptions.Panicf("parameter %q not found in scope of network %q", name, b.name)
	}
	return p
}

// CreatePlugin creates a plugin instance from the plugin registry. It panics on error.
//
// Instances created and not added with AddPlugin are destroyed if the conversion of the operator fails.
func (b *Builder) CreatePlugin(pluginType, version string, fields plugin.Fields) *plugin.Instance {
	instance, err := b.plugins.Create(pluginType, version, fields)
	if err != nil {
		panic(err)
	}
	b.created = append(b.created, instance)
	return instance
}

// AddPlugin adds a plugin layer, handing the instance to the network.
func (b *Builder) AddPlugin(inputs []*accel.Tensor, instance *plugin.Instance) *accel.Layer {
	l := b.network.AddPlugin(inputs, instance)
	b.created = slices.DeleteFunc(b.created, func(p *plugin.Instance) bool { return p == instance })
	return l
}

// ExpandRank pads t with trailing axes of dimension 1 up to minRank, and returns the padded tensor and
// the original rank. It returns t itself if it already has rank minRank or more.
func (b *Builder) ExpandRank(t *accel.Tensor, minRank int) (*accel.Tensor, int) {
	rank := t.Rank()
	if rank >= minRank {
		return t, rank
	}
	reshape := make([]int, minRank)
	for axis := rank; axis < minRank; axis++ {
		reshape[axis] = 1
	}
	l := b.network.AddShuffle(t, reshape)
	l.SetName(fmt.Sprintf("%s_expand_rank", t.Name()))
	return l.Output(0), rank
}

// RestoreRank drops the trailing axes added by ExpandRank, returning t to the given rank.
func (b *Builder) RestoreRank(t *accel.Tensor, rank int) *accel.Layer {
	if rank > t.Rank() {
		exceptions.Panicf("RestoreRank(%s, %d): tensor has lower rank", t, rank)
	}
	return b.network.AddShuffle(t, make([]int, rank))
}

// ReplenishLayerAndOutput names the layer after the operator type and its first output, and registers
// each output of the layer under the given host names. In testMode the outputs are also marked as
// network outputs, during ConvertOp only once the converter succeeds.
func (b *Builder) ReplenishLayerAndOutput(layer *accel.Layer, opType string, outputs []string, testMode bool) {
	if layer.NumOutputs() != len(outputs) {
		exceptions.Panicf("layer %s has %d outputs, operator %q has %d", layer, layer.NumOutputs(), opType, len(outputs))
	}
	if len(outputs) > 0 {
		layer.SetName(fmt.Sprintf("%s (Output: %s)", opType, outputs[0]))
	}
	for ii, name := range outputs {
		t := layer.Output(ii)
		t.SetName(name)
		b.SetTensor(name, t)
		if !testMode {
			continue
		}
		if b.converting {
			b.pendingMarks = append(b.pendingMarks, t)
		} else {
			b.network.MarkOutput(t)
		}
	}
}

// ConvertOp converts one operator.
//
// Operators with no registered converter fail with ErrUnsupportedOperator, and operators with
// undeclared attributes with ErrUnknownAttribute, in both cases before any change to the network.
// Operators none of whose outputs are retained are skipped. The outputs registered by the converter
// are only committed to the tensor namespace, and marked as network outputs in test mode, if it
// succeeds. Layers it added before failing stay in the network, which then can't be built.
func (b *Builder) ConvertOp(op *ir.OpDesc, testMode bool) error {
	if b.built {
		return errors.Errorf("network %q was already built", b.name)
	}
	c, found := b.converters.Lookup(op.Type)
	if !found {
		return errors.Wrapf(ErrUnsupportedOperator, "operator %s", op)
	}
	if err := c.checkAttributes(op); err != nil {
		return err
	}
	if !slices.ContainsFunc(op.Outputs, b.IsRetained) {
		klog.V(1).Infof("skipping operator %s: no output retained", op)
		return nil
	}

	b.converting = true
	b.pending = make(map[string]*accel.Tensor)
	b.pendingMarks = nil
	numCreated := len(b.created)
	err := exceptions.TryCatch[error](func() {
		c.Convert(b, op, testMode)
		for _, name := range op.Outputs {
			if _, found := b.pending[name]; !found {
				exceptions.Panicf("converter didn't register output %q", name)
			}
		}
	})
	pending, marks := b.pending, b.pendingMarks
	b.converting = false
	b.pending, b.pendingMarks = nil, nil
	if err != nil {
		for _, instance := range b.created[numCreated:] {
			instance.Destroy()
		}
		b.created = b.created[:numCreated]
		return errors.WithMessagef(err, "converting operator %s", op)
	}
	for name, t := range pending {
		b.tensors[name] = t
	}
	for _, t := range marks {
		b.network.MarkOutput(t)
	}
	klog.V(1).Infof("converted operator %s", op)
	return nil
}

// ConvertGraph declares the graph inputs, converts every operator and marks the graph outputs.
//
// The operator types are all checked before anything is converted.
func (b *Builder) ConvertGraph(g *ir.Graph) error {
	var unsupported []string
	for _, op := range g.Ops {
		if _, found := b.converters.Lookup(op.Type); !found && !slices.Contains(unsupported, op.Type) {
			unsupported = append(unsupported, op.Type)
		}
	}
	if len(unsupported) > 0 {
		return errors.Wrapf(ErrUnsupportedOperator, "graph %q has operators %q", g.Name, unsupported)
	}
	if b.options.Retained == nil {
		b.retained = g.RetainedSet()
	} else {
		// Graph outputs are always retained. The caller's set is not modified.
		b.retained = sets.Make[string](len(b.options.Retained) + len(g.Outputs))
		for name := range b.options.Retained {
			b.retained.Insert(name)
		}
		b.retained.Insert(g.Outputs...)
	}

	err := exceptions.TryCatch[error](func() {
		for _, spec := range g.Inputs {
			if !b.HasTensor(spec.Name) {
				b.DeclareInput(spec)
			}
		}
	})
	if err != nil {
		return errors.WithMessagef(err, "graph %q", g.Name)
	}
	for _, op := range g.Ops {
		if err := b.ConvertOp(op, b.options.TestMode); err != nil {
			return errors.WithMessagef(err, "graph %q", g.Name)
		}
		if b.options.OnOpConverted != nil {
			b.options.OnOpConverted(op)
		}
	}
	err = exceptions.TryCatch[error](func() {
		for _, name := range g.Outputs {
			b.network.MarkOutput(b.Tensor(name))
		}
	})
	if err != nil {
		return errors.WithMessagef(err, "graph %q outputs", g.Name)
	}
	return nil
}

// Build builds the engine and releases the weights staged for the conversion, which the engine holds
// its own copy of. FP16 is enabled in config if set in the Options.
//
// The Builder can't be used after Build.
func (b *Builder) Build(config accel.BuildConfig) (*accel.Engine, error) {
	if b.built {
		return nil, errors.Errorf("network %q was already built", b.name)
	}
	b.built = true
	defer b.store.Release()
	b.destroyCreated()
	config.FP16 = config.FP16 || b.options.FP16
	return b.network.Build(config)
}

// Discard releases the resources of a conversion that won't be built: the staged weights and the
// plugin instances, including those already added to the network.
func (b *Builder) Discard() {
	if b.built {
		return
	}
	b.built = true
	b.store.Release()
	b.destroyCreated()
	for _, l := range b.network.Layers() {
		if p := l.Plugin(); p != nil && p.State() != plugin.StateDestroyed {
			p.Destroy()
		}
	}
}

// destroyCreated destroys the plugin instances never added to the network.
func (b *Builder) destroyCreated() {
	for _, instance := range b.created {
		if instance.State() != plugin.StateDestroyed {
			klog.Warningf("plugin %s created but never added to network %q", instance, b.name)
			instance.Destroy()
		}
	}
	b.created = nil
}
