// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"fmt"

	"github.com/gomlx/accelconv/pkg/core/dimexpr"
	"github.com/gomlx/accelconv/pkg/plugin/wire"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Instance of a plugin: a Kernel plus its lifecycle state and namespace.
//
// Instances are created by a Registry. Any use of an Instance after Destroy panics.
type Instance struct {
	kernel    Kernel
	state     State
	namespace string
}

// NewInstance wraps kernel in a new Instance in the given initial state, which must be either
// StateConstructed or StateDeserialized.
//
// Usually one uses Registry.Create or Registry.Deserialize instead.
func NewInstance(kernel Kernel, initial State) *Instance {
	if kernel == nil {
		exceptions.Panicf("plugin.NewInstance: nil kernel")
	}
	if initial != StateConstructed && initial != StateDeserialized {
		exceptions.Panicf("plugin.NewInstance(%s): initial state must be %s or %s",
			kernel.Type(), StateConstructed, StateDeserialized)
	}
	return &Instance{kernel: kernel, state: initial}
}

func (p *Instance) checkAlive() {
	if p == nil {
		exceptions.Panicf("plugin instance is nil")
	}
	if p.state == StateDestroyed {
		exceptions.Panicf("plugin instance used after Destroy")
	}
}

// String implements fmt.Stringer.
func (p *Instance) String() string {
	if p.state == StateDestroyed {
		return "plugin(destroyed)"
	}
	name := fmt.Sprintf("%s/v%s", p.kernel.Type(), p.kernel.Version())
	if p.namespace != "" {
		name = p.namespace + "::" + name
	}
	return fmt.Sprintf("plugin(%s, %s)", name, p.state)
}

// Type returns the plugin type name.
func (p *Instance) Type() string {
	p.checkAlive()
	return p.kernel.Type()
}

// Version returns the plugin version.
func (p *Instance) Version() string {
	p.checkAlive()
	return p.kernel.Version()
}

// State returns the lifecycle state.
func (p *Instance) State() State { return p.state }

// Namespace returns the namespace set with SetNamespace.
func (p *Instance) Namespace() string {
	p.checkAlive()
	return p.namespace
}

// SetNamespace attaches an opaque namespace to the instance. It is metadata only: it is not part of
// the serialized configuration and doesn't change the behavior of the plugin.
func (p *Instance) SetNamespace(namespace string) {
	p.checkAlive()
	p.namespace = namespace
}

// Kernel returns the wrapped kernel.
func (p *Instance) Kernel() Kernel {
	p.checkAlive()
	return p.kernel
}

// NumOutputs returns the number of outputs of the plugin.
func (p *Instance) NumOutputs() int {
	p.checkAlive()
	return p.kernel.NumOutputs()
}

// OutputDataType returns the dtype of the output given the input dtypes.
func (p *Instance) OutputDataType(index int, inputTypes []dtypes.DType) dtypes.DType {
	p.checkAlive()
	p.checkOutputIndex(index)
	return p.kernel.OutputDataType(index, inputTypes)
}

// OutputDimensions returns the symbolic dimensions of the output given symbolic input dimensions.
func (p *Instance) OutputDimensions(index int, inputs []dimexpr.Dims) dimexpr.Dims {
	p.checkAlive()
	p.checkOutputIndex(index)
	return p.kernel.OutputDimensions(index, inputs)
}

func (p *Instance) checkOutputIndex(index int) {
	if index < 0 || index >= p.kernel.NumOutputs() {
		exceptions.Panicf("%s: output index %d out of range, it has %d outputs", p, index, p.kernel.NumOutputs())
	}
}

// SupportsFormat reports whether inOut[pos] is supported given the positions before it.
func (p *Instance) SupportsFormat(pos int, inOut []TensorDesc, numInputs int) bool {
	p.checkAlive()
	return p.kernel.SupportsFormatCombination(pos, inOut, numInputs)
}

// Configure moves a constructed or deserialized instance to StateConfigured. It panics if called
// in any other state, or if the kernel rejects the descriptors.
func (p *Instance) Configure(inputs, outputs []DynamicTensorDesc) {
	p.checkAlive()
	if p.state != StateConstructed && p.state != StateDeserialized {
		exceptions.Panicf("%s: Configure can only be called once, before Initialize", p)
	}
	if len(outputs) != p.kernel.NumOutputs() {
		exceptions.Panicf("%s: configured with %d outputs, plugin has %d", p, len(outputs), p.kernel.NumOutputs())
	}
	p.kernel.Configure(inputs, outputs)
	p.state = StateConfigured
}

// Initialize acquires execution resources. It is valid after Configure and after Terminate, and a
// no-op if the instance is already initialized.
func (p *Instance) Initialize() error {
	p.checkAlive()
	switch p.state {
	case StateInitialized:
		return nil
	case StateConfigured, StateTerminated:
	default:
		return errors.Wrapf(ErrNotConfigured, "%s: Initialize", p)
	}
	if initializer, ok := p.kernel.(Initializer); ok {
		if err := initializer.Initialize(); err != nil {
			return errors.WithMessagef(err, "%s: Initialize", p)
		}
	}
	p.state = StateInitialized
	return nil
}

// Terminate releases execution resources. It is a no-op if the instance is not initialized.
func (p *Instance) Terminate() {
	p.checkAlive()
	if p.state != StateInitialized {
		return
	}
	if initializer, ok := p.kernel.(Initializer); ok {
		initializer.Terminate()
	}
	p.state = StateTerminated
}

// WorkspaceSize returns the scratch bytes needed by Execute for the given concrete descriptors.
func (p *Instance) WorkspaceSize(inputs, outputs []TensorDesc) int {
	p.checkAlive()
	return p.kernel.WorkspaceSize(inputs, outputs)
}

// Execute runs the plugin on the given buffers. It returns ErrNotInitialized if the instance is not
// initialized, and an error if the workspace is smaller than WorkspaceSize.
func (p *Instance) Execute(inputDescs, outputDescs []TensorDesc, inputs, outputs []any, workspace []byte, stream Stream) error {
	p.checkAlive()
	if p.state != StateInitialized {
		return errors.Wrapf(ErrNotInitialized, "%s: Execute", p)
	}
	if len(inputs) != len(inputDescs) || len(outputs) != len(outputDescs) {
		return errors.Errorf("%s: got %d/%d input buffers/descriptors and %d/%d output buffers/descriptors",
			p, len(inputs), len(inputDescs), len(outputs), len(outputDescs))
	}
	if need := p.kernel.WorkspaceSize(inputDescs, outputDescs); len(workspace) < need {
		return errors.Errorf("%s: workspace of %d bytes given, %d needed", p, len(workspace), need)
	}
	return p.kernel.Enqueue(inputDescs, outputDescs, inputs, outputs, workspace, stream)
}

// SerializationSize returns the exact number of bytes Serialize returns.
func (p *Instance) SerializationSize() int {
	p.checkAlive()
	return p.kernel.SerializationSize()
}

// Serialize returns the serialized configuration of the plugin.
//
// It panics if the kernel writes a different number of bytes than its SerializationSize: that is a
// contract violation of the plugin implementation.
func (p *Instance) Serialize() []byte {
	p.checkAlive()
	size := p.kernel.SerializationSize()
	w := wire.NewWriter(make([]byte, size))
	p.kernel.Serialize(w)
	if w.Len() != size {
		exceptions.Panicf("%s: Serialize wrote %d bytes, but SerializationSize is %d", p, w.Len(), size)
	}
	return w.Bytes()
}

// Clone returns a new instance with a deep copy of the configuration, in StateConstructed.
// The namespace is copied.
func (p *Instance) Clone() *Instance {
	p.checkAlive()
	clone := NewInstance(p.kernel.Clone(), StateConstructed)
	clone.namespace = p.namespace
	return clone
}

// Destroy terminates the instance if needed and releases it. The instance must not be used afterward.
func (p *Instance) Destroy() {
	p.checkAlive()
	p.Terminate()
	klog.V(2).Infof("destroying %s", p)
	p.state = StateDestroyed
	p.kernel = nil
}
