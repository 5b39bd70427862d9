// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package plugin defines custom operators ("plugins") that run as compute kernels inside an accelerator
// network, for operations the accelerator has no native layer for.
//
// Each plugin kind implements Kernel, its capability set: output shapes and types, format support,
// configuration, workspace sizing, execution and serialization. An Instance wraps a Kernel and owns
// everything common to all kinds: the lifecycle state machine, the namespace and the serialization
// size law.
//
// Instances are created through a Registry of Creator (one per plugin type and version), either from
// named typed fields (when converting a graph) or from serialized bytes (when loading an engine).
//
// To simplify error handling, Kernel methods are expected to throw (panic) with a stack trace in case
// of configuration errors, see package github.com/gomlx/exceptions. The Registry and Instance catch
// these at their boundaries where an error is part of the API.
package plugin

import (
	"fmt"

	"github.com/gomlx/accelconv/pkg/core/dimexpr"
	"github.com/gomlx/accelconv/pkg/core/formats"
	"github.com/gomlx/accelconv/pkg/plugin/wire"
	"github.com/gomlx/gopjrt/dtypes"
)

// TensorDesc describes one input or output of a plugin: dtype, memory format and dimensions.
//
// At execution time Dims are concrete. At configuration time dynamic axes are -1.
type TensorDesc struct {
	DType  dtypes.DType
	Format formats.Format
	Dims   []int
}

// String implements fmt.Stringer.
func (d TensorDesc) String() string {
	return fmt.Sprintf("(%s, %s)%v", d.DType, d.Format, d.Dims)
}

// DynamicTensorDesc is a TensorDesc at configuration time, with the Min and Max bounds of each axis
// given by the optimization profile. For static axes Min and Max equal the dimension.
type DynamicTensorDesc struct {
	Desc     TensorDesc
	Min, Max []int
}

// Stream is an opaque handle to an accelerator command stream.
//
// Calls on the same stream are ordered by the accelerator runtime. Calls on different streams may run
// concurrently, so Kernel.Enqueue must not mutate the kernel.
type Stream int

// Kernel is the capability set implemented by each plugin kind.
//
// Input and output buffers given to Enqueue are flat row-major slices of the Go type matching the
// descriptor dtype, e.g. []float32 for dtypes.Float32 or []float16.Float16 for dtypes.Float16. They are
// borrowed for the duration of the call only.
type Kernel interface {
	// Type is the plugin type name, used as the registry key together with Version.
	Type() string

	// Version of the plugin type. Changing the serialized layout requires a new version.
	Version() string

	// NumOutputs returns the number of outputs.
	NumOutputs() int

	// OutputDataType returns the dtype of output index given the input dtypes.
	OutputDataType(index int, inputTypes []dtypes.DType) dtypes.DType

	// OutputDimensions returns the symbolic dimensions of output index given the symbolic dimensions
	// of the inputs. It must not require concrete values for dynamic axes.
	OutputDimensions(index int, inputs []dimexpr.Dims) dimexpr.Dims

	// SupportsFormatCombination reports whether inOut[pos] is supported, given the descriptors of the
	// positions before it. Positions [0, numInputs) are inputs, the rest are outputs.
	// It must be a pure function of its arguments.
	SupportsFormatCombination(pos int, inOut []TensorDesc, numInputs int) bool

	// Configure is called once per build with the negotiated descriptors. It validates rank and dtype
	// assumptions and panics if they are violated. It performs no compute.
	Configure(inputs, outputs []DynamicTensorDesc)

	// WorkspaceSize returns an upper bound of scratch bytes needed by one Enqueue with the given
	// concrete descriptors. It must be deterministic.
	WorkspaceSize(inputs, outputs []TensorDesc) int

	// Enqueue executes the kernel. It must only touch the given workspace.
	// A dimension mismatch discovered at this point is returned as an error.
	Enqueue(inputDescs, outputDescs []TensorDesc, inputs, outputs []any, workspace []byte, stream Stream) error

	// SerializationSize returns the exact number of bytes Serialize writes.
	SerializationSize() int

	// Serialize writes the configuration of the kernel.
	Serialize(w *wire.Writer)

	// Clone returns a deep copy of the configuration, sharing no mutable state.
	Clone() Kernel
}

// Initializer is implemented by kernels that acquire execution-time resources.
//
// Initialize may be called again after Terminate.
type Initializer interface {
	Initialize() error
	Terminate()
}
