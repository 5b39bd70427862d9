// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package plugins

import (
	"slices"

	"github.com/gomlx/accelconv/pkg/core/dimexpr"
	"github.com/gomlx/accelconv/pkg/plugin"
	"github.com/gomlx/accelconv/pkg/plugin/wire"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

const (
	// StackType is the plugin type name of the stack operation.
	StackType = "stack_plugin"

	// StackVersion is the current version of StackType.
	StackVersion = "1"
)

// Stack is the kernel that stacks NumStack inputs of the same shape along a new axis Axis of the output.
//
// Axis may be negative, in which case it counts from the end of the output: -1 appends the new axis.
// Inputs can be float32 or float16, and all must have the dtype and format of the first one.
type Stack struct {
	Axis, NumStack int32
}

var _ plugin.Kernel = (*Stack)(nil)

// StackFields returns the fields to create a stack plugin with plugin.Registry.Create.
func StackFields(axis, numStack int) plugin.Fields {
	return plugin.Fields{
		plugin.Int32Field("axis", int32(axis)),
		plugin.Int32Field("num_stack", int32(numStack)),
	}
}

// outputAxis returns the stack axis in the output, for inputs of the given rank.
func (s *Stack) outputAxis(inputRank int) int {
	axis := int(s.Axis)
	if axis < 0 {
		axis += inputRank + 1
	}
	if axis < 0 || axis > inputRank {
		exceptions.Panicf("%s: axis %d out of range for inputs of rank %d", StackType, s.Axis, inputRank)
	}
	return axis
}

func (s *Stack) checkNumInputs(n int) {
	if n != int(s.NumStack) {
		exceptions.Panicf("%s configured with num_stack=%d, got %d inputs", StackType, s.NumStack, n)
	}
}

// Type implements plugin.Kernel.
func (s *Stack) Type() string { return StackType }

// Version implements plugin.Kernel.
func (s *Stack) Version() string { return StackVersion }

// NumOutputs implements plugin.Kernel.
func (s *Stack) NumOutputs() int { return 1 }

// OutputDataType implements plugin.Kernel.
func (s *Stack) OutputDataType(_ int, inputTypes []dtypes.DType) dtypes.DType {
	s.checkNumInputs(len(inputTypes))
	return inputTypes[0]
}

// OutputDimensions implements plugin.Kernel: the dimensions of the first input with the number of
// inputs inserted at the stack axis.
func (s *Stack) OutputDimensions(_ int, inputs []dimexpr.Dims) dimexpr.Dims {
	s.checkNumInputs(len(inputs))
	first := inputs[0]
	axis := s.outputAxis(first.Rank())
	out := make(dimexpr.Dims, 0, first.Rank()+1)
	out = append(out, first[:axis]...)
	out = append(out, dimexpr.Const(len(inputs)))
	out = append(out, first[axis:]...)
	return out
}

// SupportsFormatCombination implements plugin.Kernel.
func (s *Stack) SupportsFormatCombination(pos int, inOut []plugin.TensorDesc, _ int) bool {
	return plugin.SupportsSameAsFirst(floatCapabilities(true), pos, inOut)
}

// Configure implements plugin.Kernel.
func (s *Stack) Configure(inputs, outputs []plugin.DynamicTensorDesc) {
	s.checkNumInputs(len(inputs))
	if len(outputs) != 1 {
		exceptions.Panicf("%s has 1 output, got %d", StackType, len(outputs))
	}
	first := inputs[0].Desc
	if !floatCapabilities(true).Supports(first) {
		exceptions.Panicf("%s doesn't support input %s", StackType, first)
	}
	for ii, in := range inputs[1:] {
		if in.Desc.DType != first.DType || in.Desc.Format != first.Format || len(in.Desc.Dims) != len(first.Dims) {
			exceptions.Panicf("%s: input #%d %s is incompatible with input #0 %s", StackType, ii+1, in.Desc, first)
		}
	}
	axis := s.outputAxis(len(first.Dims))
	out := outputs[0].Desc
	if out.DType != first.DType || len(out.Dims) != len(first.Dims)+1 {
		exceptions.Panicf("%s: output %s is incompatible with inputs %s", StackType, out, first)
	}
	if out.Dims[axis] != int(s.NumStack) {
		exceptions.Panicf("%s: output %s should have dimension %d on axis %d", StackType, out, s.NumStack, axis)
	}
}

// WorkspaceSize implements plugin.Kernel: one int64 element offset per stacked input.
func (s *Stack) WorkspaceSize(_, _ []plugin.TensorDesc) int {
	return int(s.NumStack) * wire.Size[int64]()
}

// Enqueue implements plugin.Kernel.
//
// The output is seen as [outer, numStack, inner], where outer is the product of the input dimensions
// before the stack axis and inner the product of the ones after it.
func (s *Stack) Enqueue(inputDescs, outputDescs []plugin.TensorDesc, inputs, outputs []any, workspace []byte, _ plugin.Stream) error {
	if len(inputDescs) != int(s.NumStack) {
		return errors.Errorf("%s: configured with num_stack=%d, got %d inputs", StackType, s.NumStack, len(inputDescs))
	}
	dims := inputDescs[0].Dims
	for ii, desc := range inputDescs {
		if !slices.Equal(desc.Dims, dims) {
			return errors.Errorf("%s: input #%d has dimensions %v, input #0 has %v", StackType, ii, desc.Dims, dims)
		}
	}
	axis := s.outputAxis(len(dims))
	wantOut := slices.Insert(slices.Clone(dims), axis, int(s.NumStack))
	if !slices.Equal(outputDescs[0].Dims, wantOut) {
		return errors.Errorf("%s: output has dimensions %v, wanted %v", StackType, outputDescs[0].Dims, wantOut)
	}
	outer := numElements(dims[:axis])
	inner := numElements(dims[axis:])

	// The workspace holds the offset table the copy loop reads: one int64 per input, its offset within
	// each outer block of the output.
	need := s.WorkspaceSize(inputDescs, outputDescs)
	if len(workspace) < need {
		return errors.Errorf("%s: workspace of %d bytes, needs %d", StackType, len(workspace), need)
	}
	offsets := workspace[:need]
	w := wire.NewWriter(offsets)
	for ii := range int(s.NumStack) {
		wire.Put(w, int64(ii*inner))
	}

	switch inputDescs[0].DType {
	case dtypes.Float32:
		return stackInto[float32](inputs, outputs[0], offsets, outer, inner)
	case dtypes.Float16:
		return stackInto[float16.Float16](inputs, outputs[0], offsets, outer, inner)
	}
	return errors.Errorf("%s: unsupported dtype %s", StackType, inputDescs[0].DType)
}

// stackInto copies each input into its slot of every outer block of the output, at the offset read from
// the offsets table.
func stackInto[T float32 | float16.Float16](inputs []any, output any, offsets []byte, outer, inner int) error {
	numStack := len(inputs)
	out, err := flatBuffer[T](output, outer*numStack*inner, "output")
	if err != nil {
		return err
	}
	for ii, input := range inputs {
		in, err := flatBuffer[T](input, outer*inner, "input")
		if err != nil {
			return errors.WithMessagef(err, "%s input #%d", StackType, ii)
		}
		offset := int(wire.Get[int64](wire.NewReader(offsets[ii*wire.Size[int64]():])))
		for o := range outer {
			copy(out[o*numStack*inner+offset:], in[o*inner:(o+1)*inner])
		}
	}
	return nil
}

// SerializationSize implements plugin.Kernel.
func (s *Stack) SerializationSize() int {
	return 2 * wire.Size[int32]()
}

// Serialize implements plugin.Kernel: axis followed by num_stack, both int32.
func (s *Stack) Serialize(w *wire.Writer) {
	wire.Put(w, s.Axis)
	wire.Put(w, s.NumStack)
}

// Clone implements plugin.Kernel.
func (s *Stack) Clone() plugin.Kernel {
	clone := *s
	return &clone
}

// StackCreator creates Stack kernels.
type StackCreator struct{}

var _ plugin.Creator = StackCreator{}

// Name implements plugin.Creator.
func (StackCreator) Name() string { return StackType }

// Version implements plugin.Creator.
func (StackCreator) Version() string { return StackVersion }

// Fields implements plugin.Creator.
func (StackCreator) Fields() []plugin.FieldSpec {
	return []plugin.FieldSpec{
		{Name: "axis", Type: plugin.FieldInt32},
		{Name: "num_stack", Type: plugin.FieldInt32},
	}
}

// Create implements plugin.Creator. Axis defaults to -1, and num_stack must be given.
func (StackCreator) Create(fields plugin.Fields) (plugin.Kernel, error) {
	s := &Stack{
		Axis:     fields.Int32("axis", -1),
		NumStack: fields.Int32("num_stack", -1),
	}
	if s.NumStack <= 0 {
		return nil, errors.Errorf("%s requires a positive num_stack, got %d", StackType, s.NumStack)
	}
	return s, nil
}

// Deserialize implements plugin.Creator.
func (StackCreator) Deserialize(r *wire.Reader) (plugin.Kernel, error) {
	s := &Stack{}
	s.Axis = wire.Get[int32](r)
	s.NumStack = wire.Get[int32](r)
	if s.NumStack <= 0 {
		return nil, errors.Errorf("%s: invalid serialized num_stack=%d", StackType, s.NumStack)
	}
	return s, nil
}
