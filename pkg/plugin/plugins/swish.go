// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package plugins

import (
	"math"
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
	// SwishType is the plugin type name of the swish activation.
	SwishType = "swish_plugin"

	// SwishVersion is the current version of SwishType.
	SwishVersion = "1"
)

// Swish is the kernel of the swish activation: y = x / (1 + exp(-beta * x)).
//
// It accepts float32 and, if WithFP16 is set, float16 inputs. The output has the shape and dtype
// of the input.
type Swish struct {
	Beta     float32
	WithFP16 bool
}

var _ plugin.Kernel = (*Swish)(nil)

// SwishFields returns the fields to create a swish plugin with plugin.Registry.Create.
func SwishFields(beta float32, withFP16 bool) plugin.Fields {
	return plugin.Fields{
		plugin.Float32Field("beta", beta),
		plugin.Int32Field("with_fp16", boolToInt32(withFP16)),
	}
}

// Type implements plugin.Kernel.
func (s *Swish) Type() string { return SwishType }

// Version implements plugin.Kernel.
func (s *Swish) Version() string { return SwishVersion }

// NumOutputs implements plugin.Kernel.
func (s *Swish) NumOutputs() int { return 1 }

// OutputDataType implements plugin.Kernel.
func (s *Swish) OutputDataType(_ int, inputTypes []dtypes.DType) dtypes.DType {
	if len(inputTypes) != 1 {
		exceptions.Panicf("%s takes 1 input, got %d", SwishType, len(inputTypes))
	}
	return inputTypes[0]
}

// OutputDimensions implements plugin.Kernel.
func (s *Swish) OutputDimensions(_ int, inputs []dimexpr.Dims) dimexpr.Dims {
	if len(inputs) != 1 {
		exceptions.Panicf("%s takes 1 input, got %d", SwishType, len(inputs))
	}
	return inputs[0].Clone()
}

// SupportsFormatCombination implements plugin.Kernel.
func (s *Swish) SupportsFormatCombination(pos int, inOut []plugin.TensorDesc, _ int) bool {
	return plugin.SupportsSameAsFirst(floatCapabilities(s.WithFP16), pos, inOut)
}

// Configure implements plugin.Kernel.
func (s *Swish) Configure(inputs, outputs []plugin.DynamicTensorDesc) {
	if len(inputs) != 1 || len(outputs) != 1 {
		exceptions.Panicf("%s takes 1 input and 1 output, got %d and %d", SwishType, len(inputs), len(outputs))
	}
	in, out := inputs[0].Desc, outputs[0].Desc
	if !floatCapabilities(s.WithFP16).Supports(in) {
		exceptions.Panicf("%s (with_fp16=%v) doesn't support input %s", SwishType, s.WithFP16, in)
	}
	if in.DType != out.DType || !slices.Equal(in.Dims, out.Dims) {
		exceptions.Panicf("%s output %s doesn't match input %s", SwishType, out, in)
	}
}

// WorkspaceSize implements plugin.Kernel.
func (s *Swish) WorkspaceSize(_, _ []plugin.TensorDesc) int { return 0 }

// Enqueue implements plugin.Kernel.
func (s *Swish) Enqueue(inputDescs, outputDescs []plugin.TensorDesc, inputs, outputs []any, _ []byte, _ plugin.Stream) error {
	in, out := inputDescs[0], outputDescs[0]
	if !slices.Equal(in.Dims, out.Dims) {
		return errors.Errorf("%s: input dimensions %v don't match output dimensions %v", SwishType, in.Dims, out.Dims)
	}
	size := numElements(in.Dims)
	switch in.DType {
	case dtypes.Float32:
		x, err := flatBuffer[float32](inputs[0], size, "input")
		if err != nil {
			return err
		}
		y, err := flatBuffer[float32](outputs[0], size, "output")
		if err != nil {
			return err
		}
		for ii, v := range x {
			y[ii] = swish(v, s.Beta)
		}
	case dtypes.Float16:
		if !s.WithFP16 {
			return errors.Errorf("%s: float16 input but with_fp16 is not set", SwishType)
		}
		x, err := flatBuffer[float16.Float16](inputs[0], size, "input")
		if err != nil {
			return err
		}
		y, err := flatBuffer[float16.Float16](outputs[0], size, "output")
		if err != nil {
			return err
		}
		for ii, v := range x {
			y[ii] = float16.Fromfloat32(swish(v.Float32(), s.Beta))
		}
	default:
		return errors.Errorf("%s: unsupported dtype %s", SwishType, in.DType)
	}
	return nil
}

func swish(x, beta float32) float32 {
	return x / (1 + float32(math.Exp(float64(-beta*x))))
}

// SerializationSize implements plugin.Kernel.
func (s *Swish) SerializationSize() int {
	return wire.Size[float32]() + wire.Size[bool]()
}

// Serialize implements plugin.Kernel: beta as float32 followed by with_fp16 as one byte.
func (s *Swish) Serialize(w *wire.Writer) {
	wire.Put(w, s.Beta)
	wire.Put(w, s.WithFP16)
}

// Clone implements plugin.Kernel.
func (s *Swish) Clone() plugin.Kernel {
	clone := *s
	return &clone
}

// SwishCreator creates Swish kernels.
type SwishCreator struct{}

var _ plugin.Creator = SwishCreator{}

// Name implements plugin.Creator.
func (SwishCreator) Name() string { return SwishType }

// Version implements plugin.Creator.
func (SwishCreator) Version() string { return SwishVersion }

// Fields implements plugin.Creator.
func (SwishCreator) Fields() []plugin.FieldSpec {
	return []plugin.FieldSpec{
		{Name: "beta", Type: plugin.FieldFloat32},
		{Name: "with_fp16", Type: plugin.FieldInt32},
	}
}

// Create implements plugin.Creator. Beta defaults to 1.
func (SwishCreator) Create(fields plugin.Fields) (plugin.Kernel, error) {
	return &Swish{
		Beta:     fields.Float32("beta", 1),
		WithFP16: fields.Int32("with_fp16", 0) != 0,
	}, nil
}

// Deserialize implements plugin.Creator.
func (SwishCreator) Deserialize(r *wire.Reader) (plugin.Kernel, error) {
	s := &Swish{}
	s.Beta = wire.Get[float32](r)
	s.WithFP16 = wire.Get[bool](r)
	return s, nil
}
