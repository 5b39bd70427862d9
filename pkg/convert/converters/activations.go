// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package converters

import (
	"github.com/gomlx/accelconv/pkg/accel"
	"github.com/gomlx/accelconv/pkg/convert"
	"github.com/gomlx/accelconv/pkg/ir"
	"github.com/gomlx/accelconv/pkg/plugin/plugins"
)

var activationKinds = map[string]accel.ActivationKind{
	"relu":    accel.ActivationReLU,
	"sigmoid": accel.ActivationSigmoid,
	"tanh":    accel.ActivationTanh,
}

// activationConverters returns the converters of "relu", "sigmoid" and "tanh".
func activationConverters() []*convert.Converter {
	var converters []*convert.Converter
	for _, opType := range []string{"relu", "sigmoid", "tanh"} {
		kind := activationKinds[opType]
		converters = append(converters, &convert.Converter{
			OpType:     opType,
			Attributes: noAttributes,
			Convert: func(b *convert.Builder, op *ir.OpDesc, testMode bool) {
				layer := b.Network().AddActivation(b.Tensor(op.Input(0)), kind)
				b.ReplenishLayerAndOutput(layer, op.Type, op.Outputs, testMode)
			},
		})
	}
	return converters
}

// SwishConverter converts "swish" operators, y = x * sigmoid(beta * x), to the "swish_plugin" plugin.
// The plugin runs in float16 if the conversion enables FP16.
var SwishConverter = &convert.Converter{
	OpType:     "swish",
	Attributes: map[string]ir.AttrType{"beta": ir.AttrFloat},
	Convert: func(b *convert.Builder, op *ir.OpDesc, testMode bool) {
		x := b.Tensor(op.Input(0))
		fields := plugins.SwishFields(op.FloatOr("beta", 1), b.Options().FP16)
		instance := b.CreatePlugin(plugins.SwishType, plugins.SwishVersion, fields)
		layer := b.AddPlugin([]*accel.Tensor{x}, instance)
		b.ReplenishLayerAndOutput(layer, op.Type, op.Outputs, testMode)
	},
}

// StackConverter converts "stack" operators, which stack their inputs along a new axis (attribute "axis",
// 0 by default, negative values count from the end of the output), to the "stack_plugin" plugin.
var StackConverter = &convert.Converter{
	OpType:     "stack",
	Attributes: map[string]ir.AttrType{"axis": ir.AttrInt},
	Convert: func(b *convert.Builder, op *ir.OpDesc, testMode bool) {
		inputs := make([]*accel.Tensor, len(op.Inputs))
		for ii, name := range op.Inputs {
			inputs[ii] = b.Tensor(name)
		}
		fields := plugins.StackFields(op.IntOr("axis", 0), len(inputs))
		instance := b.CreatePlugin(plugins.StackType, plugins.StackVersion, fields)
		layer := b.AddPlugin(inputs, instance)
		b.ReplenishLayerAndOutput(layer, op.Type, op.Outputs, testMode)
	},
}
