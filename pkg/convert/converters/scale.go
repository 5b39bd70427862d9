// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package converters

import (
	"github.com/gomlx/accelconv/pkg/accel"
	"github.com/gomlx/accelconv/pkg/convert"
	"github.com/gomlx/accelconv/pkg/ir"
)

// ScaleConverter converts "scale" operators: y = x * scale + bias if bias_after_scale (the default),
// y = (x + bias) * scale otherwise.
//
// The scale and bias are staged as single-element weights named "<y>_scale_op_scale" and
// "<y>_scale_op_bias". Inputs of rank lower than accel.MinScaleRank are padded with trailing axes, and
// the output restored to the input rank.
var ScaleConverter = &convert.Converter{
	OpType: "scale",
	Attributes: map[string]ir.AttrType{
		"scale":            ir.AttrFloat,
		"bias":             ir.AttrFloat,
		"bias_after_scale": ir.AttrBool,
	},
	Convert: convertScale,
}

func convertScale(b *convert.Builder, op *ir.OpDesc, testMode bool) {
	x := b.Tensor(op.Input(0))
	output := op.Output(0)
	scaleValue := op.FloatOr("scale", 1)
	biasValue := op.FloatOr("bias", 0)
	biasAfterScale := op.BoolOr("bias_after_scale", true)

	bias := b.StageScalar(output+"_scale_op_bias", biasValue)
	scale := b.StageScalar(output+"_scale_op_scale", scaleValue)

	x, rank := b.ExpandRank(x, accel.MinScaleRank)
	network := b.Network()
	var layer *accel.Layer
	if biasAfterScale {
		layer = network.AddScale(x, accel.ScaleUniform, bias, scale, nil)
	} else {
		shifted := network.AddScale(x, accel.ScaleUniform, bias, nil, nil)
		shifted.SetName(output + "_scale_op_shift")
		layer = network.AddScale(shifted.Output(0), accel.ScaleUniform, nil, scale, nil)
	}
	if rank < accel.MinScaleRank {
		layer = b.RestoreRank(layer.Output(0), rank)
	}
	b.ReplenishLayerAndOutput(layer, op.Type, op.Outputs, testMode)
}
