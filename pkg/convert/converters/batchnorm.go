// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package converters

import (
	"math"

	"github.com/gomlx/accelconv/pkg/accel"
	"github.com/gomlx/accelconv/pkg/convert"
	"github.com/gomlx/accelconv/pkg/core/dimexpr"
	"github.com/gomlx/accelconv/pkg/ir"
	"github.com/gomlx/exceptions"
)

// BatchNormConverter converts inference "batch_norm" operators, with inputs
// [x, scale, bias, mean, variance], where all but x are host parameters with one value per channel
// (axis 1 of x):
//
//	y = (x - mean) / sqrt(variance + epsilon) * scale + bias
//
// The parameters are folded into a per-channel scale and shift, staged as "<y>_bn_scale" and "<y>_bn_shift".
var BatchNormConverter = &convert.Converter{
	OpType: "batch_norm",
	Attributes: map[string]ir.AttrType{
		"epsilon":  ir.AttrFloat,
		"momentum": ir.AttrFloat,
		"is_test":  ir.AttrBool,
	},
	Convert: convertBatchNorm,
}

func convertBatchNorm(b *convert.Builder, op *ir.OpDesc, testMode bool) {
	if len(op.Inputs) != 5 {
		exceptions.Panicf("batch_norm requires inputs [x, scale, bias, mean, variance], got %v", op.Inputs)
	}
	if !op.BoolOr("is_test", true) {
		exceptions.Panicf("batch_norm is only supported for inference (is_test=true)")
	}
	x := b.Tensor(op.Input(0))
	if x.Rank() < 2 {
		exceptions.Panicf("batch_norm input %s must have a channel axis", x)
	}
	channels, ok := dimexpr.IsConstant(x.Dims()[1])
	if !ok {
		exceptions.Panicf("batch_norm input %s must have a static channel axis", x)
	}
	epsilon := float64(op.FloatOr("epsilon", 1e-5))
	params := make([][]float32, 4)
	for ii := range params {
		p := b.Param(op.Input(ii + 1))
		if len(p.Values) != channels {
			exceptions.Panicf("batch_norm parameter %s has %d values, input %s has %d channels", p, len(p.Values), x, channels)
		}
		params[ii] = p.Values
	}
	gamma, beta, mean, variance := params[0], params[1], params[2], params[3]
	scale := make([]float32, channels)
	shift := make([]float32, channels)
	for c := range channels {
		s := float64(gamma[c]) / math.Sqrt(float64(variance[c])+epsilon)
		scale[c] = float32(s)
		shift[c] = float32(float64(beta[c]) - float64(mean[c])*s)
	}

	output := op.Output(0)
	scaleWeights := b.StageWeights(output+"_bn_scale", scale)
	shiftWeights := b.StageWeights(output+"_bn_shift", shift)
	x, rank := b.ExpandRank(x, accel.MinScaleRank)
	layer := b.Network().AddScale(x, accel.ScaleChannel, shiftWeights, scaleWeights, nil)
	if rank < accel.MinScaleRank {
		layer = b.RestoreRank(layer.Output(0), rank)
	}
	b.ReplenishLayerAndOutput(layer, op.Type, op.Outputs, testMode)
}
