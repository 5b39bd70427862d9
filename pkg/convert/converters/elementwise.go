// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package converters

import (
	"fmt"

	"github.com/gomlx/accelconv/pkg/accel"
	"github.com/gomlx/accelconv/pkg/convert"
	"github.com/gomlx/accelconv/pkg/core/dimexpr"
	"github.com/gomlx/accelconv/pkg/ir"
	"github.com/gomlx/exceptions"
)

var elementWiseOps = []struct {
	opType string
	op     accel.ElementWiseOp
}{
	{"elementwise_add", accel.ElementWiseSum},
	{"elementwise_sub", accel.ElementWiseSub},
	{"elementwise_mul", accel.ElementWiseProd},
	{"elementwise_div", accel.ElementWiseDiv},
}

// elementWiseConverters returns the converters of the binary operators "elementwise_add",
// "elementwise_sub", "elementwise_mul" and "elementwise_div", with inputs [x, y].
//
// If y has a lower rank than x, its axes are aligned with the axes of x starting at the attribute "axis"
// (-1, the default, aligns the trailing axes) and it is broadcast on the others.
func elementWiseConverters() []*convert.Converter {
	converters := make([]*convert.Converter, 0, len(elementWiseOps))
	for _, entry := range elementWiseOps {
		converters = append(converters, &convert.Converter{
			OpType:     entry.opType,
			Attributes: map[string]ir.AttrType{"axis": ir.AttrInt},
			Convert: func(b *convert.Builder, op *ir.OpDesc, testMode bool) {
				x := b.Tensor(op.Input(0))
				y := b.Tensor(op.Input(1))
				y = broadcastRank(b, y, x.Rank(), op.IntOr("axis", -1))
				layer := b.Network().AddElementWise(x, y, entry.op)
				b.ReplenishLayerAndOutput(layer, op.Type, op.Outputs, testMode)
			},
		})
	}
	return converters
}

// broadcastRank reshapes y to the given rank, placing its axes starting at axis and filling the others
// with 1.
func broadcastRank(b *convert.Builder, y *accel.Tensor, rank, axis int) *accel.Tensor {
	yRank := y.Rank()
	if yRank == rank {
		return y
	}
	if yRank > rank {
		exceptions.Panicf("can't broadcast %s to rank %d", y, rank)
	}
	if axis < 0 {
		axis = rank - yRank
	}
	if axis+yRank > rank {
		exceptions.Panicf("can't broadcast %s to rank %d starting at axis %d", y, rank, axis)
	}
	dims := make(dimexpr.Dims, rank)
	for ii := range dims {
		dims[ii] = dimexpr.Const(1)
	}
	copy(dims[axis:], y.Dims())
	l := b.Network().AddShuffleDims(y, dims)
	l.SetName(fmt.Sprintf("%s_broadcast", y.Name()))
	return l.Output(0)
}
