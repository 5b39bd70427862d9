// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package accel

import (
	"math"
	"slices"

	"github.com/pkg/errors"
)

// Layers compute in float32: float16 tensors are converted on the way in and out.

func execShuffle(x *Buffer, outDims []int) ([]float32, error) {
	if numElements(outDims) != x.Size() {
		return nil, errors.Errorf("can't reshape %v (%d elements) to %v", x.Dims, x.Size(), outDims)
	}
	return slices.Clone(x.Float32s()), nil
}

func execScale(el *engineLayer, x *Buffer) ([]float32, error) {
	dims := x.Dims
	channels := dims[1]
	inner := numElements(dims[2:])
	perExample := numElements(dims[1:])
	var want int
	switch el.scaleMode {
	case ScaleUniform:
		want = 1
	case ScaleChannel:
		want = channels
	case ScaleElementwise:
		want = perExample
	}
	for _, w := range [][]float32{el.shift, el.scale, el.power} {
		if w != nil && len(w) != want {
			return nil, errors.Errorf("scale %s with %d weights for input dimensions %v", el.scaleMode, len(w), dims)
		}
	}
	in := x.Float32s()
	out := make([]float32, len(in))
	for ii, v := range in {
		var idx int
		switch el.scaleMode {
		case ScaleChannel:
			idx = (ii / inner) % channels
		case ScaleElementwise:
			idx = ii % perExample
		}
		if el.scale != nil {
			v *= el.scale[idx]
		}
		if el.shift != nil {
			v += el.shift[idx]
		}
		if el.power != nil && el.power[idx] != 1 {
			v = float32(math.Pow(float64(v), float64(el.power[idx])))
		}
		out[ii] = v
	}
	return out, nil
}

// broadcastStrides returns the strides of dims for an output of outDims: axes of dimension 1 broadcast
// with a stride of 0.
func broadcastStrides(dims, outDims []int) ([]int, error) {
	strides := make([]int, len(dims))
	stride := 1
	for axis := len(dims) - 1; axis >= 0; axis-- {
		switch dims[axis] {
		case outDims[axis]:
			strides[axis] = stride
		case 1:
			strides[axis] = 0
		default:
			return nil, errors.Errorf("dimensions %v can't be broadcast to %v", dims, outDims)
		}
		stride *= dims[axis]
	}
	return strides, nil
}

func execElementWise(op ElementWiseOp, a, b *Buffer, outDims []int) ([]float32, error) {
	// Dynamic axes were resolved to max(a, b): check they actually broadcast.
	for axis := range outDims {
		if a.Dims[axis] != b.Dims[axis] && a.Dims[axis] != 1 && b.Dims[axis] != 1 {
			return nil, errors.Errorf("axis %d dimensions %d and %d can't be broadcast", axis, a.Dims[axis], b.Dims[axis])
		}
	}
	aStrides, err := broadcastStrides(a.Dims, outDims)
	if err != nil {
		return nil, err
	}
	bStrides, err := broadcastStrides(b.Dims, outDims)
	if err != nil {
		return nil, err
	}
	lhs, rhs := a.Float32s(), b.Float32s()
	out := make([]float32, numElements(outDims))
	index := make([]int, len(outDims))
	for ii := range out {
		var aIdx, bIdx int
		for axis, v := range index {
			aIdx += v * aStrides[axis]
			bIdx += v * bStrides[axis]
		}
		x, y := lhs[aIdx], rhs[bIdx]
		switch op {
		case ElementWiseSum:
			out[ii] = x + y
		case ElementWiseProd:
			out[ii] = x * y
		case ElementWiseSub:
			out[ii] = x - y
		case ElementWiseDiv:
			out[ii] = x / y
		case ElementWiseMax:
			out[ii] = max(x, y)
		case ElementWiseMin:
			out[ii] = min(x, y)
		}
		// Increment the multi-dimensional index.
		for axis := len(index) - 1; axis >= 0; axis-- {
			index[axis]++
			if index[axis] < outDims[axis] {
				break
			}
			index[axis] = 0
		}
	}
	return out, nil
}

func execActivation(kind ActivationKind, x *Buffer) []float32 {
	in := x.Float32s()
	out := make([]float32, len(in))
	for ii, v := range in {
		switch kind {
		case ActivationReLU:
			out[ii] = max(v, 0)
		case ActivationSigmoid:
			out[ii] = float32(1 / (1 + math.Exp(-float64(v))))
		case ActivationTanh:
			out[ii] = float32(math.Tanh(float64(v)))
		}
	}
	return out
}
