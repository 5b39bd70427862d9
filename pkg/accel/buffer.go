// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package accel

import (
	"fmt"
	"slices"

	"github.com/gomlx/accelconv/pkg/core/shapes"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Buffer holds the concrete value of a tensor during execution.
//
// Flat is a row-major slice of the Go type matching DType: []float32 for dtypes.Float32 and
// []float16.Float16 for dtypes.Float16.
type Buffer struct {
	DType dtypes.DType
	Dims  []int
	Flat  any
}

// NewBuffer returns a buffer with the given dimensions and values, which must have exactly the number of
// elements given by dims. The values are not copied.
func NewBuffer[T float32 | float16.Float16](dims []int, flat []T) *Buffer {
	var dtype dtypes.DType
	switch any(flat).(type) {
	case []float32:
		dtype = dtypes.Float32
	case []float16.Float16:
		dtype = dtypes.Float16
	}
	b := &Buffer{DType: dtype, Dims: slices.Clone(dims), Flat: flat}
	if size := numElements(dims); size != len(flat) {
		exceptions.Panicf("NewBuffer(%v): dimensions require %d elements, got %d", dims, size, len(flat))
	}
	return b
}

// Shape returns the shape of the buffer.
func (b *Buffer) Shape() shapes.Shape {
	return shapes.Make(b.DType, b.Dims...)
}

// Size returns the number of elements.
func (b *Buffer) Size() int { return numElements(b.Dims) }

// String implements fmt.Stringer.
func (b *Buffer) String() string {
	return fmt.Sprintf("%s%v", b.Shape(), b.Flat)
}

// Float32s returns the values of the buffer converted to float32.
func (b *Buffer) Float32s() []float32 {
	switch flat := b.Flat.(type) {
	case []float32:
		return flat
	case []float16.Float16:
		values := make([]float32, len(flat))
		for ii, v := range flat {
			values[ii] = v.Float32()
		}
		return values
	}
	exceptions.Panicf("buffer %s: unsupported flat type %T", b.Shape(), b.Flat)
	return nil
}

// check validates that Flat matches DType and Dims.
func (b *Buffer) check() error {
	var n int
	switch flat := b.Flat.(type) {
	case []float32:
		if b.DType != dtypes.Float32 {
			return errors.Errorf("buffer of dtype %s holds []float32", b.DType)
		}
		n = len(flat)
	case []float16.Float16:
		if b.DType != dtypes.Float16 {
			return errors.Errorf("buffer of dtype %s holds []float16.Float16", b.DType)
		}
		n = len(flat)
	default:
		return errors.Errorf("buffer of dtype %s holds unsupported %T", b.DType, b.Flat)
	}
	if n != numElements(b.Dims) {
		return errors.Errorf("buffer with dimensions %v holds %d elements", b.Dims, n)
	}
	return nil
}

// newZeroBuffer allocates a buffer of the given dtype and dimensions.
func newZeroBuffer(dtype dtypes.DType, dims []int) *Buffer {
	size := numElements(dims)
	b := &Buffer{DType: dtype, Dims: slices.Clone(dims)}
	switch dtype {
	case dtypes.Float32:
		b.Flat = make([]float32, size)
	case dtypes.Float16:
		b.Flat = make([]float16.Float16, size)
	default:
		exceptions.Panicf("unsupported buffer dtype %s", dtype)
	}
	return b
}

// bufferFromFloat32 creates a buffer of dtype with the given float32 values, converting if needed.
func bufferFromFloat32(dtype dtypes.DType, dims []int, values []float32) *Buffer {
	switch dtype {
	case dtypes.Float32:
		return &Buffer{DType: dtype, Dims: slices.Clone(dims), Flat: values}
	case dtypes.Float16:
		flat := make([]float16.Float16, len(values))
		for ii, v := range values {
			flat[ii] = float16.Fromfloat32(v)
		}
		return &Buffer{DType: dtype, Dims: slices.Clone(dims), Flat: flat}
	}
	exceptions.Panicf("unsupported buffer dtype %s", dtype)
	return nil
}

// convert returns the buffer converted to dtype, or b itself if it already has that dtype.
func (b *Buffer) convert(dtype dtypes.DType) *Buffer {
	if b.DType == dtype {
		return b
	}
	return bufferFromFloat32(dtype, b.Dims, b.Float32s())
}

// numElements returns the product of dims.
func numElements(dims []int) int {
	size := 1
	for _, dim := range dims {
		size *= dim
	}
	return size
}
