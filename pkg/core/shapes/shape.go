// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapes defines Shape, the dtype and dimensions of a tensor as seen by the accelerator
// network builder.
//
// A dimension may be Dynamic, meaning its size is only known at execution time. Dynamic axes are
// resolved either concretely (when the engine executes) or symbolically through
// github.com/gomlx/accelconv/pkg/core/dimexpr (when a plugin computes its output shape at build time).
//
// ## Glossary
//
//   - Rank: number of axes of a tensor.
//   - Axis: the index of a dimension.
//   - Dimension: the size of a tensor along one axis, or Dynamic.
//   - DType: the type of each element, see github.com/gomlx/gopjrt/dtypes.
package shapes

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Dynamic marks a dimension unresolved at build time.
const Dynamic = -1

// Shape of a tensor: dtype and dimensions, where any dimension may be Dynamic.
type Shape struct {
	DType      dtypes.DType
	Dimensions []int
}

// Make returns a Shape with the given dtype and dimensions.
// It panics if a dimension is neither positive nor Dynamic.
func Make(dtype dtypes.DType, dimensions ...int) Shape {
	s := Shape{DType: dtype, Dimensions: slices.Clone(dimensions)}
	for axis, dim := range dimensions {
		if dim <= 0 && dim != Dynamic {
			exceptions.Panicf("shapes.Make(%s): axis %d has invalid dimension %d", s, axis, dim)
		}
	}
	return s
}

// Invalid returns an invalid shape: Invalid().Ok() == false.
func Invalid() Shape {
	return Shape{DType: dtypes.InvalidDType}
}

// Ok returns whether this is a valid Shape.
func (s Shape) Ok() bool { return s.DType != dtypes.InvalidDType }

// Rank of the shape, that is, the number of axes.
func (s Shape) Rank() int { return len(s.Dimensions) }

// IsScalar returns whether the shape has no axes.
func (s Shape) IsScalar() bool { return s.Ok() && s.Rank() == 0 }

// Dim returns the dimension of the given axis. Negative axes count from the end.
// It panics for an out-of-bound axis.
func (s Shape) Dim(axis int) int {
	adjusted := axis
	if adjusted < 0 {
		adjusted += s.Rank()
	}
	if adjusted < 0 || adjusted >= s.Rank() {
		exceptions.Panicf("Shape.Dim(%d) out-of-bounds for rank %d (shape=%s)", axis, s.Rank(), s)
	}
	return s.Dimensions[adjusted]
}

// IsDynamic returns whether any axis is Dynamic.
func (s Shape) IsDynamic() bool {
	return slices.Contains(s.Dimensions, Dynamic)
}

// Size returns the number of elements. It panics if the shape is dynamic.
func (s Shape) Size() int {
	if s.IsDynamic() {
		exceptions.Panicf("Shape.Size() of dynamic shape %s", s)
	}
	size := 1
	for _, d := range s.Dimensions {
		size *= d
	}
	return size
}

// Memory returns the number of bytes needed to store a tensor of this shape.
func (s Shape) Memory() uintptr {
	return s.DType.Memory() * uintptr(s.Size())
}

// Strides returns the row-major strides of each axis, in elements (not bytes).
func (s Shape) Strides() []int {
	strides := make([]int, s.Rank())
	stride := 1
	for axis := s.Rank() - 1; axis >= 0; axis-- {
		strides[axis] = stride
		stride *= s.Dimensions[axis]
	}
	return strides
}

// String implements fmt.Stringer. Dynamic axes are printed as "?".
func (s Shape) String() string {
	if s.Rank() == 0 {
		return fmt.Sprintf("(%s)", s.DType)
	}
	parts := make([]string, s.Rank())
	for ii, dim := range s.Dimensions {
		if dim == Dynamic {
			parts[ii] = "?"
		} else {
			parts[ii] = fmt.Sprintf("%d", dim)
		}
	}
	return fmt.Sprintf("(%s)[%s]", s.DType, strings.Join(parts, " "))
}

// Equal compares dtype and dimensions. Dynamic only equals Dynamic.
func (s Shape) Equal(s2 Shape) bool {
	return s.DType == s2.DType && slices.Equal(s.Dimensions, s2.Dimensions)
}

// Clone returns a deep copy of the shape.
func (s Shape) Clone() Shape {
	return Shape{DType: s.DType, Dimensions: slices.Clone(s.Dimensions)}
}

// WithDimensions returns a copy of the shape with the dtype kept and new dimensions.
func (s Shape) WithDimensions(dimensions ...int) Shape {
	return Make(s.DType, dimensions...)
}

// CheckDims checks that the shape has the given rank and dimensions. A value of -1 in
// dimensions is not checked.
func (s Shape) CheckDims(dimensions ...int) error {
	if s.Rank() != len(dimensions) {
		return errors.Errorf("shape %s has incompatible rank %d (wanted %d)", s, s.Rank(), len(dimensions))
	}
	for axis, want := range dimensions {
		if want != -1 && s.Dimensions[axis] != want {
			return errors.Errorf("shape %s axis %d has dimension %d, wanted %d", s, axis, s.Dimensions[axis], want)
		}
	}
	return nil
}

// Accepts checks that the concrete dimensions can be bound to this (possibly dynamic) shape:
// same rank, and every static axis matches exactly.
func (s Shape) Accepts(concrete []int) error {
	if len(concrete) != s.Rank() {
		return errors.Errorf("rank mismatch: shape %s has rank %d, got dimensions %v", s, s.Rank(), concrete)
	}
	for axis, dim := range concrete {
		if dim <= 0 {
			return errors.Errorf("axis %d of dimensions %v is not positive", axis, concrete)
		}
		if s.Dimensions[axis] != Dynamic && s.Dimensions[axis] != dim {
			return errors.Errorf("axis %d mismatch: shape %s has %d, got %d", axis, s, s.Dimensions[axis], dim)
		}
	}
	return nil
}
