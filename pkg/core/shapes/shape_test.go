// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	require.False(t, Invalid().Ok())

	scalar := Make(dtypes.Float32)
	require.True(t, scalar.IsScalar())
	require.Equal(t, 1, scalar.Size())
	require.Equal(t, 4, int(scalar.Memory()))

	shape := Make(dtypes.Float32, 4, 3, 2)
	require.Equal(t, 3, shape.Rank())
	require.False(t, shape.IsDynamic())
	require.Equal(t, 24, shape.Size())
	require.Equal(t, []int{6, 2, 1}, shape.Strides())
	require.Equal(t, "(Float32)[4 3 2]", shape.String())

	require.Panics(t, func() { Make(dtypes.Float32, 2, 0) })
	require.Panics(t, func() { Make(dtypes.Float32, -2) })
}

func TestDynamic(t *testing.T) {
	shape := Make(dtypes.Float32, Dynamic, 32, Dynamic)
	require.True(t, shape.IsDynamic())
	require.Equal(t, "(Float32)[? 32 ?]", shape.String())
	require.Panics(t, func() { _ = shape.Size() })

	require.NoError(t, shape.Accepts([]int{1, 32, 64}))
	require.Error(t, shape.Accepts([]int{1, 16, 64}))
	require.Error(t, shape.Accepts([]int{1, 32}))
	require.Error(t, shape.Accepts([]int{0, 32, 1}))
}

func TestDim(t *testing.T) {
	shape := Make(dtypes.Float32, 4, 3, 2)
	require.Equal(t, 4, shape.Dim(0))
	require.Equal(t, 2, shape.Dim(-1))
	require.Panics(t, func() { _ = shape.Dim(3) })
	require.Panics(t, func() { _ = shape.Dim(-4) })
}

func TestCloneAndEqual(t *testing.T) {
	shape := Make(dtypes.Float16, 2, Dynamic)
	clone := shape.Clone()
	require.True(t, shape.Equal(clone))
	clone.Dimensions[0] = 5
	require.Equal(t, 2, shape.Dimensions[0])
	require.False(t, shape.Equal(clone))
	require.NoError(t, shape.CheckDims(2, -1))
	require.Error(t, shape.CheckDims(3, -1))
}
