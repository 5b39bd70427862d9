// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dimexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstantFolding(t *testing.T) {
	expr := Prod(Const(3), Sum(Const(4), Const(1)))
	value, ok := IsConstant(expr)
	require.True(t, ok)
	require.Equal(t, 15, value)

	// Identities don't create nodes.
	d := Dim(0, 1)
	assert.Equal(t, d, Prod(Const(1), d))
	assert.Equal(t, d, Sum(d, Const(0)))
	assert.Equal(t, d, FloorDiv(d, Const(1)))

	require.Panics(t, func() { FloorDiv(Const(1), Const(0)) })
	require.Panics(t, func() { Sum(nil, Const(0)) })
}

func TestEval(t *testing.T) {
	// Output of a "stack" of 3 inputs along axis 1: [in0[0], 3, in0[1]].
	out := Dims{Dim(0, 0), Const(3), Dim(0, 1)}
	require.Equal(t, "[in0[0], 3, in0[1]]", out.String())
	require.Equal(t, []int{-1, 3, -1}, out.Static())

	values, err := out.Eval([][]int{{7, 11}})
	require.NoError(t, err)
	require.Equal(t, []int{7, 3, 11}, values)

	_, err = out.Eval([][]int{{7}})
	require.Error(t, err)
	_, err = out.Eval(nil)
	require.Error(t, err)
}

func TestArithmetic(t *testing.T) {
	inputs := [][]int{{10, 4}, {3}}
	testCases := []struct {
		expr Expr
		want int
	}{
		{Sum(Dim(0, 0), Dim(1, 0)), 13},
		{Prod(Dim(0, 0), Dim(0, 1)), 40},
		{Sub(Dim(0, 0), Dim(1, 0)), 7},
		{Max(Dim(0, 1), Dim(1, 0)), 4},
		{Min(Dim(0, 1), Dim(1, 0)), 3},
		{FloorDiv(Dim(0, 0), Dim(1, 0)), 3},
		{CeilDiv(Dim(0, 0), Dim(1, 0)), 4},
		{CeilDiv(Dim(0, 0), Dim(0, 1)), 3},
		{FloorDiv(Const(-7), Dim(0, 1)), -2},
		{CeilDiv(Const(-7), Dim(0, 1)), -1},
	}
	for _, tc := range testCases {
		got, err := tc.expr.Eval(inputs)
		require.NoError(t, err, "expr %s", tc.expr)
		assert.Equal(t, tc.want, got, "expr %s", tc.expr)
	}

	_, err := FloorDiv(Dim(0, 0), Sub(Dim(1, 0), Const(3))).Eval(inputs)
	require.Error(t, err)
}

func TestForInput(t *testing.T) {
	dims := ForInput(2, []int{-1, 32, -1})
	require.Equal(t, Dims{Dim(2, 0), Const(32), Dim(2, 2)}, dims)
	require.Equal(t, []int{-1, 32, -1}, dims.Static())
	clone := dims.Clone()
	clone[1] = Const(1)
	require.Equal(t, Const(32), dims[1])
}

func TestSubstitute(t *testing.T) {
	// Output of an operation in terms of its own inputs: [op0[0] * op1[0], 3].
	local := Dims{Prod(Dim(0, 0), Dim(1, 0)), Const(3)}

	// Operation input 0 is network input 2 axis 1; operation input 1 is static.
	network := local.Substitute([]Dims{{Dim(2, 1)}, {Const(4)}})
	require.Equal(t, "[(in2[1] * 4), 3]", network.String())

	static := local.Substitute([]Dims{{Const(5)}, {Const(4)}})
	require.Equal(t, []int{20, 3}, static.Static())

	require.Panics(t, func() { Substitute(Dim(1, 0), []Dims{{Const(1)}}) })
}
