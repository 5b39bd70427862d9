// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dimexpr implements symbolic dimension expressions, used by plugins to describe their
// output shapes in terms of their (possibly dynamic) input shapes.
//
// An Expr is a small tree: a Constant, a reference to an input dimension (InputDim), or a
// binary arithmetic operation (Binary). Expressions are built with Const, Dim and the
// operation functions (Sum, Prod, Sub, Max, Min, FloorDiv, CeilDiv), which fold constants
// eagerly, so an expression over only static dimensions is itself a Constant.
//
// Expressions are evaluated against concrete input dimensions with Eval, and can be evaluated
// at build time against the min/max bounds of an optimization profile.
package dimexpr

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Expr is a symbolic dimension expression.
//
// The set of implementations is closed: Constant, InputDim and Binary.
type Expr interface {
	fmt.Stringer

	// Eval evaluates the expression given the concrete dimensions of each input:
	// inputs[i][axis] is the dimension of axis of input i.
	Eval(inputs [][]int) (int, error)

	isExpr()
}

// Constant is a fixed dimension.
type Constant int

// InputDim refers to the dimension of an axis of one of the inputs.
type InputDim struct {
	Input, Axis int
}

// Op is a binary arithmetic operation on dimensions.
type Op int

const (
	OpSum Op = iota
	OpProd
	OpSub
	OpMax
	OpMin
	OpFloorDiv
	OpCeilDiv
)

var opSymbols = [...]string{
	OpSum:      "+",
	OpProd:     "*",
	OpSub:      "-",
	OpMax:      "max",
	OpMin:      "min",
	OpFloorDiv: "/",
	OpCeilDiv:  "ceil/",
}

// String implements fmt.Stringer.
func (op Op) String() string {
	if op < 0 || int(op) >= len(opSymbols) {
		return fmt.Sprintf("Op(%d)", int(op))
	}
	return opSymbols[op]
}

// Binary applies Op to LHS and RHS.
type Binary struct {
	Op       Op
	LHS, RHS Expr
}

func (Constant) isExpr() {}
func (InputDim) isExpr() {}
func (Binary) isExpr()   {}

// Const returns a constant expression.
func Const(value int) Expr { return Constant(value) }

// Dim returns an expression referring to the given axis of the given input.
func Dim(input, axis int) Expr { return InputDim{Input: input, Axis: axis} }

// String implements fmt.Stringer.
func (c Constant) String() string { return fmt.Sprintf("%d", int(c)) }

// Eval implements Expr.
func (c Constant) Eval(_ [][]int) (int, error) { return int(c), nil }

// String implements fmt.Stringer.
func (d InputDim) String() string { return fmt.Sprintf("in%d[%d]", d.Input, d.Axis) }

// Eval implements Expr.
func (d InputDim) Eval(inputs [][]int) (int, error) {
	if d.Input < 0 || d.Input >= len(inputs) {
		return 0, errors.Errorf("expression %s refers to input %d, but only %d inputs given", d, d.Input, len(inputs))
	}
	dims := inputs[d.Input]
	if d.Axis < 0 || d.Axis >= len(dims) {
		return 0, errors.Errorf("expression %s refers to axis %d, but input %d has rank %d", d, d.Axis, d.Input, len(dims))
	}
	return dims[d.Axis], nil
}

// String implements fmt.Stringer.
func (b Binary) String() string {
	switch b.Op {
	case OpMax, OpMin:
		return fmt.Sprintf("%s(%s, %s)", b.Op, b.LHS, b.RHS)
	default:
		return fmt.Sprintf("(%s %s %s)", b.LHS, b.Op, b.RHS)
	}
}

// Eval implements Expr.
func (b Binary) Eval(inputs [][]int) (int, error) {
	lhs, err := b.LHS.Eval(inputs)
	if err != nil {
		return 0, err
	}
	rhs, err := b.RHS.Eval(inputs)
	if err != nil {
		return 0, err
	}
	return apply(b.Op, lhs, rhs)
}

func apply(op Op, lhs, rhs int) (int, error) {
	switch op {
	case OpSum:
		return lhs + rhs, nil
	case OpProd:
		return lhs * rhs, nil
	case OpSub:
		return lhs - rhs, nil
	case OpMax:
		return max(lhs, rhs), nil
	case OpMin:
		return min(lhs, rhs), nil
	case OpFloorDiv:
		if rhs == 0 {
			return 0, errors.Errorf("division by zero in dimension expression (%d / %d)", lhs, rhs)
		}
		q := lhs / rhs
		if (lhs%rhs != 0) && ((lhs < 0) != (rhs < 0)) {
			q--
		}
		return q, nil
	case OpCeilDiv:
		if rhs == 0 {
			return 0, errors.Errorf("division by zero in dimension expression (%d ceil/ %d)", lhs, rhs)
		}
		q, err := apply(OpFloorDiv, -lhs, rhs)
		return -q, err
	}
	return 0, errors.Errorf("unknown dimension operation %s", op)
}

func binary(op Op, lhs, rhs Expr) Expr {
	if lhs == nil || rhs == nil {
		exceptions.Panicf("dimexpr: nil operand for operation %s", op)
	}
	lc, lok := lhs.(Constant)
	rc, rok := rhs.(Constant)
	if lok && rok {
		value, err := apply(op, int(lc), int(rc))
		if err != nil {
			panic(err)
		}
		return Constant(value)
	}
	// Identities that keep expressions small.
	switch {
	case op == OpProd && lok && lc == 1:
		return rhs
	case (op == OpProd || op == OpFloorDiv || op == OpCeilDiv) && rok && rc == 1:
		return lhs
	case (op == OpSum) && lok && lc == 0:
		return rhs
	case (op == OpSum || op == OpSub) && rok && rc == 0:
		return lhs
	}
	return Binary{Op: op, LHS: lhs, RHS: rhs}
}

// Sum returns lhs + rhs.
func Sum(lhs, rhs Expr) Expr { return binary(OpSum, lhs, rhs) }

// Prod returns lhs * rhs.
func Prod(lhs, rhs Expr) Expr { return binary(OpProd, lhs, rhs) }

// Sub returns lhs - rhs.
func Sub(lhs, rhs Expr) Expr { return binary(OpSub, lhs, rhs) }

// Max returns max(lhs, rhs).
func Max(lhs, rhs Expr) Expr { return binary(OpMax, lhs, rhs) }

// Min returns min(lhs, rhs).
func Min(lhs, rhs Expr) Expr { return binary(OpMin, lhs, rhs) }

// FloorDiv returns floor(lhs / rhs).
func FloorDiv(lhs, rhs Expr) Expr { return binary(OpFloorDiv, lhs, rhs) }

// CeilDiv returns ceil(lhs / rhs).
func CeilDiv(lhs, rhs Expr) Expr { return binary(OpCeilDiv, lhs, rhs) }

// IsConstant returns the value of expr if it is a Constant.
func IsConstant(expr Expr) (int, bool) {
	c, ok := expr.(Constant)
	return int(c), ok
}

// Dims is the symbolic shape of one tensor: one expression per axis.
type Dims []Expr

// String implements fmt.Stringer.
func (d Dims) String() string {
	parts := make([]string, len(d))
	for ii, expr := range d {
		parts[ii] = expr.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Rank returns the number of axes.
func (d Dims) Rank() int { return len(d) }

// Clone returns a shallow copy: expressions are immutable, so they can be shared.
func (d Dims) Clone() Dims {
	return append(Dims(nil), d...)
}

// Eval evaluates every axis.
func (d Dims) Eval(inputs [][]int) ([]int, error) {
	values := make([]int, len(d))
	for axis, expr := range d {
		v, err := expr.Eval(inputs)
		if err != nil {
			return nil, errors.WithMessagef(err, "evaluating axis %d of %s", axis, d)
		}
		values[axis] = v
	}
	return values, nil
}

// Static returns the dimensions with every non-constant axis set to dynamic (-1).
func (d Dims) Static() []int {
	values := make([]int, len(d))
	for axis, expr := range d {
		if c, ok := IsConstant(expr); ok {
			values[axis] = c
		} else {
			values[axis] = -1
		}
	}
	return values
}

// ForInput returns the symbolic dimensions of input number `input`, given its build-time
// dimensions: static axes become constants, dynamic axes (-1) become references to the input.
func ForInput(input int, dims []int) Dims {
	exprs := make(Dims, len(dims))
	for axis, dim := range dims {
		if dim < 0 {
			exprs[axis] = Dim(input, axis)
		} else {
			exprs[axis] = Const(dim)
		}
	}
	return exprs
}

// Substitute replaces every input dimension reference in expr, InputDim{i, axis}, by inputs[i][axis],
// folding constants in the result.
//
// It's used to rewrite an expression given in terms of the inputs of an operation into one in terms of
// the inputs of the whole network.
func Substitute(expr Expr, inputs []Dims) Expr {
	switch e := expr.(type) {
	case Constant:
		return e
	case InputDim:
		if e.Input < 0 || e.Input >= len(inputs) || e.Axis < 0 || e.Axis >= inputs[e.Input].Rank() {
			exceptions.Panicf("dimexpr.Substitute: %s out of range of the %d inputs given", e, len(inputs))
		}
		return inputs[e.Input][e.Axis]
	case Binary:
		return binary(e.Op, Substitute(e.LHS, inputs), Substitute(e.RHS, inputs))
	}
	exceptions.Panicf("dimexpr.Substitute: unknown expression type %T", expr)
	return nil
}

// Substitute applies Substitute to every axis.
func (d Dims) Substitute(inputs []Dims) Dims {
	out := make(Dims, len(d))
	for axis, expr := range d {
		out[axis] = Substitute(expr, inputs)
	}
	return out
}
