// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package converters implements the converters of the host operators supported by the accelerator:
//
//   - scale: y = x * scale + bias (or (x + bias) * scale).
//   - batch_norm: inference batch normalization, folded into a per-channel scale.
//   - elementwise_add, elementwise_sub, elementwise_mul, elementwise_div: binary operations with broadcast.
//   - relu, sigmoid, tanh: activations.
//   - swish: y = x * sigmoid(beta * x), through the "swish_plugin" plugin.
//   - stack: stacks its inputs along a new axis, through the "stack_plugin" plugin.
//
// Use NewRegistry to get a convert.Registry with all of them.
package converters

import (
	"github.com/gomlx/accelconv/pkg/convert"
	"github.com/gomlx/accelconv/pkg/ir"
)

// NewRegistry returns a convert.Registry with every converter of this package registered.
func NewRegistry() *convert.Registry {
	r := convert.NewRegistry()
	r.MustRegister(ScaleConverter)
	r.MustRegister(BatchNormConverter)
	for _, c := range elementWiseConverters() {
		r.MustRegister(c)
	}
	for _, c := range activationConverters() {
		r.MustRegister(c)
	}
	r.MustRegister(SwishConverter)
	r.MustRegister(StackConverter)
	return r
}

// noAttributes is the schema of operators without attributes.
var noAttributes = map[string]ir.AttrType{}
