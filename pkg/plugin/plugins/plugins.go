// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package plugins implements the plugin kinds shipped with the converter:
//
//   - "swish_plugin" version "1": y = x * sigmoid(beta * x).
//   - "stack_plugin" version "1": stacks its inputs along a new axis.
//
// Use NewRegistry to get a plugin.Registry with all of them registered.
package plugins

import (
	"github.com/gomlx/accelconv/pkg/core/formats"
	"github.com/gomlx/accelconv/pkg/plugin"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// NewRegistry returns a plugin.Registry with every plugin kind of this package registered, in a fixed order.
func NewRegistry() *plugin.Registry {
	r := plugin.NewRegistry()
	r.MustRegister(SwishCreator{})
	r.MustRegister(StackCreator{})
	return r
}

// floatCapabilities accepts float32, and float16 if withFP16 is set, in the linear format.
func floatCapabilities(withFP16 bool) plugin.Capabilities {
	caps := plugin.Capabilities{
		DTypes:  map[dtypes.DType]bool{dtypes.Float32: true},
		Formats: map[formats.Format]bool{formats.FormatLinear: true},
	}
	if withFP16 {
		caps.DTypes[dtypes.Float16] = true
	}
	return caps
}

// numElements returns the product of dims.
func numElements(dims []int) int {
	size := 1
	for _, dim := range dims {
		size *= dim
	}
	return size
}

// flatBuffer returns the buffer as a []T with exactly size elements.
func flatBuffer[T float32 | float16.Float16](buffer any, size int, what string) ([]T, error) {
	flat, ok := buffer.([]T)
	if !ok {
		var zero T
		return nil, errors.Errorf("%s buffer is a %T, wanted []%T", what, buffer, zero)
	}
	if len(flat) != size {
		return nil, errors.Errorf("%s buffer has %d elements, wanted %d", what, len(flat), size)
	}
	return flat, nil
}

func boolToInt32(v bool) int32 {
	if v {
		return 1
	}
	return 0
}
