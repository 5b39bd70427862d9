// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"maps"

	"github.com/gomlx/accelconv/pkg/core/formats"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// Capabilities holds the (dtype, format) pairs a plugin accepts.
type Capabilities struct {
	// DTypes accepted. If not listed, it's assumed to be false, hence not supported.
	DTypes map[dtypes.DType]bool

	// Formats accepted. If not listed, it's assumed to be false, hence not supported.
	Formats map[formats.Format]bool
}

// Clone makes a deep copy of the Capabilities.
func (c Capabilities) Clone() Capabilities {
	var c2 Capabilities
	c2.DTypes = make(map[dtypes.DType]bool, len(c.DTypes))
	maps.Copy(c2.DTypes, c.DTypes)
	c2.Formats = make(map[formats.Format]bool, len(c.Formats))
	maps.Copy(c2.Formats, c.Formats)
	return c2
}

// Supports returns whether both the dtype and the format of desc are accepted.
func (c Capabilities) Supports(desc TensorDesc) bool {
	return c.DTypes[desc.DType] && c.Formats[desc.Format]
}

// SupportsSameAsFirst implements the common format negotiation policy: position 0 must be supported
// by caps, and every other position must have the same dtype and format as position 0.
//
// It panics if pos is out of range.
func SupportsSameAsFirst(caps Capabilities, pos int, inOut []TensorDesc) bool {
	if pos < 0 || pos >= len(inOut) {
		exceptions.Panicf("format query for position %d out of range, there are %d inputs and outputs", pos, len(inOut))
	}
	if pos == 0 {
		return caps.Supports(inOut[0])
	}
	return inOut[pos].DType == inOut[0].DType && inOut[pos].Format == inOut[0].Format
}
