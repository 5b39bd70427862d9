// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package formats enumerates the memory layouts a tensor can have on the accelerator.
package formats

// Format is the memory layout of a tensor.
//
// Linear is the plain row-major layout. The CHWn/HWCn variants are vectorized layouts where the
// channel axis is padded to a multiple of n and interleaved.
type Format int

//go:generate go tool enumer -type=Format -trimprefix=Format -output=gen_format_enumer.go formats.go

const (
	FormatLinear Format = iota
	FormatCHW2
	FormatHWC8
	FormatCHW4
	FormatCHW16
	FormatCHW32
)

// VectorSize returns the channel vectorization of the format, 1 for Linear.
func (f Format) VectorSize() int {
	switch f {
	case FormatCHW2:
		return 2
	case FormatCHW4:
		return 4
	case FormatHWC8:
		return 8
	case FormatCHW16:
		return 16
	case FormatCHW32:
		return 32
	default:
		return 1
	}
}
