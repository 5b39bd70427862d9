// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package wire

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizes(t *testing.T) {
	assert.Equal(t, 1, Size[bool]())
	assert.Equal(t, 1, Size[uint8]())
	assert.Equal(t, 4, Size[int32]())
	assert.Equal(t, 4, Size[float32]())
	assert.Equal(t, 8, Size[int64]())
	assert.Equal(t, 4+3*8, SliceSize[float64](3))
	assert.Equal(t, 4+5, StringSize("swish"))
}

func TestLayout(t *testing.T) {
	// Fields are concatenated without padding: a byte followed by an int32 occupy 5 bytes.
	buf := make([]byte, 5)
	w := NewWriter(buf)
	Put(w, uint8(7))
	Put(w, int32(-2))
	require.Equal(t, 5, w.Len())
	require.Equal(t, []byte{7, 0xFE, 0xFF, 0xFF, 0xFF}, buf)

	r := NewReader(buf)
	require.Equal(t, uint8(7), Get[uint8](r))
	require.Equal(t, int32(-2), Get[int32](r))
	require.Equal(t, 0, r.Remaining())
}

func TestRoundTrip(t *testing.T) {
	w := NewGrowingWriter(0)
	Put(w, float32(1.5))
	Put(w, true)
	PutSlice(w, []int64{3, -1, 7})
	PutString(w, "stack_plugin")
	PutBytes(w, []byte{1, 2})
	PutSlice[float32](w, nil)
	data := w.Bytes()
	require.Len(t, data, 4+1+SliceSize[int64](3)+StringSize("stack_plugin")+BytesSize([]byte{1, 2})+SliceSize[float32](0))

	r := NewReader(data)
	assert.Equal(t, float32(1.5), Get[float32](r))
	assert.True(t, Get[bool](r))
	assert.Equal(t, []int64{3, -1, 7}, GetSlice[int64](r))
	assert.Equal(t, "stack_plugin", GetString(r))
	assert.Equal(t, []byte{1, 2}, GetBytes(r))
	assert.Empty(t, GetSlice[float32](r))
	assert.Equal(t, 0, r.Remaining())
}

func TestContractViolations(t *testing.T) {
	w := NewWriter(make([]byte, 3))
	require.Panics(t, func() { Put(w, int32(1)) })

	r := NewReader([]byte{1, 2})
	require.Panics(t, func() { _ = Get[float32](r) })

	// Length prefix larger than the remaining data.
	w = NewGrowingWriter(8)
	Put(w, int32(10))
	r = NewReader(w.Bytes())
	require.Panics(t, func() { _ = GetString(r) })
}

func TestCorruptLengths(t *testing.T) {
	// A huge length prefix must fail before anything is allocated for it.
	huge := []byte{0xff, 0xff, 0xff, 0x7f}
	err := exceptions.TryCatch[error](func() { _ = GetSlice[float64](NewReader(huge)) })
	require.ErrorContains(t, err, "exceeds")
	err = exceptions.TryCatch[error](func() { _ = GetBytes(NewReader(huge)) })
	require.ErrorContains(t, err, "exceeds")
	err = exceptions.TryCatch[error](func() { _ = GetString(NewReader(huge)) })
	require.ErrorContains(t, err, "exceeds")

	// Negative length.
	err = exceptions.TryCatch[error](func() { _ = GetSlice[int32](NewReader([]byte{0xff, 0xff, 0xff, 0xff})) })
	require.ErrorContains(t, err, "negative")

	// Truncated slice: 3 float32 announced, 2 available.
	w := NewGrowingWriter(16)
	Put(w, int32(3))
	Put(w, float32(1))
	Put(w, float32(2))
	r := NewReader(w.Bytes())
	require.Panics(t, func() { _ = GetSlice[float32](r) })

	// Counts that fit are returned and leave the data in place.
	w = NewGrowingWriter(16)
	PutSlice(w, []int64{7, 8})
	r = NewReader(w.Bytes())
	require.Equal(t, 2, GetCount(r, Size[int64]()))
	require.Equal(t, 16, r.Remaining())
}
