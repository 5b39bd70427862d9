// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package wire implements the byte layout used to serialize plugin configurations and engines.
//
// Fields are fixed-width, little-endian and concatenated without padding or alignment markers:
// a reader must consume fields in exactly the order they were written. Variable-length values
// (slices, strings and byte blobs) are prefixed with their element count as an int32.
//
// A Writer over a fixed buffer panics if a write would overflow it, and a Reader panics on a
// short read: both are contract violations, caught at API boundaries with exceptions.TryCatch.
package wire

import (
	"encoding/binary"

	"github.com/gomlx/exceptions"
	"golang.org/x/exp/constraints"
)

// Scalar is the set of fixed-width types that can be written to the wire.
//
// Platform-sized int and uint are excluded on purpose: their width is not fixed.
type Scalar interface {
	constraints.Float | ~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~bool
}

// Size returns the number of bytes a value of type T takes on the wire.
func Size[T Scalar]() int {
	var zero T
	return binary.Size(zero)
}

// SliceSize returns the number of bytes a slice of n values of type T takes on the wire, including
// the length prefix.
func SliceSize[T Scalar](n int) int {
	return Size[int32]() + n*Size[T]()
}

// StringSize returns the number of bytes s takes on the wire, including the length prefix.
func StringSize(s string) int {
	return Size[int32]() + len(s)
}

// BytesSize returns the number of bytes the blob takes on the wire, including the length prefix.
func BytesSize(blob []byte) int {
	return Size[int32]() + len(blob)
}

// Writer writes fields sequentially.
type Writer struct {
	buf   []byte
	pos   int
	fixed bool
}

// NewWriter returns a Writer that writes into buf, and panics if more than len(buf) bytes are written.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf, fixed: true}
}

// NewGrowingWriter returns a Writer that grows its buffer as needed.
func NewGrowingWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return w.pos }

// Bytes returns the bytes written so far.
func (w *Writer) Bytes() []byte { return w.buf[:w.pos] }

// reserve returns the next n bytes of the buffer, advancing the position.
func (w *Writer) reserve(n int) []byte {
	if w.fixed {
		if w.pos+n > len(w.buf) {
			exceptions.Panicf("wire: write of %d bytes at offset %d overflows buffer of %d bytes", n, w.pos, len(w.buf))
		}
	} else if w.pos+n > len(w.buf) {
		w.buf = append(w.buf, make([]byte, w.pos+n-len(w.buf))...)
	}
	out := w.buf[w.pos : w.pos+n]
	w.pos += n
	return out
}

// Put writes one scalar value.
func Put[T Scalar](w *Writer, value T) {
	if _, err := binary.Encode(w.reserve(Size[T]()), binary.LittleEndian, value); err != nil {
		exceptions.Panicf("wire: failed to encode %T: %+v", value, err)
	}
}

// PutSlice writes the number of values as an int32 followed by the values.
func PutSlice[T Scalar](w *Writer, values []T) {
	Put(w, int32(len(values)))
	if len(values) == 0 {
		return
	}
	if _, err := binary.Encode(w.reserve(len(values)*Size[T]()), binary.LittleEndian, values); err != nil {
		exceptions.Panicf("wire: failed to encode []%T: %+v", values[0], err)
	}
}

// PutString writes the length of s as an int32 followed by its bytes.
func PutString(w *Writer, s string) {
	Put(w, int32(len(s)))
	copy(w.reserve(len(s)), s)
}

// PutBytes writes the length of blob as an int32 followed by the blob.
func PutBytes(w *Writer, blob []byte) {
	Put(w, int32(len(blob)))
	copy(w.reserve(len(blob)), blob)
}

// Reader reads fields sequentially.
type Reader struct {
	data []byte
	pos  int
}

// NewReader returns a Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining returns the number of bytes not yet read.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

// Offset returns the number of bytes read so far.
func (r *Reader) Offset() int { return r.pos }

func (r *Reader) next(n int) []byte {
	if n < 0 || r.pos+n > len(r.data) {
		exceptions.Panicf("wire: short read of %d bytes at offset %d, only %d bytes available", n, r.pos, r.Remaining())
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out
}

// Get reads one scalar value.
func Get[T Scalar](r *Reader) T {
	var value T
	if _, err := binary.Decode(r.next(Size[T]()), binary.LittleEndian, &value); err != nil {
		exceptions.Panicf("wire: failed to decode %T: %+v", value, err)
	}
	return value
}

// GetCount reads an int32 count of elements that take at least elementSize bytes each. It panics if
// the count is negative or if the remaining data can't hold that many elements, so callers can
// allocate for the count safely.
func GetCount(r *Reader, elementSize int) int {
	offset := r.pos
	n := int(Get[int32](r))
	if n < 0 {
		exceptions.Panicf("wire: negative length %d at offset %d", n, offset)
	}
	if n*max(elementSize, 0) > r.Remaining() {
		exceptions.Panicf("wire: length %d of %d-byte elements at offset %d exceeds the %d bytes available",
			n, elementSize, offset, r.Remaining())
	}
	return n
}

// GetSlice reads a slice written with PutSlice.
func GetSlice[T Scalar](r *Reader) []T {
	n := GetCount(r, Size[T]())
	values := make([]T, n)
	if n == 0 {
		return values
	}
	if _, err := binary.Decode(r.next(n*Size[T]()), binary.LittleEndian, values); err != nil {
		exceptions.Panicf("wire: failed to decode []%T: %+v", values[0], err)
	}
	return values
}

// GetString reads a string written with PutString.
func GetString(r *Reader) string {
	n := GetCount(r, 1)
	return string(r.next(n))
}

// GetBytes reads a blob written with PutBytes. The returned slice is a copy.
func GetBytes(r *Reader) []byte {
	n := GetCount(r, 1)
	return append([]byte(nil), r.next(n)...)
}
