// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package weights implements the staging store for constant buffers ("weights") used while building an
// accelerator network.
//
// Weights are either loaded with the model or synthesized by converters (e.g. a scalar scale that in the
// host graph was an attribute). The Store owns them from the moment they are staged until the build is
// torn down: there is no way to delete a single weight, only to Release the whole store.
package weights

import (
	"fmt"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

var (
	// ErrDuplicateWeight is returned when staging a weight with a name already in use.
	ErrDuplicateWeight = errors.New("duplicate weight name")

	// ErrReleased is returned when using a Store after Release.
	ErrReleased = errors.New("weights store already released")
)

// Weights is a named, immutable, flat constant buffer.
type Weights struct {
	Name  string
	DType dtypes.DType

	// Values is a flat slice of the Go type matching DType (e.g. []float32 for dtypes.Float32).
	// It is nil after the owning Store is released.
	Values any

	// Count is the number of elements.
	Count int
}

// Bytes returns the size of the buffer in bytes.
func (w *Weights) Bytes() int {
	return w.Count * int(w.DType.Memory())
}

// Released returns whether the buffer was dropped by Store.Release.
func (w *Weights) Released() bool {
	return w.Values == nil
}

// String implements fmt.Stringer.
func (w *Weights) String() string {
	return fmt.Sprintf("%q(%s)[%d]", w.Name, w.DType, w.Count)
}

// Store owns the weights staged during one build.
type Store struct {
	weights  map[string]*Weights
	order    []string
	released bool
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{weights: make(map[string]*Weights)}
}

// Stage copies values into a new weight buffer owned by the store.
//
// values must be a slice of the Go type matching dtype. Names must be unique within the store.
func (s *Store) Stage(name string, dtype dtypes.DType, values any) (*Weights, error) {
	if s.released {
		return nil, errors.Wrapf(ErrReleased, "staging %q", name)
	}
	if _, found := s.weights[name]; found {
		return nil, errors.Wrapf(ErrDuplicateWeight, "staging %q", name)
	}
	valuesDType, count, err := flatInfo(values)
	if err != nil {
		return nil, errors.WithMessagef(err, "staging %q", name)
	}
	if valuesDType != dtype {
		return nil, errors.Errorf("staging %q: values are %T, not matching dtype %s", name, values, dtype)
	}
	w := &Weights{Name: name, DType: dtype, Values: cloneFlat(values), Count: count}
	s.weights[name] = w
	s.order = append(s.order, name)
	klog.V(2).Infof("staged weights %s", w)
	return w, nil
}

// Scalar is the set of Go types that can be staged as weights.
type Scalar interface {
	bool | int8 | int32 | int64 | uint8 | float16.Float16 | float32 | float64
}

// StageScalar stages a single-element buffer holding value.
func StageScalar[T Scalar](s *Store, name string, value T) (*Weights, error) {
	dtype, _, err := flatInfo([]T{value})
	if err != nil {
		return nil, err
	}
	return s.Stage(name, dtype, []T{value})
}

// Lookup returns the weights staged under name.
func (s *Store) Lookup(name string) (*Weights, bool) {
	w, found := s.weights[name]
	return w, found
}

// Names returns the names of the staged weights, in staging order.
func (s *Store) Names() []string {
	return slices.Clone(s.order)
}

// Len returns the number of staged weights.
func (s *Store) Len() int { return len(s.order) }

// TotalBytes returns the sum of the sizes of the staged weights.
func (s *Store) TotalBytes() int {
	var total int
	for _, w := range s.weights {
		total += w.Bytes()
	}
	return total
}

// Release drops every buffer. The Store can't be used to stage weights afterward.
// It is meant to be called when the build that owns the store is torn down.
func (s *Store) Release() {
	if s.released {
		return
	}
	klog.V(1).Infof("releasing %d staged weights (%s)", len(s.order), humanize.Bytes(uint64(s.TotalBytes())))
	for _, w := range s.weights {
		w.Values = nil
	}
	s.released = true
}

// IsReleased returns whether Release was called.
func (s *Store) IsReleased() bool { return s.released }

// flatInfo returns the dtype and number of elements of a flat slice.
func flatInfo(values any) (dtypes.DType, int, error) {
	switch v := values.(type) {
	case []bool:
		return dtypes.Bool, len(v), nil
	case []int8:
		return dtypes.Int8, len(v), nil
	case []int32:
		return dtypes.Int32, len(v), nil
	case []int64:
		return dtypes.Int64, len(v), nil
	case []uint8:
		return dtypes.Uint8, len(v), nil
	case []float16.Float16:
		return dtypes.Float16, len(v), nil
	case []float32:
		return dtypes.Float32, len(v), nil
	case []float64:
		return dtypes.Float64, len(v), nil
	}
	return dtypes.InvalidDType, 0, errors.Errorf("unsupported weights values type %T", values)
}

// cloneFlat returns a copy of a flat slice accepted by flatInfo.
func cloneFlat(values any) any {
	switch v := values.(type) {
	case []bool:
		return cloneSlice(v)
	case []int8:
		return cloneSlice(v)
	case []int32:
		return cloneSlice(v)
	case []int64:
		return cloneSlice(v)
	case []uint8:
		return cloneSlice(v)
	case []float16.Float16:
		return cloneSlice(v)
	case []float32:
		return cloneSlice(v)
	case []float64:
		return cloneSlice(v)
	}
	return nil
}

// cloneSlice is like slices.Clone, but never returns nil: nil Values mark released weights.
func cloneSlice[T any](v []T) []T {
	return append(make([]T, 0, len(v)), v...)
}

// CloneValues returns a copy of the values of w, or an error if the store owning it was released.
func (w *Weights) CloneValues() (any, error) {
	if w.Released() {
		return nil, errors.Wrapf(ErrReleased, "weights %q", w.Name)
	}
	return cloneFlat(w.Values), nil
}
