// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package convert

import (
	"github.com/gomlx/accelconv/pkg/ir"
	"github.com/gomlx/accelconv/pkg/support/xslices"
	"github.com/pkg/errors"
)

var (
	// ErrDuplicateConverter is returned when registering a second converter for an operator type.
	ErrDuplicateConverter = errors.New("converter already registered")

	// ErrUnsupportedOperator is returned for operators with no registered converter.
	ErrUnsupportedOperator = errors.New("unsupported operator")

	// ErrUnknownAttribute is returned for operator attributes not declared by the converter.
	ErrUnknownAttribute = errors.New("unknown attribute")
)

// ConvertFn converts one operator, adding layers to the network of the Builder and registering every
// output of the operator with Builder.SetTensor (usually through Builder.ReplenishLayerAndOutput).
//
// It panics (with exceptions.Panicf) on errors. In testMode every converted output is also marked as a
// network output.
type ConvertFn func(b *Builder, op *ir.OpDesc, testMode bool)

// Converter of one operator type.
type Converter struct {
	OpType string

	// Attributes accepted by the converter and their types. Operators with any other attribute fail
	// with ErrUnknownAttribute.
	Attributes map[string]ir.AttrType

	Convert ConvertFn
}

// Registry of converters, keyed by operator type.
type Registry struct {
	converters map[string]*Converter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{converters: make(map[string]*Converter)}
}

// Register a converter. It fails with ErrDuplicateConverter if the operator type already has one.
func (r *Registry) Register(c *Converter) error {
	if c == nil || c.OpType == "" || c.Convert == nil {
		return errors.New("converter must have an operator type and a convert function")
	}
	if _, found := r.converters[c.OpType]; found {
		return errors.Wrapf(ErrDuplicateConverter, "operator type %q", c.OpType)
	}
	r.converters[c.OpType] = c
	return nil
}

// MustRegister registers a converter and panics on error.
func (r *Registry) MustRegister(c *Converter) {
	if err := r.Register(c); err != nil {
		panic(err)
	}
}

// Lookup returns the converter for the operator type.
func (r *Registry) Lookup(opType string) (*Converter, bool) {
	c, found := r.converters[opType]
	return c, found
}

// OpTypes returns the registered operator types, sorted.
func (r *Registry) OpTypes() []string {
	return xslices.SortedKeys(r.converters)
}

// checkAttributes validates the attributes of op against the schema of the converter.
func (c *Converter) checkAttributes(op *ir.OpDesc) error {
	for _, name := range op.AttrNames() {
		want, found := c.Attributes[name]
		if !found {
			return errors.Wrapf(ErrUnknownAttribute, "attribute %q of operator %s", name, op)
		}
		if attr := op.Attrs[name]; !attr.Accepts(want) {
			return errors.Errorf("attribute %q of operator %s is of type %s, wanted %s", name, op, attr.Type, want)
		}
	}
	return nil
}
