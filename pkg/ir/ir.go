// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ir defines the host-side description of a computation graph to be converted to the
// accelerator: operator descriptors (OpDesc) with typed attributes, graph inputs, host parameters
// (the weights loaded with the model) and the graph outputs.
//
// Graphs can be described in YAML files, see LoadGraph.
package ir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/accelconv/pkg/support/xslices"
	"github.com/gomlx/exceptions"
)

// AttrType is the type of an operator attribute.
type AttrType int

const (
	AttrInvalid AttrType = iota
	AttrBool
	AttrInt
	AttrFloat
	AttrString
	AttrInts
	AttrFloats
	AttrStrings
)

var attrTypeNames = [...]string{"Invalid", "Bool", "Int", "Float", "String", "Ints", "Floats", "Strings"}

// String implements fmt.Stringer.
func (t AttrType) String() string {
	if t < 0 || int(t) >= len(attrTypeNames) {
		return fmt.Sprintf("AttrType(%d)", int(t))
	}
	return attrTypeNames[t]
}

// Attribute is a typed attribute value of an operator.
type Attribute struct {
	Type  AttrType
	value any
}

// Bool returns a boolean attribute.
func Bool(v bool) Attribute { return Attribute{Type: AttrBool, value: v} }

// Int returns an integer attribute.
func Int(v int) Attribute { return Attribute{Type: AttrInt, value: v} }

// Float returns a float attribute.
func Float(v float32) Attribute { return Attribute{Type: AttrFloat, value: v} }

// String returns a string attribute.
func String(v string) Attribute { return Attribute{Type: AttrString, value: v} }

// Ints returns an integer list attribute.
func Ints(v ...int) Attribute { return Attribute{Type: AttrInts, value: slices.Clone(v)} }

// Floats returns a float list attribute.
func Floats(v ...float32) Attribute { return Attribute{Type: AttrFloats, value: slices.Clone(v)} }

// Strings returns a string list attribute.
func Strings(v ...string) Attribute { return Attribute{Type: AttrStrings, value: slices.Clone(v)} }

// Value returns the attribute value: bool, int, float32, string, []int, []float32 or []string.
func (a Attribute) Value() any { return a.value }

// String implements fmt.Stringer.
func (a Attribute) String() string {
	switch v := a.value.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case nil:
		return "<invalid>"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Accepts returns whether a value of this attribute can be read as the given type.
// Integers are accepted as floats.
func (a Attribute) Accepts(t AttrType) bool {
	if a.Type == t {
		return true
	}
	return (t == AttrFloat && a.Type == AttrInt) || (t == AttrFloats && a.Type == AttrInts)
}

// OpDesc describes one operator instance of the host graph.
type OpDesc struct {
	// Type of the operator, e.g. "scale". It selects the converter.
	Type string

	// Inputs and Outputs are the names of the tensors consumed and produced.
	Inputs, Outputs []string

	Attrs map[string]Attribute
}

// String implements fmt.Stringer.
func (op *OpDesc) String() string {
	return fmt.Sprintf("%s(%s) -> (%s)", op.Type, strings.Join(op.Inputs, ", "), strings.Join(op.Outputs, ", "))
}

// Input returns the name of input #i. It panics if op doesn't have it.
func (op *OpDesc) Input(i int) string {
	if i < 0 || i >= len(op.Inputs) {
		exceptions.Panicf("operator %s has %d inputs, input #%d requested", op, len(op.Inputs), i)
	}
	return op.Inputs[i]
}

// Output returns the name of output #i. It panics if op doesn't have it.
func (op *OpDesc) Output(i int) string {
	if i < 0 || i >= len(op.Outputs) {
		exceptions.Panicf("operator %s has %d outputs, output #%d requested", op, len(op.Outputs), i)
	}
	return op.Outputs[i]
}

// AttrNames returns the names of the attributes set, sorted.
func (op *OpDesc) AttrNames() []string {
	return xslices.SortedKeys(op.Attrs)
}

// Attr returns the attribute with the given name, if set.
func (op *OpDesc) Attr(name string) (Attribute, bool) {
	a, found := op.Attrs[name]
	return a, found
}

// SetAttr sets an attribute, and returns op for chaining.
func (op *OpDesc) SetAttr(name string, a Attribute) *OpDesc {
	if op.Attrs == nil {
		op.Attrs = make(map[string]Attribute)
	}
	op.Attrs[name] = a
	return op
}

// getAttr returns the attribute if present, checking its type. It panics if it is required and missing.
func (op *OpDesc) getAttr(name string, t AttrType, required bool) (Attribute, bool) {
	a, found := op.Attrs[name]
	if !found {
		if required {
			exceptions.Panicf("operator %s is missing required attribute %q", op, name)
		}
		return a, false
	}
	if !a.Accepts(t) {
		exceptions.Panicf("attribute %q of operator %s is of type %s, wanted %s", name, op, a.Type, t)
	}
	return a, true
}

// MustBool returns the boolean attribute. It panics if missing or of the wrong type.
func (op *OpDesc) MustBool(name string) bool {
	a, _ := op.getAttr(name, AttrBool, true)
	return a.value.(bool)
}

// BoolOr returns the boolean attribute, or defaultValue if not set. It panics if it is of the wrong type.
func (op *OpDesc) BoolOr(name string, defaultValue bool) bool {
	a, found := op.getAttr(name, AttrBool, false)
	if !found {
		return defaultValue
	}
	return a.value.(bool)
}

// MustInt returns the integer attribute. It panics if missing or of the wrong type.
func (op *OpDesc) MustInt(name string) int {
	a, _ := op.getAttr(name, AttrInt, true)
	return a.value.(int)
}

// IntOr returns the integer attribute, or defaultValue if not set. It panics if it is of the wrong type.
func (op *OpDesc) IntOr(name string, defaultValue int) int {
	a, found := op.getAttr(name, AttrInt, false)
	if !found {
		return defaultValue
	}
	return a.value.(int)
}

func toFloat(a Attribute) float32 {
	if v, ok := a.value.(int); ok {
		return float32(v)
	}
	return a.value.(float32)
}

// MustFloat returns the float attribute. It panics if missing or of the wrong type.
func (op *OpDesc) MustFloat(name string) float32 {
	a, _ := op.getAttr(name, AttrFloat, true)
	return toFloat(a)
}

// FloatOr returns the float attribute, or defaultValue if not set. It panics if it is of the wrong type.
func (op *OpDesc) FloatOr(name string, defaultValue float32) float32 {
	a, found := op.getAttr(name, AttrFloat, false)
	if !found {
		return defaultValue
	}
	return toFloat(a)
}

// MustString returns the string attribute. It panics if missing or of the wrong type.
func (op *OpDesc) MustString(name string) string {
	a, _ := op.getAttr(name, AttrString, true)
	return a.value.(string)
}

// StringOr returns the string attribute, or defaultValue if not set. It panics if it is of the wrong type.
func (op *OpDesc) StringOr(name string, defaultValue string) string {
	a, found := op.getAttr(name, AttrString, false)
	if !found {
		return defaultValue
	}
	return a.value.(string)
}

// IntsOr returns the integer list attribute, or defaultValue if not set. It panics if it is of the wrong type.
func (op *OpDesc) IntsOr(name string, defaultValue []int) []int {
	a, found := op.getAttr(name, AttrInts, false)
	if !found {
		return defaultValue
	}
	return slices.Clone(a.value.([]int))
}

// FloatsOr returns the float list attribute, or defaultValue if not set. It panics if it is of the wrong type.
func (op *OpDesc) FloatsOr(name string, defaultValue []float32) []float32 {
	a, found := op.getAttr(name, AttrFloats, false)
	if !found {
		return defaultValue
	}
	if ints, ok := a.value.([]int); ok {
		return xslices.Map(ints, func(v int) float32 { return float32(v) })
	}
	return slices.Clone(a.value.([]float32))
}

// StringsOr returns the string list attribute, or defaultValue if not set. It panics if it is of the wrong type.
func (op *OpDesc) StringsOr(name string, defaultValue []string) []string {
	a, found := op.getAttr(name, AttrStrings, false)
	if !found {
		return defaultValue
	}
	return slices.Clone(a.value.([]string))
}
