// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// FieldType is the type of the values of a Field.
type FieldType int

const (
	FieldInt32 FieldType = iota
	FieldInt64
	FieldFloat32
	FieldFloat64
	FieldString
)

// String implements fmt.Stringer.
func (t FieldType) String() string {
	switch t {
	case FieldInt32:
		return "int32"
	case FieldInt64:
		return "int64"
	case FieldFloat32:
		return "float32"
	case FieldFloat64:
		return "float64"
	case FieldString:
		return "string"
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// Field is a named typed value used to create a plugin at build time.
//
// Data holds []int32, []int64, []float32, []float64 or string, matching Type.
type Field struct {
	Name string
	Type FieldType
	Data any
}

// FieldSpec declares a field a Creator accepts.
type FieldSpec struct {
	Name string
	Type FieldType
}

// Int32Field returns a FieldInt32 field.
func Int32Field(name string, values ...int32) Field {
	return Field{Name: name, Type: FieldInt32, Data: values}
}

// Int64Field returns a FieldInt64 field.
func Int64Field(name string, values ...int64) Field {
	return Field{Name: name, Type: FieldInt64, Data: values}
}

// Float32Field returns a FieldFloat32 field.
func Float32Field(name string, values ...float32) Field {
	return Field{Name: name, Type: FieldFloat32, Data: values}
}

// Float64Field returns a FieldFloat64 field.
func Float64Field(name string, values ...float64) Field {
	return Field{Name: name, Type: FieldFloat64, Data: values}
}

// StringField returns a FieldString field.
func StringField(name, value string) Field {
	return Field{Name: name, Type: FieldString, Data: value}
}

// String implements fmt.Stringer.
func (f Field) String() string {
	return fmt.Sprintf("%s:%s=%v", f.Name, f.Type, f.Data)
}

// checkData verifies that Data holds the Go type matching Type.
func (f Field) checkData() error {
	var ok bool
	switch f.Type {
	case FieldInt32:
		_, ok = f.Data.([]int32)
	case FieldInt64:
		_, ok = f.Data.([]int64)
	case FieldFloat32:
		_, ok = f.Data.([]float32)
	case FieldFloat64:
		_, ok = f.Data.([]float64)
	case FieldString:
		_, ok = f.Data.(string)
	}
	if !ok {
		return errors.Wrapf(ErrFieldType, "field %q declared as %s holds %T", f.Name, f.Type, f.Data)
	}
	return nil
}

// Fields is the collection of fields given to Creator.Create.
type Fields []Field

// Find returns the field with the given name.
func (fs Fields) Find(name string) (Field, bool) {
	for _, f := range fs {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Int32 returns the first value of the int32 field name, or defaultValue if it is not present.
// It panics if the field is present with another type or without values.
func (fs Fields) Int32(name string, defaultValue int32) int32 {
	return firstValue(fs, name, defaultValue)
}

// Int64 returns the first value of the int64 field name, or defaultValue if it is not present.
func (fs Fields) Int64(name string, defaultValue int64) int64 {
	return firstValue(fs, name, defaultValue)
}

// Float32 returns the first value of the float32 field name, or defaultValue if it is not present.
func (fs Fields) Float32(name string, defaultValue float32) float32 {
	return firstValue(fs, name, defaultValue)
}

// Float64 returns the first value of the float64 field name, or defaultValue if it is not present.
func (fs Fields) Float64(name string, defaultValue float64) float64 {
	return firstValue(fs, name, defaultValue)
}

// StringValue returns the value of the string field name, or defaultValue if it is not present.
func (fs Fields) StringValue(name string, defaultValue string) string {
	f, found := fs.Find(name)
	if !found {
		return defaultValue
	}
	value, ok := f.Data.(string)
	if !ok {
		exceptions.Panicf("plugin field %q is a %s, not a string", name, f.Type)
	}
	return value
}

func firstValue[T any](fs Fields, name string, defaultValue T) T {
	f, found := fs.Find(name)
	if !found {
		return defaultValue
	}
	values, ok := f.Data.([]T)
	if !ok {
		exceptions.Panicf("plugin field %q holds %T, wanted []%T", name, f.Data, defaultValue)
	}
	if len(values) == 0 {
		exceptions.Panicf("plugin field %q has no values", name)
	}
	return values[0]
}
