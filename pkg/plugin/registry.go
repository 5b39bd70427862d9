// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"fmt"

	"github.com/gomlx/accelconv/pkg/plugin/wire"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Creator (re)constructs kernels of one plugin type and version.
//
// Create and Deserialize may either return an error or panic: the Registry converts both to errors.
type Creator interface {
	// Name is the plugin type name created, it must match Kernel.Type.
	Name() string

	// Version of the plugin type created, it must match Kernel.Version.
	Version() string

	// Fields lists the fields accepted by Create. Any other field name is rejected.
	Fields() []FieldSpec

	// Create builds a new kernel from the given fields. Fields not given take their default values.
	Create(fields Fields) (Kernel, error)

	// Deserialize reconstructs a kernel from the bytes written by Kernel.Serialize.
	Deserialize(r *wire.Reader) (Kernel, error)
}

// Key identifies a plugin type and version.
type Key struct {
	Name, Version string
}

// String implements fmt.Stringer.
func (k Key) String() string { return fmt.Sprintf("%s/v%s", k.Name, k.Version) }

// Registry maps plugin (type, version) to its Creator.
//
// It is populated once before use, and is read-only afterward, so it can be shared by concurrent builds
// and engine loads.
type Registry struct {
	creators map[Key]Creator
	order    []Key
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{creators: make(map[Key]Creator)}
}

// Register creator under its (Name, Version). Registering the same pair twice returns
// ErrDuplicateCreator.
func (r *Registry) Register(creator Creator) error {
	key := Key{creator.Name(), creator.Version()}
	if _, found := r.creators[key]; found {
		return errors.Wrapf(ErrDuplicateCreator, "plugin %s", key)
	}
	r.creators[key] = creator
	r.order = append(r.order, key)
	klog.V(2).Infof("registered plugin creator %s", key)
	return nil
}

// MustRegister is like Register, but panics on error.
func (r *Registry) MustRegister(creator Creator) {
	if err := r.Register(creator); err != nil {
		panic(err)
	}
}

// Lookup returns the creator registered for the exact (name, version) pair.
func (r *Registry) Lookup(name, version string) (Creator, bool) {
	creator, found := r.creators[Key{name, version}]
	return creator, found
}

// Keys returns the registered keys in registration order.
func (r *Registry) Keys() []Key {
	return append([]Key(nil), r.order...)
}

func (r *Registry) lookup(name, version string) (Creator, error) {
	creator, found := r.Lookup(name, version)
	if !found {
		return nil, errors.Wrapf(ErrUnknownCreator, "plugin %s", Key{name, version})
	}
	return creator, nil
}

// Create builds a new plugin instance, in StateConstructed, from named typed fields.
//
// Field names not declared by the creator fail with ErrUnknownField, and fields with the wrong type
// fail with ErrFieldType.
func (r *Registry) Create(name, version string, fields Fields) (*Instance, error) {
	creator, err := r.lookup(name, version)
	if err != nil {
		return nil, err
	}
	specs := creator.Fields()
	for _, field := range fields {
		var spec *FieldSpec
		for ii := range specs {
			if specs[ii].Name == field.Name {
				spec = &specs[ii]
				break
			}
		}
		if spec == nil {
			return nil, errors.Wrapf(ErrUnknownField, "field %q when creating plugin %s", field.Name, Key{name, version})
		}
		if field.Type != spec.Type {
			return nil, errors.Wrapf(ErrFieldType, "field %q of plugin %s is a %s, got %s",
				field.Name, Key{name, version}, spec.Type, field.Type)
		}
		if err := field.checkData(); err != nil {
			return nil, err
		}
	}
	var kernel Kernel
	err = exceptions.TryCatch[error](func() {
		var createErr error
		kernel, createErr = creator.Create(fields)
		if createErr != nil {
			panic(createErr)
		}
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "creating plugin %s", Key{name, version})
	}
	if err := checkKernelKey(kernel, name, version); err != nil {
		return nil, err
	}
	return NewInstance(kernel, StateConstructed), nil
}

// Deserialize reconstructs a plugin instance, in StateDeserialized, purely from its serialized bytes.
//
// All bytes must be consumed by the creator.
func (r *Registry) Deserialize(name, version string, data []byte) (*Instance, error) {
	creator, err := r.lookup(name, version)
	if err != nil {
		return nil, err
	}
	reader := wire.NewReader(data)
	var kernel Kernel
	err = exceptions.TryCatch[error](func() {
		var deserializeErr error
		kernel, deserializeErr = creator.Deserialize(reader)
		if deserializeErr != nil {
			panic(deserializeErr)
		}
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "deserializing plugin %s from %d bytes", Key{name, version}, len(data))
	}
	if reader.Remaining() != 0 {
		return nil, errors.Errorf("deserializing plugin %s: %d trailing bytes after reading %d",
			Key{name, version}, reader.Remaining(), reader.Offset())
	}
	if err := checkKernelKey(kernel, name, version); err != nil {
		return nil, err
	}
	return NewInstance(kernel, StateDeserialized), nil
}

func checkKernelKey(kernel Kernel, name, version string) error {
	if kernel == nil {
		return errors.Errorf("creator of plugin %s returned a nil kernel", Key{name, version})
	}
	if kernel.Type() != name || kernel.Version() != version {
		return errors.Errorf("creator of plugin %s returned a kernel of %s",
			Key{name, version}, Key{kernel.Type(), kernel.Version()})
	}
	return nil
}
