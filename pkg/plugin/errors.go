// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package plugin

import "github.com/pkg/errors"

var (
	// ErrDuplicateCreator is returned when registering a (type, version) pair twice.
	ErrDuplicateCreator = errors.New("plugin creator already registered")

	// ErrUnknownCreator is returned when no creator is registered for a (type, version) pair.
	ErrUnknownCreator = errors.New("no plugin creator registered")

	// ErrUnknownField is returned when creating a plugin with a field its creator doesn't declare.
	ErrUnknownField = errors.New("unknown plugin field")

	// ErrFieldType is returned when a field has a different type than declared by its creator.
	ErrFieldType = errors.New("plugin field has wrong type")

	// ErrNotConfigured is returned when initializing a plugin that was never configured.
	ErrNotConfigured = errors.New("plugin not configured")

	// ErrNotInitialized is returned when executing a plugin that is not initialized.
	ErrNotInitialized = errors.New("plugin not initialized")
)
