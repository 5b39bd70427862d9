// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	table := newTable(lipgloss.Right, lipgloss.Left).Headers("name", "state")
	table.FlaggedRow(true, "swish_plugin_0", "Terminated")
	table.FlaggedRow(false, "stack_plugin_1", "Initialized")
	table.KeyValue("workspace", "%d bytes", 16)
	require.Equal(t, 3, table.numRows)
	assert.True(t, table.flagged.Has(0))
	assert.False(t, table.flagged.Has(1))

	rendered := table.lg.Render()
	for _, cell := range []string{"name", "swish_plugin_0", "Initialized", "16 bytes"} {
		assert.Contains(t, rendered, cell)
	}

	assert.Equal(t, lipgloss.Left, columnAlignment(nil, 3))
	assert.Equal(t, lipgloss.Left, columnAlignment([]lipgloss.Position{lipgloss.Right, lipgloss.Left}, 5))
	assert.Equal(t, lipgloss.Right, columnAlignment([]lipgloss.Position{lipgloss.Right, lipgloss.Left}, 0))
}
