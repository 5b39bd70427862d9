// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/accelconv/pkg/support/sets"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	rowStyles = [2]lipgloss.Style{
		lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1),
		lipgloss.NewStyle().Faint(true).PaddingLeft(1).PaddingRight(1),
	}
	flaggedRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).
			Bold(true).
			PaddingLeft(1).PaddingRight(1)
)

// table renders rows with alternating faint rows, and highlights flagged rows: plugins not initialized,
// outputs with non-finite values.
type table struct {
	lg      *lgtable.Table
	numRows int
	flagged sets.Set[int]
}

// newTable creates a table. The alignments apply to the columns in order, the last one to any
// remaining column.
func newTable(alignments ...lipgloss.Position) *table {
	t := &table{flagged: sets.Make[int]()}
	t.lg = lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerRowStyle
			}
			s := rowStyles[row%2]
			if t.flagged.Has(row) {
				s = flaggedRowStyle
			}
			return s.Align(columnAlignment(alignments, col))
		})
	return t
}

func columnAlignment(alignments []lipgloss.Position, col int) lipgloss.Position {
	switch {
	case len(alignments) == 0:
		return lipgloss.Left
	case col < len(alignments):
		return alignments[col]
	default:
		return alignments[len(alignments)-1]
	}
}

// Headers sets the column names.
func (t *table) Headers(headers ...string) *table {
	t.lg.Headers(headers...)
	return t
}

// Row appends a row of cells.
func (t *table) Row(cells ...string) {
	t.lg.Row(cells...)
	t.numRows++
}

// FlaggedRow appends a row, highlighted if flagged.
func (t *table) FlaggedRow(flagged bool, cells ...string) {
	if flagged {
		t.flagged.Insert(t.numRows)
	}
	t.Row(cells...)
}

// KeyValue appends a row with a name and a formatted value.
func (t *table) KeyValue(key string, format string, args ...any) {
	t.Row(key, fmt.Sprintf(format, args...))
}

// Print prints the table under the given title.
func (t *table) Print(title string) {
	fmt.Println(titleStyle.Render(title))
	fmt.Println(t.lg.Render())
}
