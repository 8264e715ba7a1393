// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package consoleui

import (
	"slices"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/console/lib/entity"
)

// Column is one table column.
type Column struct {
	Title string
	Field string
	Width int
}

// submittedLayout is the table form of SubmittedAt: minute precision
// fits the column and is what reviewers scan by.
const submittedLayout = "2006-01-02 15:04"

// maxSearchColumns limits how many of a kind's search fields become
// columns.
const maxSearchColumns = 3

// Columns returns the table layout for kind: id, status, and
// submission time, then the leading search fields, then the category
// field when it is not already shown.
func Columns(kind entity.Kind) []Column {
	spec := kind.Spec()
	columns := []Column{
		{Title: "ID", Field: entity.FieldID, Width: 12},
		{Title: "STATUS", Field: entity.FieldStatus, Width: 12},
		{Title: "SUBMITTED", Field: entity.FieldSubmittedAt, Width: len(submittedLayout)},
	}
	fields := spec.SearchFields[:min(maxSearchColumns, len(spec.SearchFields))]
	for _, field := range fields {
		columns = append(columns, Column{Title: title(field), Field: field, Width: 20})
	}
	if spec.CategoryField != "" && !slices.Contains(fields, spec.CategoryField) {
		columns = append(columns, Column{Title: title(spec.CategoryField), Field: spec.CategoryField, Width: 14})
	}
	return columns
}

// SortFields lists the fields the sort key cycles through, in column
// order.
func SortFields(kind entity.Kind) []string {
	columns := Columns(kind)
	fields := make([]string, len(columns))
	for index, column := range columns {
		fields[index] = column.Field
	}
	return fields
}

// CellText is the unstyled text of one cell.
func CellText(candidate entity.Entity, column Column) string {
	if column.Field == entity.FieldSubmittedAt {
		return candidate.SubmittedAt.Format(submittedLayout)
	}
	text := candidate.Text(column.Field)
	// Multi-line values would break the row grid.
	return strings.Join(strings.Fields(text), " ")
}

// Fit truncates text to width display cells, marking the cut with an
// ellipsis, and pads it with spaces to exactly width. ANSI styling in
// text is preserved and not counted.
func Fit(text string, width int) string {
	if width <= 0 {
		return ""
	}
	text = ansi.Truncate(text, width, "…")
	if pad := width - ansi.StringWidth(text); pad > 0 {
		text += strings.Repeat(" ", pad)
	}
	return text
}

// title turns a camelCase field name into a column header.
func title(field string) string {
	var builder strings.Builder
	for index, r := range field {
		if index > 0 && r >= 'A' && r <= 'Z' {
			builder.WriteByte(' ')
		}
		builder.WriteRune(r)
	}
	return strings.ToUpper(builder.String())
}
