// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package consoleui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bureau-foundation/console/lib/collection"
	"github.com/bureau-foundation/console/lib/entity"
	"github.com/bureau-foundation/console/lib/viewmodel"
)

// markerWidth is the width of the "[x] " selection gutter.
const markerWidth = 4

// columnGap separates adjacent columns.
const columnGap = "  "

// fitColumns shrinks the widest free-text columns until the row fits
// width. The id, status, and submitted columns keep their size.
func fitColumns(columns []Column, width int) []Column {
	fitted := slices.Clone(columns)
	if width <= 0 {
		return fitted
	}
	total := func() int {
		sum := markerWidth
		for _, column := range fitted {
			sum += column.Width + len(columnGap)
		}
		return sum
	}
	for total() > width {
		widest := -1
		for index := 3; index < len(fitted); index++ {
			if fitted[index].Width > 6 && (widest < 0 || fitted[index].Width > fitted[widest].Width) {
				widest = index
			}
		}
		if widest < 0 {
			break
		}
		fitted[widest].Width--
	}
	return fitted
}

// renderTable draws the header, one line per entity on the page, and
// the position footer. cursor indexes page; -1 hides the cursor.
func renderTable(s styles, columns []Column, page []entity.Entity, meta viewmodel.PageMeta, cursor int) string {
	var builder strings.Builder

	header := strings.Repeat(" ", markerWidth)
	for _, column := range columns {
		label := column.Title
		if meta.Sort.Field == column.Field {
			label += sortArrow(meta.Sort.Direction)
		}
		header += Fit(label, column.Width) + columnGap
	}
	builder.WriteString(s.header.Render(strings.TrimRight(header, " ")))
	builder.WriteByte('\n')

	if len(page) == 0 {
		message := "no entities"
		if !meta.Criteria.IsZero() {
			message = "no entities match the filter"
		}
		builder.WriteString(s.faint.Render(strings.Repeat(" ", markerWidth) + message))
		builder.WriteByte('\n')
	}

	for index, candidate := range page {
		marked := slices.Contains(meta.Selection, candidate.ID)
		marker := "[ ] "
		if marked {
			marker = "[x] "
		}
		cells := make([]string, len(columns))
		for columnIndex, column := range columns {
			cells[columnIndex] = Fit(CellText(candidate, column), column.Width)
		}

		var line string
		switch {
		case index == cursor:
			line = s.selected.Render(marker + strings.Join(cells, columnGap))
		default:
			for columnIndex, column := range columns {
				if column.Field == entity.FieldStatus {
					cells[columnIndex] = s.status(candidate.StatusKey).Render(cells[columnIndex])
				}
			}
			rowStyle := s.normal
			if marked {
				rowStyle = s.marked
			}
			line = rowStyle.Render(marker) + strings.Join(cells, columnGap)
		}
		builder.WriteString(line)
		builder.WriteByte('\n')
	}

	builder.WriteString(s.faint.Render(footer(meta)))
	return builder.String()
}

// footer summarizes position, sort, filter, and selection.
func footer(meta viewmodel.PageMeta) string {
	parts := []string{fmt.Sprintf("page %d/%d", meta.CurrentPage, meta.TotalPages)}
	if meta.TotalItems == 0 {
		parts = append(parts, "0 items")
	} else {
		parts = append(parts, fmt.Sprintf("items %d-%d of %d", meta.StartIndex, meta.EndIndex, meta.TotalItems))
	}
	parts = append(parts, fmt.Sprintf("%d per page", meta.PageSize))
	if meta.Sort.Field != "" {
		parts = append(parts, fmt.Sprintf("sort %s %s", meta.Sort.Field, meta.Sort.Direction))
	}
	if len(meta.Selection) > 0 {
		parts = append(parts, fmt.Sprintf("%d selected", len(meta.Selection)))
	}
	return strings.Join(parts, " · ")
}

// describeCriteria renders the active filter for the filter line.
func describeCriteria(criteria viewmodel.Criteria) string {
	var parts []string
	if text := strings.TrimSpace(criteria.Text); text != "" {
		parts = append(parts, fmt.Sprintf("text %q", text))
	}
	if criteria.StatusKey != "" {
		parts = append(parts, "status "+criteria.StatusKey)
	}
	if criteria.Category != "" {
		parts = append(parts, "category "+criteria.Category)
	}
	if criteria.DateRange != nil {
		from, to := "…", "…"
		if !criteria.DateRange.From.IsZero() {
			from = criteria.DateRange.From.Format("2006-01-02")
		}
		if !criteria.DateRange.To.IsZero() {
			to = criteria.DateRange.To.Format("2006-01-02")
		}
		parts = append(parts, fmt.Sprintf("submitted %s to %s", from, to))
	}
	if len(parts) == 0 {
		return "no filter"
	}
	return strings.Join(parts, ", ")
}

func sortArrow(direction collection.Direction) string {
	if direction == collection.Descending {
		return " ↓"
	}
	return " ↑"
}
