// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package consoleui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/console/lib/viewmodel"
)

// tileInnerWidth is the content width of one stat tile.
const tileInnerWidth = 16

// renderTiles draws one tile per status plus a total tile, wrapping
// onto further rows when they exceed width.
func renderTiles(s styles, stats viewmodel.Stats, width int) string {
	tiles := make([]string, 0, len(stats.Statuses)+1)
	tiles = append(tiles, s.tile.Render(lipgloss.JoinVertical(lipgloss.Left,
		s.header.Render("TOTAL"),
		s.normal.Render(fmt.Sprintf("%d", stats.Total)),
		strings.Repeat(" ", tileInnerWidth),
	)))
	for _, status := range stats.Statuses {
		tiles = append(tiles, s.tile.Render(lipgloss.JoinVertical(lipgloss.Left,
			s.status(status).Bold(true).Render(strings.ToUpper(strings.ReplaceAll(status, "_", " "))),
			s.normal.Render(fmt.Sprintf("%d  %d%%", stats.Counts[status], stats.Percentages[status])),
			progressBar(s, status, stats.Percentages[status], tileInnerWidth),
		)))
	}

	if width <= 0 {
		return lipgloss.JoinHorizontal(lipgloss.Top, tiles...)
	}
	var rows []string
	var row []string
	rowWidth := 0
	for _, tile := range tiles {
		tileWidth := ansi.StringWidth(strings.SplitN(tile, "\n", 2)[0])
		if len(row) > 0 && rowWidth+tileWidth > width {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row, rowWidth = nil, 0
		}
		row = append(row, tile)
		rowWidth += tileWidth
	}
	if len(row) > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// progressBar draws percent (0-100) as a bar of width cells.
func progressBar(s styles, status string, percent, width int) string {
	percent = max(0, min(100, percent))
	filled := (percent*width + 50) / 100
	return s.status(status).Render(strings.Repeat("█", filled)) +
		s.barEmpty.Render(strings.Repeat("░", width-filled))
}
