// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package consoleui

import "github.com/charmbracelet/lipgloss"

// styles are the lipgloss styles derived from a theme for one
// renderer (one output and color profile).
type styles struct {
	theme    Theme
	renderer *lipgloss.Renderer

	normal   lipgloss.Style
	faint    lipgloss.Style
	header   lipgloss.Style
	help     lipgloss.Style
	selected lipgloss.Style
	marked   lipgloss.Style
	warning  lipgloss.Style
	failure  lipgloss.Style
	tile     lipgloss.Style
	barEmpty lipgloss.Style
}

func newStyles(renderer *lipgloss.Renderer, theme Theme) styles {
	return styles{
		theme:    theme,
		renderer: renderer,
		normal:   renderer.NewStyle().Foreground(theme.NormalText),
		faint:    renderer.NewStyle().Foreground(theme.FaintText),
		header:   renderer.NewStyle().Foreground(theme.HeaderForeground).Bold(true),
		help:     renderer.NewStyle().Foreground(theme.HelpText),
		selected: renderer.NewStyle().Foreground(theme.SelectedForeground).Background(theme.SelectedBackground),
		marked:   renderer.NewStyle().Foreground(theme.MarkedForeground),
		warning:  renderer.NewStyle().Foreground(theme.WarningText),
		failure:  renderer.NewStyle().Foreground(theme.ErrorText).Bold(true),
		tile: renderer.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.BorderColor).
			Padding(0, 1),
		barEmpty: renderer.NewStyle().Foreground(theme.BarEmpty),
	}
}

func (s styles) status(key string) lipgloss.Style {
	return s.renderer.NewStyle().Foreground(s.theme.StatusColor(key))
}
