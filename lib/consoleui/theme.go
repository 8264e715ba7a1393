// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package consoleui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/console/lib/entity"
)

// Theme defines the console's color palette. All colors are ANSI
// 256-color codes; lipgloss degrades them for smaller profiles.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Cursor row.
	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	// Rows chosen for a bulk mutation.
	MarkedForeground lipgloss.Color

	// Status colors. Kind-specific statuses share the nearest one:
	// in-flight states use StatusActive, finished ones StatusDone.
	StatusPending   lipgloss.Color
	StatusApproved  lipgloss.Color
	StatusDenied    lipgloss.Color
	StatusCancelled lipgloss.Color
	StatusActive    lipgloss.Color
	StatusDone      lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color
	BarEmpty         lipgloss.Color

	WarningText lipgloss.Color
	ErrorText   lipgloss.Color
}

// StatusColor returns the color for a canonical status key, or
// FaintText for one it does not know.
func (theme Theme) StatusColor(status string) lipgloss.Color {
	switch status {
	case entity.StatusPending, entity.StatusOpen:
		return theme.StatusPending
	case entity.StatusApproved:
		return theme.StatusApproved
	case entity.StatusDenied:
		return theme.StatusDenied
	case entity.StatusCancelled, entity.StatusInactive:
		return theme.StatusCancelled
	case entity.StatusInProgress, entity.StatusActive:
		return theme.StatusActive
	case entity.StatusCompleted, entity.StatusResolved, entity.StatusClosed:
		return theme.StatusDone
	default:
		return theme.FaintText
	}
}

// DefaultTheme is the built-in scheme for dark 256-color terminals.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),
	MarkedForeground:   lipgloss.Color("117"),

	StatusPending:   lipgloss.Color("220"), // amber
	StatusApproved:  lipgloss.Color("114"), // green
	StatusDenied:    lipgloss.Color("196"), // red
	StatusCancelled: lipgloss.Color("245"), // gray
	StatusActive:    lipgloss.Color("75"),  // blue
	StatusDone:      lipgloss.Color("141"), // light purple

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),
	BarEmpty:         lipgloss.Color("238"),

	WarningText: lipgloss.Color("214"),
	ErrorText:   lipgloss.Color("203"),
}
