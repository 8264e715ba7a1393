// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package consoleui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings of the console view.
type KeyMap struct {
	Up   key.Binding
	Down key.Binding

	// Selection and bulk mutation.
	Toggle  key.Binding
	Approve key.Binding
	Deny    key.Binding

	Sort    key.Binding // Cycle the sort field.
	Reverse key.Binding // Flip the current sort direction.

	NextPage key.Binding
	PrevPage key.Binding
	Grow     key.Binding // Larger pages.
	Shrink   key.Binding // Smaller pages.

	StatusFilter key.Binding // Cycle the status filter.
	TextFilter   key.Binding // Focus the text filter.
	ClearFilter  key.Binding

	Help key.Binding
	Quit key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Toggle: key.NewBinding(
		key.WithKeys(" "),
		key.WithHelp("space", "select"),
	),
	Approve: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "approve selected"),
	),
	Deny: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "deny selected"),
	),
	Sort: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "sort field"),
	),
	Reverse: key.NewBinding(
		key.WithKeys("S"),
		key.WithHelp("S", "reverse sort"),
	),
	NextPage: key.NewBinding(
		key.WithKeys("n", "right", "pgdown"),
		key.WithHelp("n", "next page"),
	),
	PrevPage: key.NewBinding(
		key.WithKeys("p", "left", "pgup"),
		key.WithHelp("p", "prev page"),
	),
	Grow: key.NewBinding(
		key.WithKeys("+", "="),
		key.WithHelp("+", "bigger pages"),
	),
	Shrink: key.NewBinding(
		key.WithKeys("-"),
		key.WithHelp("-", "smaller pages"),
	),
	StatusFilter: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("Tab", "status filter"),
	),
	TextFilter: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "search"),
	),
	ClearFilter: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("Esc", "clear filter"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "more keys"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// ShortHelp implements help.KeyMap.
func (keys KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{keys.Toggle, keys.Approve, keys.Deny, keys.StatusFilter, keys.TextFilter, keys.Help, keys.Quit}
}

// FullHelp implements help.KeyMap.
func (keys KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{keys.Up, keys.Down, keys.NextPage, keys.PrevPage},
		{keys.Toggle, keys.Approve, keys.Deny},
		{keys.Sort, keys.Reverse, keys.Grow, keys.Shrink},
		{keys.StatusFilter, keys.TextFilter, keys.ClearFilter},
		{keys.Help, keys.Quit},
	}
}
