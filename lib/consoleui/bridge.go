// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package consoleui

import (
	"slices"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bureau-foundation/console/lib/entity"
	"github.com/bureau-foundation/console/lib/viewmodel"
)

// pageMsg carries one PageReady call into the program.
type pageMsg struct {
	Page []entity.Entity
	Meta viewmodel.PageMeta
}

// statsMsg carries one StatsReady call into the program.
type statsMsg struct {
	Stats viewmodel.Stats
}

// errorMsg reports a subscription or mutation failure.
type errorMsg struct {
	Err error
}

// Bridge is a [viewmodel.Renderer] that forwards renders into a
// bubbletea program. Renders before SetProgram are dropped; the view
// model renders again on the next snapshot or user action.
type Bridge struct {
	program atomic.Pointer[tea.Program]
}

var _ viewmodel.Renderer = (*Bridge)(nil)

// SetProgram sets the receiving program.
func (bridge *Bridge) SetProgram(program *tea.Program) {
	bridge.program.Store(program)
}

// PageReady implements viewmodel.Renderer.
func (bridge *Bridge) PageReady(page []entity.Entity, meta viewmodel.PageMeta) {
	bridge.send(pageMsg{Page: slices.Clone(page), Meta: meta})
}

// StatsReady implements viewmodel.Renderer.
func (bridge *Bridge) StatsReady(stats viewmodel.Stats) {
	bridge.send(statsMsg{Stats: stats})
}

// ReportError forwards err to the status bar. Suitable as
// viewmodel.Config.OnError.
func (bridge *Bridge) ReportError(err error) {
	bridge.send(errorMsg{Err: err})
}

func (bridge *Bridge) send(message tea.Msg) {
	if program := bridge.program.Load(); program != nil {
		program.Send(message)
	}
}
