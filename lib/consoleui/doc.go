// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package consoleui is the interactive terminal front end for one
// console collection. It renders a [viewmodel.ViewModel] with
// bubbletea: status tiles with progress bars across the top, the
// current page as a table, a filter line, and a status bar that shows
// either key help or the latest warning.
//
// The view model calls its renderer with its own mutex held, so
// [Bridge] forwards every render into the bubbletea program as a
// message, and [Model] issues every view model call from a tea.Cmd,
// never from Update itself. A render blocked on Program.Send therefore
// never waits on an Update that is waiting on the view model.
//
// Log records go to the status bar through [LogHandler] rather than
// stderr, which would tear the alternate screen.
package consoleui
