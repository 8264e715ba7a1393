// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package consoleui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/bureau-foundation/console/lib/collection"
	"github.com/bureau-foundation/console/lib/viewmodel"
)

// Options configures Run.
type Options struct {
	// Input and Output default to os.Stdin and os.Stdout.
	Input  io.Reader
	Output io.Writer

	// Profile overrides color detection. When nil the profile is
	// detected from Output and the environment (NO_COLOR,
	// CLICOLOR_FORCE).
	Profile *termenv.Profile

	// Theme defaults to DefaultTheme.
	Theme *Theme

	// LogLevel is the lowest level shown in the status bar.
	LogLevel slog.Level

	// AltScreen runs the program in the alternate screen buffer.
	AltScreen bool
}

// Run shows one collection until the user quits or ctx is cancelled.
// config.Logger is replaced by a status bar logger, and config.OnError
// is chained so errors also reach the status bar.
func Run(ctx context.Context, store collection.Store, config viewmodel.Config, options Options) error {
	if options.Input == nil {
		options.Input = os.Stdin
	}
	if options.Output == nil {
		options.Output = os.Stdout
	}
	theme := DefaultTheme
	if options.Theme != nil {
		theme = *options.Theme
	}

	profile := termenv.NewOutput(options.Output).EnvColorProfile()
	if options.Profile != nil {
		profile = *options.Profile
	}
	renderer := lipgloss.NewRenderer(options.Output, termenv.WithProfile(profile))
	renderer.SetColorProfile(profile)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bridge := &Bridge{}
	logHandler := NewLogHandler(options.LogLevel)
	config.Logger = slog.New(logHandler)
	if previous := config.OnError; previous != nil {
		config.OnError = func(err error) {
			previous(err)
			bridge.ReportError(err)
		}
	} else {
		config.OnError = bridge.ReportError
	}

	viewModel, err := viewmodel.New(store, bridge, config)
	if err != nil {
		return err
	}
	defer viewModel.Deactivate()

	model := NewModel(ctx, viewModel, config.Collection, config.Kind, renderer, theme)

	programOptions := []tea.ProgramOption{
		tea.WithContext(ctx),
		tea.WithInput(options.Input),
		tea.WithOutput(options.Output),
	}
	if options.AltScreen {
		programOptions = append(programOptions, tea.WithAltScreen())
	}
	program := tea.NewProgram(model, programOptions...)
	bridge.SetProgram(program)
	logHandler.SetProgram(program)

	_, err = program.Run()
	// Unblocks any render still waiting in Program.Send before
	// Deactivate takes the view model lock.
	runErr := ctx.Err()
	cancel()
	if err != nil && runErr == nil {
		return fmt.Errorf("running console: %w", err)
	}
	return nil
}
