// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/console/cmd/console/cli"
	"github.com/bureau-foundation/console/lib/consoleui"
)

type watchParams struct {
	connection
	Actor       string
	NoAltScreen bool
}

func watchCommand() *cli.Command {
	var params watchParams

	return &cli.Command{
		Name:    "watch",
		Summary: "Browse a collection live in the terminal",
		Description: `Open an interactive view of a collection that updates as the store
changes: status tiles, a filterable, sortable, paged table, and bulk
approve or deny of marked rows. Press ? inside the view for every key.

Log records appear in the status bar instead of on stderr.`,
		Usage: "console watch <collection> [flags]",
		Examples: []cli.Example{
			{
				Description: "Review travel requests from the running service",
				Command:     "console watch travel",
			},
			{
				Description: "Work on local JSONC files without a service",
				Command:     "console watch travel --store-dir ./collections",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("watch", pflag.ContinueOnError)
			params.connection.addFlags(flagSet)
			flagSet.StringVar(&params.Actor, "actor", "", "recorded as updatedBy on approve and deny (default: console.actor)")
			flagSet.BoolVar(&params.NoAltScreen, "no-alt-screen", false, "draw inline instead of in the alternate screen")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Validation("expected exactly one collection name, got %d arguments", len(args))
			}
			if !cli.IsTerminal(os.Stdout) {
				return cli.Validation("watch needs a terminal; use list or stats for scripted output")
			}
			// The terminal belongs to the view.
			opened, err := params.open(io.Discard)
			if err != nil {
				return err
			}
			defer opened.close()

			viewConfig, err := opened.viewConfig(args[0])
			if err != nil {
				return err
			}
			if params.Actor != "" {
				viewConfig.Actor = params.Actor
			}

			var level slog.Level
			if err := level.UnmarshalText([]byte(params.LogLevel)); err != nil {
				return cli.Validation("--log-level: %v", err)
			}
			return consoleui.Run(ctx, opened.store, viewConfig, consoleui.Options{
				LogLevel:  level,
				AltScreen: !params.NoAltScreen,
			})
		},
	}
}
