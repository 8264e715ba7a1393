// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/bureau-foundation/console/cmd/console/cli"
	"github.com/bureau-foundation/console/lib/entity"
	"github.com/bureau-foundation/console/lib/version"
)

// rootCommand builds the command tree. Command output goes to stdout;
// help and logs go to stderr.
func rootCommand(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "console",
		Summary: "Review and act on live operational collections",
		Description: `console shows request collections (travel, IT, vehicle, document,
client records) with live counts, filters, sorting, paging, and
atomic bulk status changes.

Commands talk to console-service over its socket, or with --store-dir
read and write JSONC collection files directly.`,
		Usage:  "console <command> [flags]",
		Stderr: stderr,
		Subcommands: []*cli.Command{
			watchCommand(),
			listCommand(stdout, stderr),
			statsCommand(stdout, stderr),
			statusCommand(stdout, stderr, "approve", entity.StatusApproved, "Approve entities"),
			statusCommand(stdout, stderr, "deny", entity.StatusDenied, "Deny entities"),
			statusCommand(stdout, stderr, "cancel", entity.StatusCancelled, "Cancel entities"),
			bulkCommand(stdout, stderr),
			seedCommand(stdout, stderr),
			serviceStatusCommand(stdout, stderr),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(ctx context.Context, args []string) error {
					_, err := fmt.Fprintf(stdout, "console %s\n", version.Info())
					return err
				},
			},
		},
	}
}
