// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/console/cmd/console/cli"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		// The category picks the exit code, so scripts can tell bad
		// input from an unreachable service.
		toolError := cli.Classify(err)
		fmt.Fprintf(os.Stderr, "error: %v\n", toolError)
		os.Exit(toolError.Category.ExitCode())
	}
}

func run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCommand(os.Stdout, os.Stderr).Execute(ctx, args)
}
