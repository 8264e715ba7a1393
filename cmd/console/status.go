// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/console/cmd/console/cli"
	"github.com/bureau-foundation/console/lib/service"
)

type statusParams struct {
	connection
	JSON    bool
	Timeout time.Duration
}

// serviceStatus mirrors the console service's "status" response.
type serviceStatus struct {
	UptimeSeconds float64            `cbor:"uptime_seconds" json:"uptime_seconds"`
	Version       string             `cbor:"version"        json:"version"`
	Backend       string             `cbor:"backend"        json:"backend"`
	Collections   []servedCollection `cbor:"collections"    json:"collections"`
}

type servedCollection struct {
	Name    string `cbor:"name"           json:"name"`
	Kind    string `cbor:"kind,omitempty" json:"kind,omitempty"`
	Records int    `cbor:"records"        json:"records"`
}

func serviceStatusCommand(stdout, stderr io.Writer) *cli.Command {
	var params statusParams

	return &cli.Command{
		Name:    "status",
		Summary: "Show the console service's health and collections",
		Description: `Ask the console service for its version, uptime, store backend, and
the record count of every served collection.`,
		Usage: "console status [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			params.connection.addFlags(flagSet)
			flagSet.BoolVar(&params.JSON, "json", false, "print JSON instead of a table")
			flagSet.DurationVar(&params.Timeout, "timeout", defaultTimeout, "how long to wait for the service")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return cli.Validation("status takes no arguments")
			}
			if params.StoreDir != "" {
				return cli.Validation("status queries the console service; --store-dir does not apply")
			}
			opened, err := params.open(stderr)
			if err != nil {
				return err
			}
			defer opened.close()

			ctx, cancel := context.WithTimeout(ctx, params.Timeout)
			defer cancel()
			var status serviceStatus
			client := service.NewServiceClient(opened.config.Paths.Socket)
			if err := client.Call(ctx, "status", nil, &status); err != nil {
				return err
			}

			if params.JSON {
				return cli.WriteJSON(stdout, status)
			}
			uptime := (time.Duration(status.UptimeSeconds) * time.Second).String()
			fmt.Fprintf(stdout, "console-service %s, up %s, %s backend\n", status.Version, uptime, status.Backend)
			writer := tabwriter.NewWriter(stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintln(writer, "COLLECTION\tKIND\tRECORDS")
			for _, served := range status.Collections {
				fmt.Fprintf(writer, "%s\t%s\t%d\n", served.Name, served.Kind, served.Records)
			}
			return writer.Flush()
		},
	}
}
