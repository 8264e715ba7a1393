// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/console/cmd/console/cli"
	"github.com/bureau-foundation/console/lib/collection/filestore"
)

type seedParams struct {
	connection
	Timeout time.Duration
}

func seedCommand(stdout, stderr io.Writer) *cli.Command {
	var params seedParams

	return &cli.Command{
		Name:    "seed",
		Summary: "Import records from a JSONC file",
		Description: `Read a JSONC file and upsert its records into a collection. The file
holds either an array of objects with an "id" member or an object
keyed by id; comments and trailing commas are allowed. Array elements
without an id get a random UUID. Records with an existing id are
replaced whole.`,
		Usage: "console seed <collection> <file.jsonc> [flags]",
		Examples: []cli.Example{
			{
				Description: "Load demo travel requests into the running service",
				Command:     "console seed travel testdata/travel.jsonc",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("seed", pflag.ContinueOnError)
			params.connection.addFlags(flagSet)
			flagSet.DurationVar(&params.Timeout, "timeout", defaultTimeout, "how long to wait for the store")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 2 {
				return cli.Validation("expected a collection name and a file, got %d arguments", len(args))
			}
			collectionName, path := args[0], args[1]

			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					return cli.NotFound("%v", err)
				}
				return cli.Internal("reading %s: %v", path, err)
			}
			records, err := filestore.Decode(data)
			if err != nil {
				return cli.Validation("parsing %s: %v", path, err)
			}
			generated := 0
			for index := range records {
				if records[index].ID == "" {
					records[index].ID = uuid.NewString()
					generated++
				}
			}

			opened, err := params.open(stderr)
			if err != nil {
				return err
			}
			defer opened.close()

			ctx, cancel := context.WithTimeout(ctx, params.Timeout)
			defer cancel()
			if err := opened.store.Upsert(ctx, collectionName, records); err != nil {
				return err
			}
			opened.logger.Info("seeded collection",
				"collection", collectionName,
				"records", len(records),
				"generated_ids", generated,
			)
			_, err = fmt.Fprintf(stdout, "%s: imported %d records (%d new ids)\n", collectionName, len(records), generated)
			return err
		},
	}
}
