// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/console/cmd/console/cli"
	"github.com/bureau-foundation/console/lib/clock"
	"github.com/bureau-foundation/console/lib/entity"
	"github.com/bureau-foundation/console/lib/viewmodel"
)

type mutateParams struct {
	connection
	Actor   string
	Status  string
	JSON    bool
	Timeout time.Duration
}

// mutateResult is the JSON form of an applied batch.
type mutateResult struct {
	Collection string   `json:"collection"`
	Status     string   `json:"status"`
	Actor      string   `json:"actor"`
	IDs        []string `json:"ids"`
}

func (p *mutateParams) addFlags(flagSet *pflag.FlagSet) {
	p.connection.addFlags(flagSet)
	flagSet.StringVar(&p.Actor, "actor", "", "recorded as updatedBy (default: console.actor)")
	flagSet.BoolVar(&p.JSON, "json", false, "print the applied batch as JSON")
	flagSet.DurationVar(&p.Timeout, "timeout", defaultTimeout, "how long to wait for the store")
}

// statusCommand builds approve, deny, and cancel: the same batch write
// with a fixed target status.
func statusCommand(stdout, stderr io.Writer, name, status, summary string) *cli.Command {
	var params mutateParams

	return &cli.Command{
		Name:    name,
		Summary: summary,
		Description: fmt.Sprintf(`Set every listed entity to %q as one atomic batch, recording the
actor and time. If any id is missing from the collection nothing is
written.`, status),
		Usage: fmt.Sprintf("console %s <collection> <id>... [flags]", name),
		Examples: []cli.Example{
			{
				Description: fmt.Sprintf("Set two travel requests to %s", status),
				Command:     fmt.Sprintf("console %s travel tr-1042 tr-1043", name),
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
			params.addFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			return params.apply(ctx, stdout, stderr, name, status, args)
		},
	}
}

func bulkCommand(stdout, stderr io.Writer) *cli.Command {
	var params mutateParams

	return &cli.Command{
		Name:    "bulk",
		Summary: "Set any valid status on a batch of entities",
		Description: `Set every listed entity to --status as one atomic batch. The status
must belong to the collection's kind; "console list --help" shows how
to inspect a collection first.`,
		Usage: "console bulk <collection> --status STATUS <id>... [flags]",
		Examples: []cli.Example{
			{
				Description: "Mark IT tickets in progress",
				Command:     "console bulk it --status in_progress it-7 it-9",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("bulk", pflag.ContinueOnError)
			params.addFlags(flagSet)
			flagSet.StringVar(&params.Status, "status", "", "target status (required)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if params.Status == "" {
				return cli.Validation("--status is required")
			}
			return params.apply(ctx, stdout, stderr, "bulk", params.Status, args)
		},
	}
}

func (p *mutateParams) apply(ctx context.Context, stdout, stderr io.Writer, command, status string, args []string) error {
	if len(args) < 2 {
		return cli.Validation("expected a collection name and at least one id")
	}
	collectionName, ids := args[0], args[1:]

	opened, err := p.open(stderr)
	if err != nil {
		return err
	}
	defer opened.close()

	viewConfig, err := opened.viewConfig(collectionName)
	if err != nil {
		return err
	}
	status = strings.ToLower(strings.TrimSpace(status))
	actor := p.Actor
	if actor == "" {
		actor = viewConfig.Actor
	}
	if !viewConfig.Kind.Spec().HasStatus(status) {
		return cli.Validation("status %q is not valid for %s entities", status, viewConfig.Kind).
			WithHint("Valid statuses: " + joinStatuses(viewConfig.Kind) + ".")
	}

	logger := opened.logger.With("command", command, "collection", collectionName)
	executor := viewmodel.NewBulkExecutor(opened.store, collectionName, viewConfig.Kind, clock.Real(), logger)

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	if err := executor.BulkUpdate(ctx, ids, status, actor); err != nil {
		return err
	}

	if p.JSON {
		return cli.WriteJSON(stdout, mutateResult{Collection: collectionName, Status: status, Actor: actor, IDs: ids})
	}
	_, err = fmt.Fprintf(stdout, "%s: %d set to %s by %s\n", collectionName, len(ids), status, actor)
	return err
}

func joinStatuses(kind entity.Kind) string {
	return strings.Join(kind.Spec().Statuses, ", ")
}
