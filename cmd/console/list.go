// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/console/cmd/console/cli"
	"github.com/bureau-foundation/console/lib/collection"
	"github.com/bureau-foundation/console/lib/consoleui"
	"github.com/bureau-foundation/console/lib/entity"
	"github.com/bureau-foundation/console/lib/viewmodel"
)

// --- list ---

type listParams struct {
	connection
	Text     string
	Status   string
	Category string
	From     string
	To       string
	Sort     string
	Desc     bool
	Page     int
	PageSize int
	JSON     bool
	Timeout  time.Duration
}

// listEntry is the JSON form of one listed entity.
type listEntry struct {
	ID          string         `json:"id"`
	Status      string         `json:"status"`
	RawStatus   string         `json:"raw_status,omitempty"`
	SubmittedAt time.Time      `json:"submitted_at"`
	Fields      map[string]any `json:"fields"`
}

// listOutput is the JSON form of one page.
type listOutput struct {
	Collection string      `json:"collection"`
	Kind       string      `json:"kind"`
	Page       int         `json:"page"`
	TotalPages int         `json:"total_pages"`
	PageSize   int         `json:"page_size"`
	TotalItems int         `json:"total_items"`
	StartIndex int         `json:"start_index"`
	EndIndex   int         `json:"end_index"`
	SortField  string      `json:"sort_field,omitempty"`
	SortOrder  string      `json:"sort_direction,omitempty"`
	Entities   []listEntry `json:"entities"`
}

func listCommand(stdout, stderr io.Writer) *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Summary: "Print one page of a collection",
		Description: `Take one snapshot of a collection and print a page of it, after
applying the filter and sort. Every filter flag narrows the result
(AND); text matches any of the kind's search fields, case-insensitively.

--from and --to accept a date (2026-03-01) or an RFC 3339 time. A bare
--to date includes the whole day. A status or category the kind does
not have lists an empty page and prints a warning on stderr.`,
		Usage: "console list <collection> [flags]",
		Examples: []cli.Example{
			{
				Description: "Pending travel requests mentioning Lisbon",
				Command:     "console list travel --status pending --text lisbon",
			},
			{
				Description: "Newest first, second page of 20, as JSON",
				Command:     "console list travel --sort submittedAt --desc --page 2 --page-size 20 --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			params.connection.addFlags(flagSet)
			flagSet.StringVar(&params.Text, "text", "", "substring to match in the search fields")
			flagSet.StringVar(&params.Status, "status", "", "only this status")
			flagSet.StringVar(&params.Category, "category", "", "only this category")
			flagSet.StringVar(&params.From, "from", "", "submitted at or after this date")
			flagSet.StringVar(&params.To, "to", "", "submitted at or before this date")
			flagSet.StringVar(&params.Sort, "sort", "", "sort field (default: console.sort_field)")
			flagSet.BoolVar(&params.Desc, "desc", false, "sort descending")
			flagSet.IntVar(&params.Page, "page", 1, "page number (clamped into range)")
			flagSet.IntVar(&params.PageSize, "page-size", 0, "entities per page (default: console.page_size)")
			flagSet.BoolVar(&params.JSON, "json", false, "print JSON instead of a table")
			flagSet.DurationVar(&params.Timeout, "timeout", defaultTimeout, "how long to wait for the snapshot")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Validation("expected exactly one collection name, got %d arguments", len(args))
			}
			criteria, err := params.criteria()
			if err != nil {
				return err
			}

			opened, err := params.open(stderr)
			if err != nil {
				return err
			}
			defer opened.close()

			viewConfig, err := opened.viewConfig(args[0])
			if err != nil {
				return err
			}
			// Criteria the kind cannot match still list (an empty page);
			// the reason goes to stderr.
			if _, err := viewmodel.Filter(viewConfig.Kind, nil, criteria); err != nil {
				fmt.Fprintf(stderr, "warning: %v\n", err)
				if hint := filterHint(viewConfig.Kind, err); hint != "" {
					fmt.Fprintf(stderr, "hint: %s\n", hint)
				}
			}
			if params.Sort != "" {
				viewConfig.Sort = viewmodel.SortState{Field: params.Sort, Direction: collection.Ascending}
			}
			if params.Desc {
				viewConfig.Sort.Direction = collection.Descending
			}
			if params.PageSize > 0 {
				viewConfig.PageSize = params.PageSize
			}

			viewModel, err := loadView(ctx, opened, viewConfig, params.Timeout)
			if err != nil {
				return err
			}
			defer viewModel.Deactivate()
			viewModel.SetFilter(criteria)
			viewModel.SetPage(params.Page)
			view := viewModel.View()

			if params.JSON {
				return cli.WriteJSON(stdout, newListOutput(viewConfig, view))
			}
			return writeEntityTable(stdout, viewConfig.Kind, view)
		},
	}
}

// criteria converts the filter flags.
func (p *listParams) criteria() (viewmodel.Criteria, error) {
	criteria := viewmodel.Criteria{Text: p.Text, StatusKey: p.Status, Category: p.Category}
	if p.From == "" && p.To == "" {
		return criteria, nil
	}
	dateRange := &viewmodel.DateRange{}
	if p.From != "" {
		from, _, err := parseDate(p.From)
		if err != nil {
			return criteria, cli.Validation("--from: %v", err)
		}
		dateRange.From = from
	}
	if p.To != "" {
		to, dateOnly, err := parseDate(p.To)
		if err != nil {
			return criteria, cli.Validation("--to: %v", err)
		}
		if dateOnly {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
		dateRange.To = to
	}
	criteria.DateRange = dateRange
	return criteria, nil
}

// filterHint names the values the kind accepts for the axis that
// failed.
func filterHint(kind entity.Kind, err error) string {
	var configError *viewmodel.FilterConfigurationError
	if !errors.As(err, &configError) {
		return ""
	}
	switch configError.Axis {
	case "status":
		return "Statuses for " + string(kind) + ": " + joinStatuses(kind) + "."
	case "category":
		return "Categories for " + string(kind) + ": " + strings.Join(kind.Spec().Categories, ", ") + "."
	default:
		return "--from must not be after --to."
	}
}

// parseDate accepts 2006-01-02 (UTC midnight) or RFC 3339.
func parseDate(text string) (time.Time, bool, error) {
	if parsed, err := time.Parse(time.DateOnly, text); err == nil {
		return parsed, true, nil
	}
	parsed, err := time.Parse(time.RFC3339, text)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%q is neither YYYY-MM-DD nor RFC 3339", text)
	}
	return parsed.UTC(), false, nil
}

func newListOutput(viewConfig viewmodel.Config, view viewmodel.View) listOutput {
	output := listOutput{
		Collection: viewConfig.Collection,
		Kind:       string(viewConfig.Kind),
		Page:       view.Window.CurrentPage,
		TotalPages: view.Window.TotalPages,
		PageSize:   view.Window.PageSize,
		TotalItems: view.Window.TotalItems,
		StartIndex: view.Window.StartIndex,
		EndIndex:   view.Window.EndIndex,
		SortField:  view.Meta.Sort.Field,
		Entities:   make([]listEntry, len(view.Window.Page)),
	}
	if output.SortField != "" {
		output.SortOrder = string(view.Meta.Sort.Direction)
	}
	for index, candidate := range view.Window.Page {
		entry := listEntry{
			ID:          candidate.ID,
			Status:      candidate.StatusKey,
			SubmittedAt: candidate.SubmittedAt,
			Fields:      candidate.Fields,
		}
		if candidate.RawStatusKey != candidate.StatusKey {
			entry.RawStatus = candidate.RawStatusKey
		}
		output.Entities[index] = entry
	}
	return output
}

// writeEntityTable prints the page with the same columns the
// interactive view uses, followed by the position line.
func writeEntityTable(w io.Writer, kind entity.Kind, view viewmodel.View) error {
	columns := consoleui.Columns(kind)
	writer := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	titles := make([]string, len(columns))
	for index, column := range columns {
		titles[index] = column.Title
	}
	fmt.Fprintln(writer, strings.Join(titles, "\t"))
	for _, candidate := range view.Window.Page {
		cells := make([]string, len(columns))
		for index, column := range columns {
			cells[index] = strings.TrimRight(consoleui.Fit(consoleui.CellText(candidate, column), column.Width), " ")
		}
		fmt.Fprintln(writer, strings.Join(cells, "\t"))
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	window := view.Window
	if window.TotalItems == 0 {
		if view.Meta.Criteria.IsZero() {
			_, err := fmt.Fprintln(w, "no entities")
			return err
		}
		_, err := fmt.Fprintln(w, "no entities match the filter")
		return err
	}
	_, err := fmt.Fprintf(w, "page %d/%d, items %d-%d of %d\n",
		window.CurrentPage, window.TotalPages, window.StartIndex, window.EndIndex, window.TotalItems)
	return err
}

// --- stats ---

type statsParams struct {
	connection
	JSON    bool
	Timeout time.Duration
}

// statsOutput is the JSON form of the summary tiles.
type statsOutput struct {
	Collection string        `json:"collection"`
	Kind       string        `json:"kind"`
	Total      int           `json:"total"`
	Statuses   []statusCount `json:"statuses"`
}

type statusCount struct {
	Status  string `json:"status"`
	Count   int    `json:"count"`
	Percent int    `json:"percent"`
}

func statsCommand(stdout, stderr io.Writer) *cli.Command {
	var params statsParams

	return &cli.Command{
		Name:    "stats",
		Summary: "Count a collection's entities by status",
		Description: `Print how many entities of the collection are in each status, with
rounded percentages. Counts cover the whole collection; filters do
not apply.`,
		Usage: "console stats <collection> [flags]",
		Examples: []cli.Example{
			{
				Description: "Status counts of the IT queue",
				Command:     "console stats it",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("stats", pflag.ContinueOnError)
			params.connection.addFlags(flagSet)
			flagSet.BoolVar(&params.JSON, "json", false, "print JSON instead of a table")
			flagSet.DurationVar(&params.Timeout, "timeout", defaultTimeout, "how long to wait for the snapshot")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Validation("expected exactly one collection name, got %d arguments", len(args))
			}
			opened, err := params.open(stderr)
			if err != nil {
				return err
			}
			defer opened.close()

			viewConfig, err := opened.viewConfig(args[0])
			if err != nil {
				return err
			}
			viewModel, err := loadView(ctx, opened, viewConfig, params.Timeout)
			if err != nil {
				return err
			}
			defer viewModel.Deactivate()
			stats := viewModel.View().Stats

			if params.JSON {
				output := statsOutput{
					Collection: viewConfig.Collection,
					Kind:       string(viewConfig.Kind),
					Total:      stats.Total,
					Statuses:   make([]statusCount, len(stats.Statuses)),
				}
				for index, status := range stats.Statuses {
					output.Statuses[index] = statusCount{Status: status, Count: stats.Counts[status], Percent: stats.Percentages[status]}
				}
				return cli.WriteJSON(stdout, output)
			}

			writer := tabwriter.NewWriter(stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintln(writer, "STATUS\tCOUNT\tPERCENT")
			for _, status := range stats.Statuses {
				fmt.Fprintf(writer, "%s\t%d\t%d%%\n", status, stats.Counts[status], stats.Percentages[status])
			}
			fmt.Fprintf(writer, "total\t%d\t\n", stats.Total)
			return writer.Flush()
		},
	}
}
