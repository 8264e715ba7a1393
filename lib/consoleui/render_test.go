// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package consoleui

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/console/lib/collection"
	"github.com/bureau-foundation/console/lib/entity"
	"github.com/bureau-foundation/console/lib/viewmodel"
)

func TestColumns(t *testing.T) {
	var titles []string
	for _, column := range Columns(entity.KindTravel) {
		titles = append(titles, column.Title)
	}
	want := []string{"ID", "STATUS", "SUBMITTED", "REQUESTER NAME", "DESTINATION", "PURPOSE", "DEPARTMENT"}
	if !slices.Equal(titles, want) {
		t.Errorf("travel columns = %v, want %v", titles, want)
	}

	fields := SortFields(entity.KindTravel)
	if fields[0] != entity.FieldID || fields[len(fields)-1] != "department" {
		t.Errorf("sort fields = %v", fields)
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		text  string
		width int
		want  string
	}{
		{"Ana", 6, "Ana   "},
		{"Requester Alpha", 8, "Request…"},
		{"exact", 5, "exact"},
		{"anything", 0, ""},
	}
	for _, test := range tests {
		if got := Fit(test.text, test.width); got != test.want {
			t.Errorf("Fit(%q, %d) = %q, want %q", test.text, test.width, got, test.want)
		}
	}
}

func TestCellText(t *testing.T) {
	candidate := travel("r-1", "pending", "Ana")
	candidate.Fields["purpose"] = "quarterly\nreview\t trip"
	if got := CellText(candidate, Column{Field: "purpose"}); got != "quarterly review trip" {
		t.Errorf("multi-line cell = %q", got)
	}
	if got := CellText(candidate, Column{Field: entity.FieldSubmittedAt}); got != "2026-03-01 09:30" {
		t.Errorf("submitted cell = %q", got)
	}
}

func TestFitColumnsShrinksFreeText(t *testing.T) {
	columns := fitColumns(Columns(entity.KindTravel), 100)
	for _, column := range columns[:3] {
		if column.Width != 12 && column.Width != len(submittedLayout) {
			t.Errorf("fixed column %s resized to %d", column.Title, column.Width)
		}
	}
	total := markerWidth
	for _, column := range columns {
		total += column.Width + len(columnGap)
	}
	if total > 100 {
		t.Errorf("fitted row width = %d, want <= 100", total)
	}
}

func TestRenderTiles(t *testing.T) {
	s := newStyles(plainRenderer(), DefaultTheme)
	stats := viewmodel.Aggregate(entity.KindTravel, []entity.Entity{
		travel("a", "approved", "Ana"),
		travel("b", "pending", "Ben"),
	})
	tiles := renderTiles(s, stats, 200)
	for _, want := range []string{"TOTAL", "APPROVED", "1  50%", strings.Repeat("█", 8) + strings.Repeat("░", 8)} {
		if !strings.Contains(tiles, want) {
			t.Errorf("tiles missing %q:\n%s", want, tiles)
		}
	}

	narrow := renderTiles(s, stats, 30)
	for _, line := range strings.Split(narrow, "\n") {
		if strings.Contains(line, "TOTAL") && strings.Contains(line, "PENDING") {
			t.Errorf("narrow tiles did not wrap: %q", line)
		}
	}
	if strings.Count(narrow, "\n") <= strings.Count(tiles, "\n") {
		t.Error("narrow tiles should take more rows than wide tiles")
	}
}

func TestFooter(t *testing.T) {
	got := footer(viewmodel.PageMeta{
		StartIndex: 11, EndIndex: 20, TotalItems: 25,
		CurrentPage: 2, TotalPages: 3, PageSize: 10,
		Sort:      viewmodel.SortState{Field: "status", Direction: collection.Descending},
		Selection: []string{"a"},
	})
	want := "page 2/3 · items 11-20 of 25 · 10 per page · sort status desc · 1 selected"
	if got != want {
		t.Errorf("footer = %q\nwant     %q", got, want)
	}
	if got := footer(viewmodel.PageMeta{CurrentPage: 1, TotalPages: 1, PageSize: 10}); !strings.Contains(got, "0 items") {
		t.Errorf("empty footer = %q", got)
	}
}

func TestDescribeCriteria(t *testing.T) {
	if got := describeCriteria(viewmodel.Criteria{}); got != "no filter" {
		t.Errorf("empty = %q", got)
	}
	got := describeCriteria(viewmodel.Criteria{
		Text:      "lisbon",
		StatusKey: "pending",
		DateRange: &viewmodel.DateRange{From: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	})
	if want := `text "lisbon", status pending, submitted 2026-01-01 to …`; got != want {
		t.Errorf("criteria = %q, want %q", got, want)
	}
}

func TestLogHandlerSummarize(t *testing.T) {
	handler := NewLogHandler(slog.LevelInfo)
	derived := handler.WithAttrs([]slog.Attr{slog.String("collection", "travel_orders")}).WithGroup("store").(*LogHandler)

	record := slog.NewRecord(time.Time{}, slog.LevelWarn, "subscription error", 0)
	record.AddAttrs(slog.String("error", "connection refused"))
	want := "subscription error (collection=travel_orders, store.error=connection refused)"
	if got := derived.summarize(record); got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}

	if handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug enabled at info level")
	}
	// No program yet: the record is dropped without error.
	if err := derived.Handle(context.Background(), record); err != nil {
		t.Errorf("Handle before SetProgram: %v", err)
	}
}

func TestDispatcherPreservesOrder(t *testing.T) {
	d := newDispatcher(t.Context())
	var mutex sync.Mutex
	var order []int
	done := make(chan struct{})
	for index := range 50 {
		d.push(func() {
			mutex.Lock()
			order = append(order, index)
			mutex.Unlock()
			if index == 49 {
				close(done)
			}
		})
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second): //nolint:realclock test hang prevention
		t.Fatal("dispatcher did not drain")
	}
	mutex.Lock()
	defer mutex.Unlock()
	for index, value := range order {
		if value != index {
			t.Fatalf("operation %d ran at position %d: %v", value, index, order)
		}
	}
}
