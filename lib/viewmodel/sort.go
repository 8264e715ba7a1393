// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package viewmodel

import (
	"slices"
	"strings"

	"github.com/bureau-foundation/console/lib/collection"
	"github.com/bureau-foundation/console/lib/entity"
)

// SortState is the single active sort. An empty Field leaves entities
// in mirror order.
type SortState struct {
	Field     string
	Direction collection.Direction
}

// Select returns the state after the user picks field: a different
// field starts ascending, the same field flips direction.
func (s SortState) Select(field string) SortState {
	if field != s.Field {
		return SortState{Field: field, Direction: collection.Ascending}
	}
	if s.Direction == collection.Descending {
		return SortState{Field: field, Direction: collection.Ascending}
	}
	return SortState{Field: field, Direction: collection.Descending}
}

// Sort returns a sorted copy of entities. submittedAt compares as an
// instant; every other field compares its text form byte-wise (case
// sensitive, locale naive). Equal keys keep their input order in both
// directions.
func Sort(entities []entity.Entity, state SortState) []entity.Entity {
	sorted := slices.Clone(entities)
	if state.Field == "" {
		return sorted
	}

	compare := func(a, b entity.Entity) int {
		return strings.Compare(a.Text(state.Field), b.Text(state.Field))
	}
	if state.Field == entity.FieldSubmittedAt {
		compare = func(a, b entity.Entity) int {
			return a.SubmittedAt.Compare(b.SubmittedAt)
		}
	}

	slices.SortStableFunc(sorted, func(a, b entity.Entity) int {
		if state.Direction == collection.Descending {
			return compare(b, a)
		}
		return compare(a, b)
	})
	return sorted
}
