// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package viewmodel

import (
	"math"
	"slices"

	"github.com/bureau-foundation/console/lib/entity"
)

// Stats summarizes a whole mirror by status.
type Stats struct {
	// Statuses lists the kind's status keys in display order. Counts
	// and Percentages have an entry for every one of them.
	Statuses []string

	Counts      map[string]int
	Percentages map[string]int
	Total       int
}

// Aggregate counts entities per status. Callers pass the full mirror,
// never a filtered view: summary tiles show true totals.
// Percentages round to the nearest integer and are all zero for an
// empty mirror.
func Aggregate(kind entity.Kind, entities []entity.Entity) Stats {
	spec := kind.Spec()
	stats := Stats{
		Statuses:    slices.Clone(spec.Statuses),
		Counts:      make(map[string]int, len(spec.Statuses)),
		Percentages: make(map[string]int, len(spec.Statuses)),
		Total:       len(entities),
	}
	for _, status := range spec.Statuses {
		stats.Counts[status] = 0
		stats.Percentages[status] = 0
	}
	for _, candidate := range entities {
		stats.Counts[candidate.StatusKey]++
	}
	if stats.Total == 0 {
		return stats
	}
	for status, count := range stats.Counts {
		stats.Percentages[status] = int(math.Round(float64(count) / float64(stats.Total) * 100))
	}
	return stats
}
