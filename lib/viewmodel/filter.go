// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package viewmodel

import (
	"strings"
	"time"

	"github.com/bureau-foundation/console/lib/entity"
)

// DateRange bounds SubmittedAt inclusively. A zero bound is open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Criteria is the user's filter. Every non-empty axis must match (AND);
// there is no OR or NOT.
type Criteria struct {
	// Text is matched case-insensitively as a substring of any of the
	// kind's search fields.
	Text string

	// StatusKey selects one status. Compared after lowercasing.
	StatusKey string

	// Category is compared case-insensitively against the kind's
	// category field.
	Category string

	DateRange *DateRange
}

// IsZero reports whether the criteria filter nothing out.
func (c Criteria) IsZero() bool {
	return strings.TrimSpace(c.Text) == "" &&
		strings.TrimSpace(c.StatusKey) == "" &&
		strings.TrimSpace(c.Category) == "" &&
		(c.DateRange == nil || (c.DateRange.From.IsZero() && c.DateRange.To.IsZero()))
}

// Filter returns the entities matching criteria, preserving input
// order. The result is always a new slice.
//
// A status outside the kind's set, a category outside a closed
// category set, or a date range whose From is after its To yields an
// empty result together with a *FilterConfigurationError. Filter never
// fails open.
func Filter(kind entity.Kind, entities []entity.Entity, criteria Criteria) ([]entity.Entity, error) {
	spec := kind.Spec()
	result := make([]entity.Entity, 0, len(entities))

	status := strings.ToLower(strings.TrimSpace(criteria.StatusKey))
	if status != "" && !spec.HasStatus(status) {
		return result, &FilterConfigurationError{Kind: kind, Axis: "status", Value: criteria.StatusKey}
	}

	category := strings.TrimSpace(criteria.Category)
	if category != "" && !spec.HasCategory(category) {
		return result, &FilterConfigurationError{Kind: kind, Axis: "category", Value: criteria.Category}
	}

	var from, to time.Time
	if criteria.DateRange != nil {
		from, to = criteria.DateRange.From, criteria.DateRange.To
		if !from.IsZero() && !to.IsZero() && from.After(to) {
			return result, &FilterConfigurationError{
				Kind:  kind,
				Axis:  "dateRange",
				Value: from.Format(time.RFC3339) + ".." + to.Format(time.RFC3339),
			}
		}
	}

	needle := strings.ToLower(strings.TrimSpace(criteria.Text))

	for _, candidate := range entities {
		if status != "" && candidate.StatusKey != status {
			continue
		}
		if category != "" && !strings.EqualFold(candidate.Text(spec.CategoryField), category) {
			continue
		}
		if !from.IsZero() && candidate.SubmittedAt.Before(from) {
			continue
		}
		if !to.IsZero() && candidate.SubmittedAt.After(to) {
			continue
		}
		if needle != "" && !matchesText(candidate, spec.SearchFields, needle) {
			continue
		}
		result = append(result, candidate)
	}
	return result, nil
}

func matchesText(candidate entity.Entity, fields []string, needle string) bool {
	for _, field := range fields {
		if strings.Contains(strings.ToLower(candidate.Text(field)), needle) {
			return true
		}
	}
	return false
}
