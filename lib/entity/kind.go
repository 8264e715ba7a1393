// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package entity

import (
	"fmt"
	"slices"
	"strings"
)

// Kind tags which family of request a collection holds. The set is
// closed; each kind has a fixed KindSpec.
type Kind string

const (
	KindTravel         Kind = "travel"
	KindIT             Kind = "it"
	KindDriverTrip     Kind = "driver_trip"
	KindAccomplishment Kind = "accomplishment"
	KindClient         Kind = "client"
	KindTicket         Kind = "ticket"
)

// Status keys shared by every kind.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusDenied    = "denied"
	StatusCancelled = "cancelled"
)

// Kind-specific status keys.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusResolved   = "resolved"
	StatusActive     = "active"
	StatusInactive   = "inactive"
	StatusOpen       = "open"
	StatusClosed     = "closed"
)

// KindSpec describes one entity kind: which statuses are legal, which
// fields free-text search looks at, which field the category filter
// compares, and where the submission timestamp lives.
type KindSpec struct {
	Kind Kind

	// Statuses is the closed status set in display order.
	Statuses []string

	// SearchFields are matched case-insensitively by the text filter.
	SearchFields []string

	// CategoryField is the field the category filter compares.
	CategoryField string

	// Categories, when non-empty, is the closed set of legal category
	// values. An empty set means any value is a valid category.
	Categories []string

	// TimestampFields are tried in order; the first present one
	// becomes SubmittedAt.
	TimestampFields []string
}

var baseStatuses = []string{StatusPending, StatusApproved, StatusDenied, StatusCancelled}

var defaultTimestampFields = []string{"submittedAt", "createdAt", "timestamp"}

func withBase(extra ...string) []string {
	return append(slices.Clone(baseStatuses), extra...)
}

var kindSpecs = map[Kind]KindSpec{
	KindTravel: {
		Kind:            KindTravel,
		Statuses:        withBase(StatusCompleted),
		SearchFields:    []string{"requesterName", "destination", "purpose", "department"},
		CategoryField:   "department",
		TimestampFields: defaultTimestampFields,
	},
	KindIT: {
		Kind:            KindIT,
		Statuses:        withBase(StatusInProgress, StatusResolved),
		SearchFields:    []string{"requesterName", "department", "category", "description", "assetTag"},
		CategoryField:   "category",
		Categories:      []string{"hardware", "software", "network", "access", "other"},
		TimestampFields: defaultTimestampFields,
	},
	KindDriverTrip: {
		Kind:            KindDriverTrip,
		Statuses:        withBase(StatusInProgress, StatusCompleted),
		SearchFields:    []string{"requesterName", "driverName", "vehicle", "destination", "purpose"},
		CategoryField:   "vehicle",
		TimestampFields: []string{"submittedAt", "tripDate", "createdAt", "timestamp"},
	},
	KindAccomplishment: {
		Kind:            KindAccomplishment,
		Statuses:        withBase(),
		SearchFields:    []string{"requesterName", "title", "description", "department"},
		CategoryField:   "department",
		TimestampFields: defaultTimestampFields,
	},
	KindClient: {
		Kind:            KindClient,
		Statuses:        withBase(StatusActive, StatusInactive),
		SearchFields:    []string{"name", "company", "email", "phone", "contactPerson"},
		CategoryField:   "industry",
		TimestampFields: defaultTimestampFields,
	},
	KindTicket: {
		Kind:            KindTicket,
		Statuses:        withBase(StatusOpen, StatusInProgress, StatusResolved, StatusClosed),
		SearchFields:    []string{"title", "description", "requesterName", "assignee"},
		CategoryField:   "priority",
		Categories:      []string{"low", "medium", "high", "urgent"},
		TimestampFields: defaultTimestampFields,
	},
}

// Kinds returns every kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindTravel, KindIT, KindDriverTrip, KindAccomplishment, KindClient, KindTicket}
}

// ParseKind validates a kind name.
func ParseKind(name string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := kindSpecs[kind]; !ok {
		return "", fmt.Errorf("unknown entity kind %q", name)
	}
	return kind, nil
}

// Spec returns the KindSpec for kind. Panics on an unknown kind, which
// can only be constructed by bypassing ParseKind.
func (k Kind) Spec() KindSpec {
	spec, ok := kindSpecs[k]
	if !ok {
		panic(fmt.Sprintf("entity: unknown kind %q", string(k)))
	}
	return spec
}

// HasStatus reports whether key is in the kind's closed status set.
func (s KindSpec) HasStatus(key string) bool {
	return slices.Contains(s.Statuses, key)
}

// HasCategory reports whether value is a legal category for the kind.
// Comparison ignores case. Kinds without a closed category set accept
// every value.
func (s KindSpec) HasCategory(value string) bool {
	if len(s.Categories) == 0 {
		return true
	}
	return slices.ContainsFunc(s.Categories, func(category string) bool {
		return strings.EqualFold(category, value)
	})
}
