// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package entity turns raw collection records into the typed entities
// the view-model engine filters, sorts, and counts.
//
// Normalization always succeeds. A record with a missing or
// unrecognized status becomes "pending"; a record with a missing or
// unparsable timestamp is stamped with the current time. Each fallback
// is reported as a NormalizationWarning for logging, and the entity is
// kept.
package entity

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bureau-foundation/console/lib/collection"
)

// Entity is one normalized record.
type Entity struct {
	ID   string
	Kind Kind

	// StatusKey is the effective status used for filtering, sorting,
	// counting, and display. It equals RawStatusKey unless a task
	// overlay replaced it.
	StatusKey string

	// RawStatusKey is the status normalized from the record itself.
	RawStatusKey string

	// SubmittedAt is the normalized submission instant, in UTC.
	SubmittedAt time.Time

	// Fields are the record's raw fields. Read-only.
	Fields map[string]any
}

// Reserved field names resolved from the entity itself rather than
// from Fields.
const (
	FieldID          = "id"
	FieldStatus      = "status"
	FieldSubmittedAt = "submittedAt"
)

// Text returns the display and search form of a field. Reserved names
// resolve to the normalized values. Missing fields are "".
func (e Entity) Text(field string) string {
	switch field {
	case FieldID:
		return e.ID
	case FieldStatus:
		return e.StatusKey
	case FieldSubmittedAt:
		return e.SubmittedAt.Format(time.RFC3339)
	}
	return FormatValue(e.Fields[field])
}

// FormatValue renders a raw field value as text.
func FormatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case uint64:
		return strconv.FormatUint(typed, 10)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case time.Time:
		return typed.UTC().Format(time.RFC3339)
	case collection.Timestamp:
		return typed.Time().Format(time.RFC3339)
	default:
		return fmt.Sprint(typed)
	}
}
