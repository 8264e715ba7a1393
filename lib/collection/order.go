// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package collection

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"
)

// SortRecords orders records in place by the named field, stably.
// Records missing the field sort first in ascending order. An empty
// field orders by ID. Numbers compare numerically, timestamps
// chronologically, and everything else by its text form.
func SortRecords(records []Record, field string, direction Direction) {
	slices.SortStableFunc(records, func(a, b Record) int {
		var result int
		if field == "" {
			result = strings.Compare(a.ID, b.ID)
		} else {
			result = CompareValues(a.Fields[field], b.Fields[field])
		}
		if direction == Descending {
			return -result
		}
		return result
	})
}

// CompareValues orders two field values. nil sorts before everything.
// Two numeric values compare as float64; two time-like values compare
// as instants; otherwise the fmt text forms compare ordinally.
func CompareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if left, ok := numeric(a); ok {
		if right, ok := numeric(b); ok {
			return cmp.Compare(left, right)
		}
	}
	if left, ok := instant(a); ok {
		if right, ok := instant(b); ok {
			return left.Compare(right)
		}
	}
	return strings.Compare(textOf(a), textOf(b))
}

func numeric(value any) (float64, bool) {
	switch typed := value.(type) {
	case int:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case uint32:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	case float32:
		return float64(typed), true
	case float64:
		return typed, true
	default:
		return 0, false
	}
}

func instant(value any) (time.Time, bool) {
	switch typed := value.(type) {
	case time.Time:
		return typed, true
	case Timestamp:
		return typed.Time(), true
	case map[string]any:
		// Timestamp after a CBOR or JSON round trip.
		seconds, ok := numeric(typed["seconds"])
		if !ok {
			return time.Time{}, false
		}
		nanos, _ := numeric(typed["nanos"])
		return time.Unix(int64(seconds), int64(nanos)).UTC(), true
	default:
		return time.Time{}, false
	}
}

func textOf(value any) string {
	if text, ok := value.(string); ok {
		return text
	}
	return fmt.Sprint(value)
}

// CloneRecords copies the slice and each record's top-level Fields map
// so that a consumer holding one snapshot is unaffected by later
// writes to the store's own copy.
func CloneRecords(records []Record) []Record {
	clone := make([]Record, len(records))
	for index, record := range records {
		fields := make(map[string]any, len(record.Fields))
		for key, value := range record.Fields {
			fields[key] = value
		}
		clone[index] = Record{ID: record.ID, Fields: fields}
	}
	return clone
}
