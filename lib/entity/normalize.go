// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/console/lib/collection"
)

// NormalizationWarning records a fallback applied while normalizing a
// record. It implements error so it can be logged and matched with
// errors.As like the rest of the console's error taxonomy, but it is
// never fatal and never reaches the renderer.
type NormalizationWarning struct {
	ID     string
	Field  string
	Raw    any
	Reason string
}

func (w *NormalizationWarning) Error() string {
	if w.Raw == nil {
		return fmt.Sprintf("entity %s: %s %s", w.ID, w.Field, w.Reason)
	}
	return fmt.Sprintf("entity %s: %s %s (raw %v)", w.ID, w.Field, w.Reason, w.Raw)
}

// statusAliases maps spellings seen in stored documents to canonical
// keys.
var statusAliases = map[string]string{
	"rejected":  StatusDenied,
	"declined":  StatusDenied,
	"canceled":  StatusCancelled,
	"accepted":  StatusApproved,
	"submitted": StatusPending,
	"new":       StatusPending,
	"done":      StatusCompleted,
	"ongoing":   StatusInProgress,
}

// NormalizeStatus canonicalizes a raw status value for kind. The
// boolean is false when the value is missing or outside the kind's
// set, in which case the result is StatusPending.
func NormalizeStatus(spec KindSpec, raw any) (string, bool) {
	text, ok := raw.(string)
	if !ok {
		return StatusPending, false
	}
	key := strings.ToLower(strings.TrimSpace(text))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if alias, ok := statusAliases[key]; ok && !spec.HasStatus(key) {
		key = alias
	}
	if key == "" || !spec.HasStatus(key) {
		return StatusPending, false
	}
	return key, true
}

// Normalize converts a record into an Entity for kind. now stands in
// for an unusable timestamp. The returned warnings are nil for a clean
// record.
func Normalize(kind Kind, record collection.Record, now time.Time) (Entity, []*NormalizationWarning) {
	spec := kind.Spec()
	var warnings []*NormalizationWarning

	rawStatus, present := record.Fields[FieldStatus]
	status, ok := NormalizeStatus(spec, rawStatus)
	if !ok {
		reason := "unrecognized, defaulted to pending"
		if !present || rawStatus == nil {
			reason = "missing, defaulted to pending"
		}
		warnings = append(warnings, &NormalizationWarning{
			ID: record.ID, Field: FieldStatus, Raw: rawStatus, Reason: reason,
		})
	}

	submittedAt := now.UTC()
	field, rawTime, found := firstPresent(record.Fields, spec.TimestampFields)
	if !found {
		warnings = append(warnings, &NormalizationWarning{
			ID: record.ID, Field: FieldSubmittedAt, Reason: "missing, defaulted to now",
		})
	} else if parsed, err := ParseTimestamp(rawTime); err != nil {
		warnings = append(warnings, &NormalizationWarning{
			ID: record.ID, Field: field, Raw: rawTime, Reason: "unparsable, defaulted to now: " + err.Error(),
		})
	} else {
		submittedAt = parsed
	}

	return Entity{
		ID:           record.ID,
		Kind:         kind,
		StatusKey:    status,
		RawStatusKey: status,
		SubmittedAt:  submittedAt,
		Fields:       record.Fields,
	}, warnings
}

func firstPresent(fields map[string]any, names []string) (string, any, bool) {
	for _, name := range names {
		if value, ok := fields[name]; ok && value != nil {
			return name, value, true
		}
	}
	return "", nil, false
}

// millisecondThreshold separates epoch seconds from epoch
// milliseconds. 1e11 seconds is the year 5138; 1e11 milliseconds is
// March 1973.
const millisecondThreshold = 1e11

// maxEpochMillis is 9999-12-31T23:59:59.999Z. Larger epoch numbers
// (microsecond or nanosecond exports) are rejected rather than read as
// milliseconds.
const maxEpochMillis = 253402300799999

var errUnsupportedType = errors.New("unsupported timestamp type")

// layouts are the textual forms accepted besides RFC 3339.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp converts any of the three timestamp encodings to a
// UTC instant: a store-native timestamp (collection.Timestamp, its
// {"seconds","nanos"} map form, the {"_seconds","_nanoseconds"} export
// form, or time.Time), an ISO-8601 string, or an epoch number in
// seconds or milliseconds (bare or as a numeric string). Zone-less
// text is read as UTC.
func ParseTimestamp(raw any) (time.Time, error) {
	switch typed := raw.(type) {
	case time.Time:
		if typed.IsZero() {
			return time.Time{}, errors.New("zero time")
		}
		return typed.UTC(), nil
	case *time.Time:
		if typed == nil {
			return time.Time{}, errors.New("nil time")
		}
		return ParseTimestamp(*typed)
	case collection.Timestamp:
		return typed.Time(), nil
	case map[string]any:
		return parseNativeMap(typed)
	case string:
		return parseText(typed)
	case json.Number:
		return parseText(typed.String())
	}
	if number, ok := toFloat(raw); ok {
		return fromEpoch(number)
	}
	return time.Time{}, fmt.Errorf("%w %T", errUnsupportedType, raw)
}

func parseNativeMap(fields map[string]any) (time.Time, error) {
	secondsRaw, ok := fields["seconds"]
	nanosRaw := fields["nanos"]
	if !ok {
		secondsRaw, ok = fields["_seconds"]
		nanosRaw = fields["_nanoseconds"]
	}
	if !ok {
		return time.Time{}, errors.New("map timestamp without seconds")
	}
	seconds, ok := toFloat(secondsRaw)
	if !ok {
		return time.Time{}, fmt.Errorf("seconds is %T, not a number", secondsRaw)
	}
	if math.IsNaN(seconds) || math.Abs(seconds) > maxEpochMillis/1000 {
		return time.Time{}, fmt.Errorf("seconds %v out of range", seconds)
	}
	var nanos float64
	if nanosRaw != nil {
		if nanos, ok = toFloat(nanosRaw); !ok {
			return time.Time{}, fmt.Errorf("nanos is %T, not a number", nanosRaw)
		}
	}
	return time.Unix(int64(seconds), int64(nanos)).UTC(), nil
}

func parseText(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, errors.New("empty string")
	}
	if number, err := strconv.ParseFloat(text, 64); err == nil {
		return fromEpoch(number)
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, text); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a timestamp", text)
}

func fromEpoch(number float64) (time.Time, error) {
	if math.IsNaN(number) || math.IsInf(number, 0) || number < 0 {
		return time.Time{}, fmt.Errorf("invalid epoch value %v", number)
	}
	if number > maxEpochMillis {
		return time.Time{}, fmt.Errorf("epoch value %v out of range", number)
	}
	if number >= millisecondThreshold {
		return time.UnixMilli(int64(number)).UTC(), nil
	}
	whole, fraction := math.Modf(number)
	return time.Unix(int64(whole), int64(fraction*1e9)).UTC(), nil
}

func toFloat(value any) (float64, bool) {
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
	case json.Number:
		number, err := typed.Float64()
		return number, err == nil
	default:
		return 0, false
	}
}
