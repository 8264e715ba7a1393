// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package filestore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/console/lib/collection"
)

// Decode parses a JSONC document holding records. Two shapes are
// accepted:
//
//	[{"id": "a", "status": "pending"}, ...]
//	{"a": {"status": "pending"}, ...}
//
// Comments and trailing commas are allowed. In the array form a
// record without an "id" member is returned with an empty ID; callers
// decide whether that is an error. The array form keeps file order;
// the object form is returned in id order.
func Decode(data []byte) ([]collection.Record, error) {
	data = bytes.TrimSpace(jsonc.ToJSON(data))
	if len(data) == 0 {
		return []collection.Record{}, nil
	}

	switch data[0] {
	case '[':
		var documents []map[string]any
		if err := json.Unmarshal(data, &documents); err != nil {
			return nil, err
		}
		records := make([]collection.Record, 0, len(documents))
		for index, fields := range documents {
			if fields == nil {
				return nil, fmt.Errorf("element %d: not an object", index)
			}
			id, _ := fields["id"].(string)
			delete(fields, "id")
			records = append(records, collection.Record{ID: id, Fields: fields})
		}
		return records, nil

	case '{':
		var documents map[string]map[string]any
		if err := json.Unmarshal(data, &documents); err != nil {
			return nil, err
		}
		records := make([]collection.Record, 0, len(documents))
		for id, fields := range documents {
			if fields == nil {
				fields = map[string]any{}
			}
			delete(fields, "id")
			records = append(records, collection.Record{ID: id, Fields: fields})
		}
		slices.SortFunc(records, func(a, b collection.Record) int { return strings.Compare(a.ID, b.ID) })
		return records, nil

	default:
		return nil, errors.New("expected an array or object of records")
	}
}

// Encode renders records in the array form, sorted by id, with
// two-space indentation and a trailing newline.
func Encode(records []collection.Record) ([]byte, error) {
	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b collection.Record) int { return strings.Compare(a.ID, b.ID) })

	documents := make([]map[string]any, len(sorted))
	for index, record := range sorted {
		document := make(map[string]any, len(record.Fields)+1)
		for key, value := range record.Fields {
			document[key] = value
		}
		document["id"] = record.ID
		documents[index] = document
	}
	data, err := json.MarshalIndent(documents, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
