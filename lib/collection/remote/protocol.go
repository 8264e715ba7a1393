// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package remote carries a [collection.Store] across the console
// service socket.
//
// [Server] registers the collection actions on a
// [service.SocketServer] in front of any local store. [Store] is the
// client: it implements [collection.Store] by calling those actions,
// and follows the subscribe stream with reconnecting backoff.
//
// Actions:
//
//	list         one-shot snapshot                 collection.Query -> ListResponse
//	bulk-update  atomic status write               BulkUpdateRequest -> nil
//	import       upsert whole records              ImportRequest -> ImportResponse
//	subscribe    stream of [feed.Frame] values     collection.Query
package remote

import (
	"github.com/bureau-foundation/console/lib/collection"
)

const (
	ActionList       = "list"
	ActionBulkUpdate = "bulk-update"
	ActionImport     = "import"
	ActionSubscribe  = "subscribe"
)

// Error codes carried in service.ServiceError.Code.
const (
	// CodeNotFound marks a batch naming a missing document. The
	// client maps it back to collection.ErrNotFound.
	CodeNotFound = "not_found"

	// CodeInvalid marks a malformed or disallowed request.
	CodeInvalid = "invalid"
)

// BulkUpdateRequest is the body of a bulk-update call.
type BulkUpdateRequest struct {
	Collection string         `cbor:"collection"`
	IDs        []string       `cbor:"ids"`
	Fields     map[string]any `cbor:"fields"`
}

// ImportRequest is the body of an import call.
type ImportRequest struct {
	Collection string              `cbor:"collection"`
	Records    []collection.Record `cbor:"records"`
}

// ListResponse is the result of a list call.
type ListResponse struct {
	Records []collection.Record `cbor:"records"`
}

// ImportResponse is the result of an import call.
type ImportResponse struct {
	Count int `cbor:"count"`
}

func queryFields(query collection.Query) map[string]any {
	fields := map[string]any{"collection": query.Collection}
	if query.OrderField != "" {
		fields["order_field"] = query.OrderField
	}
	if query.Direction != "" {
		fields["direction"] = string(query.Direction)
	}
	return fields
}
