// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package collection defines the contract between the console and the
// remote stores that hold request collections.
//
// A store needs exactly two primitives: a live subscription that
// redelivers the complete contents of a named collection after every
// change, and an atomic multi-document status write. Every backend in
// the subpackages (memstore, sqlitestore, filestore, redisstore,
// remote) implements [Store]; the view-model engine depends on nothing
// else.
//
// Snapshots are always the whole collection. A subscriber never sees a
// diff, so it can never drift from the store after a delete.
package collection

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Record is one document in a collection as the store holds it: a
// store-assigned identifier and schemaless fields. Consumers must
// treat Fields as read-only; stores hand the same map to several
// subscribers.
type Record struct {
	ID     string         `cbor:"id" json:"id"`
	Fields map[string]any `cbor:"fields" json:"fields"`
}

// Timestamp is the store-native instant representation written by
// every backend (for example as updatedAt on a bulk mutation). Over
// CBOR and JSON it travels as {"seconds": ..., "nanos": ...}.
type Timestamp struct {
	Seconds int64 `cbor:"seconds" json:"seconds"`
	Nanos   int32 `cbor:"nanos" json:"nanos"`
}

// TimestampOf converts a time.Time to a Timestamp.
func TimestampOf(instant time.Time) Timestamp {
	return Timestamp{Seconds: instant.Unix(), Nanos: int32(instant.Nanosecond())}
}

// Time returns the instant in UTC.
func (t Timestamp) Time() time.Time {
	return time.Unix(t.Seconds, int64(t.Nanos)).UTC()
}

// Direction is a server-side ordering direction.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// Query names a collection and the ordering used for the initial shape
// of each snapshot. Consumers re-sort locally and must not rely on
// this order beyond the first render.
type Query struct {
	Collection string    `cbor:"collection"`
	OrderField string    `cbor:"order_field,omitempty"`
	Direction  Direction `cbor:"direction,omitempty"`
}

// Validate checks that the query names a collection and uses a known
// direction. An empty direction means ascending.
func (q Query) Validate() error {
	if q.Collection == "" {
		return errors.New("collection name is required")
	}
	switch q.Direction {
	case "", Ascending, Descending:
		return nil
	default:
		return fmt.Errorf("unknown direction %q (want %q or %q)", q.Direction, Ascending, Descending)
	}
}

// Handler receives subscription callbacks. OnChange gets the entire
// current collection on every change, in the order the store emitted
// the changes. OnError reports transport or permission failures; the
// subscription may or may not recover, depending on the store.
type Handler struct {
	OnChange func(records []Record)
	OnError  func(err error)
}

// Store is a remote collection store.
type Store interface {
	// Subscribe starts a live feed for query. The first snapshot is
	// delivered asynchronously after Subscribe returns. The returned
	// function cancels the feed; it is idempotent and safe to call
	// from any goroutine. ctx bounds only the setup, not the lifetime
	// of the subscription.
	Subscribe(ctx context.Context, query Query, handler Handler) (unsubscribe func(), err error)

	// BatchUpdate writes fields onto every document in ids as one
	// atomic batch. If any id does not exist the whole batch is
	// rejected with an error wrapping ErrNotFound and nothing is
	// written.
	BatchUpdate(ctx context.Context, collection string, ids []string, fields map[string]any) error
}

// Reader is implemented by stores that can produce a one-shot snapshot
// without a subscription.
type Reader interface {
	Snapshot(ctx context.Context, query Query) ([]Record, error)
}

// Importer is implemented by stores that accept bulk inserts. Records
// with an existing id are replaced whole.
type Importer interface {
	Upsert(ctx context.Context, collection string, records []Record) error
}

var (
	// ErrNotFound marks a batch that names a document the collection
	// does not contain.
	ErrNotFound = errors.New("document not found")

	// ErrClosed is returned by stores used after Close.
	ErrClosed = errors.New("store closed")
)
