// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package storetest is a conformance suite for [collection.Store]
// implementations. Each backend's tests call [Run] with a constructor;
// the suite checks the behavior the view-model engine relies on.
//
// Backends may coalesce snapshots, so the suite waits for a snapshot
// satisfying a condition rather than counting deliveries.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bureau-foundation/console/lib/collection"
	"github.com/bureau-foundation/console/lib/testutil"
)

// Timeout bounds each wait for a snapshot.
const Timeout = 5 * time.Second

// Backend is a store under test. Store and Importer are usually the
// same value.
type Backend struct {
	Store    collection.Store
	Importer collection.Importer
}

// Run executes the suite. newBackend is called once per subtest and
// must return an empty store; cleanup is the caller's responsibility
// (typically via t.Cleanup inside newBackend).
func Run(t *testing.T, newBackend func(t *testing.T) Backend) {
	t.Run("InitialSnapshot", func(t *testing.T) { testInitialSnapshot(t, newBackend(t)) })
	t.Run("UpsertPublishes", func(t *testing.T) { testUpsertPublishes(t, newBackend(t)) })
	t.Run("BatchUpdate", func(t *testing.T) { testBatchUpdate(t, newBackend(t)) })
	t.Run("BatchUpdateAtomic", func(t *testing.T) { testBatchUpdateAtomic(t, newBackend(t)) })
	t.Run("Ordering", func(t *testing.T) { testOrdering(t, newBackend(t)) })
	t.Run("CollectionIsolation", func(t *testing.T) { testCollectionIsolation(t, newBackend(t)) })
	t.Run("Unsubscribe", func(t *testing.T) { testUnsubscribe(t, newBackend(t)) })
}

// Feed records every snapshot delivered to one subscription.
type Feed struct {
	Snapshots chan []collection.Record
	Errors    chan error
}

// Subscribe opens a subscription whose callbacks land in a Feed. The
// subscription is cancelled at test cleanup; the returned function
// cancels it earlier.
func Subscribe(t *testing.T, store collection.Store, query collection.Query) (*Feed, func()) {
	t.Helper()
	feed := &Feed{
		Snapshots: make(chan []collection.Record, 256),
		Errors:    make(chan error, 16),
	}
	unsubscribe, err := store.Subscribe(context.Background(), query, collection.Handler{
		OnChange: func(records []collection.Record) {
			select {
			case feed.Snapshots <- records:
			default:
			}
		},
		OnError: func(err error) {
			select {
			case feed.Errors <- err:
			default:
			}
		},
	})
	if err != nil {
		t.Fatalf("Subscribe(%+v): %v", query, err)
	}
	t.Cleanup(unsubscribe)
	return feed, unsubscribe
}

// WaitFor returns the first snapshot for which match is true.
func (f *Feed) WaitFor(t *testing.T, description string, match func([]collection.Record) bool) []collection.Record {
	t.Helper()
	deadline := time.After(Timeout) //nolint:realclock test hang prevention
	for {
		select {
		case snapshot := <-f.Snapshots:
			if match(snapshot) {
				return snapshot
			}
		case err := <-f.Errors:
			t.Fatalf("subscription error while waiting for %s: %v", description, err)
		case <-deadline:
			t.Fatalf("timed out waiting for %s", description)
		}
	}
}

// IDs lists record ids in order.
func IDs(records []collection.Record) []string {
	ids := make([]string, len(records))
	for index, record := range records {
		ids[index] = record.ID
	}
	return ids
}

// Text returns a field in its printed form, so numbers that crossed a
// wire as a different Go type still compare equal.
func Text(record collection.Record, field string) string {
	value, ok := record.Fields[field]
	if !ok || value == nil {
		return ""
	}
	return fmt.Sprint(value)
}

func find(records []collection.Record, id string) (collection.Record, bool) {
	for _, record := range records {
		if record.ID == id {
			return record, true
		}
	}
	return collection.Record{}, false
}

func hasLen(n int) func([]collection.Record) bool {
	return func(records []collection.Record) bool { return len(records) == n }
}

func seed(t *testing.T, backend Backend, collectionName string, records ...collection.Record) {
	t.Helper()
	if err := backend.Importer.Upsert(context.Background(), collectionName, records); err != nil {
		t.Fatalf("Upsert(%s): %v", collectionName, err)
	}
}

func request(id, status, name string) collection.Record {
	return collection.Record{ID: id, Fields: map[string]any{"status": status, "name": name}}
}

func testInitialSnapshot(t *testing.T, backend Backend) {
	seed(t, backend, "travel", request("a", "pending", "Ana"), request("b", "approved", "Ben"))

	feed, _ := Subscribe(t, backend.Store, collection.Query{Collection: "travel"})
	snapshot := feed.WaitFor(t, "initial snapshot", hasLen(2))
	if got := IDs(snapshot); got[0] != "a" || got[1] != "b" {
		t.Errorf("initial ids = %v, want [a b]", got)
	}
	if record, _ := find(snapshot, "b"); Text(record, "name") != "Ben" {
		t.Errorf("b.name = %q, want Ben", Text(record, "name"))
	}
}

func testUpsertPublishes(t *testing.T, backend Backend) {
	feed, _ := Subscribe(t, backend.Store, collection.Query{Collection: "travel"})
	testutil.RequireReceive(t, feed.Snapshots, Timeout, "empty initial snapshot")

	seed(t, backend, "travel", request("a", "pending", "Ana"))
	feed.WaitFor(t, "snapshot with a", hasLen(1))

	seed(t, backend, "travel", request("b", "pending", "Ben"))
	snapshot := feed.WaitFor(t, "snapshot with a and b", hasLen(2))
	if _, ok := find(snapshot, "a"); !ok {
		t.Errorf("second snapshot dropped a: %v", IDs(snapshot))
	}
}

func testBatchUpdate(t *testing.T, backend Backend) {
	seed(t, backend, "travel",
		request("a", "pending", "Ana"),
		request("b", "pending", "Ben"),
		request("c", "pending", "Cal"),
	)
	feed, _ := Subscribe(t, backend.Store, collection.Query{Collection: "travel"})
	feed.WaitFor(t, "seeded snapshot", hasLen(3))

	err := backend.Store.BatchUpdate(context.Background(), "travel", []string{"a", "c"}, map[string]any{
		"status":    "approved",
		"updatedBy": "reviewer@example.com",
	})
	if err != nil {
		t.Fatalf("BatchUpdate: %v", err)
	}

	snapshot := feed.WaitFor(t, "snapshot after update", func(records []collection.Record) bool {
		a, _ := find(records, "a")
		return Text(a, "status") == "approved"
	})
	for _, id := range []string{"a", "c"} {
		record, _ := find(snapshot, id)
		if Text(record, "status") != "approved" || Text(record, "updatedBy") != "reviewer@example.com" {
			t.Errorf("%s = %v, want approved by reviewer", id, record.Fields)
		}
		if Text(record, "name") == "" {
			t.Errorf("%s lost untouched field name: %v", id, record.Fields)
		}
	}
	if record, _ := find(snapshot, "b"); Text(record, "status") != "pending" {
		t.Errorf("b.status = %q, want untouched pending", Text(record, "status"))
	}
}

func testBatchUpdateAtomic(t *testing.T, backend Backend) {
	seed(t, backend, "travel", request("a", "pending", "Ana"))

	err := backend.Store.BatchUpdate(context.Background(), "travel", []string{"a", "missing"}, map[string]any{"status": "approved"})
	if !errors.Is(err, collection.ErrNotFound) {
		t.Fatalf("BatchUpdate with missing id: error = %v, want ErrNotFound", err)
	}

	feed, _ := Subscribe(t, backend.Store, collection.Query{Collection: "travel"})
	snapshot := feed.WaitFor(t, "snapshot", hasLen(1))
	if Text(snapshot[0], "status") != "pending" {
		t.Errorf("a.status = %q after rejected batch, want pending", Text(snapshot[0], "status"))
	}
}

func testOrdering(t *testing.T, backend Backend) {
	seed(t, backend, "travel",
		collection.Record{ID: "a", Fields: map[string]any{"rank": 2}},
		collection.Record{ID: "b", Fields: map[string]any{"rank": 10}},
		collection.Record{ID: "c", Fields: map[string]any{"rank": 1}},
	)
	feed, _ := Subscribe(t, backend.Store, collection.Query{
		Collection: "travel",
		OrderField: "rank",
		Direction:  collection.Descending,
	})
	snapshot := feed.WaitFor(t, "ordered snapshot", hasLen(3))
	got := IDs(snapshot)
	if got[0] != "b" || got[1] != "a" || got[2] != "c" {
		t.Errorf("descending by rank = %v, want [b a c]", got)
	}
}

func testCollectionIsolation(t *testing.T, backend Backend) {
	travel, _ := Subscribe(t, backend.Store, collection.Query{Collection: "travel"})
	clients, _ := Subscribe(t, backend.Store, collection.Query{Collection: "clients"})
	testutil.RequireReceive(t, travel.Snapshots, Timeout, "travel initial")
	testutil.RequireReceive(t, clients.Snapshots, Timeout, "clients initial")

	seed(t, backend, "clients", request("x", "active", "Xena"))
	clients.WaitFor(t, "clients snapshot", hasLen(1))

	seed(t, backend, "travel", request("a", "pending", "Ana"))
	snapshot := travel.WaitFor(t, "travel snapshot", hasLen(1))
	if snapshot[0].ID != "a" {
		t.Errorf("travel snapshot = %v, want [a]", IDs(snapshot))
	}
}

func testUnsubscribe(t *testing.T, backend Backend) {
	feed, unsubscribe := Subscribe(t, backend.Store, collection.Query{Collection: "travel"})
	testutil.RequireReceive(t, feed.Snapshots, Timeout, "initial snapshot")

	unsubscribe()
	unsubscribe()

	// A second subscriber proves the write was published.
	witness, _ := Subscribe(t, backend.Store, collection.Query{Collection: "travel"})
	testutil.RequireReceive(t, witness.Snapshots, Timeout, "witness initial")
	seed(t, backend, "travel", request("a", "pending", "Ana"))
	witness.WaitFor(t, "witness snapshot", hasLen(1))

	select {
	case snapshot := <-feed.Snapshots:
		t.Errorf("snapshot delivered after unsubscribe: %v", IDs(snapshot))
	default:
	}
}
