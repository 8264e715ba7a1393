// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package filestore

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/console/lib/collection"
	"github.com/bureau-foundation/console/lib/collection/storetest"
	"github.com/bureau-foundation/console/lib/testutil"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend {
		store := openStore(t)
		return storetest.Backend{Store: store, Importer: store}
	})
}

func TestDecodeArrayWithComments(t *testing.T) {
	records, err := Decode([]byte(`
		// travel requests
		[
			{"id": "b", "status": "pending", /* inline */ "nights": 2},
			{"id": "a", "status": "approved",},
			{"status": "pending"},
		]
	`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := storetest.IDs(records); !slices.Equal(got, []string{"b", "a", ""}) {
		t.Errorf("ids = %v, want file order with empty id last", got)
	}
	if _, hasID := records[0].Fields["id"]; hasID {
		t.Error("id left inside Fields")
	}
	if records[0].Fields["nights"] != float64(2) {
		t.Errorf("nights = %#v", records[0].Fields["nights"])
	}
}

func TestDecodeObjectForm(t *testing.T) {
	records, err := Decode([]byte(`{"z": {"status": "open"}, "m": {"status": "closed"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := storetest.IDs(records); !slices.Equal(got, []string{"m", "z"}) {
		t.Errorf("ids = %v, want [m z]", got)
	}
}

func TestDecodeRejectsScalars(t *testing.T) {
	if _, err := Decode([]byte(`"travel"`)); err == nil {
		t.Error("Decode of a string succeeded")
	}
	if records, err := Decode([]byte("  // nothing yet\n")); err != nil || len(records) != 0 {
		t.Errorf("Decode of comment-only file = %v, %v; want empty", records, err)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	original := []collection.Record{
		{ID: "b", Fields: map[string]any{"status": "pending"}},
		{ID: "a", Fields: map[string]any{"status": "approved"}},
	}
	data, err := Encode(original)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(data), "\n") {
		t.Error("encoded file lacks trailing newline")
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if got := storetest.IDs(decoded); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("ids = %v, want sorted [a b]", got)
	}
}

func TestExternalEditReachesSubscribers(t *testing.T) {
	store := openStore(t)
	feed, _ := storetest.Subscribe(t, store, collection.Query{Collection: "tickets"})
	testutil.RequireReceive(t, feed.Snapshots, storetest.Timeout, "initial snapshot")

	path := store.Path("tickets")
	if err := os.WriteFile(path, []byte(`[{"id": "t1", "status": "open"}, // hand edited
	]`), 0o644); err != nil {
		t.Fatal(err)
	}
	snapshot := feed.WaitFor(t, "snapshot after edit", func(records []collection.Record) bool { return len(records) == 1 })
	if storetest.Text(snapshot[0], "status") != "open" {
		t.Errorf("status = %q", storetest.Text(snapshot[0], "status"))
	}

	// Atomic replacement by another tool.
	replacement := filepath.Join(store.Directory(), ".tickets.new")
	os.WriteFile(replacement, []byte(`[{"id": "t1", "status": "closed"}, {"id": "t2", "status": "open"}]`), 0o644)
	if err := os.Rename(replacement, path); err != nil {
		t.Fatal(err)
	}
	feed.WaitFor(t, "snapshot after rename", func(records []collection.Record) bool { return len(records) == 2 })
}

func TestUnreadableEditReportsError(t *testing.T) {
	store := openStore(t)
	feed, _ := storetest.Subscribe(t, store, collection.Query{Collection: "tickets"})
	testutil.RequireReceive(t, feed.Snapshots, storetest.Timeout, "initial snapshot")

	if err := os.WriteFile(store.Path("tickets"), []byte(`[{"id": "t1",`), 0o644); err != nil {
		t.Fatal(err)
	}
	testutil.RequireReceive(t, feed.Errors, storetest.Timeout, "error for truncated file")
}

func TestOwnWritesPublishOnce(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	feed, _ := storetest.Subscribe(t, store, collection.Query{Collection: "tickets"})
	testutil.RequireReceive(t, feed.Snapshots, storetest.Timeout, "initial snapshot")

	if err := store.Upsert(ctx, "tickets", []collection.Record{{ID: "t1", Fields: map[string]any{"status": "open"}}}); err != nil {
		t.Fatal(err)
	}
	testutil.RequireReceive(t, feed.Snapshots, storetest.Timeout, "snapshot after upsert")

	// A second write proves the watcher has had time to see the first;
	// had it republished, that echo would arrive before this snapshot.
	if err := store.BatchUpdate(ctx, "tickets", []string{"t1"}, map[string]any{"status": "closed"}); err != nil {
		t.Fatal(err)
	}
	next := testutil.RequireReceive(t, feed.Snapshots, storetest.Timeout, "snapshot after update")
	if storetest.Text(next[0], "status") != "closed" {
		t.Errorf("next snapshot status = %q, want closed (an echo of the upsert arrived first)", storetest.Text(next[0], "status"))
	}
}

func TestInvalidCollectionNames(t *testing.T) {
	store := openStore(t)
	for _, name := range []string{"", ".hidden", "../escape", `a\b`} {
		if err := store.Upsert(context.Background(), name, nil); err == nil {
			t.Errorf("Upsert(%q) succeeded", name)
		}
	}
}

func TestEventNames(t *testing.T) {
	var buffer []byte
	for _, name := range []string{"travel.jsonc", "notes.txt"} {
		padded := make([]byte, 16)
		copy(padded, name)
		header := make([]byte, unix.SizeofInotifyEvent)
		binary.NativeEndian.PutUint32(header[12:16], uint32(len(padded)))
		buffer = append(buffer, header...)
		buffer = append(buffer, padded...)
	}
	if got := eventNames(buffer); !slices.Equal(got, []string{"travel.jsonc", "notes.txt"}) {
		t.Errorf("eventNames = %v", got)
	}

	for name, want := range map[string]string{"travel.jsonc": "travel", ".travel.jsonc.tmp-1": "", "notes.txt": ""} {
		got, _ := collectionFile(name)
		if got != want {
			t.Errorf("collectionFile(%q) = %q, want %q", name, got, want)
		}
	}
}
