// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/console/lib/clock"
	"github.com/bureau-foundation/console/lib/collection"
	"github.com/bureau-foundation/console/lib/collection/memstore"
	"github.com/bureau-foundation/console/lib/collection/storetest"
	"github.com/bureau-foundation/console/lib/entity"
	"github.com/bureau-foundation/console/lib/feed"
	"github.com/bureau-foundation/console/lib/service"
	"github.com/bureau-foundation/console/lib/testutil"
)

// serve runs a console socket server in front of store until the
// returned cancel is called or the test ends.
func serve(t *testing.T, socketPath string, store collection.Store, config ServerConfig) (cancel func()) {
	t.Helper()
	socket := service.NewSocketServer(socketPath, nil)
	NewServer(store, config).Register(socket)

	ctx, cancelContext := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := socket.Serve(ctx); err != nil {
			t.Errorf("Serve: %v", err)
		}
	}()
	stop := func() {
		cancelContext()
		testutil.RequireClosed(t, done, 5*time.Second, "Serve did not return")
	}
	t.Cleanup(stop)
	waitForSocket(t, socketPath)
	return stop
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second) //nolint:realclock test hang prevention
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("unix", path); err == nil {
			conn.Close()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("socket %s never became ready", path)
}

func socketPath(t *testing.T) string {
	return filepath.Join(testutil.SocketDir(t), "console.sock")
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend {
		local := memstore.New(nil)
		t.Cleanup(func() { local.Close() })
		path := socketPath(t)
		serve(t, path, local, ServerConfig{})
		client := New(Config{SocketPath: path})
		return storetest.Backend{Store: client, Importer: client}
	})
}

func TestBatchUpdateNotFoundCrossesSocket(t *testing.T) {
	local := memstore.New(nil)
	path := socketPath(t)
	serve(t, path, local, ServerConfig{})
	client := New(Config{SocketPath: path})

	if err := client.Upsert(context.Background(), "travel", []collection.Record{{ID: "a", Fields: map[string]any{"status": "pending"}}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	err := client.BatchUpdate(context.Background(), "travel", []string{"a", "ghost"}, map[string]any{"status": "approved"})
	if !errors.Is(err, collection.ErrNotFound) {
		t.Fatalf("BatchUpdate error = %v, want ErrNotFound", err)
	}

	records, err := client.Snapshot(context.Background(), collection.Query{Collection: "travel"})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(records) != 1 || records[0].Fields["status"] != "pending" {
		t.Errorf("records after rejected batch = %+v", records)
	}
}

func TestTimestampFieldCrossesSocket(t *testing.T) {
	local := memstore.New(nil)
	path := socketPath(t)
	serve(t, path, local, ServerConfig{})
	client := New(Config{SocketPath: path})

	if err := client.Upsert(context.Background(), "travel", []collection.Record{{ID: "a", Fields: map[string]any{"status": "pending"}}}); err != nil {
		t.Fatal(err)
	}
	updatedAt := time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC)
	err := client.BatchUpdate(context.Background(), "travel", []string{"a"}, map[string]any{
		"status":    "approved",
		"updatedAt": collection.TimestampOf(updatedAt),
	})
	if err != nil {
		t.Fatalf("BatchUpdate: %v", err)
	}
	records, err := local.Snapshot(context.Background(), collection.Query{Collection: "travel"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := entity.ParseTimestamp(records[0].Fields["updatedAt"])
	if err != nil || !got.Equal(updatedAt) {
		t.Errorf("updatedAt = %v (%v), want %v", records[0].Fields["updatedAt"], err, updatedAt)
	}
}

func TestDisallowedCollection(t *testing.T) {
	local := memstore.New(nil)
	path := socketPath(t)
	serve(t, path, local, ServerConfig{Collections: []string{"travel"}})
	client := New(Config{SocketPath: path})

	_, err := client.Snapshot(context.Background(), collection.Query{Collection: "payroll"})
	var serviceError *service.ServiceError
	if !errors.As(err, &serviceError) || serviceError.Code != CodeInvalid {
		t.Fatalf("Snapshot(payroll) error = %v, want invalid code", err)
	}

	errs := make(chan error, 4)
	unsubscribe, err := client.Subscribe(context.Background(), collection.Query{Collection: "payroll"}, collection.Handler{
		OnChange: func([]collection.Record) { t.Error("snapshot delivered for a disallowed collection") },
		OnError:  func(err error) { errs <- err },
	})
	if err != nil {
		t.Fatal(err)
	}
	defer unsubscribe()

	var streamError *StreamError
	if err := testutil.RequireReceive(t, errs, 5*time.Second, "stream error"); !errors.As(err, &streamError) {
		t.Errorf("OnError = %v, want *StreamError", err)
	}
}

func TestReconnectAfterServerRestart(t *testing.T) {
	local := memstore.New(nil)
	local.Upsert(context.Background(), "travel", []collection.Record{{ID: "a", Fields: map[string]any{"status": "pending"}}})
	path := socketPath(t)
	stopFirst := serve(t, path, local, ServerConfig{})

	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	client := New(Config{SocketPath: path, Clock: fake})
	snapshots := make(chan []collection.Record, 16)
	errs := make(chan error, 16)
	unsubscribe, err := client.Subscribe(context.Background(), collection.Query{Collection: "travel"}, collection.Handler{
		OnChange: func(records []collection.Record) { snapshots <- records },
		OnError:  func(err error) { errs <- err },
	})
	if err != nil {
		t.Fatal(err)
	}
	defer unsubscribe()
	testutil.RequireReceive(t, snapshots, 5*time.Second, "first snapshot")

	stopFirst()
	testutil.RequireReceive(t, errs, 5*time.Second, "disconnect error")

	local.Upsert(context.Background(), "travel", []collection.Record{{ID: "b", Fields: map[string]any{"status": "pending"}}})
	serve(t, path, local, ServerConfig{})

	fake.WaitForTimers(1)
	fake.Advance(initialBackoff)
	snapshot := testutil.RequireReceive(t, snapshots, 5*time.Second, "snapshot after reconnect")
	if len(snapshot) != 2 {
		t.Errorf("snapshot after reconnect has %d records, want 2", len(snapshot))
	}
}

func TestBackoffDoublesWhileUnreachable(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	client := New(Config{SocketPath: filepath.Join(testutil.SocketDir(t), "absent.sock"), Clock: fake})
	errs := make(chan error, 16)
	unsubscribe, err := client.Subscribe(context.Background(), collection.Query{Collection: "travel"}, collection.Handler{
		OnChange: func([]collection.Record) {},
		OnError:  func(err error) { errs <- err },
	})
	if err != nil {
		t.Fatal(err)
	}
	defer unsubscribe()

	for _, wait := range []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second} {
		testutil.RequireReceive(t, errs, 5*time.Second, "dial failure")
		fake.WaitForTimers(1)
		// Advancing less than the backoff must not retry.
		fake.Advance(wait - time.Millisecond)
		select {
		case err := <-errs:
			t.Fatalf("retried before %v elapsed: %v", wait, err)
		case <-time.After(20 * time.Millisecond): //nolint:realclock negative check
		}
		fake.Advance(time.Millisecond)
	}
}

func TestStreamFramesAndHeartbeat(t *testing.T) {
	local := memstore.New(nil)
	local.Upsert(context.Background(), "travel", []collection.Record{{ID: "a", Fields: map[string]any{"status": "pending"}}})
	path := socketPath(t)
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	serve(t, path, local, ServerConfig{Clock: fake, Heartbeat: 15 * time.Second, Compression: feed.ModeNone})

	conn, err := service.NewServiceClient(path).OpenStream(context.Background(), ActionSubscribe, map[string]any{"collection": "travel"})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	reader := feed.NewReader(conn)

	first, err := reader.Next()
	if err != nil {
		t.Fatal(err)
	}
	if first.Type != feed.FrameSnapshot || first.Sequence != 1 || first.Compression != feed.CompressionNone {
		t.Fatalf("first frame = %+v", first)
	}

	fake.WaitForTimers(1)
	fake.Advance(15 * time.Second)
	heartbeat, err := reader.Next()
	if err != nil {
		t.Fatal(err)
	}
	if heartbeat.Type != feed.FrameHeartbeat || heartbeat.Sequence != 1 {
		t.Errorf("heartbeat = %+v", heartbeat)
	}

	// Re-importing identical content publishes, but the digest is
	// unchanged, so the next frame is the real change.
	local.Upsert(context.Background(), "travel", []collection.Record{{ID: "a", Fields: map[string]any{"status": "pending"}}})
	local.Upsert(context.Background(), "travel", []collection.Record{{ID: "a", Fields: map[string]any{"status": "approved"}}})
	next, err := reader.Next()
	if err != nil {
		t.Fatal(err)
	}
	records, err := feed.Records(next)
	if err != nil {
		t.Fatal(err)
	}
	if next.Sequence != 2 || records[0].Fields["status"] != "approved" {
		t.Errorf("next frame = sequence %d, records %+v", next.Sequence, records)
	}
}

// subscribeOnly hides memstore's Reader so Snapshot takes the
// subscription path.
type subscribeOnly struct{ collection.Store }

func TestSnapshotFallsBackToSubscription(t *testing.T) {
	local := memstore.New(nil)
	local.Upsert(context.Background(), "travel", []collection.Record{{ID: "a"}, {ID: "b"}})

	records, err := Snapshot(context.Background(), subscribeOnly{local}, collection.Query{Collection: "travel"})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}
	if local.Subscribers("travel") != 0 {
		t.Errorf("fallback subscription leaked: %d subscribers", local.Subscribers("travel"))
	}
}

func TestImportRejectedWithoutImporter(t *testing.T) {
	path := socketPath(t)
	serve(t, path, subscribeOnly{memstore.New(nil)}, ServerConfig{})
	client := New(Config{SocketPath: path})
	err := client.Upsert(context.Background(), "travel", []collection.Record{{ID: "a"}})
	var serviceError *service.ServiceError
	if !errors.As(err, &serviceError) {
		t.Fatalf("Upsert error = %v, want ServiceError", err)
	}
}
