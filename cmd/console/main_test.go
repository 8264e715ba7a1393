// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/console/cmd/console/cli"
	"github.com/bureau-foundation/console/lib/collection"
	"github.com/bureau-foundation/console/lib/collection/filestore"
	"github.com/bureau-foundation/console/lib/collection/memstore"
	"github.com/bureau-foundation/console/lib/collection/remote"
	"github.com/bureau-foundation/console/lib/service"
	"github.com/bureau-foundation/console/lib/testutil"
)

// execute runs the command tree with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	stdout, _, err := executeWithStderr(t, args...)
	return stdout, err
}

func executeWithStderr(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := rootCommand(&stdout, &stderr).Execute(t.Context(), args)
	return stdout.String(), stderr.String(), err
}

func requireCategory(t *testing.T, err error, want cli.ErrorCategory) {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil, want %s", want)
	}
	if got := cli.Classify(err).Category; got != want {
		t.Fatalf("category = %s, want %s (error: %v)", got, want, err)
	}
}

func travelRecord(id, status, requester, submitted string) collection.Record {
	return collection.Record{ID: id, Fields: map[string]any{
		"status":        status,
		"requesterName": requester,
		"destination":   "Lisbon",
		"department":    "Finance",
		"submittedAt":   submitted,
	}}
}

// storeDir writes a travel collection file and returns its directory.
// The built-in configuration is used regardless of the environment.
func storeDir(t *testing.T) string {
	t.Helper()
	t.Setenv("CONSOLE_CONFIG", "")
	directory := t.TempDir()
	data, err := filestore.Encode([]collection.Record{
		travelRecord("a", "pending", "Ana", "2026-03-01T09:00:00Z"),
		travelRecord("b", "approved", "Ben", "2026-03-02T09:00:00Z"),
		travelRecord("c", "pending", "Cal", "2026-03-03T09:00:00Z"),
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := os.WriteFile(filepath.Join(directory, "travel.jsonc"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	return directory
}

func decodeList(t *testing.T, output string) listOutput {
	t.Helper()
	var decoded listOutput
	if err := json.Unmarshal([]byte(output), &decoded); err != nil {
		t.Fatalf("decoding list output: %v\n%s", err, output)
	}
	return decoded
}

func entityIDs(output listOutput) []string {
	ids := make([]string, len(output.Entities))
	for index, entry := range output.Entities {
		ids[index] = entry.ID
	}
	return ids
}

func TestListFiltersAndSortsNewestFirst(t *testing.T) {
	directory := storeDir(t)
	output, err := execute(t, "list", "travel", "--store-dir", directory, "--status", "pending", "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	listed := decodeList(t, output)
	if got := entityIDs(listed); !slices.Equal(got, []string{"c", "a"}) {
		t.Errorf("ids = %v, want [c a]", got)
	}
	if listed.TotalItems != 2 || listed.SortField != "submittedAt" || listed.SortOrder != "desc" {
		t.Errorf("page = %+v", listed)
	}
}

func TestListPaging(t *testing.T) {
	directory := storeDir(t)
	output, err := execute(t, "list", "travel", "--store-dir", directory,
		"--sort", "requesterName", "--page-size", "2", "--page", "2", "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	listed := decodeList(t, output)
	if got := entityIDs(listed); !slices.Equal(got, []string{"c"}) {
		t.Errorf("page 2 ids = %v, want [c]", got)
	}
	if listed.Page != 2 || listed.TotalPages != 2 || listed.StartIndex != 3 || listed.EndIndex != 3 {
		t.Errorf("window = %+v", listed)
	}

	// An out-of-range page clamps to the last one.
	output, err = execute(t, "list", "travel", "--store-dir", directory, "--page-size", "2", "--page", "9", "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if listed := decodeList(t, output); listed.Page != 2 {
		t.Errorf("clamped page = %d, want 2", listed.Page)
	}
}

func TestListDateRange(t *testing.T) {
	directory := storeDir(t)
	output, err := execute(t, "list", "travel", "--store-dir", directory,
		"--from", "2026-03-02", "--to", "2026-03-02", "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := entityIDs(decodeList(t, output)); !slices.Equal(got, []string{"b"}) {
		t.Errorf("ids for 2026-03-02 = %v, want [b]", got)
	}

	_, err = execute(t, "list", "travel", "--store-dir", directory, "--from", "March")
	requireCategory(t, err, cli.CategoryValidation)
}

func TestListTable(t *testing.T) {
	directory := storeDir(t)
	output, err := execute(t, "list", "travel", "--store-dir", directory)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, want := range []string{"REQUESTER NAME", "Ana", "2026-03-03 09:00", "page 1/1, items 1-3 of 3"} {
		if !strings.Contains(output, want) {
			t.Errorf("table missing %q:\n%s", want, output)
		}
	}

	output, err = execute(t, "list", "travel", "--store-dir", directory, "--text", "nobody")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(output, "no entities match the filter") {
		t.Errorf("empty filtered table:\n%s", output)
	}
}

func TestListValidation(t *testing.T) {
	directory := storeDir(t)

	_, err := execute(t, "list", "--store-dir", directory)
	requireCategory(t, err, cli.CategoryValidation)

	_, err = execute(t, "list", "nosuch", "--store-dir", directory)
	requireCategory(t, err, cli.CategoryNotFound)

	output, err := execute(t, "list", "nosuch", "--store-dir", directory, "--kind", "travel")
	if err != nil {
		t.Fatalf("list with --kind: %v", err)
	}
	if !strings.Contains(output, "no entities") {
		t.Errorf("unconfigured empty collection:\n%s", output)
	}

	_, err = execute(t, "list", "nosuch", "--store-dir", directory, "--kind", "spaceship")
	requireCategory(t, err, cli.CategoryValidation)
}

func TestListUnknownStatusIsEmptyPage(t *testing.T) {
	directory := storeDir(t)

	output, stderr, err := executeWithStderr(t, "list", "travel", "--store-dir", directory, "--status", "bogus")
	if err != nil {
		t.Fatalf("list --status bogus: %v", err)
	}
	if !strings.Contains(output, "no entities match the filter") {
		t.Errorf("stdout:\n%s", output)
	}
	if !strings.Contains(stderr, `status filter "bogus" is not valid`) || !strings.Contains(stderr, "hint: Statuses for travel:") {
		t.Errorf("stderr:\n%s", stderr)
	}

	output, _, err = executeWithStderr(t, "list", "travel", "--store-dir", directory, "--status", "bogus", "--json")
	if err != nil {
		t.Fatalf("list --status bogus --json: %v", err)
	}
	var decoded listOutput
	if err := json.Unmarshal([]byte(output), &decoded); err != nil {
		t.Fatalf("decoding list: %v\n%s", err, output)
	}
	if len(decoded.Entities) != 0 {
		t.Errorf("entities = %d, want 0", len(decoded.Entities))
	}
}

func decodeStats(t *testing.T, output string) map[string]int {
	t.Helper()
	var decoded statsOutput
	if err := json.Unmarshal([]byte(output), &decoded); err != nil {
		t.Fatalf("decoding stats: %v\n%s", err, output)
	}
	counts := map[string]int{"total": decoded.Total}
	for _, entry := range decoded.Statuses {
		counts[entry.Status] = entry.Count
	}
	return counts
}

func TestApproveUpdatesStats(t *testing.T) {
	directory := storeDir(t)

	output, err := execute(t, "approve", "travel", "a", "c", "--store-dir", directory, "--actor", "reviewer@example.com")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if want := "travel: 2 set to approved by reviewer@example.com\n"; output != want {
		t.Errorf("approve output = %q, want %q", output, want)
	}

	output, err = execute(t, "stats", "travel", "--store-dir", directory, "--json")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	counts := decodeStats(t, output)
	if counts["approved"] != 3 || counts["pending"] != 0 || counts["total"] != 3 {
		t.Errorf("counts after approve = %v", counts)
	}

	output, err = execute(t, "list", "travel", "--store-dir", directory, "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, entry := range decodeList(t, output).Entities {
		if entry.ID == "a" && entry.Fields["updatedBy"] != "reviewer@example.com" {
			t.Errorf("a.updatedBy = %v", entry.Fields["updatedBy"])
		}
	}
}

func TestApproveMissingIDWritesNothing(t *testing.T) {
	directory := storeDir(t)

	_, err := execute(t, "deny", "travel", "a", "ghost", "--store-dir", directory, "--actor", "reviewer@example.com")
	requireCategory(t, err, cli.CategoryNotFound)

	output, err := execute(t, "stats", "travel", "--store-dir", directory, "--json")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if counts := decodeStats(t, output); counts["pending"] != 2 || counts["denied"] != 0 {
		t.Errorf("counts after rejected batch = %v", counts)
	}
}

func TestBulkStatus(t *testing.T) {
	directory := storeDir(t)

	_, err := execute(t, "bulk", "travel", "a", "--store-dir", directory)
	requireCategory(t, err, cli.CategoryValidation)

	_, err = execute(t, "bulk", "travel", "a", "--status", "in_progress", "--store-dir", directory)
	requireCategory(t, err, cli.CategoryValidation)

	output, err := execute(t, "bulk", "travel", "a", "b", "--status", "Completed", "--store-dir", directory, "--actor", "ops", "--json")
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	var result mutateResult
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Fatalf("decoding bulk output: %v", err)
	}
	if result.Status != "completed" || !slices.Equal(result.IDs, []string{"a", "b"}) {
		t.Errorf("bulk result = %+v", result)
	}
}

func TestSeedGeneratesMissingIDs(t *testing.T) {
	t.Setenv("CONSOLE_CONFIG", "")
	directory := t.TempDir()
	seedFile := filepath.Join(t.TempDir(), "travel.jsonc")
	err := os.WriteFile(seedFile, []byte(`[
		// one with an id, one without
		{"id": "tr-1", "status": "pending", "requesterName": "Ana"},
		{"status": "approved", "requesterName": "Ben",},
	]`), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	output, err := execute(t, "seed", "travel", seedFile, "--store-dir", directory)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if want := "travel: imported 2 records (1 new ids)\n"; output != want {
		t.Errorf("seed output = %q, want %q", output, want)
	}

	output, err = execute(t, "list", "travel", "--store-dir", directory, "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	ids := entityIDs(decodeList(t, output))
	if len(ids) != 2 || !slices.Contains(ids, "tr-1") {
		t.Fatalf("ids after seed = %v", ids)
	}
	for _, id := range ids {
		if id == "tr-1" {
			continue
		}
		if _, err := uuid.Parse(id); err != nil {
			t.Errorf("generated id %q is not a UUID: %v", id, err)
		}
	}

	_, err = execute(t, "seed", "travel", filepath.Join(directory, "absent.jsonc"), "--store-dir", directory)
	requireCategory(t, err, cli.CategoryNotFound)
}

func TestUnknownCommandSuggests(t *testing.T) {
	_, err := execute(t, "lsit")
	requireCategory(t, err, cli.CategoryValidation)
	if !strings.Contains(err.Error(), `did you mean "list"`) {
		t.Errorf("error = %v, want a suggestion", err)
	}
}

func TestWatchNeedsTerminal(t *testing.T) {
	_, err := execute(t, "watch", "travel", "--store-dir", t.TempDir())
	requireCategory(t, err, cli.CategoryValidation)
}

// serveConsole runs a socket server with the collection actions and a
// status action in front of store.
func serveConsole(t *testing.T, store collection.Store) string {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "console.sock")
	socket := service.NewSocketServer(socketPath, nil)
	socket.Handle("status", func(ctx context.Context, raw []byte) (any, error) {
		return serviceStatus{
			UptimeSeconds: 90,
			Version:       "test",
			Backend:       "memory",
			Collections:   []servedCollection{{Name: "travel", Kind: "travel", Records: 3}},
		}, nil
	})
	remote.NewServer(store, remote.ServerConfig{Collections: []string{"travel"}}).Register(socket)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := socket.Serve(ctx); err != nil {
			t.Errorf("Serve: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		testutil.RequireClosed(t, done, 5*time.Second, "Serve did not return")
	})

	deadline := time.Now().Add(5 * time.Second) //nolint:realclock test hang prevention
	for {
		if conn, err := net.Dial("unix", socketPath); err == nil {
			conn.Close()
			return socketPath
		}
		if time.Now().After(deadline) { //nolint:realclock test hang prevention
			t.Fatalf("socket %s never became ready", socketPath)
		}
		time.Sleep(5 * time.Millisecond) //nolint:realclock polling socket readiness
	}
}

func TestCommandsOverService(t *testing.T) {
	t.Setenv("CONSOLE_CONFIG", "")
	store := memstore.New(nil)
	t.Cleanup(func() { store.Close() })
	err := store.Upsert(context.Background(), "travel", []collection.Record{
		travelRecord("a", "pending", "Ana", "2026-03-01T09:00:00Z"),
		travelRecord("b", "pending", "Ben", "2026-03-02T09:00:00Z"),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	socketPath := serveConsole(t, store)

	if _, err := execute(t, "approve", "travel", "b", "--socket", socketPath, "--actor", "ops"); err != nil {
		t.Fatalf("approve over service: %v", err)
	}
	output, err := execute(t, "list", "travel", "--socket", socketPath, "--status", "approved", "--json")
	if err != nil {
		t.Fatalf("list over service: %v", err)
	}
	if got := entityIDs(decodeList(t, output)); !slices.Equal(got, []string{"b"}) {
		t.Errorf("approved ids = %v, want [b]", got)
	}

	_, err = execute(t, "approve", "travel", "ghost", "--socket", socketPath, "--actor", "ops")
	requireCategory(t, err, cli.CategoryNotFound)

	output, err = execute(t, "status", "--socket", socketPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(output, "console-service test, up 1m30s, memory backend") || !strings.Contains(output, "travel") {
		t.Errorf("status output:\n%s", output)
	}
}

func TestServiceUnreachableIsTransient(t *testing.T) {
	t.Setenv("CONSOLE_CONFIG", "")
	socketPath := filepath.Join(testutil.SocketDir(t), "absent.sock")

	_, err := execute(t, "status", "--socket", socketPath, "--timeout", "2s")
	requireCategory(t, err, cli.CategoryTransient)

	_, err = execute(t, "list", "travel", "--socket", socketPath, "--timeout", "2s")
	requireCategory(t, err, cli.CategoryTransient)

	_, err = execute(t, "status", "--store-dir", t.TempDir())
	requireCategory(t, err, cli.CategoryValidation)
}
