// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package consoleui

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/muesli/termenv"

	"github.com/bureau-foundation/console/lib/collection"
	"github.com/bureau-foundation/console/lib/collection/memstore"
	"github.com/bureau-foundation/console/lib/entity"
	"github.com/bureau-foundation/console/lib/viewmodel"
)

// lockedBuffer is an io.Writer safe to read while the program writes.
type lockedBuffer struct {
	mutex  sync.Mutex
	buffer bytes.Buffer
}

func (b *lockedBuffer) Write(data []byte) (int, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.buffer.Write(data)
}

func (b *lockedBuffer) String() string {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.buffer.String()
}

func waitForOutput(t *testing.T, output *lockedBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second) //nolint:realclock test hang prevention
	for !strings.Contains(output.String(), want) {
		if time.Now().After(deadline) { //nolint:realclock test hang prevention
			t.Fatalf("output never contained %q:\n%s", want, output.String())
		}
		time.Sleep(10 * time.Millisecond) //nolint:realclock polling program output
	}
}

func TestRunShowsCollectionUntilQuit(t *testing.T) {
	store := memstore.New(nil)
	t.Cleanup(func() { store.Close() })
	err := store.Upsert(context.Background(), "travel_orders", []collection.Record{
		{ID: "r-1", Fields: map[string]any{"status": "pending", "requesterName": "Ana", "submittedAt": "2026-03-01T09:30:00Z"}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	input, keys := io.Pipe()
	t.Cleanup(func() { keys.Close() })
	output := &lockedBuffer{}
	profile := termenv.Ascii

	result := make(chan error, 1)
	go func() {
		result <- Run(t.Context(), store, viewmodel.Config{
			Collection: "travel_orders",
			Kind:       entity.KindTravel,
			Actor:      "reviewer@example.com",
		}, Options{Input: input, Output: output, Profile: &profile})
	}()

	waitForOutput(t, output, "Ana")
	if _, err := keys.Write([]byte("q")); err != nil {
		t.Fatalf("writing q: %v", err)
	}

	select {
	case err := <-result:
		if err != nil {
			t.Errorf("Run = %v, want nil after quit", err)
		}
	case <-time.After(5 * time.Second): //nolint:realclock test hang prevention
		t.Fatal("Run did not return after q")
	}
	if store.Subscribers("travel_orders") != 0 {
		t.Error("subscription still open after Run returned")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := memstore.New(nil)
	t.Cleanup(func() { store.Close() })

	input, keys := io.Pipe()
	t.Cleanup(func() { keys.Close() })
	profile := termenv.Ascii
	ctx, cancel := context.WithCancel(t.Context())

	output := &lockedBuffer{}
	result := make(chan error, 1)
	go func() {
		result <- Run(ctx, store, viewmodel.Config{
			Collection: "travel_orders",
			Kind:       entity.KindTravel,
		}, Options{Input: input, Output: output, Profile: &profile})
	}()

	waitForOutput(t, output, "no entities")
	cancel()
	select {
	case err := <-result:
		if err != nil {
			t.Errorf("Run = %v, want nil on cancellation", err)
		}
	case <-time.After(5 * time.Second): //nolint:realclock test hang prevention
		t.Fatal("Run did not return after cancellation")
	}
}
