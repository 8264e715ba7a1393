// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package memstore is an in-process [collection.Store]. It backs tests
// and the demo console, and it is the reference for the contract every
// other backend must meet: whole-collection snapshots delivered in
// commit order, and all-or-nothing batch writes.
package memstore

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/bureau-foundation/console/lib/collection"
)

// Store holds collections in memory.
type Store struct {
	// mutex orders writes with Publish, so subscribers see snapshots
	// in commit order.
	mutex       sync.Mutex
	collections map[string]map[string]map[string]any
	failure     error
	closed      bool

	broadcaster *collection.Broadcaster
}

// New returns an empty Store. A nil logger discards.
func New(logger *slog.Logger) *Store {
	return &Store{
		collections: make(map[string]map[string]map[string]any),
		broadcaster: collection.NewBroadcaster(logger),
	}
}

// Subscribe implements [collection.Store].
func (s *Store) Subscribe(ctx context.Context, query collection.Query, handler collection.Handler) (func(), error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	if handler.OnChange == nil {
		return nil, fmt.Errorf("subscribe %q: OnChange is required", query.Collection)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return nil, collection.ErrClosed
	}
	load := func() ([]collection.Record, error) {
		s.mutex.Lock()
		defer s.mutex.Unlock()
		return s.snapshotLocked(query.Collection), nil
	}
	return s.broadcaster.Add(query, handler, s.snapshotLocked(query.Collection), load), nil
}

// BatchUpdate implements [collection.Store].
func (s *Store) BatchUpdate(ctx context.Context, collectionName string, ids []string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return collection.ErrClosed
	}
	if s.failure != nil {
		return s.failure
	}

	documents := s.collections[collectionName]
	for _, id := range ids {
		if _, exists := documents[id]; !exists {
			return fmt.Errorf("%s/%s: %w", collectionName, id, collection.ErrNotFound)
		}
	}
	for _, id := range ids {
		updated := maps.Clone(documents[id])
		maps.Copy(updated, fields)
		documents[id] = updated
	}
	s.publishLocked(collectionName)
	return nil
}

// Snapshot implements [collection.Reader].
func (s *Store) Snapshot(ctx context.Context, query collection.Query) ([]collection.Record, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	s.mutex.Lock()
	records := s.snapshotLocked(query.Collection)
	s.mutex.Unlock()
	collection.SortRecords(records, query.OrderField, query.Direction)
	return records, nil
}

// Upsert implements [collection.Importer].
func (s *Store) Upsert(ctx context.Context, collectionName string, records []collection.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return collection.ErrClosed
	}

	for _, record := range records {
		if record.ID == "" {
			return fmt.Errorf("%s: record without id", collectionName)
		}
	}
	documents := s.collections[collectionName]
	if documents == nil {
		documents = make(map[string]map[string]any)
		s.collections[collectionName] = documents
	}
	for _, record := range records {
		documents[record.ID] = maps.Clone(record.Fields)
	}
	s.publishLocked(collectionName)
	return nil
}

// Delete removes documents. Missing ids are ignored.
func (s *Store) Delete(ctx context.Context, collectionName string, ids ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return collection.ErrClosed
	}
	for _, id := range ids {
		delete(s.collections[collectionName], id)
	}
	s.publishLocked(collectionName)
	return nil
}

// FailWrites makes every following BatchUpdate return err without
// writing. Pass nil to restore normal behavior.
func (s *Store) FailWrites(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.failure = err
}

// Subscribers returns the number of live subscriptions on a
// collection.
func (s *Store) Subscribers(collectionName string) int {
	return s.broadcaster.Count(collectionName)
}

// Close ends every subscription.
func (s *Store) Close() error {
	s.mutex.Lock()
	s.closed = true
	s.mutex.Unlock()
	s.broadcaster.Close()
	return nil
}

func (s *Store) publishLocked(collectionName string) {
	s.broadcaster.Publish(collectionName, s.snapshotLocked(collectionName))
}

// snapshotLocked copies a collection in id order. The field maps are
// shared with the store: documents are replaced on write, never
// mutated, so a published map never changes underneath a subscriber.
func (s *Store) snapshotLocked(collectionName string) []collection.Record {
	documents := s.collections[collectionName]
	records := make([]collection.Record, 0, len(documents))
	for id, fields := range documents {
		records = append(records, collection.Record{ID: id, Fields: fields})
	}
	collection.SortRecords(records, "", collection.Ascending)
	return records
}
