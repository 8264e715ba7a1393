// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package filestore is a [collection.Store] kept as JSONC files, one
// per collection, in a single directory:
//
//	<dir>/travel_orders.jsonc
//	<dir>/tickets.jsonc
//
// The directory is watched with inotify, so edits made by hand or by
// another process reach subscribers as fresh snapshots. The store's own
// writes replace a file atomically (write a temp file, then rename),
// which means comments in a file do not survive a write through the
// store.
package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bureau-foundation/console/lib/collection"
)

// Extension is the suffix of collection files.
const Extension = ".jsonc"

// Store is a directory of collection files.
type Store struct {
	directory string
	logger    *slog.Logger

	// mutex serializes file writes, rereads, and publishes.
	mutex sync.Mutex

	// published holds the bytes behind the last snapshot published
	// per collection, so a reread of unchanged content (including the
	// inotify echo of the store's own write) is not republished.
	published map[string][]byte

	broadcaster *collection.Broadcaster
	watcher     *watcher
}

// Open starts watching directory, creating it if needed.
func Open(directory string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	absolute, err := filepath.Abs(directory)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absolute, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	store := &Store{
		directory:   absolute,
		logger:      logger.With("store_dir", absolute),
		published:   make(map[string][]byte),
		broadcaster: collection.NewBroadcaster(logger),
	}
	store.watcher, err = startWatcher(absolute, store.fileChanged)
	if err != nil {
		return nil, fmt.Errorf("watching %s: %w", absolute, err)
	}
	return store, nil
}

// Directory returns the absolute store directory.
func (s *Store) Directory() string { return s.directory }

// Path returns the file holding a collection.
func (s *Store) Path(collectionName string) string {
	return filepath.Join(s.directory, collectionName+Extension)
}

// Subscribe implements [collection.Store].
func (s *Store) Subscribe(ctx context.Context, query collection.Query, handler collection.Handler) (func(), error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	if err := validateName(query.Collection); err != nil {
		return nil, err
	}
	if handler.OnChange == nil {
		return nil, fmt.Errorf("subscribe %q: OnChange is required", query.Collection)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	initial, _, err := s.readLocked(query.Collection)
	if err != nil {
		return nil, err
	}
	reload := func() ([]collection.Record, error) {
		s.mutex.Lock()
		defer s.mutex.Unlock()
		records, _, err := s.readLocked(query.Collection)
		return records, err
	}
	return s.broadcaster.Add(query, handler, initial, reload), nil
}

// BatchUpdate implements [collection.Store].
func (s *Store) BatchUpdate(ctx context.Context, collectionName string, ids []string, fields map[string]any) error {
	if err := validateName(collectionName); err != nil {
		return err
	}
	return s.rewrite(collectionName, func(records []collection.Record) ([]collection.Record, error) {
		positions := make(map[string]int, len(records))
		for index, record := range records {
			positions[record.ID] = index
		}
		for _, id := range ids {
			if _, exists := positions[id]; !exists {
				return nil, fmt.Errorf("%s/%s: %w", collectionName, id, collection.ErrNotFound)
			}
		}
		for _, id := range ids {
			index := positions[id]
			updated := maps.Clone(records[index].Fields)
			if updated == nil {
				updated = make(map[string]any, len(fields))
			}
			maps.Copy(updated, fields)
			records[index].Fields = updated
		}
		return records, nil
	})
}

// Snapshot implements [collection.Reader].
func (s *Store) Snapshot(ctx context.Context, query collection.Query) ([]collection.Record, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	if err := validateName(query.Collection); err != nil {
		return nil, err
	}
	s.mutex.Lock()
	records, _, err := s.readLocked(query.Collection)
	s.mutex.Unlock()
	if err != nil {
		return nil, err
	}
	collection.SortRecords(records, query.OrderField, query.Direction)
	return records, nil
}

// Upsert implements [collection.Importer].
func (s *Store) Upsert(ctx context.Context, collectionName string, incoming []collection.Record) error {
	if err := validateName(collectionName); err != nil {
		return err
	}
	for _, record := range incoming {
		if record.ID == "" {
			return fmt.Errorf("%s: record without id", collectionName)
		}
	}
	return s.rewrite(collectionName, func(records []collection.Record) ([]collection.Record, error) {
		positions := make(map[string]int, len(records))
		for index, record := range records {
			positions[record.ID] = index
		}
		for _, record := range incoming {
			if index, exists := positions[record.ID]; exists {
				records[index] = record
				continue
			}
			positions[record.ID] = len(records)
			records = append(records, record)
		}
		return records, nil
	})
}

// Delete removes documents. Missing ids are ignored.
func (s *Store) Delete(ctx context.Context, collectionName string, ids ...string) error {
	if err := validateName(collectionName); err != nil {
		return err
	}
	return s.rewrite(collectionName, func(records []collection.Record) ([]collection.Record, error) {
		kept := records[:0]
		for _, record := range records {
			remove := false
			for _, id := range ids {
				if record.ID == id {
					remove = true
					break
				}
			}
			if !remove {
				kept = append(kept, record)
			}
		}
		return kept, nil
	})
}

// Close stops the watcher and ends every subscription.
func (s *Store) Close() error {
	s.watcher.stop()
	s.broadcaster.Close()
	return nil
}

// rewrite applies change to a collection's records and replaces the
// file with the result. Nothing is written if change fails.
func (s *Store) rewrite(collectionName string, change func([]collection.Record) ([]collection.Record, error)) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	records, _, err := s.readLocked(collectionName)
	if err != nil {
		return err
	}
	records, err = change(records)
	if err != nil {
		return err
	}
	data, err := Encode(records)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", collectionName, err)
	}
	if err := writeAtomic(s.Path(collectionName), data); err != nil {
		return err
	}

	// Reparse so subscribers see exactly what a reread would produce.
	published, err := Decode(data)
	if err != nil {
		return fmt.Errorf("reparsing %s: %w", collectionName, err)
	}
	s.published[collectionName] = data
	s.broadcaster.Publish(collectionName, published)
	return nil
}

// readLocked loads a collection file. A missing file is an empty
// collection.
func (s *Store) readLocked(collectionName string) ([]collection.Record, []byte, error) {
	data, err := os.ReadFile(s.Path(collectionName))
	if errors.Is(err, fs.ErrNotExist) {
		return []collection.Record{}, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	records, err := Decode(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", s.Path(collectionName), err)
	}
	for index, record := range records {
		if record.ID == "" {
			return nil, nil, fmt.Errorf("parsing %s: record %d has no id", s.Path(collectionName), index)
		}
	}
	return records, data, nil
}

// fileChanged runs on the watcher goroutine for every collection file
// created, rewritten, or renamed into the directory.
func (s *Store) fileChanged(collectionName string) {
	if s.broadcaster.Count(collectionName) == 0 {
		return
	}

	s.mutex.Lock()
	records, data, err := s.readLocked(collectionName)
	if err == nil && !bytes.Equal(data, s.published[collectionName]) {
		s.published[collectionName] = data
		s.broadcaster.Publish(collectionName, records)
		s.logger.Debug("collection file changed", "collection", collectionName, "records", len(records))
	}
	s.mutex.Unlock()

	if err != nil {
		s.logger.Warn("unreadable collection file, keeping last snapshot", "collection", collectionName, "error", err)
		s.broadcaster.Fail(collectionName, err)
	}
}

func writeAtomic(path string, data []byte) error {
	temporary, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	cleanup := func() { os.Remove(temporary.Name()) }
	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		cleanup()
		return err
	}
	if err := temporary.Sync(); err != nil {
		temporary.Close()
		cleanup()
		return err
	}
	if err := temporary.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(temporary.Name(), path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// validateName rejects collection names that are not a plain file
// name.
func validateName(name string) error {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("invalid collection name %q", name)
	}
	return nil
}
