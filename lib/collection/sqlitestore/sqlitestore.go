// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitestore is a [collection.Store] persisted in a local
// SQLite database. Documents are stored as deterministic CBOR bodies
// keyed by (collection, id); batch writes run in one IMMEDIATE
// transaction, so a batch naming a missing document writes nothing.
//
// Subscriptions are served from the same process: after each commit
// the store rereads the affected collection and publishes it. Writes
// made by another process sharing the file are not observed.
package sqlitestore

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/console/lib/codec"
	"github.com/bureau-foundation/console/lib/collection"
	"github.com/bureau-foundation/console/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	body       BLOB NOT NULL,
	revision   INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (collection, id)
) WITHOUT ROWID;
`

// Config holds the parameters for Open.
type Config struct {
	Path     string
	PoolSize int
	Logger   *slog.Logger
}

// Store is a SQLite-backed collection store.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger

	// writeMutex spans commit and publish so subscribers see
	// snapshots in commit order, and spans snapshot-and-register in
	// Subscribe so no commit falls between the two.
	writeMutex  sync.Mutex
	broadcaster *collection.Broadcaster
}

// Open opens (creating if needed) the database at config.Path.
func Open(config Config) (*Store, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     config.Path,
		PoolSize: config.PoolSize,
		Schema:   schema,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	return &Store{
		pool:        pool,
		logger:      logger,
		broadcaster: collection.NewBroadcaster(logger),
	}, nil
}

// Subscribe implements [collection.Store].
func (s *Store) Subscribe(ctx context.Context, query collection.Query, handler collection.Handler) (func(), error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	if handler.OnChange == nil {
		return nil, fmt.Errorf("subscribe %q: OnChange is required", query.Collection)
	}

	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	initial, err := s.load(ctx, query.Collection)
	if err != nil {
		return nil, err
	}
	reload := func() ([]collection.Record, error) {
		return s.load(context.Background(), query.Collection)
	}
	return s.broadcaster.Add(query, handler, initial, reload), nil
}

// BatchUpdate implements [collection.Store].
func (s *Store) BatchUpdate(ctx context.Context, collectionName string, ids []string, fields map[string]any) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		for _, id := range ids {
			existing, found, err := readBody(conn, collectionName, id)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%s/%s: %w", collectionName, id, collection.ErrNotFound)
			}
			maps.Copy(existing, fields)
			body, err := codec.Marshal(existing)
			if err != nil {
				return fmt.Errorf("encoding %s/%s: %w", collectionName, id, err)
			}
			if err := sqlitex.Execute(conn,
				"UPDATE documents SET body = ?, revision = revision + 1 WHERE collection = ? AND id = ?",
				&sqlitex.ExecOptions{Args: []any{body, collectionName, id}},
			); err != nil {
				return fmt.Errorf("updating %s/%s: %w", collectionName, id, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publishLocked(collectionName)
	return nil
}

// Snapshot implements [collection.Reader].
func (s *Store) Snapshot(ctx context.Context, query collection.Query) ([]collection.Record, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	records, err := s.load(ctx, query.Collection)
	if err != nil {
		return nil, err
	}
	collection.SortRecords(records, query.OrderField, query.Direction)
	return records, nil
}

// Upsert implements [collection.Importer].
func (s *Store) Upsert(ctx context.Context, collectionName string, records []collection.Record) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		for _, record := range records {
			if record.ID == "" {
				return fmt.Errorf("%s: record without id", collectionName)
			}
			fields := record.Fields
			if fields == nil {
				fields = map[string]any{}
			}
			body, err := codec.Marshal(fields)
			if err != nil {
				return fmt.Errorf("encoding %s/%s: %w", collectionName, record.ID, err)
			}
			if err := sqlitex.Execute(conn, `
				INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)
				ON CONFLICT (collection, id) DO UPDATE SET body = excluded.body, revision = revision + 1`,
				&sqlitex.ExecOptions{Args: []any{collectionName, record.ID, body}},
			); err != nil {
				return fmt.Errorf("writing %s/%s: %w", collectionName, record.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publishLocked(collectionName)
	return nil
}

// Delete removes documents. Missing ids are ignored.
func (s *Store) Delete(ctx context.Context, collectionName string, ids ...string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		for _, id := range ids {
			if err := sqlitex.Execute(conn,
				"DELETE FROM documents WHERE collection = ? AND id = ?",
				&sqlitex.ExecOptions{Args: []any{collectionName, id}},
			); err != nil {
				return fmt.Errorf("deleting %s/%s: %w", collectionName, id, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publishLocked(collectionName)
	return nil
}

// Collections lists every collection holding at least one document.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	var names []string
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT DISTINCT collection FROM documents ORDER BY collection", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				names = append(names, stmt.ColumnText(0))
				return nil
			},
		})
	})
	return names, err
}

// Close ends every subscription and closes the database.
func (s *Store) Close() error {
	s.broadcaster.Close()
	return s.pool.Close()
}

// publishLocked rereads a collection after a commit. A failed reread
// is reported to subscribers; the write itself has already succeeded.
func (s *Store) publishLocked(collectionName string) {
	records, err := s.load(context.Background(), collectionName)
	if err != nil {
		s.logger.Error("reloading collection after write", "collection", collectionName, "error", err)
		s.broadcaster.Fail(collectionName, err)
		return
	}
	s.broadcaster.Publish(collectionName, records)
}

func (s *Store) load(ctx context.Context, collectionName string) ([]collection.Record, error) {
	var records []collection.Record
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"SELECT id, body FROM documents WHERE collection = ? ORDER BY id",
			&sqlitex.ExecOptions{
				Args: []any{collectionName},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					id := stmt.ColumnText(0)
					fields, err := decodeBody(stmt, 1)
					if err != nil {
						return fmt.Errorf("decoding %s/%s: %w", collectionName, id, err)
					}
					records = append(records, collection.Record{ID: id, Fields: fields})
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", collectionName, err)
	}
	if records == nil {
		records = []collection.Record{}
	}
	return records, nil
}

func readBody(conn *sqlite.Conn, collectionName, id string) (map[string]any, bool, error) {
	var fields map[string]any
	found := false
	err := sqlitex.Execute(conn,
		"SELECT body FROM documents WHERE collection = ? AND id = ?",
		&sqlitex.ExecOptions{
			Args: []any{collectionName, id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				decoded, err := decodeBody(stmt, 0)
				fields = decoded
				return err
			},
		})
	if err != nil {
		return nil, false, fmt.Errorf("reading %s/%s: %w", collectionName, id, err)
	}
	return fields, found, nil
}

func decodeBody(stmt *sqlite.Stmt, column int) (map[string]any, error) {
	body := make([]byte, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, body)
	fields := map[string]any{}
	if err := codec.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
