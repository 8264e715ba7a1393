// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/console/lib/collection"
	"github.com/bureau-foundation/console/lib/collection/filestore"
	"github.com/bureau-foundation/console/lib/collection/memstore"
	"github.com/bureau-foundation/console/lib/collection/redisstore"
	"github.com/bureau-foundation/console/lib/collection/sqlitestore"
	"github.com/bureau-foundation/console/lib/config"
)

// backingStore is what the service needs from a configured store.
type backingStore interface {
	collection.Store
	collection.Reader
	collection.Importer
	Close() error
}

var (
	_ backingStore = (*memstore.Store)(nil)
	_ backingStore = (*sqlitestore.Store)(nil)
	_ backingStore = (*filestore.Store)(nil)
	_ backingStore = (*redisstore.Store)(nil)
)

// openStore opens the configured backend. The caller closes it.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (backingStore, error) {
	storeLogger := logger.With("backend", cfg.Store.Backend)
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		store, err := sqlitestore.Open(sqlitestore.Config{
			Path:     cfg.Store.SQLite.Path,
			PoolSize: cfg.Store.SQLite.PoolSize,
			Logger:   storeLogger,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendFile:
		store, err := filestore.Open(cfg.Store.File.Directory, storeLogger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendRedis:
		store, err := redisstore.Open(ctx, redisstore.Config{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix,
			Logger:   storeLogger,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendMemory:
		return memstore.New(storeLogger), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
