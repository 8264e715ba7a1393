// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package redisstore is a [collection.Store] shared through Redis, so
// several console services can serve the same collections.
//
// Layout, with the default "console" prefix:
//
//	console:<collection>          hash of id -> JSON document
//	console:changed:<collection>  pub/sub channel, one message per write
//	console:lock:<collection>     redislock key serializing writers
//
// Every write ends with a PUBLISH inside the same MULTI/EXEC, and
// every store instance rereads the hash when that message arrives. A
// store therefore sees its own writes and everyone else's the same
// way.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/bureau-foundation/console/lib/collection"
)

const (
	defaultPrefix  = "console"
	defaultLockTTL = 10 * time.Second
	lockRetry      = 25 * time.Millisecond
)

// Config holds the parameters for Open.
type Config struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces every key and channel. Defaults to "console".
	Prefix string

	// LockTTL bounds how long a crashed writer can block others.
	// Defaults to 10s.
	LockTTL time.Duration

	Logger *slog.Logger
}

// Store is a Redis-backed collection store.
type Store struct {
	client  *redis.Client
	locker  *redislock.Client
	prefix  string
	lockTTL time.Duration
	logger  *slog.Logger

	// mutex orders snapshot loads with Broadcaster.Add and Publish,
	// and guards feeds.
	mutex       sync.Mutex
	feeds       map[string]*redis.PubSub
	closed      bool
	broadcaster *collection.Broadcaster
	waitGroup   sync.WaitGroup
}

// Open connects and pings the server.
func Open(ctx context.Context, config Config) (*Store, error) {
	if config.Addr == "" {
		return nil, errors.New("redisstore: address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redisstore: ping %s: %w", config.Addr, err)
	}
	return New(client, config), nil
}

// New wraps an existing client. The store closes it on Close.
func New(client *redis.Client, config Config) *Store {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	prefix := config.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	lockTTL := config.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &Store{
		client:      client,
		locker:      redislock.New(client),
		prefix:      prefix,
		lockTTL:     lockTTL,
		logger:      logger,
		feeds:       make(map[string]*redis.PubSub),
		broadcaster: collection.NewBroadcaster(logger),
	}
}

func (s *Store) hashKey(collectionName string) string { return s.prefix + ":" + collectionName }
func (s *Store) channel(collectionName string) string {
	return s.prefix + ":changed:" + collectionName
}
func (s *Store) lockKey(collectionName string) string { return s.prefix + ":lock:" + collectionName }

// Subscribe implements [collection.Store]. The first subscription to a
// collection opens a pub/sub feed for it, which stays open until
// Close.
func (s *Store) Subscribe(ctx context.Context, query collection.Query, handler collection.Handler) (func(), error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	if handler.OnChange == nil {
		return nil, fmt.Errorf("subscribe %q: OnChange is required", query.Collection)
	}
	if err := s.ensureFeed(ctx, query.Collection); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	initial, err := s.load(ctx, query.Collection)
	if err != nil {
		return nil, err
	}
	reload := func() ([]collection.Record, error) {
		return s.load(context.Background(), query.Collection)
	}
	return s.broadcaster.Add(query, handler, initial, reload), nil
}

// BatchUpdate implements [collection.Store]. The collection lock is
// held across reading the documents and the MULTI/EXEC that replaces
// them, so concurrent writers cannot interleave.
func (s *Store) BatchUpdate(ctx context.Context, collectionName string, ids []string, fields map[string]any) error {
	return s.locked(ctx, collectionName, func() error {
		key := s.hashKey(collectionName)
		if len(ids) == 0 {
			return nil
		}
		values, err := s.client.HMGet(ctx, key, ids...).Result()
		if err != nil {
			return fmt.Errorf("reading %s: %w", collectionName, err)
		}

		pairs := make([]any, 0, 2*len(ids))
		for index, value := range values {
			text, ok := value.(string)
			if !ok {
				return fmt.Errorf("%s/%s: %w", collectionName, ids[index], collection.ErrNotFound)
			}
			document, err := decodeDocument(text)
			if err != nil {
				return fmt.Errorf("decoding %s/%s: %w", collectionName, ids[index], err)
			}
			maps.Copy(document, fields)
			encoded, err := json.Marshal(document)
			if err != nil {
				return fmt.Errorf("encoding %s/%s: %w", collectionName, ids[index], err)
			}
			pairs = append(pairs, ids[index], string(encoded))
		}
		return s.commit(ctx, collectionName, func(pipe redis.Pipeliner) {
			pipe.HSet(ctx, key, pairs...)
		})
	})
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
	pairs := make([]any, 0, 2*len(records))
	for _, record := range records {
		if record.ID == "" {
			return fmt.Errorf("%s: record without id", collectionName)
		}
		fields := record.Fields
		if fields == nil {
			fields = map[string]any{}
		}
		encoded, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("encoding %s/%s: %w", collectionName, record.ID, err)
		}
		pairs = append(pairs, record.ID, string(encoded))
	}
	if len(pairs) == 0 {
		return nil
	}
	return s.locked(ctx, collectionName, func() error {
		return s.commit(ctx, collectionName, func(pipe redis.Pipeliner) {
			pipe.HSet(ctx, s.hashKey(collectionName), pairs...)
		})
	})
}

// Delete removes documents. Missing ids are ignored.
func (s *Store) Delete(ctx context.Context, collectionName string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.locked(ctx, collectionName, func() error {
		return s.commit(ctx, collectionName, func(pipe redis.Pipeliner) {
			pipe.HDel(ctx, s.hashKey(collectionName), ids...)
		})
	})
}

// Close stops every feed and subscription and closes the client.
func (s *Store) Close() error {
	s.mutex.Lock()
	s.closed = true
	feeds := s.feeds
	s.feeds = make(map[string]*redis.PubSub)
	s.mutex.Unlock()

	for _, pubsub := range feeds {
		pubsub.Close()
	}
	s.waitGroup.Wait()
	s.broadcaster.Close()
	return s.client.Close()
}

// locked runs fn holding the collection's distributed lock, retrying
// until ctx expires.
func (s *Store) locked(ctx context.Context, collectionName string, fn func() error) error {
	lock, err := s.locker.Obtain(ctx, s.lockKey(collectionName), s.lockTTL, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(lockRetry),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return fmt.Errorf("%s is locked by another writer: %w", collectionName, err)
	}
	if err != nil {
		return fmt.Errorf("locking %s: %w", collectionName, err)
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			s.logger.Warn("releasing collection lock", "collection", collectionName, "error", err)
		}
	}()
	return fn()
}

// commit runs write and the change notification in one MULTI/EXEC.
func (s *Store) commit(ctx context.Context, collectionName string, write func(pipe redis.Pipeliner)) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		write(pipe)
		pipe.Publish(ctx, s.channel(collectionName), "changed")
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", collectionName, err)
	}
	return nil
}

// ensureFeed subscribes to a collection's change channel once per
// store. It returns after Redis has confirmed the subscription, so a
// snapshot loaded afterwards cannot miss a write.
func (s *Store) ensureFeed(ctx context.Context, collectionName string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return collection.ErrClosed
	}
	if _, exists := s.feeds[collectionName]; exists {
		return nil
	}

	pubsub := s.client.Subscribe(ctx, s.channel(collectionName))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribing to %s: %w", s.channel(collectionName), err)
	}
	s.feeds[collectionName] = pubsub

	s.waitGroup.Add(1)
	go s.follow(collectionName, pubsub)
	return nil
}

// follow rereads a collection after each change message until the
// feed is closed.
func (s *Store) follow(collectionName string, pubsub *redis.PubSub) {
	defer s.waitGroup.Done()
	for range pubsub.Channel() {
		s.mutex.Lock()
		records, err := s.load(context.Background(), collectionName)
		if err == nil {
			s.broadcaster.Publish(collectionName, records)
		}
		s.mutex.Unlock()

		if err != nil {
			s.logger.Warn("reloading collection after change", "collection", collectionName, "error", err)
			s.broadcaster.Fail(collectionName, err)
		}
	}
}

func (s *Store) load(ctx context.Context, collectionName string) ([]collection.Record, error) {
	documents, err := s.client.HGetAll(ctx, s.hashKey(collectionName)).Result()
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", collectionName, err)
	}
	records := make([]collection.Record, 0, len(documents))
	for id, text := range documents {
		fields, err := decodeDocument(text)
		if err != nil {
			return nil, fmt.Errorf("decoding %s/%s: %w", collectionName, id, err)
		}
		records = append(records, collection.Record{ID: id, Fields: fields})
	}
	collection.SortRecords(records, "", collection.Ascending)
	return records, nil
}

func decodeDocument(text string) (map[string]any, error) {
	fields := map[string]any{}
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
