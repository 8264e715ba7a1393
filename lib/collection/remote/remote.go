// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/bureau-foundation/console/lib/clock"
	"github.com/bureau-foundation/console/lib/collection"
	"github.com/bureau-foundation/console/lib/feed"
	"github.com/bureau-foundation/console/lib/service"
)

// Backoff bounds for reconnecting a subscribe stream.
const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// DefaultIdleTimeout is how long a stream may stay silent before the
// client declares it dead. It covers two missed heartbeats at the
// server's default interval plus slack.
const DefaultIdleTimeout = 2*DefaultHeartbeat + 10*time.Second

// StreamError is reported through OnError when the server ends a
// stream with an error frame.
type StreamError struct {
	Collection string
	Message    string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("subscribe %q: server error: %s", e.Collection, e.Message)
}

// Config configures a client Store.
type Config struct {
	SocketPath string

	// IdleTimeout is the longest silence tolerated on a stream.
	// Zero means DefaultIdleTimeout.
	IdleTimeout time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Store is a [collection.Store] backed by a console service.
type Store struct {
	client      *service.ServiceClient
	idleTimeout time.Duration
	clock       clock.Clock
	logger      *slog.Logger
}

// New returns a Store that talks to the service at config.SocketPath.
// No connection is made until the first call.
func New(config Config) *Store {
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		client:      service.NewServiceClient(config.SocketPath),
		idleTimeout: config.IdleTimeout,
		clock:       config.Clock,
		logger:      config.Logger,
	}
}

// Subscribe implements [collection.Store]. The stream reconnects with
// exponential backoff (1s doubling to 30s) after any failure; each
// failure is reported to OnError first. The backoff resets once a
// snapshot arrives on a new connection.
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

	// Unsubscribe only cancels: it may run under a lock that an
	// in-flight OnChange is waiting for.
	streamCtx, cancel := context.WithCancel(context.Background())
	go s.streamLoop(streamCtx, query, handler)
	return cancel, nil
}

func (s *Store) streamLoop(ctx context.Context, query collection.Query, handler collection.Handler) {
	logger := s.logger.With("collection", query.Collection, "socket", s.client.SocketPath())
	backoff := initialBackoff
	for {
		received, err := s.runStream(ctx, query, handler)
		if ctx.Err() != nil {
			return
		}
		if received {
			backoff = initialBackoff
		}
		logger.Warn("subscribe stream disconnected", "error", err, "backoff", backoff)
		if handler.OnError != nil {
			handler.OnError(err)
		}

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// runStream follows one connection until it fails. received reports
// whether at least one snapshot was delivered on it.
func (s *Store) runStream(ctx context.Context, query collection.Query, handler collection.Handler) (received bool, err error) {
	conn, err := s.client.OpenStream(ctx, ActionSubscribe, queryFields(query))
	if err != nil {
		return false, err
	}
	defer conn.Close()

	// Closing the connection unblocks the pending read.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	reader := feed.NewReader(conn)
	for {
		conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		frame, err := reader.Next()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return received, fmt.Errorf("subscribe %q: no frame for %s", query.Collection, s.idleTimeout)
			}
			return received, fmt.Errorf("subscribe %q: reading frame: %w", query.Collection, err)
		}

		switch frame.Type {
		case feed.FrameSnapshot:
			records, err := feed.Records(frame)
			if err != nil {
				return received, fmt.Errorf("subscribe %q: %w", query.Collection, err)
			}
			if ctx.Err() != nil {
				return received, ctx.Err()
			}
			received = true
			handler.OnChange(records)
		case feed.FrameHeartbeat:
		case feed.FrameError:
			return received, &StreamError{Collection: query.Collection, Message: frame.Message}
		default:
			s.logger.Debug("unknown subscribe frame type", "type", frame.Type, "collection", query.Collection)
		}
	}
}

// BatchUpdate implements [collection.Store].
func (s *Store) BatchUpdate(ctx context.Context, collectionName string, ids []string, fields map[string]any) error {
	err := s.client.Call(ctx, ActionBulkUpdate, map[string]any{
		"collection": collectionName,
		"ids":        ids,
		"fields":     fields,
	}, nil)
	return translate(err)
}

// Snapshot implements [collection.Reader].
func (s *Store) Snapshot(ctx context.Context, query collection.Query) ([]collection.Record, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	var response ListResponse
	if err := s.client.Call(ctx, ActionList, queryFields(query), &response); err != nil {
		return nil, translate(err)
	}
	if response.Records == nil {
		response.Records = []collection.Record{}
	}
	return response.Records, nil
}

// Upsert implements [collection.Importer].
func (s *Store) Upsert(ctx context.Context, collectionName string, records []collection.Record) error {
	var response ImportResponse
	err := s.client.Call(ctx, ActionImport, map[string]any{
		"collection": collectionName,
		"records":    records,
	}, &response)
	if err != nil {
		return translate(err)
	}
	if response.Count != len(records) {
		return fmt.Errorf("import %q: service stored %d of %d records", collectionName, response.Count, len(records))
	}
	return nil
}

// translate maps coded service errors back to collection sentinels.
func translate(err error) error {
	var serviceError *service.ServiceError
	if errors.As(err, &serviceError) && serviceError.Code == CodeNotFound {
		return fmt.Errorf("%w: %s", collection.ErrNotFound, serviceError.Message)
	}
	return err
}
