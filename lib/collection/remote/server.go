// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"time"

	"github.com/bureau-foundation/console/lib/clock"
	"github.com/bureau-foundation/console/lib/codec"
	"github.com/bureau-foundation/console/lib/collection"
	"github.com/bureau-foundation/console/lib/feed"
	"github.com/bureau-foundation/console/lib/service"
)

// DefaultHeartbeat is the idle interval between heartbeat frames.
const DefaultHeartbeat = 30 * time.Second

// streamWriteTimeout bounds each frame write so a stalled client
// cannot pin a stream goroutine.
const streamWriteTimeout = 10 * time.Second

// ServerConfig configures a Server.
type ServerConfig struct {
	// Collections restricts which collections may be named. Empty
	// allows any.
	Collections []string

	Compression feed.Mode

	// Heartbeat is the interval between heartbeat frames on an
	// otherwise idle stream. Zero means DefaultHeartbeat.
	Heartbeat time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Server exposes a local store over the service socket.
type Server struct {
	store  collection.Store
	config ServerConfig
	logger *slog.Logger
}

// NewServer returns a Server in front of store. Snapshots for list
// use collection.Reader when store implements it; imports require
// collection.Importer.
func NewServer(store collection.Store, config ServerConfig) *Server {
	if config.Heartbeat <= 0 {
		config.Heartbeat = DefaultHeartbeat
	}
	if config.Compression == "" {
		config.Compression = feed.ModeAuto
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Server{store: store, config: config, logger: config.Logger}
}

// Register adds the collection actions to socket.
func (s *Server) Register(socket *service.SocketServer) {
	socket.Handle(ActionList, s.handleList)
	socket.Handle(ActionBulkUpdate, s.handleBulkUpdate)
	socket.Handle(ActionImport, s.handleImport)
	socket.HandleStream(ActionSubscribe, s.handleSubscribe)
}

func (s *Server) checkCollection(name string) error {
	if name == "" {
		return service.WithCode(CodeInvalid, errors.New("missing required field: collection"))
	}
	if len(s.config.Collections) > 0 && !slices.Contains(s.config.Collections, name) {
		return service.WithCode(CodeInvalid, fmt.Errorf("collection %q is not served", name))
	}
	return nil
}

func (s *Server) decodeQuery(raw []byte) (collection.Query, error) {
	var query collection.Query
	if err := codec.Unmarshal(raw, &query); err != nil {
		return query, service.WithCode(CodeInvalid, fmt.Errorf("invalid request: %w", err))
	}
	if err := s.checkCollection(query.Collection); err != nil {
		return query, err
	}
	if err := query.Validate(); err != nil {
		return query, service.WithCode(CodeInvalid, err)
	}
	return query, nil
}

func (s *Server) handleList(ctx context.Context, raw []byte) (any, error) {
	query, err := s.decodeQuery(raw)
	if err != nil {
		return nil, err
	}
	records, err := Snapshot(ctx, s.store, query)
	if err != nil {
		return nil, err
	}
	return ListResponse{Records: records}, nil
}

func (s *Server) handleBulkUpdate(ctx context.Context, raw []byte) (any, error) {
	var request BulkUpdateRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, service.WithCode(CodeInvalid, fmt.Errorf("invalid request: %w", err))
	}
	if err := s.checkCollection(request.Collection); err != nil {
		return nil, err
	}
	if len(request.IDs) == 0 {
		return nil, service.WithCode(CodeInvalid, errors.New("missing required field: ids"))
	}
	if len(request.Fields) == 0 {
		return nil, service.WithCode(CodeInvalid, errors.New("missing required field: fields"))
	}

	err := s.store.BatchUpdate(ctx, request.Collection, request.IDs, request.Fields)
	if errors.Is(err, collection.ErrNotFound) {
		return nil, service.WithCode(CodeNotFound, err)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("bulk update applied",
		"collection", request.Collection,
		"count", len(request.IDs),
		"status", request.Fields["status"],
	)
	return nil, nil
}

func (s *Server) handleImport(ctx context.Context, raw []byte) (any, error) {
	importer, ok := s.store.(collection.Importer)
	if !ok {
		return nil, errors.New("store does not accept imports")
	}
	var request ImportRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, service.WithCode(CodeInvalid, fmt.Errorf("invalid request: %w", err))
	}
	if err := s.checkCollection(request.Collection); err != nil {
		return nil, err
	}
	for index, record := range request.Records {
		if record.ID == "" {
			return nil, service.WithCode(CodeInvalid, fmt.Errorf("record %d has no id", index))
		}
	}
	if err := importer.Upsert(ctx, request.Collection, request.Records); err != nil {
		return nil, err
	}
	s.logger.Info("records imported", "collection", request.Collection, "count", len(request.Records))
	return ImportResponse{Count: len(request.Records)}, nil
}

// handleSubscribe follows the store for one collection and writes a
// snapshot frame per distinct state, plus heartbeats when idle. A
// store error ends the stream with an error frame; the client
// reconnects.
func (s *Server) handleSubscribe(ctx context.Context, raw []byte, conn net.Conn) {
	query, err := s.decodeQuery(raw)
	if err != nil {
		feed.NewWriter(conn, "", s.config.Compression).WriteError(err.Error())
		return
	}
	writer := feed.NewWriter(conn, query.Collection, s.config.Compression)
	logger := s.logger.With("collection", query.Collection)

	// Only the newest snapshot matters; older ones are replaced.
	snapshots := make(chan []collection.Record, 1)
	failures := make(chan error, 1)
	unsubscribe, err := s.store.Subscribe(ctx, query, collection.Handler{
		OnChange: func(records []collection.Record) {
			select {
			case snapshots <- records:
			default:
				select {
				case <-snapshots:
				default:
				}
				snapshots <- records
			}
		},
		OnError: func(err error) {
			select {
			case failures <- err:
			default:
			}
		},
	})
	if err != nil {
		writer.WriteError(err.Error())
		return
	}
	defer unsubscribe()

	// The read side is otherwise unused: a read returning means the
	// client hung up.
	hangup := make(chan struct{})
	go func() {
		var discard [1]byte
		conn.Read(discard[:])
		close(hangup)
	}()

	logger.Info("subscribe stream started")
	defer logger.Info("subscribe stream ended")

	heartbeat := s.config.Clock.NewTicker(s.config.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-hangup:
			return
		case records := <-snapshots:
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			sent, err := writer.WriteSnapshot(records)
			if err != nil {
				logger.Debug("subscribe stream write failed", "error", err)
				return
			}
			if sent {
				logger.Debug("snapshot sent", "sequence", writer.Sequence(), "records", len(records))
			}
		case err := <-failures:
			logger.Warn("store subscription failed", "error", err)
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			writer.WriteError(err.Error())
			return
		case <-heartbeat.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := writer.WriteHeartbeat(); err != nil {
				logger.Debug("subscribe stream heartbeat failed", "error", err)
				return
			}
		}
	}
}

// Snapshot returns the current contents of a collection. It uses
// collection.Reader when store implements it and otherwise waits for
// the first snapshot of a short-lived subscription.
func Snapshot(ctx context.Context, store collection.Store, query collection.Query) ([]collection.Record, error) {
	if reader, ok := store.(collection.Reader); ok {
		return reader.Snapshot(ctx, query)
	}

	first := make(chan []collection.Record, 1)
	failed := make(chan error, 1)
	unsubscribe, err := store.Subscribe(ctx, query, collection.Handler{
		OnChange: func(records []collection.Record) {
			select {
			case first <- records:
			default:
			}
		},
		OnError: func(err error) {
			select {
			case failed <- err:
			default:
			}
		},
	})
	if err != nil {
		return nil, err
	}
	defer unsubscribe()

	select {
	case records := <-first:
		return records, nil
	case err := <-failed:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
