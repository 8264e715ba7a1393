// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/console/lib/clock"
	"github.com/bureau-foundation/console/lib/collection"
	"github.com/bureau-foundation/console/lib/collection/remote"
	"github.com/bureau-foundation/console/lib/config"
	"github.com/bureau-foundation/console/lib/feed"
	"github.com/bureau-foundation/console/lib/service"
	"github.com/bureau-foundation/console/lib/version"
)

// ConsoleService owns the socket server and the store behind it.
type ConsoleService struct {
	config    *config.Config
	store     collection.Store
	clock     clock.Clock
	startedAt time.Time
	logger    *slog.Logger

	socket *service.SocketServer
}

func newConsoleService(cfg *config.Config, store collection.Store, clk clock.Clock, logger *slog.Logger) (*ConsoleService, error) {
	mode, err := feed.ParseMode(cfg.Feed.Compression)
	if err != nil {
		return nil, err
	}
	heartbeat, err := cfg.HeartbeatInterval()
	if err != nil {
		return nil, err
	}

	consoleService := &ConsoleService{
		config:    cfg,
		store:     store,
		clock:     clk,
		startedAt: clk.Now(),
		logger:    logger,
		socket:    service.NewSocketServer(cfg.Paths.Socket, logger),
	}

	consoleService.socket.Handle("status", consoleService.handleStatus)
	remote.NewServer(store, remote.ServerConfig{
		Collections: cfg.CollectionNames(),
		Compression: mode,
		Heartbeat:   heartbeat,
		Clock:       clk,
		Logger:      logger,
	}).Register(consoleService.socket)

	return consoleService, nil
}

// serve blocks until ctx is cancelled and every stream has ended.
func (cs *ConsoleService) serve(ctx context.Context) error {
	return cs.socket.Serve(ctx)
}

// statusResponse is the response to the "status" action.
type statusResponse struct {
	UptimeSeconds float64            `cbor:"uptime_seconds"`
	Version       string             `cbor:"version"`
	Backend       string             `cbor:"backend"`
	Collections   []collectionStatus `cbor:"collections"`
}

type collectionStatus struct {
	Name    string `cbor:"name"`
	Kind    string `cbor:"kind,omitempty"`
	Records int    `cbor:"records"`
}

func (cs *ConsoleService) handleStatus(ctx context.Context, raw []byte) (any, error) {
	response := statusResponse{
		UptimeSeconds: cs.clock.Now().Sub(cs.startedAt).Seconds(),
		Version:       version.Info(),
		Backend:       cs.config.Store.Backend,
	}
	for _, name := range cs.config.CollectionNames() {
		records, err := remote.Snapshot(ctx, cs.store, collection.Query{Collection: name})
		if err != nil {
			return nil, fmt.Errorf("counting %q: %w", name, err)
		}
		status := collectionStatus{Name: name, Records: len(records)}
		if configured, ok := cs.config.Collection(name); ok {
			status.Kind = configured.Kind
		}
		response.Collections = append(response.Collections, status)
	}
	return response, nil
}
