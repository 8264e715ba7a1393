// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package viewmodel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/console/lib/clock"
	"github.com/bureau-foundation/console/lib/collection"
	"github.com/bureau-foundation/console/lib/entity"
)

// Fields written onto every entity in a bulk mutation.
const (
	FieldUpdatedBy = "updatedBy"
	FieldUpdatedAt = "updatedAt"
)

// BulkExecutor applies one status to many entities as a single atomic
// store write. It never touches a mirror: the change becomes visible
// when the store's next snapshot arrives.
type BulkExecutor struct {
	store      collection.Store
	collection string
	kind       entity.Kind
	clock      clock.Clock
	logger     *slog.Logger
}

// NewBulkExecutor returns an executor writing to one collection.
func NewBulkExecutor(store collection.Store, collectionName string, kind entity.Kind, clock clock.Clock, logger *slog.Logger) *BulkExecutor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BulkExecutor{
		store:      store,
		collection: collectionName,
		kind:       kind,
		clock:      clock,
		logger:     logger,
	}
}

// BulkUpdate sets status on every entity in ids, recording actor and
// the current time. Duplicate ids are collapsed.
//
// Precondition failures return ErrEmptySelection, ErrMissingActor, or
// ErrUnknownStatus (wrapped) without contacting the store. A store
// failure returns a *BulkMutationError covering the whole batch.
func (b *BulkExecutor) BulkUpdate(ctx context.Context, ids []string, status, actor string) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return ErrEmptySelection
	}
	if strings.TrimSpace(actor) == "" {
		return ErrMissingActor
	}
	status = strings.ToLower(strings.TrimSpace(status))
	if !b.kind.Spec().HasStatus(status) {
		return fmt.Errorf("%w: %q for %s", ErrUnknownStatus, status, b.kind)
	}

	fields := map[string]any{
		entity.FieldStatus: status,
		FieldUpdatedBy:     actor,
		FieldUpdatedAt:     collection.TimestampOf(b.clock.Now()),
	}
	if err := b.store.BatchUpdate(ctx, b.collection, ids, fields); err != nil {
		b.logger.Warn("bulk mutation failed",
			"collection", b.collection,
			"count", len(ids),
			"status", status,
			"error", err,
		)
		return &BulkMutationError{Collection: b.collection, Count: len(ids), Status: status, Err: err}
	}

	b.logger.Info("bulk mutation applied",
		"collection", b.collection,
		"count", len(ids),
		"status", status,
		"actor", actor,
	)
	return nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, duplicate := seen[id]; duplicate {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
