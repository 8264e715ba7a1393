// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package viewmodel

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/console/lib/entity"
)

// SubscriptionError reports that a live feed could not be opened or
// maintained. The mirror keeps its last good contents; the caller may
// retry with Activate.
type SubscriptionError struct {
	Collection string
	Err        error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription to %q failed: %v", e.Collection, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// NormalizationWarning is the fallback report produced while turning
// records into entities. Logged, never rendered.
type NormalizationWarning = entity.NormalizationWarning

// FilterConfigurationError reports criteria that reference a status or
// category the entity kind does not have, or an inverted date range.
// The filter returns an empty result alongside it rather than failing.
type FilterConfigurationError struct {
	Kind  entity.Kind
	Axis  string
	Value string
}

func (e *FilterConfigurationError) Error() string {
	return fmt.Sprintf("%s filter %q is not valid for %s entities", e.Axis, e.Value, e.Kind)
}

// BulkMutationError is the single failure reported for a whole batch.
// Because the batch is atomic, no partial outcome is reported: the
// caller must treat every targeted entity as indeterminate until the
// next snapshot arrives.
type BulkMutationError struct {
	Collection string
	Count      int
	Status     string
	Err        error
}

func (e *BulkMutationError) Error() string {
	return fmt.Sprintf("setting %d %s entities to %q failed: %v", e.Count, e.Collection, e.Status, e.Err)
}

func (e *BulkMutationError) Unwrap() error { return e.Err }

// PaginationInvariantViolation means a computed window points outside
// its own page range. It indicates a defect in Paginate and is never
// shown to users.
type PaginationInvariantViolation struct {
	CurrentPage int
	TotalPages  int
}

func (e *PaginationInvariantViolation) Error() string {
	return fmt.Sprintf("pagination invariant violated: page %d outside [1, %d]", e.CurrentPage, e.TotalPages)
}

// Precondition failures for bulk mutations. These are caller mistakes,
// returned before anything is sent to the store.
var (
	ErrEmptySelection = errors.New("no entities selected")
	ErrMissingActor   = errors.New("actor identity is required")
	ErrUnknownStatus  = errors.New("status is not valid for this entity kind")
)
