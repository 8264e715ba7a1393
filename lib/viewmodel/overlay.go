// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package viewmodel

import (
	"github.com/bureau-foundation/console/lib/collection"
	"github.com/bureau-foundation/console/lib/entity"
)

// TaskOverlay configures a second collection whose records can
// override the displayed status of entities. Each task record names
// the entity it belongs to and carries a status; when a task exists
// for an entity and its status is valid for the entity's kind, the
// task status wins.
//
// The two feeds are independent. Nothing orders a task snapshot
// relative to an entity snapshot, so for a moment after a bulk
// mutation the old task status can still be displayed over the new
// entity status. The task collection is subscribed ordered by
// OrderField ascending and later tasks for the same entity replace
// earlier ones, so the most recently updated task wins.
type TaskOverlay struct {
	Collection string

	// EntityField names the task field holding the entity id.
	// Defaults to "requestId".
	EntityField string

	// StatusField names the task field holding the status. Defaults
	// to "status".
	StatusField string

	// OrderField orders tasks oldest first. Defaults to "updatedAt".
	OrderField string
}

func (o TaskOverlay) withDefaults() TaskOverlay {
	if o.EntityField == "" {
		o.EntityField = "requestId"
	}
	if o.StatusField == "" {
		o.StatusField = entity.FieldStatus
	}
	if o.OrderField == "" {
		o.OrderField = FieldUpdatedAt
	}
	return o
}

func (o TaskOverlay) query() collection.Query {
	return collection.Query{Collection: o.Collection, OrderField: o.OrderField, Direction: collection.Ascending}
}

// taskStatuses reduces a task snapshot to entity id -> raw status.
func (o TaskOverlay) taskStatuses(records []collection.Record) map[string]any {
	statuses := make(map[string]any, len(records))
	for _, record := range records {
		target, ok := record.Fields[o.EntityField].(string)
		if !ok || target == "" {
			continue
		}
		if status, ok := record.Fields[o.StatusField]; ok && status != nil {
			statuses[target] = status
		}
	}
	return statuses
}

// applyOverlay returns entities with task statuses applied. Entities
// without a valid task status are returned unchanged. The input slice
// is never modified.
func applyOverlay(kind entity.Kind, entities []entity.Entity, statuses map[string]any) []entity.Entity {
	if len(statuses) == 0 {
		return entities
	}
	spec := kind.Spec()
	result := make([]entity.Entity, len(entities))
	for index, candidate := range entities {
		if raw, ok := statuses[candidate.ID]; ok {
			if status, valid := entity.NormalizeStatus(spec, raw); valid {
				candidate.StatusKey = status
			}
		}
		result[index] = candidate
	}
	return result
}
