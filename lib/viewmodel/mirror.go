// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package viewmodel

import "github.com/bureau-foundation/console/lib/entity"

// Mirror is a view-model's copy of one collection. The only way to
// change it is Replace: there is no add, remove, or patch, so the
// mirror cannot drift from the feed it follows.
//
// Mirror is not safe for concurrent use; the owning ViewModel
// serializes access.
type Mirror struct {
	entities []entity.Entity
	version  uint64
}

// Replace swaps in a new complete set. entities is kept as given,
// without deduplication or merging with the previous contents.
func (m *Mirror) Replace(entities []entity.Entity) {
	m.entities = entities
	m.version++
}

// Entities returns the current set. Callers must not modify it.
func (m *Mirror) Entities() []entity.Entity { return m.entities }

// Len returns the number of mirrored entities.
func (m *Mirror) Len() int { return len(m.entities) }

// Version counts replacements since creation.
func (m *Mirror) Version() uint64 { return m.version }

// Contains reports whether id is mirrored.
func (m *Mirror) Contains(id string) bool {
	for _, candidate := range m.entities {
		if candidate.ID == id {
			return true
		}
	}
	return false
}
