// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package viewmodel

import "github.com/bureau-foundation/console/lib/entity"

// DefaultPageSize replaces a non-positive page size.
const DefaultPageSize = 10

// Window is one page of a sorted result.
type Window struct {
	Page []entity.Entity

	// CurrentPage is 1-based and always within [1, TotalPages].
	CurrentPage int
	TotalPages  int
	PageSize    int
	TotalItems  int

	// StartIndex and EndIndex are the 1-based inclusive positions of
	// the page within the result ("Showing 11-20 of 47"). Both are 0
	// when the result is empty.
	StartIndex int
	EndIndex   int
}

// Paginate cuts the requested page out of sorted, clamping
// currentPage into range. Any currentPage value is accepted.
func Paginate(sorted []entity.Entity, pageSize, currentPage int) Window {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	total := len(sorted)
	totalPages := max(1, (total+pageSize-1)/pageSize)
	currentPage = min(max(currentPage, 1), totalPages)

	window := Window{
		CurrentPage: currentPage,
		TotalPages:  totalPages,
		PageSize:    pageSize,
		TotalItems:  total,
		Page:        []entity.Entity{},
	}
	if total == 0 {
		return window
	}

	offset := (currentPage - 1) * pageSize
	end := min(offset+pageSize, total)
	window.Page = sorted[offset:end:end]
	window.StartIndex = offset + 1
	window.EndIndex = end
	return window
}

// Verify checks the window's invariants.
func (w Window) Verify() error {
	if w.TotalPages < 1 || w.CurrentPage < 1 || w.CurrentPage > w.TotalPages {
		return &PaginationInvariantViolation{CurrentPage: w.CurrentPage, TotalPages: w.TotalPages}
	}
	if w.TotalItems > 0 && (w.StartIndex < 1 || w.EndIndex > w.TotalItems || w.EndIndex-w.StartIndex+1 != len(w.Page)) {
		return &PaginationInvariantViolation{CurrentPage: w.CurrentPage, TotalPages: w.TotalPages}
	}
	return nil
}
