// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/bureau-foundation/console/lib/collection"
	"github.com/bureau-foundation/console/lib/collection/remote"
	"github.com/bureau-foundation/console/lib/service"
	"github.com/bureau-foundation/console/lib/viewmodel"
)

// ErrorCategory classifies command errors so that scripts can tell a
// typo from an outage by exit code alone.
type ErrorCategory string

const (
	// CategoryValidation indicates the caller provided invalid input:
	// wrong argument count, unknown status, unparseable dates.
	CategoryValidation ErrorCategory = "validation"

	// CategoryNotFound indicates a referenced entity or collection
	// does not exist. Retrying with the same arguments will not help.
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryTransient indicates a temporary failure: the service is
	// unreachable or a deadline expired. Retrying may succeed.
	CategoryTransient ErrorCategory = "transient"

	// CategoryInternal indicates an unexpected error.
	CategoryInternal ErrorCategory = "internal"
)

// ExitCode maps a category to the process exit code.
func (c ErrorCategory) ExitCode() int {
	switch c {
	case CategoryValidation:
		return 2
	case CategoryNotFound:
		return 3
	case CategoryTransient:
		return 4
	default:
		return 1
	}
}

// ToolError is a categorized error returned by commands. It wraps the
// underlying error, so errors.Is and errors.As still see the full
// chain. Use the category constructors rather than building one
// directly.
type ToolError struct {
	Category ErrorCategory
	Err      error

	// Hint is an optional next step appended to the message.
	Hint string
}

func (e *ToolError) Error() string {
	if e.Hint == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + "\n\n" + e.Hint
}

func (e *ToolError) Unwrap() error { return e.Err }

// WithHint sets the hint and returns the receiver for chaining.
func (e *ToolError) WithHint(hint string) *ToolError {
	e.Hint = hint
	return e
}

// Validation creates a validation error: the caller provided bad input.
func Validation(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

// NotFound creates a not-found error.
func NotFound(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryNotFound, Err: fmt.Errorf(format, args...)}
}

// Transient creates a transient error: a temporary failure that may
// succeed on retry.
func Transient(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryTransient, Err: fmt.Errorf(format, args...)}
}

// Internal creates an internal error.
func Internal(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryInternal, Err: fmt.Errorf(format, args...)}
}

// Classify returns err as a *ToolError, deriving the category from
// the console's error types when err is not categorized already.
// Returns nil for a nil error.
func Classify(err error) *ToolError {
	if err == nil {
		return nil
	}
	var toolError *ToolError
	if errors.As(err, &toolError) {
		return toolError
	}
	return &ToolError{Category: categorize(err), Err: err}
}

func categorize(err error) ErrorCategory {
	var (
		filterError  *viewmodel.FilterConfigurationError
		serviceError *service.ServiceError
		streamError  *remote.StreamError
		netError     net.Error
	)
	switch {
	case errors.Is(err, collection.ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, viewmodel.ErrEmptySelection),
		errors.Is(err, viewmodel.ErrMissingActor),
		errors.Is(err, viewmodel.ErrUnknownStatus),
		errors.As(err, &filterError):
		return CategoryValidation
	case errors.As(err, &serviceError):
		switch serviceError.Code {
		case remote.CodeNotFound:
			return CategoryNotFound
		case remote.CodeInvalid:
			return CategoryValidation
		}
		return CategoryInternal
	case errors.As(err, &streamError):
		return CategoryValidation
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, collection.ErrClosed),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.As(err, &netError):
		return CategoryTransient
	}
	return CategoryInternal
}
