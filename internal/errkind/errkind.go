// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

// Package errkind provides a typed error taxonomy for Open Commander.
//
// Every component that can fail in a way a caller needs to branch on
// (auth failure vs. not-found vs. a retryable container conflict)
// returns an *Error carrying a Kind. Transport edges (internal/httpapi,
// internal/wsproxy) translate Kind to an HTTP status code or WebSocket
// close code in one place each; no other package should inspect error
// strings to decide behavior.
package errkind

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and recovery purposes.
type Kind int

const (
	// Other is an unclassified failure. Treated as Fatal by transport
	// edges.
	Other Kind = iota

	// InvalidInput means the caller supplied a malformed argument.
	// Not recoverable; the caller must fix the request.
	InvalidInput

	// NotFound means the referenced entity does not exist or is not
	// visible to the caller.
	NotFound

	// Unauthorized means the caller's identity could not be resolved
	// or lacks access to the requested resource.
	Unauthorized

	// Conflict means a container create collided with an existing
	// container of the same name. Recovered internally by
	// internal/session's create loop.
	Conflict

	// LayerLocked means the container engine is mid-pull or
	// mid-extract on the requested image. Recovered internally by
	// internal/session's create loop via bounded retry.
	LayerLocked

	// ImageMissing means the requested image does not exist and
	// cannot be pulled.
	ImageMissing

	// UpstreamUnavailable means a WebSocket proxy could not reach the
	// in-container terminal daemon through any transport.
	UpstreamUnavailable

	// Transient means a retryable I/O failure occurred. Callers with
	// a documented retry budget (session start, upstream connect)
	// retry; others surface it.
	Transient

	// Fatal means an unrecoverable failure occurred and any owning
	// session should transition to the error state.
	Fatal
)

// String returns a lowercase name for the kind, suitable for logging.
func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case NotFound:
		return "not_found"
	case Unauthorized:
		return "unauthorized"
	case Conflict:
		return "conflict"
	case LayerLocked:
		return "layer_locked"
	case ImageMissing:
		return "image_missing"
	case UpstreamUnavailable:
		return "upstream_unavailable"
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	default:
		return "other"
	}
}

// Error is a classified error. It wraps an optional cause, so
// errors.Is/errors.As and %w continue to work through it.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// New creates an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an *Error of the given kind wrapping cause. The result
// is always classified as kind, even when cause is itself an *Error of
// another Kind.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is classified (directly or through wrapping)
// as the given kind.
func Is(err error, kind Kind) bool {
	var classified *Error
	if !errors.As(err, &classified) {
		return false
	}
	return classified.Kind == kind
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and
// Other otherwise.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return Other
}
