// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

// Package ingress is the external collaborator hook for port-mapping
// and ingress-helper lifecycle. Per SPEC_FULL.md §9's Open Question
// resolution, this repo persists port mappings (internal/store) but
// does not create or manage an ingress helper container itself —
// Cleanup is the one call site internal/session's stop algorithm
// needs, and NoopCleaner is the default collaborator until a real
// ingress controller is wired in.
package ingress

import "context"

// Cleaner removes any ingress configuration associated with a
// session. Implementations must be idempotent — Stop calls Cleanup
// best-effort and does not fail the stop algorithm on error.
type Cleaner interface {
	Cleanup(ctx context.Context, sessionID string) error
}

// NoopCleaner is a Cleaner that does nothing, for deployments with no
// ingress helper lifecycle to manage.
type NoopCleaner struct{}

// Cleanup returns nil unconditionally.
func (NoopCleaner) Cleanup(ctx context.Context, sessionID string) error { return nil }

var _ Cleaner = NoopCleaner{}
