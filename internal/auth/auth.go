// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth is the single collaborator every other package uses to
// turn a cookie header into a user id. No cookie parsing happens
// outside this package, so swapping the disabled-auth resolver for a
// real session-cookie backend later touches one file.
package auth

import (
	"net/http"
)

// Resolver turns a cookie header into a user id.
type Resolver interface {
	ResolveUser(cookieHeader string) (userID string, err error)
}

// DisabledResolver resolves every request to a fixed admin user id,
// for local development where no real identity backend is wired up
// yet. AdminUserID defaults to "admin" when unset.
type DisabledResolver struct {
	AdminUserID string
}

// NewDisabledResolver returns a resolver that always succeeds with
// adminUserID (or "admin" if empty).
func NewDisabledResolver(adminUserID string) *DisabledResolver {
	if adminUserID == "" {
		adminUserID = "admin"
	}
	return &DisabledResolver{AdminUserID: adminUserID}
}

// ResolveUser ignores cookieHeader entirely and returns the configured
// admin user id.
func (r *DisabledResolver) ResolveUser(cookieHeader string) (string, error) {
	return r.AdminUserID, nil
}

var _ Resolver = (*DisabledResolver)(nil)

// CookieHeaderFromRequest extracts the raw Cookie header from an HTTP
// request, the only place callers should reach into http.Request for
// this purpose — everything downstream deals in the raw header string
// so it works identically for WebSocket upgrade requests.
func CookieHeaderFromRequest(r *http.Request) string {
	return r.Header.Get("Cookie")
}
