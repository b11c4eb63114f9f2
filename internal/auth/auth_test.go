// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"net/http"
	"testing"
)

func TestDisabledResolverDefaultsToAdmin(t *testing.T) {
	r := NewDisabledResolver("")
	userID, err := r.ResolveUser("")
	if err != nil {
		t.Fatalf("ResolveUser: %v", err)
	}
	if userID != "admin" {
		t.Errorf("expected default admin user, got %q", userID)
	}
}

func TestDisabledResolverIgnoresCookieHeader(t *testing.T) {
	r := NewDisabledResolver("root-user")
	userID, err := r.ResolveUser("session=anything; other=value")
	if err != nil {
		t.Fatalf("ResolveUser: %v", err)
	}
	if userID != "root-user" {
		t.Errorf("expected configured admin user, got %q", userID)
	}
}

func TestCookieHeaderFromRequest(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.invalid/", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Cookie", "session=abc123")

	if got := CookieHeaderFromRequest(req); got != "session=abc123" {
		t.Errorf("expected cookie header, got %q", got)
	}
}
