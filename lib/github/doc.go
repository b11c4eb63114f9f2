// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

// Package github provides a typed Go client for the GitHub REST API.
//
// The client authenticates via GitHub App installation tokens or personal
// access tokens, and handles rate limiting (X-RateLimit-* headers with
// automatic backoff), conditional requests (ETags), and structured error
// mapping. Open Commander uses it for one thing: looking up a repository's
// metadata and the caller's access level, behind the
// /api/github/verify-access endpoint.
//
// All requests are made over HTTPS. The client refuses non-HTTPS base URLs.
package github
