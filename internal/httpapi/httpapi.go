// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpapi is the Task Delegation HTTP API (§6.1): bearer-token
// authenticated task submission, listing, and lookup, plus a
// repository-access check backed by the configured GitHub token.
//
// The mux shape (one *http.ServeMux, method+wildcard route patterns,
// a handler struct holding every collaborator) follows
// proxy.Server/wsproxy.Server exactly; task/execution ids are
// generated with github.com/google/uuid, a dependency the pack's
// bureau and code_nest repos both carry.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/open-commander/opencommander/internal/errkind"
	"github.com/open-commander/opencommander/internal/jobqueue"
	"github.com/open-commander/opencommander/internal/store"
	"github.com/open-commander/opencommander/internal/workspace"
	"github.com/open-commander/opencommander/lib/github"
)

// defaultTaskLimit and maxTaskLimit bound GET /api/tasks per §6.1:
// default 50, clamped (not rejected) at 100.
const (
	defaultTaskLimit = 50
	maxTaskLimit     = 100
)

// Server holds every collaborator the task delegation API needs.
type Server struct {
	Store     store.Store
	Queue     jobqueue.Queue
	Workspace *workspace.Service

	// GitHub, if set, backs POST /api/github/verify-access. A nil
	// GitHub makes that endpoint always report no access — the server
	// still starts without a configured token.
	GitHub *github.Client

	Logger  *slog.Logger
	NowFunc func() time.Time
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Server) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc()
	}
	return time.Now()
}

// Mux builds the *http.ServeMux exposing the task delegation surface,
// following the teacher's method+wildcard mux-construction style.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tasks", s.withAPIKey(s.handleListTasks))
	mux.HandleFunc("POST /api/tasks", s.withAPIKey(s.handleCreateTask))
	mux.HandleFunc("GET /api/tasks/{id}", s.withAPIKey(s.handleGetTask))
	mux.HandleFunc("POST /api/github/verify-access", s.withAPIKey(s.handleVerifyGitHubAccess))
	return mux
}

// withAPIKey resolves the caller's bearer token to an APIKey before
// invoking next, closing the request with 401 on any failure. The
// looked-up key is currently used only to gate access — §6.1 does not
// scope tasks by owner.
func (s *Server) withAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		key, err := s.Store.LookupAPIKey(r.Context(), token)
		if err != nil {
			if err == store.ErrNotFound {
				writeError(w, http.StatusUnauthorized, "unknown api key")
				return
			}
			s.writeStoreError(w, err)
			return
		}
		if key.RevokedAt != nil {
			writeError(w, http.StatusUnauthorized, "revoked api key")
			return
		}

		next(w, r)
	}
}

// statusForKind maps an errkind.Kind to the HTTP status code §7's
// table assigns it, the single point of translation this package
// performs, mirroring internal/wsproxy.closeCodeForKind's role for
// WebSocket close codes.
func statusForKind(kind errkind.Kind) int {
	switch kind {
	case errkind.InvalidInput:
		return http.StatusBadRequest
	case errkind.Unauthorized:
		return http.StatusUnauthorized
	case errkind.NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.logger().Error("httpapi: store error", "error", err)
	writeError(w, statusForKind(errkind.KindOf(err)), "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

type errorBody struct {
	Error string `json:"error"`
}

func parseLimit(raw string) int {
	if raw == "" {
		return defaultTaskLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultTaskLimit
	}
	if n > maxTaskLimit {
		return maxTaskLimit
	}
	return n
}

func parseOffset(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func newID() string {
	return uuid.NewString()
}
