// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

// Package wsproxy is the WebSocket Proxy (C7): three endpoints
// (/terminal/{sessionID}, /presence/{projectID}, /sessions/{projectID})
// built on nhooyr.io/websocket, the one dependency this repo adds that
// the teacher's own PTY-over-Unix-socket observation stack has no
// equivalent for.
//
// The server shape (one *http.ServeMux, method+wildcard route
// patterns, a handler struct holding collaborators) follows
// proxy.Server/proxy.Handler; the bidirectional bridge follows
// lib/netutil.BridgeReaders generalized from net.Conn to the
// websocket.NetConn adapter.
package wsproxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/open-commander/opencommander/internal/auth"
	"github.com/open-commander/opencommander/internal/broadcast"
	"github.com/open-commander/opencommander/internal/errkind"
	"github.com/open-commander/opencommander/internal/presence"
	"github.com/open-commander/opencommander/internal/store"
)

// Close codes used across all three endpoints, per spec.md §4.7/§7.
const (
	closeUnauthorized        = websocket.StatusPolicyViolation // 1008
	closeUpstreamUnavailable = websocket.StatusInternalError   // 1011
	closeMessageTooBig       = websocket.StatusMessageTooBig   // 1009
)

// preConnectBufferCap bounds the /terminal pre-connect buffer, per
// SPEC_FULL.md §9's Open Question resolution: 1 MiB.
const preConnectBufferCap = 1 << 20

// UpstreamDialer opens a connection to the in-container terminal
// daemon for sessionID/port and returns it as a websocket.Conn.
// internal/session's driver dependency lives one layer below this
// package; Server takes the dialer as a collaborator so tests can
// substitute a fake without standing up a real container.
type UpstreamDialer interface {
	DialUpstream(ctx context.Context, containerName string, port int, protocols []string) (*websocket.Conn, error)
}

// Server holds the collaborators every endpoint needs.
type Server struct {
	Store     store.Store
	Auth      auth.Resolver
	Registry  *broadcast.Registry
	Presence  *presence.Tracker
	Upstream  UpstreamDialer
	Logger    *slog.Logger
	NowFunc   func() time.Time
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

// Mux builds the *http.ServeMux exposing all three WebSocket
// endpoints, following the teacher's method+wildcard pattern routing.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /terminal/{sessionID}", s.handleTerminal)
	mux.HandleFunc("GET /presence/{projectID}", s.handlePresence)
	mux.HandleFunc("GET /sessions/{projectID}", s.handleSessions)
	return mux
}

// resolveUser runs every endpoint's shared first step: resolve the
// caller's user id from cookies, closing 1008 before accepting any
// frames on failure. Returns "", false once it has closed the
// connection (the handler should return without further action).
func (s *Server) resolveUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := s.Auth.ResolveUser(auth.CookieHeaderFromRequest(r))
	if err != nil {
		conn, acceptErr := acceptWebSocket(w, r, r.Header.Values("Sec-WebSocket-Protocol"))
		if acceptErr == nil {
			closeConn(conn, closeUnauthorized, "Unauthorized")
		}
		return "", false
	}
	return userID, true
}

// acceptWebSocket upgrades the request, offering protocols as the
// accepted subprotocols.
func acceptWebSocket(w http.ResponseWriter, r *http.Request, protocols []string) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: protocols})
}

func closeConn(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	_ = conn.Close(code, reason)
}

// jsonWrite marshals v and writes it as a text frame.
func jsonWrite(ctx context.Context, conn *websocket.Conn, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, body)
}

// isNormalClosure reports whether err is the expected outcome of a
// peer closing the connection, so callers can skip logging it as a
// failure.
func isNormalClosure(err error) bool {
	if err == nil {
		return true
	}
	closeStatus := websocket.CloseStatus(err)
	return closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway
}

// classifyAccessError maps a store lookup failure to the errkind used
// to decide the close code an endpoint sends.
func classifyAccessError(err error) errkind.Kind {
	if err == store.ErrNotFound {
		return errkind.NotFound
	}
	return errkind.KindOf(err)
}
