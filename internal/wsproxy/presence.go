// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

package wsproxy

import (
	"encoding/json"
	"net/http"
	"sort"
)

// presenceFrame is a client->server message on /presence/{projectID}.
type presenceFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

// presenceEntryJSON is one entry of the JSON array sent to clients.
type presenceEntryJSON struct {
	UserID          string `json:"userId"`
	SessionID       string `json:"sessionId"`
	ClientStatus    string `json:"clientStatus"`
	DerivedStatus   string `json:"derivedStatus"`
	LastHeartbeatAt string `json:"lastHeartbeatAt"`
}

// handlePresence implements §4.7.2: subscribe to presence:<projectID>,
// push the current list on connect and on every notify, and apply
// heartbeat/leave frames the client sends.
func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectID")

	userID, ok := s.resolveUser(w, r)
	if !ok {
		return
	}

	conn, err := acceptWebSocket(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	send := func() bool {
		entries := s.Presence.List(projectID)
		sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })

		out := make([]presenceEntryJSON, 0, len(entries))
		for _, e := range entries {
			out = append(out, presenceEntryJSON{
				UserID:          e.UserID,
				SessionID:       e.SessionID,
				ClientStatus:    e.ClientStatus,
				DerivedStatus:   string(e.DerivedStatus),
				LastHeartbeatAt: e.LastHeartbeatAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			})
		}
		return jsonWrite(ctx, conn, out) == nil
	}

	if !send() {
		return
	}

	notifications := make(chan struct{}, 1)
	unsubscribe := s.Registry.Subscribe("presence:"+projectID, func() {
		select {
		case notifications <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	var lastSessionID string
	haveLast := false

	reads := make(chan presenceFrame)
	readErrs := make(chan error, 1)
	go func() {
		for {
			var frame presenceFrame
			_, data, err := conn.Read(ctx)
			if err != nil {
				readErrs <- err
				return
			}
			if json.Unmarshal(data, &frame) != nil {
				continue
			}
			reads <- frame
		}
	}()

	for {
		select {
		case <-ctx.Done():
			if haveLast {
				s.Presence.Leave(projectID, userID, lastSessionID)
			}
			return

		case err := <-readErrs:
			if haveLast {
				s.Presence.Leave(projectID, userID, lastSessionID)
			}
			if !isNormalClosure(err) {
				s.logger().Debug("presence connection closed", "project", projectID, "error", err)
			}
			return

		case frame := <-reads:
			switch frame.Type {
			case "heartbeat":
				s.Presence.Heartbeat(projectID, userID, frame.SessionID, frame.Status)
				lastSessionID = frame.SessionID
				haveLast = true
			case "leave":
				if haveLast {
					s.Presence.Leave(projectID, userID, lastSessionID)
					haveLast = false
				}
			}

		case <-notifications:
			if !send() {
				if haveLast {
					s.Presence.Leave(projectID, userID, lastSessionID)
				}
				return
			}
		}
	}
}
