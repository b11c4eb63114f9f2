// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

package wsproxy

import (
	"net/http"

	"github.com/open-commander/opencommander/internal/store"
)

// sessionJSON is one entry of the JSON array sent to clients on
// /sessions/{projectID}.
type sessionJSON struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	OwnerUserID   string `json:"ownerUserId"`
	Status        string `json:"status"`
	ContainerName string `json:"containerName"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

var liveSessionStatuses = map[store.SessionStatus]bool{
	store.SessionRunning:  true,
	store.SessionPending:  true,
	store.SessionStarting: true,
}

// handleSessions implements §4.7.3: access check (owner or shared
// project), then push the project's live sessions on connect and on
// every notify.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectID")

	userID, ok := s.resolveUser(w, r)
	if !ok {
		return
	}

	project, err := s.Store.GetProject(r.Context(), projectID)
	if err != nil || (project.OwnerUserID != userID && !project.Shared) {
		http.Error(w, "project not found or access denied", http.StatusNotFound)
		return
	}

	conn, err := acceptWebSocket(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	send := func() bool {
		sessions, err := s.Store.ListSessionsByProject(ctx, projectID)
		if err != nil {
			return false
		}

		out := make([]sessionJSON, 0, len(sessions))
		for _, sess := range sessions {
			if !liveSessionStatuses[sess.Status] {
				continue
			}
			if sess.OwnerUserID != userID && !project.Shared {
				continue
			}
			out = append(out, sessionJSON{
				ID:            sess.ID,
				Name:          sess.Name,
				OwnerUserID:   sess.OwnerUserID,
				Status:        string(sess.Status),
				ContainerName: sess.ContainerName,
				CreatedAt:     sess.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
				UpdatedAt:     sess.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			})
		}
		return jsonWrite(ctx, conn, out) == nil
	}

	if !send() {
		return
	}

	notifications := make(chan struct{}, 1)
	unsubscribe := s.Registry.Subscribe("sessions:"+projectID, func() {
		select {
		case notifications <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	readErrs := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErrs <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readErrs:
			if !isNormalClosure(err) {
				s.logger().Debug("sessions connection closed", "project", projectID, "error", err)
			}
			return
		case <-notifications:
			if !send() {
				return
			}
		}
	}
}
