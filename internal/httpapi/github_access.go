// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/open-commander/opencommander/internal/workspace"
	"github.com/open-commander/opencommander/lib/github"
)

type verifyAccessRequest struct {
	Repository string `json:"repository"`
}

type verifyAccessResponse struct {
	HasAccess   bool            `json:"hasAccess"`
	Repository  string          `json:"repository,omitempty"`
	Permissions map[string]bool `json:"permissions,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// handleVerifyGitHubAccess serves POST /api/github/verify-access,
// checking repo access with the server's own configured token —
// callers never supply credentials of their own.
func (s *Server) handleVerifyGitHubAccess(w http.ResponseWriter, r *http.Request) {
	var req verifyAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	owner, name, err := workspace.SplitRepo(req.Repository)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.GitHub == nil {
		writeJSON(w, http.StatusOK, verifyAccessResponse{HasAccess: false, Error: "github access is not configured"})
		return
	}

	repository, err := s.GitHub.GetRepository(r.Context(), owner, name)
	if err != nil {
		if github.IsNotFound(err) {
			writeJSON(w, http.StatusOK, verifyAccessResponse{HasAccess: false, Error: "repository not found or not accessible"})
			return
		}
		s.logger().Error("httpapi: github verify-access failed", "repository", req.Repository, "error", err)
		writeError(w, http.StatusInternalServerError, "github request failed")
		return
	}

	writeJSON(w, http.StatusOK, verifyAccessResponse{
		HasAccess:   true,
		Repository:  repository.FullName,
		Permissions: repository.Permissions,
	})
}
