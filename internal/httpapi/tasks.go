// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/open-commander/opencommander/internal/errkind"
	"github.com/open-commander/opencommander/internal/store"
)

type taskJSON struct {
	ID         string `json:"id"`
	Body       string `json:"body"`
	AgentID    string `json:"agentId,omitempty"`
	Repository string `json:"repository,omitempty"`
	Status     string `json:"status"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}

func toTaskJSON(t store.Task) taskJSON {
	return taskJSON{
		ID:         t.ID,
		Body:       t.Body,
		AgentID:    t.AgentID,
		Repository: t.Repository,
		Status:     string(t.Status),
		CreatedAt:  t.CreatedAt.Format(timeFormat),
		UpdatedAt:  t.UpdatedAt.Format(timeFormat),
	}
}

type executionJSON struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	ContainerName string `json:"containerName,omitempty"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

func toExecutionJSON(e store.Execution) executionJSON {
	return executionJSON{
		ID:            e.ID,
		Status:        string(e.Status),
		ContainerName: e.ContainerName,
		CreatedAt:     e.CreatedAt.Format(timeFormat),
		UpdatedAt:     e.UpdatedAt.Format(timeFormat),
	}
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

type paginationJSON struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

func toPaginationJSON(p store.Pagination) paginationJSON {
	return paginationJSON{Total: p.Total, Limit: p.Limit, Offset: p.Offset, HasMore: p.HasMore}
}

// handleListTasks serves GET /api/tasks?status=&limit=&offset=.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.TaskFilter{
		Status: store.TaskStatus(query.Get("status")),
		Limit:  parseLimit(query.Get("limit")),
		Offset: parseOffset(query.Get("offset")),
	}

	tasks, pagination, err := s.Store.ListTasks(r.Context(), filter)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	out := make([]taskJSON, len(tasks))
	for i, task := range tasks {
		out[i] = toTaskJSON(task)
	}

	writeJSON(w, http.StatusOK, struct {
		Tasks      []taskJSON     `json:"tasks"`
		Pagination paginationJSON `json:"pagination"`
	}{Tasks: out, Pagination: toPaginationJSON(pagination)})
}

type createTaskRequest struct {
	Body       string `json:"body"`
	AgentID    string `json:"agentId"`
	Repository string `json:"repository"`

	// MountPoint is accepted but ignored. When Repository is set,
	// handleCreateTask clones or updates it under the workspace root
	// (C4) before recording the task; the clone's path is not stored
	// on the task and nothing here mounts it at /workspace.
	MountPoint string `json:"mountPoint"`
}

// handleCreateTask serves POST /api/tasks.
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Body == "" {
		writeError(w, http.StatusBadRequest, "body is required")
		return
	}

	if req.Repository != "" {
		if s.Workspace == nil {
			writeError(w, http.StatusInternalServerError, "repository cloning is not configured")
			return
		}
		if _, err := s.Workspace.CloneOrPull(r.Context(), req.Repository); err != nil {
			writeError(w, statusForKind(errkind.KindOf(err)), err.Error())
			return
		}
	}

	now := s.now()
	task := store.Task{
		ID:         newID(),
		Body:       req.Body,
		AgentID:    req.AgentID,
		Repository: req.Repository,
		Status:     store.TaskTodo,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	task, err := s.Store.CreateTask(r.Context(), task)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	if req.AgentID == "" {
		writeJSON(w, http.StatusCreated, struct {
			Task      taskJSON `json:"task"`
			Execution *struct{} `json:"execution"`
		}{Task: toTaskJSON(task), Execution: nil})
		return
	}

	execution := store.Execution{
		ID:        newID(),
		TaskID:    task.ID,
		Status:    store.ExecutionPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	execution, err = s.Store.CreateExecution(r.Context(), execution)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if err := s.Queue.Enqueue(r.Context(), execution); err != nil {
		s.logger().Error("httpapi: enqueue execution failed", "task_id", task.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to enqueue execution")
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Task      taskJSON      `json:"task"`
		Execution executionJSON `json:"execution"`
	}{Task: toTaskJSON(task), Execution: toExecutionJSON(execution)})
}

// handleGetTask serves GET /api/tasks/{id}.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	task, err := s.Store.GetTask(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	execution, err := s.Store.LatestExecution(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	if execution == nil {
		writeJSON(w, http.StatusOK, struct {
			Task      taskJSON  `json:"task"`
			Execution *struct{} `json:"execution"`
		}{Task: toTaskJSON(*task), Execution: nil})
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Task      taskJSON      `json:"task"`
		Execution executionJSON `json:"execution"`
	}{Task: toTaskJSON(*task), Execution: toExecutionJSON(*execution)})
}
