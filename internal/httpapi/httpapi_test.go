// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/open-commander/opencommander/internal/jobqueue"
	"github.com/open-commander/opencommander/internal/store"
)

const testKey = "test-api-key"

func newTestServer(t *testing.T) (*Server, *store.FakeStore, *jobqueue.InMemoryQueue) {
	t.Helper()
	fake := store.NewFakeStore()
	fake.SeedAPIKey(store.APIKey{Key: testKey, OwnerUserID: "user-1", CreatedAt: time.Now()})
	queue := jobqueue.NewInMemoryQueue()

	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &Server{
		Store:   fake,
		Queue:   queue,
		NowFunc: func() time.Time { return fixed },
	}
	return s, fake, queue
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestRejectsMissingBearerToken(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s.Mux(), "GET", "/api/tasks", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRejectsUnknownAPIKey(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s.Mux(), "GET", "/api/tasks", "not-a-real-key", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRejectsRevokedAPIKey(t *testing.T) {
	s, fake, _ := newTestServer(t)
	revoked := time.Now()
	fake.SeedAPIKey(store.APIKey{Key: "revoked-key", OwnerUserID: "user-1", RevokedAt: &revoked})

	rec := doRequest(t, s.Mux(), "GET", "/api/tasks", "revoked-key", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreateTaskWithoutAgentIDCreatesNoExecution(t *testing.T) {
	s, _, queue := newTestServer(t)

	rec := doRequest(t, s.Mux(), "POST", "/api/tasks", testKey, createTaskRequest{Body: "do the thing"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Task      taskJSON `json:"task"`
		Execution *struct{} `json:"execution"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Task.Status != "todo" {
		t.Errorf("task status = %q, want todo", resp.Task.Status)
	}
	if resp.Execution != nil {
		t.Errorf("expected no execution, got %+v", resp.Execution)
	}
	if len(queue.Enqueued()) != 0 {
		t.Errorf("expected nothing enqueued, got %+v", queue.Enqueued())
	}
}

func TestCreateTaskWithAgentIDEnqueuesExecution(t *testing.T) {
	s, _, queue := newTestServer(t)

	rec := doRequest(t, s.Mux(), "POST", "/api/tasks", testKey, createTaskRequest{Body: "do the thing", AgentID: "claude"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Task      taskJSON      `json:"task"`
		Execution executionJSON `json:"execution"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Execution.Status != "pending" {
		t.Errorf("execution status = %q, want pending", resp.Execution.Status)
	}

	enqueued := queue.Enqueued()
	if len(enqueued) != 1 || enqueued[0].TaskID != resp.Task.ID {
		t.Errorf("expected one execution enqueued for task %s, got %+v", resp.Task.ID, enqueued)
	}
}

func TestCreateTaskRejectsEmptyBody(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s.Mux(), "POST", "/api/tasks", testKey, createTaskRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetTaskReturnsLatestExecution(t *testing.T) {
	s, _, _ := newTestServer(t)

	createRec := doRequest(t, s.Mux(), "POST", "/api/tasks", testKey, createTaskRequest{Body: "task", AgentID: "claude"})
	var created struct {
		Task taskJSON `json:"task"`
	}
	if err := json.Unmarshal(createRec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}

	getRec := doRequest(t, s.Mux(), "GET", "/api/tasks/"+created.Task.ID, testKey, nil)
	if getRec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", getRec.Code, getRec.Body.String())
	}

	var got struct {
		Task      taskJSON      `json:"task"`
		Execution executionJSON `json:"execution"`
	}
	if err := json.Unmarshal(getRec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal get response: %v", err)
	}
	if got.Task.ID != created.Task.ID {
		t.Errorf("task id = %q, want %q", got.Task.ID, created.Task.ID)
	}
	if got.Execution.Status != "pending" {
		t.Errorf("execution status = %q, want pending", got.Execution.Status)
	}
}

func TestGetTaskUnknownIDReturns404(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s.Mux(), "GET", "/api/tasks/does-not-exist", testKey, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListTasksClampsLimit(t *testing.T) {
	s, _, _ := newTestServer(t)
	for i := 0; i < 3; i++ {
		doRequest(t, s.Mux(), "POST", "/api/tasks", testKey, createTaskRequest{Body: "task"})
	}

	rec := doRequest(t, s.Mux(), "GET", "/api/tasks?limit=500", testKey, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Tasks      []taskJSON     `json:"tasks"`
		Pagination paginationJSON `json:"pagination"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Pagination.Limit != maxTaskLimit {
		t.Errorf("pagination.limit = %d, want %d", resp.Pagination.Limit, maxTaskLimit)
	}
	if len(resp.Tasks) != 3 {
		t.Errorf("expected 3 tasks, got %d", len(resp.Tasks))
	}
}

func TestVerifyGitHubAccessWithoutConfiguredClientReportsNoAccess(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s.Mux(), "POST", "/api/github/verify-access", testKey, verifyAccessRequest{Repository: "octo-org/octo-repo"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}

	var resp verifyAccessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.HasAccess {
		t.Error("expected hasAccess=false when no GitHub client is configured")
	}
	if resp.Error == "" {
		t.Error("expected an explanatory error message")
	}
}

func TestVerifyGitHubAccessRejectsMalformedRepository(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s.Mux(), "POST", "/api/github/verify-access", testKey, verifyAccessRequest{Repository: "not-a-valid-repo"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
