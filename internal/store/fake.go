// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"sort"
	"sync"
)

// FakeStore is an in-memory Store used by unit tests of packages that
// depend on Store (internal/session, internal/httpapi) so they don't
// need a real SQLite file per test.
type FakeStore struct {
	mu sync.Mutex

	projects     map[string]Project
	sessions     map[string]TerminalSession
	portMappings map[string][]PortMapping
	tasks        map[string]Task
	executions   map[string][]Execution
	apiKeys      map[string]APIKey
}

// NewFakeStore returns an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		projects:     make(map[string]Project),
		sessions:     make(map[string]TerminalSession),
		portMappings: make(map[string][]PortMapping),
		tasks:        make(map[string]Task),
		executions:   make(map[string][]Execution),
		apiKeys:      make(map[string]APIKey),
	}
}

func (f *FakeStore) Close() error { return nil }

// SeedAPIKey installs an API key directly, bypassing the normal
// create path (there is no CreateAPIKey in Store — keys are
// provisioned out of band per §3).
func (f *FakeStore) SeedAPIKey(key APIKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys[key.Key] = key
}

func (f *FakeStore) CreateProject(ctx context.Context, project Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[project.ID] = project
	return nil
}

func (f *FakeStore) GetProject(ctx context.Context, id string) (*Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	project, ok := f.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &project, nil
}

func (f *FakeStore) ListProjects(ctx context.Context, userID string) ([]Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []Project
	for _, project := range f.projects {
		if project.OwnerUserID == userID || project.Shared {
			result = append(result, project)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (f *FakeStore) CreateSession(ctx context.Context, session TerminalSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[session.ID] = session
	return nil
}

func (f *FakeStore) GetSession(ctx context.Context, id string) (*TerminalSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &session, nil
}

func (f *FakeStore) UpdateSessionStatus(ctx context.Context, id string, status SessionStatus, containerName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok {
		return ErrNotFound
	}
	session.Status = status
	session.ContainerName = containerName
	f.sessions[id] = session
	return nil
}

func (f *FakeStore) ListSessionsByProject(ctx context.Context, projectID string) ([]TerminalSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []TerminalSession
	for _, session := range f.sessions {
		if session.ProjectID == projectID {
			result = append(result, session)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (f *FakeStore) ListChildSessions(ctx context.Context, parentID string) ([]TerminalSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []TerminalSession
	for _, session := range f.sessions {
		if session.ParentID == parentID {
			result = append(result, session)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (f *FakeStore) DeleteSession(ctx context.Context, id string, confirmCascade bool) error {
	f.mu.Lock()
	var children []string
	for childID, session := range f.sessions {
		if session.ParentID == id {
			children = append(children, childID)
		}
	}
	if len(children) > 0 && !confirmCascade {
		f.mu.Unlock()
		return ErrHasDescendants
	}
	f.mu.Unlock()

	for _, childID := range children {
		if err := f.DeleteSession(ctx, childID, true); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

func (f *FakeStore) CreatePortMapping(ctx context.Context, mapping PortMapping) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.portMappings[mapping.SessionID] = append(f.portMappings[mapping.SessionID], mapping)
	return nil
}

func (f *FakeStore) ListPortMappings(ctx context.Context, sessionID string) ([]PortMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PortMapping(nil), f.portMappings[sessionID]...), nil
}

func (f *FakeStore) CreateTask(ctx context.Context, task Task) (Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[task.ID] = task
	return task, nil
}

func (f *FakeStore) GetTask(ctx context.Context, id string) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &task, nil
}

func (f *FakeStore) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, Pagination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []Task
	for _, task := range f.tasks {
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		matched = append(matched, task)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	page := matched[start:end]
	pagination := Pagination{
		Total:   total,
		Limit:   limit,
		Offset:  filter.Offset,
		HasMore: end < total,
	}
	return page, pagination, nil
}

func (f *FakeStore) LatestExecution(ctx context.Context, taskID string) (*Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	executions := f.executions[taskID]
	if len(executions) == 0 {
		return nil, nil
	}
	latest := executions[0]
	for _, execution := range executions[1:] {
		if execution.CreatedAt.After(latest.CreatedAt) {
			latest = execution
		}
	}
	return &latest, nil
}

func (f *FakeStore) CreateExecution(ctx context.Context, execution Execution) (Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executions[execution.TaskID] = append(f.executions[execution.TaskID], execution)
	return execution, nil
}

func (f *FakeStore) UpdateExecutionStatus(ctx context.Context, id string, status ExecutionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for taskID, executions := range f.executions {
		for i, execution := range executions {
			if execution.ID == id {
				executions[i].Status = status
				f.executions[taskID] = executions
				return nil
			}
		}
	}
	return ErrNotFound
}

func (f *FakeStore) LookupAPIKey(ctx context.Context, key string) (*APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	apiKey, ok := f.apiKeys[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &apiKey, nil
}

var _ Store = (*FakeStore)(nil)
var _ Store = (*SQLiteStore)(nil)
