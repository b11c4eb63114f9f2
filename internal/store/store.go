// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

// Package store defines the relational entity model (§3) and the
// interface every persistence backend implements. sqlitestore.go
// backs local development and the integration test suite; fake.go
// provides an in-memory implementation for unit tests of the packages
// that depend on Store.
package store

import (
	"context"
	"errors"
	"time"
)

// SessionStatus is a TerminalSession's lifecycle state.
type SessionStatus string

const (
	SessionPending  SessionStatus = "pending"
	SessionStarting SessionStatus = "starting"
	SessionRunning  SessionStatus = "running"
	SessionStopped  SessionStatus = "stopped"
	SessionError    SessionStatus = "error"
)

// RelationType describes how a session relates to its parent.
type RelationType string

const (
	RelationNone  RelationType = ""
	RelationFork  RelationType = "fork"
	RelationStack RelationType = "stack"
)

// TaskStatus is a Task's lifecycle state.
type TaskStatus string

const (
	TaskTodo     TaskStatus = "todo"
	TaskDoing    TaskStatus = "doing"
	TaskDone     TaskStatus = "done"
	TaskCanceled TaskStatus = "canceled"
)

// ExecutionStatus is an Execution's lifecycle state.
type ExecutionStatus string

const (
	ExecutionPending    ExecutionStatus = "pending"
	ExecutionRunning    ExecutionStatus = "running"
	ExecutionCompleted  ExecutionStatus = "completed"
	ExecutionFailed     ExecutionStatus = "failed"
	ExecutionNeedsInput ExecutionStatus = "needs_input"
)

// Project is a named workspace owned by a user, optionally shared.
type Project struct {
	ID             string
	Name           string
	Folder         string
	OwnerUserID    string
	Shared         bool
	DefaultAgentID string
	CreatedAt      time.Time
}

// TerminalSession is a single interactive terminal session backed by
// a container. ContainerName is derived, never stored independently —
// callers needing it should use driver.DeriveContainerName(ID), but
// the store persists it alongside status for query convenience since
// it does vary across a session's lifetime (empty until Starting).
type TerminalSession struct {
	ID            string
	Name          string
	OwnerUserID   string
	ProjectID     string // empty if not attached to a project
	ParentID      string // empty if no parent
	RelationType  RelationType
	Status        SessionStatus
	ContainerName string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PortMapping records a host/container port pair exposed by a session.
type PortMapping struct {
	SessionID     string
	HostPort      int
	ContainerPort int
}

// Task is a unit of work a user submits, optionally against a
// repository, optionally driving an agent.
type Task struct {
	ID         string
	Body       string
	AgentID    string
	Repository string
	Status     TaskStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Execution is one attempt at running a Task's agent.
type Execution struct {
	ID            string
	TaskID        string
	Status        ExecutionStatus
	ContainerName string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// APIKey is an opaque bearer token authenticating §6.1's HTTP API.
type APIKey struct {
	Key         string
	OwnerUserID string
	CreatedAt   time.Time
	RevokedAt   *time.Time
}

// TaskFilter narrows ListTasks. Zero-valued fields impose no filter.
type TaskFilter struct {
	Status TaskStatus
	Limit  int
	Offset int
}

// Pagination describes the page ListTasks returned relative to the
// full result set.
type Pagination struct {
	Total   int
	Limit   int
	Offset  int
	HasMore bool
}

// ErrNotFound is returned by single-entity lookups when no row
// matches. Wrap with errkind.NotFound at the calling layer — the
// store package itself stays free of the transport-facing taxonomy so
// it has no import-cycle risk with internal/errkind's consumers.
var ErrNotFound = errors.New("store: not found")

// ErrHasDescendants is returned by DeleteSession when a session has
// fork/stack children and confirmCascade was not set.
var ErrHasDescendants = errors.New("store: session has descendants, confirmCascade required")

// Store is the entity persistence interface used by every component
// that needs durable state: internal/session, internal/httpapi,
// internal/wsproxy, and internal/ctlui.
type Store interface {
	CreateProject(ctx context.Context, project Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context, userID string) ([]Project, error)

	CreateSession(ctx context.Context, session TerminalSession) error
	GetSession(ctx context.Context, id string) (*TerminalSession, error)
	UpdateSessionStatus(ctx context.Context, id string, status SessionStatus, containerName string) error
	ListSessionsByProject(ctx context.Context, projectID string) ([]TerminalSession, error)
	ListChildSessions(ctx context.Context, parentID string) ([]TerminalSession, error)
	DeleteSession(ctx context.Context, id string, confirmCascade bool) error

	CreatePortMapping(ctx context.Context, mapping PortMapping) error
	ListPortMappings(ctx context.Context, sessionID string) ([]PortMapping, error)

	CreateTask(ctx context.Context, task Task) (Task, error)
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]Task, Pagination, error)
	LatestExecution(ctx context.Context, taskID string) (*Execution, error)

	CreateExecution(ctx context.Context, execution Execution) (Execution, error)
	UpdateExecutionStatus(ctx context.Context, id string, status ExecutionStatus) error

	LookupAPIKey(ctx context.Context, key string) (*APIKey, error)

	Close() error
}
