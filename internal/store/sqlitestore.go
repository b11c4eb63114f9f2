// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	folder           TEXT NOT NULL,
	owner_user_id    TEXT NOT NULL,
	shared           INTEGER NOT NULL DEFAULT 0,
	default_agent_id TEXT,
	created_at       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	owner_user_id  TEXT NOT NULL,
	project_id     TEXT,
	parent_id      TEXT,
	relation_type  TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	container_name TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id);
CREATE INDEX IF NOT EXISTS idx_sessions_parent ON sessions(parent_id);

CREATE TABLE IF NOT EXISTS port_mappings (
	session_id     TEXT NOT NULL,
	host_port      INTEGER NOT NULL,
	container_port INTEGER NOT NULL,
	PRIMARY KEY (session_id, host_port)
);

CREATE TABLE IF NOT EXISTS tasks (
	id         TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	agent_id   TEXT NOT NULL DEFAULT '',
	repository TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, created_at);

CREATE TABLE IF NOT EXISTS executions (
	id             TEXT PRIMARY KEY,
	task_id        TEXT NOT NULL,
	status         TEXT NOT NULL,
	container_name TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_task ON executions(task_id, created_at);

CREATE TABLE IF NOT EXISTS api_keys (
	key            TEXT PRIMARY KEY,
	owner_user_id  TEXT NOT NULL,
	created_at     INTEGER NOT NULL,
	revoked_at     INTEGER
);
`

// SQLiteStore is the zombiezen.com/go/sqlite-backed Store
// implementation, modeled on the teacher's telemetry-service store:
// a pooled connection, plain SQL, no query builder or ORM.
type SQLiteStore struct {
	pool   *connPool
	logger *slog.Logger
}

// SQLiteStoreConfig configures OpenSQLiteStore.
type SQLiteStoreConfig struct {
	// Path is the database file path. Parent directory must exist.
	Path string

	// PoolSize is the pooled-connection count. Zero or less defaults
	// to runtime.NumCPU(), and never fewer than 4.
	PoolSize int

	// Logger receives operational messages. Defaults to a discard
	// logger.
	Logger *slog.Logger
}

// OpenSQLiteStore opens (creating if absent) the SQLite database at
// cfg.Path and ensures its schema exists.
func OpenSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := openPool(poolConfig{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	return &SQLiteStore{pool: pool, logger: logger}, nil
}

// Close closes the underlying connection pool.
func (s *SQLiteStore) Close() error {
	return s.pool.Close()
}

func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func timeFromNanos(nanos int64) time.Time {
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}

// --- Projects ---

func (s *SQLiteStore) CreateProject(ctx context.Context, project Project) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	return sqlitex.Execute(conn, `INSERT INTO projects
		(id, name, folder, owner_user_id, shared, default_agent_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			project.ID, project.Name, project.Folder, project.OwnerUserID,
			boolToInt(project.Shared), project.DefaultAgentID, unixNanos(project.CreatedAt),
		},
	})
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*Project, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var project *Project
	err = sqlitex.Execute(conn, `SELECT id, name, folder, owner_user_id, shared, default_agent_id, created_at
		FROM projects WHERE id = ?`, &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			project = scanProject(stmt)
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, ErrNotFound
	}
	return project, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context, userID string) ([]Project, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var projects []Project
	err = sqlitex.Execute(conn, `SELECT id, name, folder, owner_user_id, shared, default_agent_id, created_at
		FROM projects WHERE owner_user_id = ? OR shared = 1 ORDER BY created_at DESC`, &sqlitex.ExecOptions{
		Args: []any{userID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			projects = append(projects, *scanProject(stmt))
			return nil
		},
	})
	return projects, err
}

func scanProject(stmt *sqlite.Stmt) *Project {
	return &Project{
		ID:             stmt.ColumnText(0),
		Name:           stmt.ColumnText(1),
		Folder:         stmt.ColumnText(2),
		OwnerUserID:    stmt.ColumnText(3),
		Shared:         stmt.ColumnInt(4) != 0,
		DefaultAgentID: stmt.ColumnText(5),
		CreatedAt:      timeFromNanos(stmt.ColumnInt64(6)),
	}
}

// --- Sessions ---

func (s *SQLiteStore) CreateSession(ctx context.Context, session TerminalSession) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	return sqlitex.Execute(conn, `INSERT INTO sessions
		(id, name, owner_user_id, project_id, parent_id, relation_type, status, container_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			session.ID, session.Name, session.OwnerUserID, nullableString(session.ProjectID),
			nullableString(session.ParentID), string(session.RelationType), string(session.Status),
			session.ContainerName, unixNanos(session.CreatedAt), unixNanos(session.UpdatedAt),
		},
	})
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*TerminalSession, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var session *TerminalSession
	err = sqlitex.Execute(conn, sessionSelect+"WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			session = scanSession(stmt)
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotFound
	}
	return session, nil
}

func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, id string, status SessionStatus, containerName string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE sessions SET status = ?, container_name = ?, updated_at = ? WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{string(status), containerName, time.Now().UnixNano(), id}})
	if err != nil {
		return err
	}
	if conn.Changes() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListSessionsByProject(ctx context.Context, projectID string) ([]TerminalSession, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var sessions []TerminalSession
	err = sqlitex.Execute(conn, sessionSelect+"WHERE project_id = ? ORDER BY created_at DESC", &sqlitex.ExecOptions{
		Args: []any{projectID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			sessions = append(sessions, *scanSession(stmt))
			return nil
		},
	})
	return sessions, err
}

func (s *SQLiteStore) ListChildSessions(ctx context.Context, parentID string) ([]TerminalSession, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var sessions []TerminalSession
	err = sqlitex.Execute(conn, sessionSelect+"WHERE parent_id = ? ORDER BY created_at ASC", &sqlitex.ExecOptions{
		Args: []any{parentID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			sessions = append(sessions, *scanSession(stmt))
			return nil
		},
	})
	return sessions, err
}

// DeleteSession removes a session row. If it has descendants (fork or
// stack children) and confirmCascade is false, it refuses with
// ErrHasDescendants; confirmCascade true deletes the subtree
// depth-first.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string, confirmCascade bool) error {
	children, err := s.ListChildSessions(ctx, id)
	if err != nil {
		return err
	}
	if len(children) > 0 && !confirmCascade {
		return ErrHasDescendants
	}
	for _, child := range children {
		if err := s.DeleteSession(ctx, child.ID, true); err != nil {
			return err
		}
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	return sqlitex.Execute(conn, `DELETE FROM sessions WHERE id = ?`, &sqlitex.ExecOptions{Args: []any{id}})
}

const sessionSelect = `SELECT id, name, owner_user_id, project_id, parent_id, relation_type, status, container_name, created_at, updated_at
	FROM sessions `

func scanSession(stmt *sqlite.Stmt) *TerminalSession {
	return &TerminalSession{
		ID:            stmt.ColumnText(0),
		Name:          stmt.ColumnText(1),
		OwnerUserID:   stmt.ColumnText(2),
		ProjectID:     stmt.ColumnText(3),
		ParentID:      stmt.ColumnText(4),
		RelationType:  RelationType(stmt.ColumnText(5)),
		Status:        SessionStatus(stmt.ColumnText(6)),
		ContainerName: stmt.ColumnText(7),
		CreatedAt:     timeFromNanos(stmt.ColumnInt64(8)),
		UpdatedAt:     timeFromNanos(stmt.ColumnInt64(9)),
	}
}

// --- Port mappings ---

func (s *SQLiteStore) CreatePortMapping(ctx context.Context, mapping PortMapping) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	return sqlitex.Execute(conn, `INSERT INTO port_mappings (session_id, host_port, container_port)
		VALUES (?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{mapping.SessionID, mapping.HostPort, mapping.ContainerPort},
	})
}

func (s *SQLiteStore) ListPortMappings(ctx context.Context, sessionID string) ([]PortMapping, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var mappings []PortMapping
	err = sqlitex.Execute(conn, `SELECT session_id, host_port, container_port FROM port_mappings WHERE session_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{sessionID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				mappings = append(mappings, PortMapping{
					SessionID:     stmt.ColumnText(0),
					HostPort:      stmt.ColumnInt(1),
					ContainerPort: stmt.ColumnInt(2),
				})
				return nil
			},
		})
	return mappings, err
}

// --- Tasks & executions ---

func (s *SQLiteStore) CreateTask(ctx context.Context, task Task) (Task, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Task{}, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO tasks (id, body, agent_id, repository, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{task.ID, task.Body, task.AgentID, task.Repository, string(task.Status),
			unixNanos(task.CreatedAt), unixNanos(task.UpdatedAt)},
	})
	return task, err
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*Task, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var task *Task
	err = sqlitex.Execute(conn, taskSelect+"WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			task = scanTask(stmt)
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrNotFound
	}
	return task, nil
}

func (s *SQLiteStore) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, Pagination, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, Pagination{}, err
	}
	defer s.pool.Put(conn)

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM tasks"
	var args []any
	if filter.Status != "" {
		countQuery += " WHERE status = ?"
		args = append(args, string(filter.Status))
	}
	err = sqlitex.Execute(conn, countQuery, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			total = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return nil, Pagination{}, err
	}

	query := taskSelect
	queryArgs := []any{}
	if filter.Status != "" {
		query += "WHERE status = ? "
		queryArgs = append(queryArgs, string(filter.Status))
	}
	query += "ORDER BY created_at DESC LIMIT ? OFFSET ?"
	queryArgs = append(queryArgs, limit, filter.Offset)

	var tasks []Task
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: queryArgs,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			tasks = append(tasks, *scanTask(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, Pagination{}, err
	}

	pagination := Pagination{
		Total:   total,
		Limit:   limit,
		Offset:  filter.Offset,
		HasMore: filter.Offset+len(tasks) < total,
	}
	return tasks, pagination, nil
}

const taskSelect = `SELECT id, body, agent_id, repository, status, created_at, updated_at FROM tasks `

func scanTask(stmt *sqlite.Stmt) *Task {
	return &Task{
		ID:         stmt.ColumnText(0),
		Body:       stmt.ColumnText(1),
		AgentID:    stmt.ColumnText(2),
		Repository: stmt.ColumnText(3),
		Status:     TaskStatus(stmt.ColumnText(4)),
		CreatedAt:  timeFromNanos(stmt.ColumnInt64(5)),
		UpdatedAt:  timeFromNanos(stmt.ColumnInt64(6)),
	}
}

func (s *SQLiteStore) CreateExecution(ctx context.Context, execution Execution) (Execution, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Execution{}, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO executions (id, task_id, status, container_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{execution.ID, execution.TaskID, string(execution.Status), execution.ContainerName,
			unixNanos(execution.CreatedAt), unixNanos(execution.UpdatedAt)},
	})
	return execution, err
}

func (s *SQLiteStore) UpdateExecutionStatus(ctx context.Context, id string, status ExecutionStatus) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `UPDATE executions SET status = ?, updated_at = ? WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{string(status), time.Now().UnixNano(), id}})
	if err != nil {
		return err
	}
	if conn.Changes() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) LatestExecution(ctx context.Context, taskID string) (*Execution, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var execution *Execution
	err = sqlitex.Execute(conn, `SELECT id, task_id, status, container_name, created_at, updated_at
		FROM executions WHERE task_id = ? ORDER BY created_at DESC LIMIT 1`, &sqlitex.ExecOptions{
		Args: []any{taskID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			execution = &Execution{
				ID:            stmt.ColumnText(0),
				TaskID:        stmt.ColumnText(1),
				Status:        ExecutionStatus(stmt.ColumnText(2)),
				ContainerName: stmt.ColumnText(3),
				CreatedAt:     timeFromNanos(stmt.ColumnInt64(4)),
				UpdatedAt:     timeFromNanos(stmt.ColumnInt64(5)),
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return execution, nil
}

// --- API keys ---

func (s *SQLiteStore) LookupAPIKey(ctx context.Context, key string) (*APIKey, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var apiKey *APIKey
	err = sqlitex.Execute(conn, `SELECT key, owner_user_id, created_at, revoked_at FROM api_keys WHERE key = ?`,
		&sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				apiKey = &APIKey{
					Key:         stmt.ColumnText(0),
					OwnerUserID: stmt.ColumnText(1),
					CreatedAt:   timeFromNanos(stmt.ColumnInt64(2)),
				}
				if !stmt.ColumnIsNull(3) {
					revokedAt := timeFromNanos(stmt.ColumnInt64(3))
					apiKey.RevokedAt = &revokedAt
				}
				return nil
			},
		})
	if err != nil {
		return nil, err
	}
	if apiKey == nil {
		return nil, ErrNotFound
	}
	return apiKey, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
