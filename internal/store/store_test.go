// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

func execInsertAPIKey(conn *sqlite.Conn, key, ownerUserID string, createdAt int64, revokedAt *int64) error {
	var revoked any
	if revokedAt != nil {
		revoked = *revokedAt
	}
	return sqlitex.Execute(conn, `INSERT INTO api_keys (key, owner_user_id, created_at, revoked_at) VALUES (?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{key, ownerUserID, createdAt, revoked}})
}

// openTestStores returns both Store implementations so behavioral
// tests run against each without duplicating assertions.
func openTestStores(t *testing.T) []Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	sqliteStore, err := OpenSQLiteStore(SQLiteStoreConfig{Path: dbPath})
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	return []Store{sqliteStore, NewFakeStore()}
}

func TestCreateAndGetSession(t *testing.T) {
	for _, s := range openTestStores(t) {
		ctx := context.Background()
		session := TerminalSession{
			ID:          "sess-1",
			Name:        "dev shell",
			OwnerUserID: "user-1",
			Status:      SessionPending,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
		if err := s.CreateSession(ctx, session); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}

		got, err := s.GetSession(ctx, "sess-1")
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if got.Name != "dev shell" || got.Status != SessionPending {
			t.Errorf("GetSession returned %+v", got)
		}
	}
}

func TestGetSessionNotFound(t *testing.T) {
	for _, s := range openTestStores(t) {
		if _, err := s.GetSession(context.Background(), "missing"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	}
}

func TestUpdateSessionStatusPersistsContainerName(t *testing.T) {
	for _, s := range openTestStores(t) {
		ctx := context.Background()
		s.CreateSession(ctx, TerminalSession{ID: "sess-2", Status: SessionPending, CreatedAt: time.Now(), UpdatedAt: time.Now()})

		if err := s.UpdateSessionStatus(ctx, "sess-2", SessionRunning, "oc-sess-abc123"); err != nil {
			t.Fatalf("UpdateSessionStatus: %v", err)
		}

		got, err := s.GetSession(ctx, "sess-2")
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if got.Status != SessionRunning || got.ContainerName != "oc-sess-abc123" {
			t.Errorf("GetSession returned %+v", got)
		}
	}
}

func TestDeleteSessionRequiresConfirmCascadeForDescendants(t *testing.T) {
	for _, s := range openTestStores(t) {
		ctx := context.Background()
		s.CreateSession(ctx, TerminalSession{ID: "parent", Status: SessionRunning, CreatedAt: time.Now(), UpdatedAt: time.Now()})
		s.CreateSession(ctx, TerminalSession{ID: "child", ParentID: "parent", RelationType: RelationFork, Status: SessionRunning, CreatedAt: time.Now(), UpdatedAt: time.Now()})

		if err := s.DeleteSession(ctx, "parent", false); err != ErrHasDescendants {
			t.Errorf("expected ErrHasDescendants, got %v", err)
		}

		if err := s.DeleteSession(ctx, "parent", true); err != nil {
			t.Fatalf("DeleteSession with confirmCascade: %v", err)
		}
		if _, err := s.GetSession(ctx, "child"); err != ErrNotFound {
			t.Errorf("expected child to be cascade-deleted, got %v", err)
		}
	}
}

func TestListTasksPaginationClampsLimit(t *testing.T) {
	for _, s := range openTestStores(t) {
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			id := string(rune('a' + i))
			s.CreateTask(ctx, Task{ID: id, Body: "task " + id, Status: TaskTodo, CreatedAt: time.Now(), UpdatedAt: time.Now()})
		}

		tasks, pagination, err := s.ListTasks(ctx, TaskFilter{Limit: 1000})
		if err != nil {
			t.Fatalf("ListTasks: %v", err)
		}
		if pagination.Limit != 100 {
			t.Errorf("expected clamped limit 100, got %d", pagination.Limit)
		}
		if len(tasks) != 5 || pagination.Total != 5 {
			t.Errorf("expected 5 tasks, got %d (total=%d)", len(tasks), pagination.Total)
		}
	}
}

func TestListTasksFiltersByStatus(t *testing.T) {
	for _, s := range openTestStores(t) {
		ctx := context.Background()
		s.CreateTask(ctx, Task{ID: "t1", Status: TaskTodo, CreatedAt: time.Now(), UpdatedAt: time.Now()})
		s.CreateTask(ctx, Task{ID: "t2", Status: TaskDone, CreatedAt: time.Now(), UpdatedAt: time.Now()})

		tasks, _, err := s.ListTasks(ctx, TaskFilter{Status: TaskDone})
		if err != nil {
			t.Fatalf("ListTasks: %v", err)
		}
		if len(tasks) != 1 || tasks[0].ID != "t2" {
			t.Errorf("expected only t2, got %+v", tasks)
		}
	}
}

func TestLatestExecutionPicksMostRecent(t *testing.T) {
	for _, s := range openTestStores(t) {
		ctx := context.Background()
		s.CreateTask(ctx, Task{ID: "task-x", Status: TaskDoing, CreatedAt: time.Now(), UpdatedAt: time.Now()})

		s.CreateExecution(ctx, Execution{ID: "exec-1", TaskID: "task-x", Status: ExecutionCompleted, CreatedAt: time.Now().Add(-time.Hour), UpdatedAt: time.Now()})
		s.CreateExecution(ctx, Execution{ID: "exec-2", TaskID: "task-x", Status: ExecutionRunning, CreatedAt: time.Now(), UpdatedAt: time.Now()})

		latest, err := s.LatestExecution(ctx, "task-x")
		if err != nil {
			t.Fatalf("LatestExecution: %v", err)
		}
		if latest == nil || latest.ID != "exec-2" {
			t.Errorf("expected exec-2 as latest, got %+v", latest)
		}
	}
}

func TestLookupAPIKeyDistinguishesRevoked(t *testing.T) {
	ctx := context.Background()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	sqliteStore, err := OpenSQLiteStore(SQLiteStoreConfig{Path: dbPath})
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	defer sqliteStore.Close()

	// LookupAPIKey has no Create counterpart in Store (keys are
	// provisioned out of band); insert directly for this test.
	conn, err := sqliteStore.pool.Take(ctx)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	revokedAt := time.Now().UnixNano()
	err = execInsertAPIKey(conn, "key-live", "user-1", time.Now().UnixNano(), nil)
	if err != nil {
		t.Fatalf("insert live key: %v", err)
	}
	err = execInsertAPIKey(conn, "key-revoked", "user-1", time.Now().UnixNano(), &revokedAt)
	if err != nil {
		t.Fatalf("insert revoked key: %v", err)
	}
	sqliteStore.pool.Put(conn)

	live, err := sqliteStore.LookupAPIKey(ctx, "key-live")
	if err != nil {
		t.Fatalf("LookupAPIKey(live): %v", err)
	}
	if live.RevokedAt != nil {
		t.Errorf("expected live key to have nil RevokedAt")
	}

	revoked, err := sqliteStore.LookupAPIKey(ctx, "key-revoked")
	if err != nil {
		t.Fatalf("LookupAPIKey(revoked): %v", err)
	}
	if revoked.RevokedAt == nil {
		t.Errorf("expected revoked key to have non-nil RevokedAt")
	}

	if _, err := sqliteStore.LookupAPIKey(ctx, "key-unknown"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for unknown key, got %v", err)
	}
}
