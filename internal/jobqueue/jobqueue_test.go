// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

package jobqueue

import (
	"context"
	"testing"

	"github.com/open-commander/opencommander/internal/store"
)

func TestInMemoryQueueRecordsInOrder(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()

	first := store.Execution{ID: "exec-1", TaskID: "task-1", Status: store.ExecutionPending}
	second := store.Execution{ID: "exec-2", TaskID: "task-2", Status: store.ExecutionPending}

	if err := q.Enqueue(ctx, first); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, second); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	got := q.Enqueued()
	if len(got) != 2 || got[0].ID != "exec-1" || got[1].ID != "exec-2" {
		t.Errorf("expected executions in call order, got %+v", got)
	}
}

func TestInMemoryQueueEnqueuedReturnsSnapshot(t *testing.T) {
	q := NewInMemoryQueue()
	q.Enqueue(context.Background(), store.Execution{ID: "exec-1"})

	snapshot := q.Enqueued()
	snapshot[0].ID = "mutated"

	if q.Enqueued()[0].ID != "exec-1" {
		t.Errorf("expected snapshot mutation not to affect queue state")
	}
}
