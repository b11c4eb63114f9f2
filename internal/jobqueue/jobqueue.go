// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

// Package jobqueue is the enqueue-only collaborator internal/httpapi
// uses when a task names an agent. Durable, replayable job dispatch
// across hosts is explicitly out of scope (see SPEC_FULL.md
// Non-goals); this package defines the narrow interface the HTTP
// layer depends on, following the teacher's agentdriver.Driver shape
// of "one small interface, one real-enough implementation, one fake
// for tests" rather than pulling in a broker client nothing else in
// this repo would exercise.
package jobqueue

import (
	"context"
	"sync"

	"github.com/open-commander/opencommander/internal/store"
)

// Queue accepts task executions for out-of-process dispatch.
type Queue interface {
	Enqueue(ctx context.Context, execution store.Execution) error
}

// InMemoryQueue records every enqueued execution in process memory.
// Used by internal/httpapi's tests and local/dev runs where no
// external dispatcher is wired up.
type InMemoryQueue struct {
	mu         sync.Mutex
	executions []store.Execution
}

// NewInMemoryQueue returns an empty InMemoryQueue.
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{}
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, execution store.Execution) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.executions = append(q.executions, execution)
	return nil
}

// Enqueued returns a snapshot of every execution handed to Enqueue so
// far, in call order.
func (q *InMemoryQueue) Enqueued() []store.Execution {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]store.Execution(nil), q.executions...)
}

var _ Queue = (*InMemoryQueue)(nil)
