// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

// Package presence is the Presence Tracker (C6): a per-project table
// of (userID, sessionID) -> PresenceEntry, with derived status based
// on elapsed time and a background sweep that garbage-collects entries
// that have been inactive past a horizon.
//
// The sweep loop follows the teacher's clk.NewTicker poll-loop idiom
// (cmd/bureau-pipeline-executor/ticket.go), built on internal/clock so
// tests can advance time deterministically instead of sleeping.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/open-commander/opencommander/internal/broadcast"
	"github.com/open-commander/opencommander/internal/clock"
)

// Status is a presence entry's derived activity state.
type Status string

const (
	StatusActive   Status = "active"
	StatusViewing  Status = "viewing"
	StatusInactive Status = "inactive"
)

const (
	activeHorizon  = 30 * time.Second
	viewingHorizon = 2 * time.Minute

	// gcHorizon is how long past becoming inactive an entry must sit
	// before the sweep removes it (SPEC_FULL.md §9 Open Question: "5
	// minutes past the entry becoming inactive").
	gcHorizon = viewingHorizon + 5*time.Minute

	sweepInterval = 30 * time.Second
)

// Entry is a single user's presence in a project. DerivedStatus is
// zero-valued in the tracker's internal storage and populated only on
// the entries List returns.
type Entry struct {
	ProjectID       string
	UserID          string
	SessionID       string
	ClientStatus    string
	LastHeartbeatAt time.Time
	DerivedStatus   Status
}

type entryKey struct {
	userID    string
	sessionID string
}

type project struct {
	mu      sync.Mutex
	entries map[entryKey]Entry
}

// Tracker holds one project table per project id, each independently
// mutex-guarded so activity in one project never blocks another.
type Tracker struct {
	clk      clock.Clock
	registry *broadcast.Registry

	mu       sync.Mutex
	projects map[string]*project
}

// NewTracker returns an empty Tracker. registry is notified on
// "presence:<projectID>" whenever a project's table changes.
func NewTracker(clk clock.Clock, registry *broadcast.Registry) *Tracker {
	return &Tracker{
		clk:      clk,
		registry: registry,
		projects: make(map[string]*project),
	}
}

func (t *Tracker) projectTable(projectID string) *project {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.projects[projectID]
	if !ok {
		p = &project{entries: make(map[entryKey]Entry)}
		t.projects[projectID] = p
	}
	return p
}

// Heartbeat upserts a presence entry and notifies subscribers.
func (t *Tracker) Heartbeat(projectID, userID, sessionID, clientStatus string) {
	p := t.projectTable(projectID)
	key := entryKey{userID: userID, sessionID: sessionID}

	p.mu.Lock()
	p.entries[key] = Entry{
		ProjectID:       projectID,
		UserID:          userID,
		SessionID:       sessionID,
		ClientStatus:    clientStatus,
		LastHeartbeatAt: t.clk.Now(),
	}
	p.mu.Unlock()

	t.registry.Notify("presence:" + projectID)
}

// Leave removes a presence entry and notifies subscribers.
func (t *Tracker) Leave(projectID, userID, sessionID string) {
	p := t.projectTable(projectID)
	key := entryKey{userID: userID, sessionID: sessionID}

	p.mu.Lock()
	delete(p.entries, key)
	p.mu.Unlock()

	t.registry.Notify("presence:" + projectID)
}

// List returns every entry in projectID with its derived status,
// ordered by nothing in particular — callers needing a stable order
// sort by UserID.
func (t *Tracker) List(projectID string) []Entry {
	p := t.projectTable(projectID)
	now := t.clk.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	entries := make([]Entry, 0, len(p.entries))
	for _, e := range p.entries {
		e.DerivedStatus = derivedStatus(e, now)
		entries = append(entries, e)
	}
	return entries
}

// derivedStatus computes an entry's status from how long ago its last
// heartbeat was, relative to now.
func derivedStatus(entry Entry, now time.Time) Status {
	elapsed := now.Sub(entry.LastHeartbeatAt)
	switch {
	case elapsed < activeHorizon:
		return StatusActive
	case elapsed < viewingHorizon:
		return StatusViewing
	default:
		return StatusInactive
	}
}

// RunGC blocks, sweeping every project table on sweepInterval and
// removing entries that have been inactive for longer than gcHorizon,
// until ctx is canceled.
func (t *Tracker) RunGC(ctx context.Context) {
	ticker := t.clk.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

func (t *Tracker) sweep() {
	now := t.clk.Now()

	t.mu.Lock()
	projects := make(map[string]*project, len(t.projects))
	for id, p := range t.projects {
		projects[id] = p
	}
	t.mu.Unlock()

	for projectID, p := range projects {
		var removed bool
		p.mu.Lock()
		for key, entry := range p.entries {
			if derivedStatus(entry, now) == StatusInactive && now.Sub(entry.LastHeartbeatAt) > gcHorizon {
				delete(p.entries, key)
				removed = true
			}
		}
		p.mu.Unlock()

		if removed {
			t.registry.Notify("presence:" + projectID)
		}
	}
}
