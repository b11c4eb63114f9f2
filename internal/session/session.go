// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

// Package session is the Session Service (C3): idempotent start/stop
// of a session's container, with a create-loop retry/recovery state
// machine and per-session serialization.
//
// The per-session mutex map is grounded on lib/authorization.Index's
// indexed-lookup-under-lock idiom, keyed here by session id instead of
// principal. The create loop's retry-on-transient-failure shape
// follows lib/agentdriver/run.go's lifecycle (spawn, wait,
// retry-bounded-on-failure).
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/open-commander/opencommander/internal/broadcast"
	"github.com/open-commander/opencommander/internal/clock"
	"github.com/open-commander/opencommander/internal/driver"
	"github.com/open-commander/opencommander/internal/errkind"
	"github.com/open-commander/opencommander/internal/ingress"
	"github.com/open-commander/opencommander/internal/mount"
	"github.com/open-commander/opencommander/internal/store"
)

// maxLayerRetries bounds the create loop's retries on LayerLocked,
// per spec.md §4.3.
const maxLayerRetries = 5

// layerRetryDelay is how long the create loop sleeps between
// LayerLocked retries.
const layerRetryDelay = 5 * time.Second

// StartOptions modifies Start's behavior.
type StartOptions struct {
	// Reset forces a restart even if the session's container is
	// already running.
	Reset bool

	// WorkspaceSuffix selects the workspace subdirectory mounted at
	// /workspace. Empty mounts the workspace root itself.
	WorkspaceSuffix string

	// GitBranch, if set, is checked out inside /workspace via a
	// best-effort exec after the container reaches running.
	GitBranch string
}

// StopResult is Stop's outcome.
type StopResult struct {
	Removed       bool
	ContainerName string
	Err           string
}

// Service is the Session Service. Image is the container image every
// session's container runs.
type Service struct {
	Store    store.Store
	Driver   driver.Driver
	Mount    mount.Config
	Registry *broadcast.Registry
	Ingress  ingress.Cleaner
	Clock    clock.Clock
	Image    string
	Network  string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// lockFor returns the mutex serializing Start/Stop for sessionID,
// creating it on first use.
func (s *Service) lockFor(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks == nil {
		s.locks = make(map[string]*sync.Mutex)
	}
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

// Start brings sessionID's container to the running state, per
// spec.md §4.3's seven-step algorithm, and returns its container name.
func (s *Service) Start(ctx context.Context, userID, sessionID string, opts StartOptions) (string, error) {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.Store.GetSession(ctx, sessionID)
	if err != nil {
		return "", errkind.Wrap(errkind.NotFound, "load session "+sessionID, err)
	}

	if !opts.Reset && (sess.Status == store.SessionStarting || sess.Status == store.SessionRunning) && sess.OwnerUserID == userID {
		return sess.ContainerName, nil
	}
	if sess.Status == store.SessionStopped {
		return "", errkind.New(errkind.NotFound, "session "+sessionID+" is stopped")
	}

	name := driver.DeriveContainerName(sessionID)

	state, err := s.Driver.IsRunning(ctx, name)
	if err != nil {
		return "", errkind.Wrap(errkind.Other, "probe container "+name, err)
	}

	if state == nil || !state.Running {
		if err := s.Store.UpdateSessionStatus(ctx, sessionID, store.SessionStarting, name); err != nil {
			return "", fmt.Errorf("record session starting: %w", err)
		}
	}

	switch {
	case state == nil:
		if err := s.create(ctx, userID, name, opts); err != nil {
			return "", err
		}
	case opts.Reset:
		if err := s.Driver.Restart(ctx, name); err != nil {
			return "", errkind.Wrap(errkind.Other, "restart container "+name, err)
		}
	case !state.Running:
		if err := s.Driver.Start(ctx, name); err != nil {
			return "", errkind.Wrap(errkind.Other, "start container "+name, err)
		}
	default:
		// already running, no action
	}

	state, err = s.Driver.IsRunning(ctx, name)
	if err != nil {
		return "", errkind.Wrap(errkind.Other, "re-probe container "+name, err)
	}
	if state == nil || !state.Running {
		return "", errkind.New(errkind.Fatal, "container "+name+" did not reach running state")
	}

	if opts.GitBranch != "" {
		// Best-effort: log-worthy but not fatal to Start.
		_, _ = s.Driver.Exec(ctx, name, []string{"git", "-C", "/workspace", "checkout", opts.GitBranch})
	}

	if err := s.Store.UpdateSessionStatus(ctx, sessionID, store.SessionRunning, name); err != nil {
		return "", fmt.Errorf("record session running: %w", err)
	}
	if sess.ProjectID != "" {
		s.Registry.Notify("sessions:" + sess.ProjectID)
	}

	return name, nil
}

// create builds the mount plan and runs the create loop: up to
// maxLayerRetries attempts, retrying on LayerLocked, recovering a
// NameConflict by starting (or safe-removing and recreating) the
// existing container, and aborting on any other error.
func (s *Service) create(ctx context.Context, userID, name string, opts StartOptions) error {
	plan, err := s.Mount.Plan(userID, opts.WorkspaceSuffix)
	if err != nil {
		return err
	}

	if err := s.Driver.EnsureNetwork(ctx, s.Network, false); err != nil {
		return errkind.Wrap(errkind.Other, "ensure network "+s.Network, err)
	}
	if err := s.Driver.Pull(ctx, s.Image); err != nil {
		return errkind.Wrap(errkind.ImageMissing, "pull image "+s.Image, err)
	}

	spec := driver.Spec{
		Name:    name,
		Image:   s.Image,
		Network: s.Network,
		Env:     plan.Environment,
		Mounts:  plan.Mounts,
		Args:    plan.Entrypoint,
	}

	for attempt := 0; attempt < maxLayerRetries; attempt++ {
		err := s.Driver.Run(ctx, spec)
		if err == nil {
			return nil
		}

		switch errkind.KindOf(err) {
		case errkind.Conflict:
			if startErr := s.Driver.Start(ctx, name); startErr == nil {
				return nil
			}
			if removeErr := s.Driver.SafeRemove(ctx, name); removeErr != nil {
				return errkind.Wrap(errkind.Other, "remove conflicting container "+name, removeErr)
			}
			if err := s.Driver.EnsureNetwork(ctx, s.Network, false); err != nil {
				return errkind.Wrap(errkind.Other, "ensure network "+s.Network, err)
			}
			return s.Driver.Run(ctx, spec)
		case errkind.LayerLocked:
			s.Clock.Sleep(layerRetryDelay)
			continue
		default:
			return err
		}
	}

	return errkind.New(errkind.LayerLocked, "create loop exhausted retries for "+name)
}

// Stop removes sessionID's container, per spec.md §4.3's stop
// algorithm: best-effort ingress cleanup, then container removal.
func (s *Service) Stop(ctx context.Context, sessionID string) (StopResult, error) {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.Store.GetSession(ctx, sessionID)
	if err != nil {
		return StopResult{}, errkind.Wrap(errkind.NotFound, "load session "+sessionID, err)
	}

	name := driver.DeriveContainerName(sessionID)

	_ = s.Ingress.Cleanup(ctx, sessionID)

	before, err := s.Driver.IsRunning(ctx, name)
	if err != nil {
		return StopResult{ContainerName: name}, errkind.Wrap(errkind.Other, "probe container "+name, err)
	}
	if before == nil {
		return StopResult{Removed: false, ContainerName: name}, nil
	}

	if err := s.Driver.SafeRemove(ctx, name); err != nil {
		return StopResult{ContainerName: name}, errkind.Wrap(errkind.Other, "remove container "+name, err)
	}

	after, err := s.Driver.IsRunning(ctx, name)
	if err != nil {
		return StopResult{ContainerName: name}, errkind.Wrap(errkind.Other, "confirm removal of "+name, err)
	}
	if after != nil {
		return StopResult{Removed: false, ContainerName: name, Err: "still exists"}, nil
	}

	if err := s.Store.UpdateSessionStatus(ctx, sessionID, store.SessionStopped, ""); err != nil {
		return StopResult{}, fmt.Errorf("record session stopped: %w", err)
	}
	if sess.ProjectID != "" {
		s.Registry.Notify("sessions:" + sess.ProjectID)
	}

	return StopResult{Removed: true, ContainerName: name}, nil
}
