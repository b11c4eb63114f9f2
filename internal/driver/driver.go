// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

// Package driver is the typed interface to a container engine (C1):
// run, start, restart, stop, remove, isRunning, exec, pull, and
// network setup, each failing with an *errkind.Error classified as
// Conflict, LayerLocked, ImageMissing, or Other. The shape follows
// the teacher's agentdriver.Driver and tmux.Server typed-wrapper
// pattern: a narrow interface that lets the session service stay
// engine-agnostic, with a real Docker-backed implementation and an
// in-memory fake for tests.
package driver

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Mount is a single bind mount for a container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// PortPublish requests that a container port be published to a fixed
// host port (0 means let the engine choose one).
type PortPublish struct {
	ContainerPort int
	HostPort      int
}

// Spec describes a container to create.
type Spec struct {
	Name       string
	Image      string
	Network    string
	Env        map[string]string
	Mounts     []Mount
	ExtraHosts []string
	Args       []string
	Ports      []PortPublish
}

// RunningState reports whether a named container is running.
type RunningState struct {
	Running bool
}

// ExecResult is the outcome of a one-shot command run inside a
// container.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Driver is the abstraction boundary between the session service and
// a specific container engine. Run is the only operation that may
// block indefinitely; every other method must honor ctx's deadline.
type Driver interface {
	// Run creates and starts a container per spec. Returns only after
	// the daemon has accepted create+start.
	Run(ctx context.Context, spec Spec) error

	// Start starts an existing, stopped container by name.
	Start(ctx context.Context, name string) error

	// Restart stops then starts an existing container by name.
	Restart(ctx context.Context, name string) error

	// Stop stops a running container by name. Idempotent: stopping an
	// already-stopped container is not an error.
	Stop(ctx context.Context, name string) error

	// Remove deletes a container by name.
	Remove(ctx context.Context, name string) error

	// SafeRemove removes a container by name, swallowing "no such
	// container" and reporting every other failure.
	SafeRemove(ctx context.Context, name string) error

	// IsRunning reports whether name exists and is running. Returns
	// (nil, nil) when no container by that name exists, distinguishing
	// absence from a non-running container.
	IsRunning(ctx context.Context, name string) (*RunningState, error)

	// Exec runs argv inside a running container and collects output.
	Exec(ctx context.Context, name string, argv []string) (ExecResult, error)

	// Pull fetches image if not already present locally. Idempotent;
	// the driver does not itself deduplicate concurrent pulls of the
	// same image — callers serialize around Run per resource if that
	// matters to them (see internal/session's create loop).
	Pull(ctx context.Context, image string) error

	// EnsureNetwork creates the named Docker network if absent.
	// Idempotent.
	EnsureNetwork(ctx context.Context, name string, internalOnly bool) error
}

// containerNamePrefix namespaces every container this system creates,
// distinguishing them from unrelated containers on the same host.
const containerNamePrefix = "oc-sess-"

// DeriveContainerName computes the stable container name for a
// session id. Never persisted independently of the session id itself
// — computed on demand so the mapping is always reproducible.
func DeriveContainerName(sessionID string) string {
	sum := blake3.Sum256([]byte(sessionID))
	return fmt.Sprintf("%s%s", containerNamePrefix, hex.EncodeToString(sum[:8]))
}
