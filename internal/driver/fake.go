// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"sync"

	"github.com/open-commander/opencommander/internal/errkind"
)

// FakeDriver is an in-memory Driver for unit tests of internal/session
// and internal/ctlui (cmd/opencommander-ctl can also select it), modeled on the teacher's fake test-server
// spirit (lib/tmux/testserver.go): no real engine call, just enough
// state to exercise callers' control flow and error handling.
type FakeDriver struct {
	mu sync.Mutex

	containers map[string]*fakeContainer
	networks   map[string]bool
	images     map[string]bool

	// RunErr, when set, is returned by the next Run call instead of
	// succeeding, then cleared. Lets tests exercise retry loops around
	// Conflict/LayerLocked without a real engine.
	RunErr error

	// ExecFunc, when set, overrides Exec's canned empty result so
	// tests can assert on the argv a caller issued.
	ExecFunc func(name string, argv []string) (ExecResult, error)
}

type fakeContainer struct {
	spec    Spec
	running bool
}

// NewFakeDriver returns an empty FakeDriver.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		containers: make(map[string]*fakeContainer),
		networks:   make(map[string]bool),
		images:     make(map[string]bool),
	}
}

func (f *FakeDriver) Run(ctx context.Context, spec Spec) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.RunErr != nil {
		err := f.RunErr
		f.RunErr = nil
		return err
	}

	if _, exists := f.containers[spec.Name]; exists {
		return errkind.New(errkind.Conflict, "container "+spec.Name+" already exists")
	}
	if spec.Image != "" && !f.images[spec.Image] {
		return errkind.New(errkind.ImageMissing, "image "+spec.Image+" not pulled")
	}

	f.containers[spec.Name] = &fakeContainer{spec: spec, running: true}
	return nil
}

func (f *FakeDriver) Start(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return errkind.New(errkind.NotFound, "container "+name+" does not exist")
	}
	c.running = true
	return nil
}

func (f *FakeDriver) Restart(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return errkind.New(errkind.NotFound, "container "+name+" does not exist")
	}
	c.running = true
	return nil
}

func (f *FakeDriver) Stop(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return nil
	}
	c.running = false
	return nil
}

func (f *FakeDriver) Remove(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[name]; !ok {
		return errkind.New(errkind.NotFound, "container "+name+" does not exist")
	}
	delete(f.containers, name)
	return nil
}

func (f *FakeDriver) SafeRemove(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, name)
	return nil
}

func (f *FakeDriver) IsRunning(ctx context.Context, name string) (*RunningState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return nil, nil
	}
	return &RunningState{Running: c.running}, nil
}

func (f *FakeDriver) Exec(ctx context.Context, name string, argv []string) (ExecResult, error) {
	f.mu.Lock()
	c, ok := f.containers[name]
	fn := f.ExecFunc
	f.mu.Unlock()

	if !ok || !c.running {
		return ExecResult{}, errkind.New(errkind.NotFound, "container "+name+" is not running")
	}
	if fn != nil {
		return fn(name, argv)
	}
	return ExecResult{ExitCode: 0}, nil
}

func (f *FakeDriver) Pull(ctx context.Context, image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[image] = true
	return nil
}

func (f *FakeDriver) EnsureNetwork(ctx context.Context, name string, internalOnly bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.networks[name] = true
	return nil
}

var _ Driver = (*FakeDriver)(nil)
