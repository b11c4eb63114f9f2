// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"testing"
	"time"

	"github.com/open-commander/opencommander/internal/broadcast"
	"github.com/open-commander/opencommander/internal/clock"
	"github.com/open-commander/opencommander/internal/driver"
	"github.com/open-commander/opencommander/internal/errkind"
	"github.com/open-commander/opencommander/internal/ingress"
	"github.com/open-commander/opencommander/internal/mount"
	"github.com/open-commander/opencommander/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.FakeStore, *driver.FakeDriver) {
	t.Helper()
	fakeStore := store.NewFakeStore()
	fakeDriver := driver.NewFakeDriver()

	cfg := mount.Config{
		AgentStateRoot: t.TempDir(),
		WorkspaceRoot:  t.TempDir(),
		TLSCertPath:    t.TempDir(),
		DockerHost:     "tcp://inner:2376",
		EntrypointArgv: []string{"opencommander-terminald"},
	}

	svc := &Service{
		Store:    fakeStore,
		Driver:   fakeDriver,
		Mount:    cfg,
		Registry: broadcast.NewRegistry(nil),
		Ingress:  ingress.NoopCleaner{},
		Clock:    clock.Fake(time.Now()),
		Image:    "opencommander/agent:latest",
		Network:  "opencommander",
	}
	return svc, fakeStore, fakeDriver
}

func seedSession(t *testing.T, st *store.FakeStore, id, ownerID, projectID string, status store.SessionStatus) {
	t.Helper()
	if err := st.CreateSession(context.Background(), store.TerminalSession{
		ID:          id,
		OwnerUserID: ownerID,
		ProjectID:   projectID,
		Status:      status,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}); err != nil {
		t.Fatalf("seed session: %v", err)
	}
}

func TestStartCreatesAndRunsContainer(t *testing.T) {
	svc, st, _ := newTestService(t)
	seedSession(t, st, "sess-1", "user-1", "proj-1", store.SessionPending)

	name, err := svc.Start(context.Background(), "user-1", "sess-1", StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if name != driver.DeriveContainerName("sess-1") {
		t.Errorf("unexpected container name %q", name)
	}

	got, err := st.GetSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != store.SessionRunning {
		t.Errorf("expected status running, got %v", got.Status)
	}
	if got.ContainerName != name {
		t.Errorf("expected stored container name %q, got %q", name, got.ContainerName)
	}
}

func TestStartShortCircuitsWhenAlreadyStartingOrRunning(t *testing.T) {
	svc, st, fd := newTestService(t)
	seedSession(t, st, "sess-1", "user-1", "proj-1", store.SessionPending)

	name1, err := svc.Start(context.Background(), "user-1", "sess-1", StartOptions{})
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}

	name2, err := svc.Start(context.Background(), "user-1", "sess-1", StartOptions{})
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if name1 != name2 {
		t.Errorf("expected short-circuit to return same container name")
	}

	if state, _ := fd.IsRunning(context.Background(), name1); state == nil || !state.Running {
		t.Errorf("expected container to remain running")
	}
}

func TestStartFailsForStoppedSession(t *testing.T) {
	svc, st, _ := newTestService(t)
	seedSession(t, st, "sess-1", "user-1", "proj-1", store.SessionStopped)

	_, err := svc.Start(context.Background(), "user-1", "sess-1", StartOptions{})
	if !errkind.Is(err, errkind.NotFound) {
		t.Fatalf("expected NotFound for stopped session, got %v", err)
	}
}

func TestStartFailsForUnknownSession(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Start(context.Background(), "user-1", "does-not-exist", StartOptions{})
	if !errkind.Is(err, errkind.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestStartRecoversFromNameConflict(t *testing.T) {
	// Simulates a create-loop race: the probe reports the container
	// absent, but Run reports Conflict (another path created it
	// between the probe and the create call). Since the conflicting
	// container is invisible to this fake (no Start target exists),
	// recovery falls through to safe-remove + ensureNetwork + retry,
	// and the retried Run succeeds cleanly.
	svc, st, fd := newTestService(t)
	seedSession(t, st, "sess-1", "user-1", "proj-1", store.SessionPending)

	name := driver.DeriveContainerName("sess-1")
	fd.RunErr = errkind.New(errkind.Conflict, "container already exists")

	got, err := svc.Start(context.Background(), "user-1", "sess-1", StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got != name {
		t.Errorf("unexpected container name %q", got)
	}
}

func TestStartRetriesOnLayerLocked(t *testing.T) {
	svc, st, fd := newTestService(t)
	seedSession(t, st, "sess-1", "user-1", "proj-1", store.SessionPending)
	fd.RunErr = errkind.New(errkind.LayerLocked, "image layer locked")

	fc, ok := svc.Clock.(*clock.FakeClock)
	if !ok {
		t.Fatal("expected fake clock in test service")
	}

	type result struct {
		name string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		name, err := svc.Start(context.Background(), "user-1", "sess-1", StartOptions{})
		done <- result{name, err}
	}()

	fc.WaitForTimers(1)
	fc.Advance(layerRetryDelay)

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Start: %v", r.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after advancing the retry delay")
	}
}

func TestStartNotifiesProjectSessionsTopic(t *testing.T) {
	svc, st, _ := newTestService(t)
	seedSession(t, st, "sess-1", "user-1", "proj-1", store.SessionPending)

	var notified bool
	svc.Registry.Subscribe("sessions:proj-1", func() { notified = true })

	if _, err := svc.Start(context.Background(), "user-1", "sess-1", StartOptions{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !notified {
		t.Errorf("expected sessions:proj-1 subscribers to be notified")
	}
}

func TestStopRemovesRunningContainer(t *testing.T) {
	svc, st, _ := newTestService(t)
	seedSession(t, st, "sess-1", "user-1", "proj-1", store.SessionPending)
	if _, err := svc.Start(context.Background(), "user-1", "sess-1", StartOptions{}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	result, err := svc.Stop(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !result.Removed {
		t.Errorf("expected Removed=true, got %+v", result)
	}

	got, err := st.GetSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != store.SessionStopped {
		t.Errorf("expected status stopped, got %v", got.Status)
	}
}

func TestStopOnAbsentContainerReportsNotRemoved(t *testing.T) {
	svc, st, _ := newTestService(t)
	seedSession(t, st, "sess-1", "user-1", "proj-1", store.SessionPending)

	result, err := svc.Stop(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if result.Removed {
		t.Errorf("expected Removed=false for a container that never existed")
	}
}

func TestStopNotifiesProjectSessionsTopic(t *testing.T) {
	svc, st, _ := newTestService(t)
	seedSession(t, st, "sess-1", "user-1", "proj-1", store.SessionPending)
	if _, err := svc.Start(context.Background(), "user-1", "sess-1", StartOptions{}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var notified bool
	svc.Registry.Subscribe("sessions:proj-1", func() { notified = true })

	if _, err := svc.Stop(context.Background(), "sess-1"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !notified {
		t.Errorf("expected sessions:proj-1 subscribers to be notified")
	}
}
