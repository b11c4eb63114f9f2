// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

package mount

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/open-commander/opencommander/internal/errkind"
)

func testConfig(t *testing.T) (Config, string) {
	t.Helper()
	root := t.TempDir()

	stateRoot := filepath.Join(root, "agents")
	workspaceRoot := filepath.Join(root, "workspaces")
	if err := os.MkdirAll(workspaceRoot, 0755); err != nil {
		t.Fatalf("mkdir workspaceRoot: %v", err)
	}
	if err := os.MkdirAll(stateRoot, 0755); err != nil {
		t.Fatalf("mkdir stateRoot: %v", err)
	}

	cfg := Config{
		AgentStateRoot: stateRoot,
		WorkspaceRoot:  workspaceRoot,
		TLSCertPath:    filepath.Join(root, "certs"),
		ProxyAddress:   "http://proxy.internal:3128",
		NoProxy:        "localhost",
		DockerHost:     "tcp://127.0.0.1:2376",
		EntrypointArgv: []string{"/usr/bin/commander-term", "--listen", "0.0.0.0:7890"},
	}
	return cfg, workspaceRoot
}

func TestPlanCreatesAgentStateDirWithRestrictedMode(t *testing.T) {
	cfg, _ := testConfig(t)

	plan, err := cfg.Plan("user-1", "")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	info, err := os.Stat(filepath.Join(cfg.AgentStateRoot, "user-1"))
	if err != nil {
		t.Fatalf("stat state dir: %v", err)
	}
	if info.Mode().Perm() != 0700 {
		t.Errorf("expected mode 0700, got %v", info.Mode().Perm())
	}
	if plan.Mounts[0].Target != "/home/agent/.commander" {
		t.Errorf("expected first mount to be state dir, got %+v", plan.Mounts[0])
	}
}

func TestPlanDefaultsWorkspaceToRoot(t *testing.T) {
	cfg, workspaceRoot := testConfig(t)

	plan, err := cfg.Plan("user-1", "")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	var found bool
	for _, m := range plan.Mounts {
		if m.Target == "/workspace" {
			found = true
			if m.Source != workspaceRoot {
				t.Errorf("expected workspace source %q, got %q", workspaceRoot, m.Source)
			}
		}
	}
	if !found {
		t.Errorf("expected a /workspace mount, got %+v", plan.Mounts)
	}
}

func TestPlanRejectsDotDotSuffix(t *testing.T) {
	cfg, _ := testConfig(t)

	_, err := cfg.Plan("user-1", "../escape")
	if !errkind.Is(err, errkind.InvalidInput) {
		t.Errorf("expected InvalidInput, got %v", err)
	}
}

func TestPlanRejectsPathSeparatorInSuffix(t *testing.T) {
	cfg, _ := testConfig(t)

	_, err := cfg.Plan("user-1", "sub/dir")
	if !errkind.Is(err, errkind.InvalidInput) {
		t.Errorf("expected InvalidInput, got %v", err)
	}
}

func TestPlanRejectsMissingWorkspaceDirectory(t *testing.T) {
	cfg, _ := testConfig(t)

	_, err := cfg.Plan("user-1", "does-not-exist")
	if !errkind.Is(err, errkind.InvalidInput) {
		t.Errorf("expected InvalidInput, got %v", err)
	}
}

func TestPlanRejectsSymlinkEscapingWorkspaceRoot(t *testing.T) {
	cfg, workspaceRoot := testConfig(t)

	outside := t.TempDir()
	link := filepath.Join(workspaceRoot, "escape-link")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	_, err := cfg.Plan("user-1", "escape-link")
	if !errkind.Is(err, errkind.InvalidInput) {
		t.Errorf("expected InvalidInput for symlink escape, got %v", err)
	}
}

func TestPlanAcceptsValidWorkspaceSuffix(t *testing.T) {
	cfg, workspaceRoot := testConfig(t)

	sub := filepath.Join(workspaceRoot, "proj-1")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("mkdir sub: %v", err)
	}

	plan, err := cfg.Plan("user-1", "proj-1")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	var found bool
	for _, m := range plan.Mounts {
		if m.Target == "/workspace" && m.Source == sub {
			found = true
		}
	}
	if !found {
		t.Errorf("expected workspace mount to resolve to %q, got %+v", sub, plan.Mounts)
	}
}

func TestPlanEnvironmentIncludesProxyAndDockerVars(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.GitHubToken = "ghp_example"

	plan, err := cfg.Plan("user-1", "")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	for _, key := range []string{"HTTP_PROXY", "HTTPS_PROXY", "NO_PROXY", "http_proxy", "DOCKER_HOST", "DOCKER_TLS_VERIFY", "DOCKER_CERT_PATH", "GITHUB_TOKEN", "GH_TOKEN"} {
		if _, ok := plan.Environment[key]; !ok {
			t.Errorf("expected environment to include %s", key)
		}
	}
	if plan.Environment["DOCKER_CERT_PATH"] != "/certs/client" {
		t.Errorf("expected DOCKER_CERT_PATH=/certs/client, got %q", plan.Environment["DOCKER_CERT_PATH"])
	}
}

func TestPlanOmitsGitHubTokenWhenUnset(t *testing.T) {
	cfg, _ := testConfig(t)

	plan, err := cfg.Plan("user-1", "")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if _, ok := plan.Environment["GITHUB_TOKEN"]; ok {
		t.Errorf("expected no GITHUB_TOKEN when unset")
	}
}

func TestPlanEntrypointSymlinksThenExecs(t *testing.T) {
	cfg, _ := testConfig(t)

	plan, err := cfg.Plan("user-1", "")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Entrypoint) != 3 || plan.Entrypoint[0] != "sh" || plan.Entrypoint[1] != "-c" {
		t.Fatalf("expected [sh -c script], got %+v", plan.Entrypoint)
	}
	script := plan.Entrypoint[2]
	if !strings.Contains(script, "ln -sfn ~/.commander ~/.agents") {
		t.Errorf("expected symlink step, got %q", script)
	}
	if !strings.Contains(script, "'/usr/bin/commander-term'") {
		t.Errorf("expected escaped entrypoint argv, got %q", script)
	}
}

func TestShellEscapeHandlesEmbeddedQuote(t *testing.T) {
	got := ShellEscape(`it's`)
	want := `'it'\''s'`
	if got != want {
		t.Errorf("ShellEscape(%q) = %q, want %q", `it's`, got, want)
	}
}

func TestShellEscapeHandlesEmptyString(t *testing.T) {
	if got := ShellEscape(""); got != "''" {
		t.Errorf("ShellEscape(\"\") = %q, want %q", got, "''")
	}
}
