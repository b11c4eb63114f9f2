// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/open-commander/opencommander/internal/errkind"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skipf("git not available: %v", err)
	}
}

// initBareRemote creates a bare repository with one commit on main at
// <remoteBase>/owner/name.git and returns remoteBase, suitable as a
// Service.RemoteBase for cloning "owner/name".
func initBareRemote(t *testing.T) string {
	t.Helper()
	remoteBase := t.TempDir()
	bare := filepath.Join(remoteBase, "owner", "name.git")
	if err := os.MkdirAll(filepath.Dir(bare), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Env = append(os.Environ(), "GIT_COMMITTER_NAME=Test", "GIT_COMMITTER_EMAIL=test@test.local")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}

	run("init", "--bare", "-b", "main", bare)

	worktree := filepath.Join(t.TempDir(), "seed")
	run("clone", bare, worktree)
	if err := os.WriteFile(filepath.Join(worktree, "README"), []byte("hello\n"), 0644); err != nil {
		t.Fatalf("write README: %v", err)
	}
	run("-C", worktree, "add", "README")
	run("-C", worktree, "commit", "-m", "initial", "--author", "Test <test@test.local>")
	run("-C", worktree, "push", "origin", "main")

	return remoteBase
}

func TestSplitRepoRejectsMalformedInput(t *testing.T) {
	for _, bad := range []string{"", "justname", "owner/", "/name", "owner/name/extra"} {
		if _, _, err := splitRepo(bad); !errkind.Is(err, errkind.InvalidInput) {
			t.Errorf("splitRepo(%q): expected InvalidInput, got %v", bad, err)
		}
	}
}

func TestSplitRepoAcceptsOwnerSlashName(t *testing.T) {
	owner, name, err := splitRepo("octo-org/octo-repo")
	if err != nil {
		t.Fatalf("splitRepo: %v", err)
	}
	if owner != "octo-org" || name != "octo-repo" {
		t.Errorf("splitRepo = (%q, %q), want (octo-org, octo-repo)", owner, name)
	}
}

func TestCloneOrPullClonesMissingRepository(t *testing.T) {
	requireGit(t)
	remoteBase := initBareRemote(t)
	root := t.TempDir()

	svc := &Service{Root: root, RemoteBase: "file://" + remoteBase}
	relPath, err := svc.CloneOrPull(context.Background(), "owner/name")
	if err != nil {
		t.Fatalf("CloneOrPull: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, relPath, "README")); err != nil {
		t.Errorf("expected README to exist after clone: %v", err)
	}
}

func TestCloneOrPullUpdatesExistingWorkingTree(t *testing.T) {
	requireGit(t)
	remoteBase := initBareRemote(t)
	root := t.TempDir()
	svc := &Service{Root: root, RemoteBase: "file://" + remoteBase}

	ctx := context.Background()
	relPath, err := svc.CloneOrPull(ctx, "owner/name")
	if err != nil {
		t.Fatalf("first CloneOrPull: %v", err)
	}

	if _, err := svc.CloneOrPull(ctx, "owner/name"); err != nil {
		t.Fatalf("second CloneOrPull: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, relPath, ".git")); err != nil {
		t.Errorf("expected working tree to remain a git repo: %v", err)
	}
}

func TestCloneOrPullReclonesNonGitDirectory(t *testing.T) {
	requireGit(t)
	remoteBase := initBareRemote(t)
	root := t.TempDir()
	svc := &Service{Root: root, RemoteBase: "file://" + remoteBase}

	dir := filepath.Join(root, "repos", "owner", "name")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stray.txt"), []byte("not a repo"), 0644); err != nil {
		t.Fatalf("write stray file: %v", err)
	}

	relPath, err := svc.CloneOrPull(context.Background(), "owner/name")
	if err != nil {
		t.Fatalf("CloneOrPull: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, relPath, "README")); err != nil {
		t.Errorf("expected clone to replace non-git directory: %v", err)
	}
}

func TestRemoteURLInjectsToken(t *testing.T) {
	svc := &Service{RemoteBase: "https://github.com", Token: "secret-token"}
	url := svc.remoteURL("octo-org", "octo-repo")
	if url != "https://secret-token@github.com/octo-org/octo-repo.git" {
		t.Errorf("remoteURL = %q", url)
	}
}

func TestRedactStripsTokenFromErrorText(t *testing.T) {
	err := errkind.New(errkind.Other, "clone failed using https://secret-token@github.com/x/y.git")
	redacted := redact(err, "secret-token")
	if got := redacted.Error(); got == err.Error() {
		t.Errorf("expected token to be redacted, got %q", got)
	}
}
