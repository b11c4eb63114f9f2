// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

// Package workspace is the Git Workspace Service (C4): clones or
// updates a repository's working tree on demand, under
// <root>/repos/<owner>/<name>. Built directly on the teacher's
// lib/git.Repository typed wrapper over the git CLI, including its
// flock-serialized RunLocked for concurrent fetch/reset protection,
// extended with clone-vs-pull branching and a bounded timeout.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/open-commander/opencommander/internal/errkind"
	gitpkg "github.com/open-commander/opencommander/lib/git"
)

// cloneTimeout bounds how long a fresh clone may take before it's
// treated as a failure.
const cloneTimeout = 5 * time.Minute

var repoPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+/[A-Za-z0-9._-]+$`)

// Service clones and updates repositories under Root.
type Service struct {
	// Root is the workspace root; repositories live at
	// Root/repos/<owner>/<name>.
	Root string

	// RemoteBase is the base URL repositories are cloned from, e.g.
	// "https://github.com/". Required.
	RemoteBase string

	// Token, if non-empty, is injected into the clone/fetch URL as
	// HTTP basic auth so private repositories are reachable.
	Token string
}

// CloneOrPull ensures repo ("owner/name") has an up-to-date working
// tree under s.Root and returns its path relative to s.Root.
func (s *Service) CloneOrPull(ctx context.Context, repo string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}

	relativePath := filepath.Join("repos", owner, name)
	dir := filepath.Join(s.Root, relativePath)
	lockPath := dir + ".lock"

	remoteURL := s.remoteURL(owner, name)

	info, statErr := os.Stat(dir)
	switch {
	case os.IsNotExist(statErr):
		if err := s.clone(ctx, remoteURL, dir); err != nil {
			return "", err
		}
	case statErr != nil:
		return "", errkind.Wrap(errkind.Other, "stat workspace dir", redact(statErr, s.Token))
	case !info.IsDir():
		return "", errkind.New(errkind.InvalidInput, "workspace path exists and is not a directory: "+dir)
	default:
		if !isGitWorkingTree(dir) {
			if err := os.RemoveAll(dir); err != nil {
				return "", errkind.Wrap(errkind.Other, "remove non-git directory", redact(err, s.Token))
			}
			if err := s.clone(ctx, remoteURL, dir); err != nil {
				return "", err
			}
			break
		}
		if err := s.updateExisting(ctx, remoteURL, dir, lockPath); err != nil {
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				return "", errkind.Wrap(errkind.Other, "remove stale workspace after failed update", redact(rmErr, s.Token))
			}
			if err := s.clone(ctx, remoteURL, dir); err != nil {
				return "", err
			}
		}
	}

	return relativePath, nil
}

func (s *Service) clone(ctx context.Context, remoteURL, dir string) error {
	ctx, cancel := context.WithTimeout(ctx, cloneTimeout)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return errkind.Wrap(errkind.Other, "create workspace parent dir", redact(err, s.Token))
	}

	repo := gitpkg.NewRepository(filepath.Dir(dir))
	if _, err := repo.Run(ctx, "clone", "--depth=1", "--single-branch", remoteURL, dir); err != nil {
		return errkind.Wrap(errkind.Other, "clone "+dir, redact(err, s.Token))
	}
	return nil
}

func (s *Service) updateExisting(ctx context.Context, remoteURL, dir, lockPath string) error {
	repo := gitpkg.NewRepository(dir)

	if _, err := repo.RunLocked(ctx, lockPath, "fetch", "--all"); err != nil {
		return redact(err, s.Token)
	}
	if _, err := repo.RunLocked(ctx, lockPath, "remote", "set-url", "origin", remoteURL); err != nil {
		return redact(err, s.Token)
	}
	if _, err := repo.RunLocked(ctx, lockPath, "reset", "--hard", "origin/HEAD"); err != nil {
		return redact(err, s.Token)
	}
	return nil
}

func (s *Service) remoteURL(owner, name string) string {
	base := strings.TrimSuffix(s.RemoteBase, "/")
	path := fmt.Sprintf("%s/%s.git", owner, name)
	if s.Token == "" {
		return base + "/" + path
	}

	// Inject token as HTTP basic auth into the URL, e.g.
	// https://<token>@github.com/owner/name.git.
	scheme, rest, found := strings.Cut(base, "://")
	if !found {
		return base + "/" + path
	}
	return scheme + "://" + s.Token + "@" + rest + "/" + path
}

// SplitRepo parses "owner/name" into its parts, applying the same
// validation CloneOrPull does. Exported so other collaborators (the
// GitHub access-verification endpoint) can validate a repository
// string the same way without duplicating the pattern.
func SplitRepo(repo string) (owner, name string, err error) {
	return splitRepo(repo)
}

func splitRepo(repo string) (owner, name string, err error) {
	if !repoPattern.MatchString(repo) {
		return "", "", errkind.New(errkind.InvalidInput, "repository must be \"owner/name\": "+repo)
	}
	owner, name, _ = strings.Cut(repo, "/")
	return owner, name, nil
}

func isGitWorkingTree(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

// redact strips a configured token from an error's text before it
// reaches a caller, so workspace failures never leak credentials into
// logs or API responses.
func redact(err error, token string) error {
	if err == nil || token == "" {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), token, "REDACTED"))
}
