// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

// Package mount is the Mount Planner (C2): given a user id and an
// optional workspace suffix, it produces the ordered list of container
// mounts and the environment map the session service hands to
// internal/driver.Spec, plus the shell-escaped entrypoint command for
// the container.
//
// The workspace path containment check follows the teacher's
// sandbox.ValidateOverlayUpper: resolve symlinks, then require the
// resolved path sit inside the configured root.
package mount

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/open-commander/opencommander/internal/driver"
	"github.com/open-commander/opencommander/internal/errkind"
)

// Config is the static configuration the planner needs to resolve
// mounts and environment for any user/workspace pair.
type Config struct {
	// AgentStateRoot is the root directory under which each user gets
	// a per-user agent-config state directory (created on demand).
	AgentStateRoot string

	// WorkspaceRoot is the root directory workspace suffixes resolve
	// beneath. A resolved path escaping this root is InvalidInput.
	WorkspaceRoot string

	// TLSCertPath is the host directory containing the inner
	// container daemon's client TLS material, mounted read-only at
	// /certs/client.
	TLSCertPath string

	// ProxyAddress is the egress proxy's address, used to populate
	// HTTP_PROXY/HTTPS_PROXY/NO_PROXY.
	ProxyAddress string

	// NoProxy is the comma-separated NO_PROXY value.
	NoProxy string

	// DockerHost is the value of DOCKER_HOST inside the container
	// (typically the inner daemon's TCP address).
	DockerHost string

	// GitHubToken, if non-empty, is exposed as GITHUB_TOKEN/GH_TOKEN.
	GitHubToken string

	// EntrypointArgv is the terminal-daemon command run inside the
	// container after the ~/.agents symlink step.
	EntrypointArgv []string
}

// Plan is the planner's output: mounts, environment, and entrypoint
// command ready for driver.Spec.
type Plan struct {
	Mounts      []driver.Mount
	Environment map[string]string
	Entrypoint  []string // argv for `sh -c`, already shell-escaped and joined in Entrypoint[2]
}

// userStateDir returns (creating if absent) the per-user agent-config
// state directory, mode 0700.
func userStateDir(root, userID string) (string, error) {
	dir := filepath.Join(root, userID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create agent state dir %s: %w", dir, err)
	}
	return dir, nil
}

// resolveWorkspace validates workspaceSuffix and returns the absolute
// workspace directory. Rejects any suffix containing "..", "/", or
// "\", then additionally requires the resolved directory (after
// symlink evaluation) to sit inside root — the same defense-in-depth
// the teacher's ValidateOverlayUpper applies to overlay upper layers.
func resolveWorkspace(root, workspaceSuffix string) (string, error) {
	if workspaceSuffix == "" {
		return root, nil
	}
	if strings.Contains(workspaceSuffix, "..") || strings.ContainsAny(workspaceSuffix, `/\`) {
		return "", errkind.New(errkind.InvalidInput, "workspace suffix must not contain path separators or \"..\": "+workspaceSuffix)
	}

	candidate := filepath.Join(root, workspaceSuffix)

	info, err := os.Stat(candidate)
	if err != nil {
		return "", errkind.Wrap(errkind.InvalidInput, "workspace directory does not exist: "+candidate, err)
	}
	if !info.IsDir() {
		return "", errkind.New(errkind.InvalidInput, "workspace path is not a directory: "+candidate)
	}

	rootResolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root %q: %w", root, err)
	}
	rootResolved = filepath.Clean(rootResolved)

	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return "", fmt.Errorf("resolve workspace path %q: %w", candidate, err)
	}
	resolved = filepath.Clean(resolved)

	if resolved != rootResolved && !strings.HasPrefix(resolved, rootResolved+string(filepath.Separator)) {
		return "", errkind.New(errkind.InvalidInput, fmt.Sprintf("workspace suffix %q resolves to %q which escapes workspace root %q", workspaceSuffix, resolved, rootResolved))
	}

	return resolved, nil
}

// Plan produces the mount list, environment, and entrypoint command
// for a user's container given an optional workspace suffix.
func (c Config) Plan(userID, workspaceSuffix string) (*Plan, error) {
	stateDir, err := userStateDir(c.AgentStateRoot, userID)
	if err != nil {
		return nil, err
	}

	workspaceDir, err := resolveWorkspace(c.WorkspaceRoot, workspaceSuffix)
	if err != nil {
		return nil, err
	}

	mounts := []driver.Mount{
		{Source: stateDir, Target: "/home/agent/.commander", ReadOnly: false},
		{Source: c.TLSCertPath, Target: "/certs/client", ReadOnly: true},
		{Source: workspaceDir, Target: "/workspace", ReadOnly: false},
	}

	env := map[string]string{
		"DOCKER_HOST":       c.DockerHost,
		"DOCKER_TLS_VERIFY": "1",
		"DOCKER_CERT_PATH":  "/certs/client",
		"HTTP_PROXY":        c.ProxyAddress,
		"HTTPS_PROXY":       c.ProxyAddress,
		"NO_PROXY":          c.NoProxy,
		"http_proxy":        c.ProxyAddress,
		"https_proxy":       c.ProxyAddress,
		"no_proxy":          c.NoProxy,
	}
	if c.GitHubToken != "" {
		env["GITHUB_TOKEN"] = c.GitHubToken
		env["GH_TOKEN"] = c.GitHubToken
	}

	entrypoint := entrypointCommand(c.EntrypointArgv)

	return &Plan{Mounts: mounts, Environment: env, Entrypoint: entrypoint}, nil
}

// entrypointCommand synthesizes the container's shell entrypoint: one
// symlink step (~/.agents -> ~/.commander), then exec into argv, every
// element single-quote escaped.
func entrypointCommand(argv []string) []string {
	escaped := make([]string, len(argv))
	for i, arg := range argv {
		escaped[i] = ShellEscape(arg)
	}
	script := "ln -sfn ~/.commander ~/.agents && exec " + strings.Join(escaped, " ")
	return []string{"sh", "-c", script}
}

// ShellEscape single-quotes s for safe inclusion in a POSIX shell
// command line, in the style of the teacher's bwrap argument
// construction: wrap in single quotes, escaping any embedded single
// quote as '\'' (close quote, escaped quote, reopen quote).
func ShellEscape(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
