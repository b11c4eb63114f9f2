// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

// Command opencommander-ctl is the operator TUI: it drives
// internal/session directly against the same SQLite entity store
// cmd/opencommander-daemon uses and against the Docker engine (or an
// in-memory fake driver when asked for one), listing a project's
// terminal sessions and letting an operator start, reset, or stop
// them. There is no HTTP layer between this binary and C1-C3 — spec.md
// never exposes session lifecycle over the network, so this tool plays
// the role cmd/bureau-viewer plays for the teacher's tmux sessions.
package main

import (
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/open-commander/opencommander/internal/broadcast"
	"github.com/open-commander/opencommander/internal/clock"
	"github.com/open-commander/opencommander/internal/config"
	"github.com/open-commander/opencommander/internal/ctlui"
	"github.com/open-commander/opencommander/internal/driver"
	"github.com/open-commander/opencommander/internal/ingress"
	"github.com/open-commander/opencommander/internal/mount"
	"github.com/open-commander/opencommander/internal/session"
	"github.com/open-commander/opencommander/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		projectID  string
		userID     string
		fakeDriver bool
	)

	flagSet := pflag.NewFlagSet("opencommander-ctl", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to opencommander.yaml (defaults to $OPENCOMMANDER_CONFIG)")
	flagSet.StringVarP(&projectID, "project", "p", "", "project id to browse sessions for (required)")
	flagSet.StringVarP(&userID, "user", "u", "admin", "operator user id, matching the daemon's disabled-auth admin id")
	flagSet.BoolVar(&fakeDriver, "fake-driver", false, "use the in-memory container driver instead of Docker")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if projectID == "" {
		return fmt.Errorf("--project is required")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	entityStore, err := store.OpenSQLiteStore(store.SQLiteStoreConfig{
		Path:     cfg.Store.DSN,
		PoolSize: cfg.Store.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer entityStore.Close()

	var containerDriver driver.Driver
	if fakeDriver {
		containerDriver = driver.NewFakeDriver()
	} else {
		containerDriver, err = driver.NewDockerDriver(cfg.Driver.Host)
		if err != nil {
			return fmt.Errorf("connect container driver: %w", err)
		}
	}

	registry := broadcast.NewRegistry(logger)

	sessions := &session.Service{
		Store:  entityStore,
		Driver: containerDriver,
		Mount: mount.Config{
			AgentStateRoot: cfg.Paths.State,
			WorkspaceRoot:  cfg.Workspace.Root,
			ProxyAddress:   cfg.Proxy.ListenAddress,
			GitHubToken:    cfg.Workspace.GitHubToken,
			EntrypointArgv: []string{"/usr/local/bin/opencommander-terminal-daemon"},
		},
		Registry: registry,
		Ingress:  ingress.NoopCleaner{},
		Clock:    clock.Real(),
		Image:    cfg.Driver.DefaultImage,
		Network:  cfg.Driver.Network,
	}

	model := ctlui.NewModel(entityStore, sessions, projectID, userID)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err = program.Run()
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if _, err := os.Stat(os.Getenv("OPENCOMMANDER_CONFIG")); err == nil {
		return config.Load()
	}
	return config.Default(), nil
}
