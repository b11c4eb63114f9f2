// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

// Command opencommander-daemon is the composition root wiring every
// collaborator (C4-C7, plus the task delegation HTTP API) into two
// listeners: the WebSocket Proxy on Ports.Proxy and the plain
// application/task API on Ports.HTTP. The Front-door Forwarder (C8)
// that fans a single public port out to these two is a separate
// binary, cmd/opencommander-forwarder, run alongside this one.
//
// Session lifecycle (C1-C3: container driver, mount planner, session
// service) is owned by cmd/opencommander-ctl instead of this daemon —
// spec.md's HTTP API surface never exposes session start/stop, so the
// only in-scope caller of internal/session is the operator TUI,
// exactly as cmd/bureau-viewer drives its tmux sessions directly
// rather than through an HTTP layer.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/open-commander/opencommander/internal/auth"
	"github.com/open-commander/opencommander/internal/broadcast"
	"github.com/open-commander/opencommander/internal/clock"
	"github.com/open-commander/opencommander/internal/config"
	"github.com/open-commander/opencommander/internal/httpapi"
	"github.com/open-commander/opencommander/internal/jobqueue"
	"github.com/open-commander/opencommander/internal/presence"
	"github.com/open-commander/opencommander/internal/store"
	"github.com/open-commander/opencommander/internal/workspace"
	"github.com/open-commander/opencommander/internal/wsproxy"
	"github.com/open-commander/opencommander/lib/github"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string

	flagSet := pflag.NewFlagSet("opencommander-daemon", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to opencommander.yaml (defaults to $OPENCOMMANDER_CONFIG)")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return fmt.Errorf("ensure paths: %w", err)
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

	registry := broadcast.NewRegistry(logger)
	presenceTracker := presence.NewTracker(clock.Real(), registry)
	authResolver := auth.NewDisabledResolver("")

	workspaceService := &workspace.Service{
		Root:       cfg.Workspace.Root,
		RemoteBase: "https://github.com/",
		Token:      cfg.Workspace.GitHubToken,
	}

	var githubClient *github.Client
	if cfg.Workspace.GitHubToken != "" {
		githubClient, err = github.NewClient(github.Config{Token: cfg.Workspace.GitHubToken})
		if err != nil {
			return fmt.Errorf("create github client: %w", err)
		}
	}

	wsServer := &wsproxy.Server{
		Store:    entityStore,
		Auth:     authResolver,
		Registry: registry,
		Presence: presenceTracker,
		Upstream: wsproxy.DockerUpstreamDialer{},
		Logger:   logger.With("component", "wsproxy"),
	}

	apiServer := &httpapi.Server{
		Store:     entityStore,
		Queue:     jobqueue.NewInMemoryQueue(),
		Workspace: workspaceService,
		GitHub:    githubClient,
		Logger:    logger.With("component", "httpapi"),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	proxyAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Ports.Proxy)
	httpAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Ports.HTTP)

	proxyHTTPServer := &http.Server{Addr: proxyAddr, Handler: wsServer.Mux()}
	appHTTPServer := &http.Server{Addr: httpAddr, Handler: apiServer.Mux()}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("wsproxy listening", "addr", proxyAddr)
		errCh <- proxyHTTPServer.ListenAndServe()
	}()
	go func() {
		logger.Info("http api listening", "addr", httpAddr)
		errCh <- appHTTPServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("listener failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = proxyHTTPServer.Shutdown(shutdownCtx)
	_ = appHTTPServer.Shutdown(shutdownCtx)

	return nil
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
