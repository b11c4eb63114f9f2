// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

// Command opencommander-loadgen simulates many browser clients
// exercising the §4.9 reconnect contract against a running
// opencommander-daemon: each simulated client dials /presence/:projectID,
// sends periodic heartbeats, and reconnects with backoff on drop,
// exactly as internal/wsclient.Client implements.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/open-commander/opencommander/internal/clock"
	"github.com/open-commander/opencommander/internal/wsclient"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		baseURL   string
		projectID string
		clients   int
		duration  time.Duration
	)

	flagSet := pflag.NewFlagSet("opencommander-loadgen", pflag.ContinueOnError)
	flagSet.StringVar(&baseURL, "url", "ws://127.0.0.1:3000", "base URL of the running daemon's WebSocket proxy")
	flagSet.StringVar(&projectID, "project", "loadgen", "project id to subscribe to")
	flagSet.IntVarP(&clients, "clients", "n", 10, "number of simulated browser clients")
	flagSet.DurationVar(&duration, "duration", 0, "stop after this long (0 = run until interrupted)")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	url := fmt.Sprintf("%s/presence/%s", baseURL, projectID)

	var connected, updates int64
	for i := 0; i < clients; i++ {
		sessionID := fmt.Sprintf("loadgen-%d", i)
		client := wsclient.New(url, wsclient.DefaultDialer{}, clock.Real())
		client.SetHeartbeat(sessionID, "focused")
		client.OnConnectStateChange = func(isConnected bool) {
			if isConnected {
				atomic.AddInt64(&connected, 1)
			} else {
				atomic.AddInt64(&connected, -1)
			}
		}
		client.OnUpdate = func(raw json.RawMessage) {
			atomic.AddInt64(&updates, 1)
		}
		go client.Run(ctx)
	}

	logger.Info("loadgen started", "clients", clients, "url", url)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("loadgen stopping")
			return nil
		case <-ticker.C:
			logger.Info("loadgen status",
				"connected", atomic.LoadInt64(&connected),
				"updates_received", atomic.LoadInt64(&updates),
			)
		}
	}
}
