// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

// Command opencommander-forwarder runs the Front-door Forwarder (C8)
// standalone: one public TCP listener splicing WebSocket-upgrade
// connections to the proxy port and everything else to the plain
// HTTP application port.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/open-commander/opencommander/internal/forwarder"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listenAddr string
		proxyAddr  string
		appAddr    string
		verbose    bool
	)

	flagSet := pflag.NewFlagSet("opencommander-forwarder", pflag.ContinueOnError)
	flagSet.StringVarP(&listenAddr, "listen", "l", "0.0.0.0:3000", "public TCP address to listen on")
	flagSet.StringVar(&proxyAddr, "proxy-addr", "127.0.0.1:7682", "WebSocket proxy backend address")
	flagSet.StringVar(&appAddr, "app-addr", "127.0.0.1:3001", "plain HTTP application backend address")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "enable per-connection debug logging")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	f := &forwarder.Forwarder{
		ListenAddr: listenAddr,
		ProxyAddr:  proxyAddr,
		AppAddr:    appAddr,
		Logger:     logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := f.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	f.Stop()
	return nil
}
