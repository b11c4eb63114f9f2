// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// connPool is a fixed-size pool of SQLite connections with
// Open-Commander-standard pragmas, modeled on the teacher's
// lib/sqlitepool.Pool. It wraps sqlitex.Pool and exposes the same
// Take/Put API; kept private to this package rather than split into
// its own module since sqlitestore is its only caller.
type connPool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

type poolConfig struct {
	Path      string
	PoolSize  int
	Logger    *slog.Logger
	OnConnect func(conn *sqlite.Conn) error
}

func openPool(cfg poolConfig) (*connPool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
		if poolSize < 4 {
			poolSize = 4
		}
	}

	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepareConnection(conn, cfg.OnConnect)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", cfg.Path, err)
	}

	logger.Info("sqlite pool opened", "path", cfg.Path, "pool_size", poolSize)

	return &connPool{inner: inner, logger: logger, path: cfg.Path}, nil
}

func (p *connPool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: take: %w", err)
	}
	return conn, nil
}

func (p *connPool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

func (p *connPool) Close() error {
	if err := p.inner.Close(); err != nil {
		p.logger.Error("sqlite pool close error", "path", p.path, "error", err)
		return fmt.Errorf("store: closing %s: %w", p.path, err)
	}
	p.logger.Info("sqlite pool closed", "path", p.path)
	return nil
}

// prepareConnection applies standard pragmas and then the optional
// OnConnect callback, once per connection on first use.
func prepareConnection(conn *sqlite.Conn, onConnect func(*sqlite.Conn) error) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA cache_size=-8192",
		"PRAGMA temp_store=MEMORY",
	}

	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	if onConnect != nil {
		if err := onConnect(conn); err != nil {
			return fmt.Errorf("store: OnConnect: %w", err)
		}
	}

	return nil
}
