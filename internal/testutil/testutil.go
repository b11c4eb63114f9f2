// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers used across Open
// Commander's internal packages.
//
// [SocketDir] creates a short-named temporary directory in /tmp
// suitable for Unix domain sockets, whose path length is limited to
// 108 bytes (sun_path in sockaddr_un) — t.TempDir() can exceed that
// under some test runners.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// individual tests covering internal/broadcast, internal/presence, and
// internal/wsproxy don't each hand-roll a context timeout.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation, used in place of time.Now()-derived values when
// tests need distinct session or project IDs.
package testutil

import (
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

// SocketDir creates a temporary directory suitable for Unix domain
// sockets and registers its removal for test cleanup.
func SocketDir(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("/tmp", "opencommander-sock-")
	if err != nil {
		t.Fatalf("create socket dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// RequireReceive reads one value from ch within timeout, or fails the
// test.
func RequireReceive[T any](t *testing.T, ch <-chan T, timeout time.Duration, msgAndArgs ...any) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed without sending a value: %s", formatMessage(msgAndArgs))
		}
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out after %v: %s", timeout, formatMessage(msgAndArgs))
	}
	panic("unreachable")
}

// RequireSend sends v on ch within timeout, or fails the test.
func RequireSend[T any](t *testing.T, ch chan<- T, v T, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case ch <- v:
	case <-time.After(timeout):
		t.Fatalf("timed out after %v: %s", timeout, formatMessage(msgAndArgs))
	}
}

// RequireClosed waits for ch to be closed (or to receive a value)
// within timeout, or fails the test.
func RequireClosed(t *testing.T, ch <-chan struct{}, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out after %v waiting for channel close: %s", timeout, formatMessage(msgAndArgs))
	}
}

func formatMessage(msgAndArgs []any) string {
	if len(msgAndArgs) == 0 {
		return "(no message)"
	}
	if len(msgAndArgs) == 1 {
		if s, ok := msgAndArgs[0].(string); ok {
			return s
		}
		return fmt.Sprintf("%v", msgAndArgs[0])
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprintf("%v", msgAndArgs)
}

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N is a
// monotonically increasing integer, for disambiguating test fixtures.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
