// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

package wsclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/open-commander/opencommander/internal/clock"
	"github.com/open-commander/opencommander/internal/testutil"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := &Backoff{Initial: time.Second, Max: 8 * time.Second}
	got := []time.Duration{b.Next(), b.Next(), b.Next(), b.Next(), b.Next()}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Next() #%d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBackoffResetReturnsToInitial(t *testing.T) {
	b := &Backoff{Initial: time.Second, Max: 8 * time.Second}
	b.Next()
	b.Next()
	b.Reset()
	if got := b.Next(); got != time.Second {
		t.Errorf("Next() after Reset = %v, want %v", got, time.Second)
	}
}

// wsDialer dials a real ws:// URL directly, adapting the standard
// library's httptest server into this package's Dialer interface.
type wsDialer struct{}

func (wsDialer) Dial(ctx context.Context, url string) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	return conn, err
}

// listServer accepts one WebSocket connection at a time and sends a
// fresh JSON array whenever push is invoked, recording any frames the
// client sends.
type listServer struct {
	mu       sync.Mutex
	received [][]byte
	conn     *websocket.Conn
}

func newListServer(t *testing.T) (*httptest.Server, *listServer) {
	t.Helper()
	ls := &listServer{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ls.mu.Lock()
		ls.conn = conn
		ls.mu.Unlock()

		if err := conn.Write(r.Context(), websocket.MessageText, []byte(`[]`)); err != nil {
			return
		}
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			ls.mu.Lock()
			ls.received = append(ls.received, data)
			ls.mu.Unlock()
		}
	}))
	return ts, ls
}

func (ls *listServer) push(t *testing.T, body string) {
	t.Helper()
	ls.mu.Lock()
	conn := ls.conn
	ls.mu.Unlock()
	if conn == nil {
		t.Fatal("push called before a client connected")
	}
	if err := conn.Write(context.Background(), websocket.MessageText, []byte(body)); err != nil {
		t.Fatalf("push: %v", err)
	}
}

func (ls *listServer) framesReceived() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.received)
}

func wsURL(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestClientReceivesInitialListAndUpdates(t *testing.T) {
	ts, ls := newListServer(t)
	defer ts.Close()

	var mu sync.Mutex
	var updates []string
	client := New(wsURL(t, ts), wsDialer{}, clock.Real())
	client.OnUpdate = func(raw json.RawMessage) {
		mu.Lock()
		updates = append(updates, string(raw))
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) >= 1
	})

	ls.push(t, `[{"id":"sess-1"}]`)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) >= 2
	})

	mu.Lock()
	defer mu.Unlock()
	if updates[0] != "[]" || updates[1] != `[{"id":"sess-1"}]` {
		t.Errorf("unexpected updates: %+v", updates)
	}
}

func TestClientSendsHeartbeatOnConnectWhenSessionSet(t *testing.T) {
	ts, ls := newListServer(t)
	defer ts.Close()

	client := New(wsURL(t, ts), wsDialer{}, clock.Real())
	client.SessionID = "sess-1"
	client.Status = "focused"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	waitFor(t, func() bool { return ls.framesReceived() >= 1 })
}

func TestClientDisableSendsLeaveFrame(t *testing.T) {
	ts, ls := newListServer(t)
	defer ts.Close()

	var connected bool
	var mu sync.Mutex
	client := New(wsURL(t, ts), wsDialer{}, clock.Real())
	client.OnConnectStateChange = func(c bool) {
		mu.Lock()
		connected = c
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return connected
	})

	client.Disable()

	waitFor(t, func() bool { return ls.framesReceived() >= 1 })

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if len(ls.received) == 0 || !strings.Contains(string(ls.received[0]), `"leave"`) {
		t.Errorf("expected a leave frame, got %+v", ls.received)
	}
}

func TestClientReconnectsWithBackoffAfterDisconnect(t *testing.T) {
	fc := clock.Fake(time.Now())

	attempts := 0
	dial := dialerFunc(func(ctx context.Context, url string) (*websocket.Conn, error) {
		attempts++
		return nil, context.DeadlineExceeded
	})

	client := New("ws://unused/presence/proj-1", dial, fc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		client.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return attempts >= 1 })
	fc.WaitForTimers(1)
	fc.Advance(time.Second)
	waitFor(t, func() bool { return attempts >= 2 })
	fc.WaitForTimers(1)
	fc.Advance(2 * time.Second)
	waitFor(t, func() bool { return attempts >= 3 })

	cancel()
	testutil.RequireClosed(t, done, 5*time.Second, "Run did not return after context cancellation")
}

type dialerFunc func(ctx context.Context, url string) (*websocket.Conn, error)

func (f dialerFunc) Dial(ctx context.Context, url string) (*websocket.Conn, error) {
	return f(ctx, url)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
