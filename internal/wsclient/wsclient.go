// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

// Package wsclient ships spec.md §4.9's browser reconnect contract as
// a Go reference client: exponential backoff, a persistent last-known
// list that only clears on explicit Disable, a 15s presence heartbeat,
// and a best-effort leave frame on Disable. Used by the integration test
// suite to drive /presence and /sessions end to end, and by
// cmd/opencommander-loadgen to simulate many browser clients.
//
// The backoff shape follows lib/clock.Clock's Timer/AfterFunc
// abstraction (Backoff never calls time.Sleep directly, so tests
// inject internal/clock.Fake); the connect/read/reconnect loop follows
// observe/client.go's Session shape (Connect, Run, Close), adapted
// from a Unix-socket PTY attach to a WebSocket JSON subscription.
package wsclient

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/open-commander/opencommander/internal/clock"
)

// Backoff computes the reconnect delay sequence from spec.md §4.9:
// starts at Initial, doubles each call, caps at Max. Not safe for
// concurrent use — one Backoff per Client, matching "each effect
// invocation owns local retry state."
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	current time.Duration
}

// NewBackoff returns a Backoff with spec.md's defaults: 1s initial,
// 30s cap.
func NewBackoff() *Backoff {
	return &Backoff{Initial: time.Second, Max: 30 * time.Second}
}

// Next returns the next delay and advances the sequence.
func (b *Backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.Initial
	}
	delay := b.current
	b.current *= 2
	if b.current > b.Max {
		b.current = b.Max
	}
	return delay
}

// Reset returns the sequence to its initial state, called after a
// successful connection so the next disconnect starts backing off
// from Initial again rather than continuing to grow.
func (b *Backoff) Reset() {
	b.current = 0
}

// Dialer opens the underlying WebSocket connection. Production code
// uses DefaultDialer; tests substitute a fake pointed at an
// httptest.Server.
type Dialer interface {
	Dial(ctx context.Context, url string) (*websocket.Conn, error)
}

// DefaultDialer dials url with no special options.
type DefaultDialer struct{}

func (DefaultDialer) Dial(ctx context.Context, url string) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	return conn, err
}

// heartbeatInterval is how often Client sends a presence heartbeat
// frame once SessionID is set, per spec.md §4.9.
const heartbeatInterval = 15 * time.Second

// Client is a reconnecting subscriber to one /presence/:projectID or
// /sessions/:projectID socket. Zero value is not usable; construct
// with New.
type Client struct {
	URL    string
	Dialer Dialer
	Clock  clock.Clock

	// OnUpdate is called with the raw JSON array body of every list
	// update the server sends, including the one sent immediately on
	// connect. Never called concurrently.
	OnUpdate func(raw json.RawMessage)

	// OnConnectStateChange, if set, is called with true after each
	// successful connect and false after each disconnect.
	OnConnectStateChange func(connected bool)

	// SessionID and Status, when SessionID is non-empty, are sent as a
	// heartbeat frame immediately on connect and every 15s thereafter —
	// the presence-socket half of the contract. Leave both zero for a
	// /sessions client.
	SessionID string
	Status    string

	mu       sync.Mutex
	backoff  *Backoff
	disabled bool
	conn     *websocket.Conn
}

// New returns a Client ready for Run.
func New(url string, dialer Dialer, clk clock.Clock) *Client {
	return &Client{
		URL:     url,
		Dialer:  dialer,
		Clock:   clk,
		backoff: NewBackoff(),
	}
}

// SetHeartbeat updates the (sessionID, status) pair sent on the next
// and subsequent heartbeats, and sends one immediately if currently
// connected.
func (c *Client) SetHeartbeat(sessionID, status string) {
	c.mu.Lock()
	c.SessionID = sessionID
	c.Status = status
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		_ = c.sendHeartbeat(conn, sessionID, status)
	}
}

// Run connects and reconnects with exponential backoff until ctx is
// canceled or Disable is called. It never returns the last-known list
// to a cleared state on disconnect — OnUpdate simply stops being
// called until the next successful reconnect resends the list.
func (c *Client) Run(ctx context.Context) {
	for {
		if c.isDisabled() {
			return
		}
		if ctx.Err() != nil {
			return
		}

		err := c.runOnce(ctx)
		c.setConnected(false)
		if c.isDisabled() || ctx.Err() != nil {
			return
		}
		if err == nil {
			continue
		}

		delay := c.backoff.Next()
		select {
		case <-ctx.Done():
			return
		case <-c.Clock.After(delay):
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	conn, err := c.Dialer.Dial(ctx, c.URL)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	c.mu.Lock()
	c.conn = conn
	sessionID, status := c.SessionID, c.Status
	c.mu.Unlock()

	c.backoff.Reset()
	c.setConnected(true)

	if sessionID != "" {
		if err := c.sendHeartbeat(conn, sessionID, status); err != nil {
			return err
		}
	}

	readErrs := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				readErrs <- err
				return
			}
			if c.OnUpdate != nil {
				c.OnUpdate(json.RawMessage(data))
			}
		}
	}()

	ticker := c.Clock.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.conn = nil
			c.mu.Unlock()
			return nil

		case err := <-readErrs:
			c.mu.Lock()
			c.conn = nil
			c.mu.Unlock()
			return err

		case <-ticker.C:
			c.mu.Lock()
			sessionID, status := c.SessionID, c.Status
			c.mu.Unlock()
			if sessionID != "" {
				if err := c.sendHeartbeat(conn, sessionID, status); err != nil {
					return err
				}
			}
		}
	}
}

func (c *Client) sendHeartbeat(conn *websocket.Conn, sessionID, status string) error {
	body, err := json.Marshal(struct {
		Type      string `json:"type"`
		SessionID string `json:"sessionId"`
		Status    string `json:"status"`
	}{Type: "heartbeat", SessionID: sessionID, Status: status})
	if err != nil {
		return err
	}
	return conn.Write(context.Background(), websocket.MessageText, body)
}

// Disable stops Run's reconnect loop and, if connected, sends a
// best-effort {type:"leave"} frame before closing. Client keeps no
// list of its own, so Disable clears nothing and calls no callback; a
// caller holding a last-known list clears it itself when it calls
// Disable, matching spec.md §4.9's "only clear when the subscription
// is logically disabled."
func (c *Client) Disable() {
	c.mu.Lock()
	c.disabled = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		leave, err := json.Marshal(struct {
			Type string `json:"type"`
		}{Type: "leave"})
		if err == nil {
			_ = conn.Write(context.Background(), websocket.MessageText, leave)
		}
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}

func (c *Client) isDisabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disabled
}

func (c *Client) setConnected(connected bool) {
	if c.OnConnectStateChange != nil {
		c.OnConnectStateChange(connected)
	}
}
