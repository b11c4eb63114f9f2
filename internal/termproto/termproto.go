// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

// Package termproto is the in-container terminal wire codec (§6.3):
// frames to/from the in-container daemon are a one-character type
// code followed by the payload, not observe.Message's 5-byte
// type+length binary header — the terminal daemon's protocol is
// fixed, not free to redesign, so the framing here follows spec.md
// exactly while keeping observe/protocol.go's discriminated-message
// shape (a Type plus a Payload, Encode/Decode functions) as the
// structural template.
package termproto

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Frame type codes, per spec.md §6.3.
const (
	TypeData        byte = '0'
	TypeWindowTitle byte = '1'
	TypeReserved    byte = '2'
)

// Frame is a single terminal-protocol frame: a type code and its
// payload, exactly as sent on the wire (no length prefix — the
// transport, a WebSocket, already frames messages).
type Frame struct {
	Type    byte
	Payload []byte
}

// Encode renders f as the wire bytes: the type code followed by the
// payload, with no separator.
func Encode(f Frame) []byte {
	out := make([]byte, 0, 1+len(f.Payload))
	out = append(out, f.Type)
	out = append(out, f.Payload...)
	return out
}

// Decode parses raw wire bytes into a Frame. Empty input is an error —
// every frame carries at least a type byte.
func Decode(raw []byte) (Frame, error) {
	if len(raw) == 0 {
		return Frame{}, fmt.Errorf("termproto: empty frame")
	}
	return Frame{Type: raw[0], Payload: raw[1:]}, nil
}

// mouseReportPatterns strips CSI mouse-report sequences from client
// input before it reaches the daemon: SGR mouse reports
// (ESC[<b;x;yM or m), X10 mouse reports (ESC[M followed by three
// raw bytes), and the legacy normal-tracking report (ESC[M).
var mouseReportPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\x1b\[<\d+;\d+;\d+[Mm]`),
	regexp.MustCompile(`\x1b\[M...`),
	regexp.MustCompile(`\x1b\[M`),
}

// FilterMouseReports removes CSI mouse-report sequences from client
// input, per spec.md §6.3's three-regex requirement (SGR and X10
// forms).
func FilterMouseReports(input string) string {
	for _, pattern := range mouseReportPatterns {
		input = pattern.ReplaceAllString(input, "")
	}
	return input
}

// EncodeData builds a data frame from client input, with mouse
// reports filtered. Use for client→daemon traffic only — daemon→
// client data frames are displayed verbatim and need no filtering.
func EncodeData(input string) []byte {
	return Encode(Frame{Type: TypeData, Payload: []byte(FilterMouseReports(input))})
}

// ResizePayload is the JSON body of a resize frame.
type ResizePayload struct {
	Columns int `json:"columns"`
	Rows    int `json:"rows"`
}

// EncodeResize builds a resize frame. Per spec.md §6.3 the wire
// format reuses type '1' for both window-title (daemon→client) and
// resize (client→daemon) — direction alone disambiguates them, since
// the two never travel the same way on one connection.
func EncodeResize(columns, rows int) ([]byte, error) {
	body, err := json.Marshal(ResizePayload{Columns: columns, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("encode resize payload: %w", err)
	}
	return Encode(Frame{Type: TypeWindowTitle, Payload: body}), nil
}

// DecodeResize parses a resize frame's JSON payload.
func DecodeResize(payload []byte) (ResizePayload, error) {
	var r ResizePayload
	if err := json.Unmarshal(payload, &r); err != nil {
		return ResizePayload{}, fmt.Errorf("decode resize payload: %w", err)
	}
	return r, nil
}

// HandshakeRequest is sent by the client immediately after the socket
// to the in-container daemon opens.
type HandshakeRequest struct {
	AuthToken string `json:"AuthToken"`
	Columns   int    `json:"columns"`
	Rows      int    `json:"rows"`
}

// EncodeHandshake renders the initial handshake JSON the client sends
// right after the daemon socket opens. Unlike data/resize frames,
// this has no type-code prefix — it is the very first bytes on the
// wire, before the daemon has switched into frame mode.
func EncodeHandshake(h HandshakeRequest) ([]byte, error) {
	body, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("encode handshake: %w", err)
	}
	return body, nil
}

// sessionEndedMarkers are substrings whose presence in a data frame
// (case-insensitive) means the in-container terminal daemon's session
// has ended, per spec.md §6.3.
var sessionEndedMarkers = []string{
	"screen is terminating",
	"session terminated",
	"[exited]",
	"no server running",
}

// IsSessionEnded reports whether a data frame's payload contains any
// of the terminal daemon's session-ended markers.
func IsSessionEnded(payload []byte) bool {
	lower := strings.ToLower(string(payload))
	for _, marker := range sessionEndedMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
