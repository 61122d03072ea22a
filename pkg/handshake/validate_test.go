// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handshake

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"testing"
)

const sampleKey = "dGhlIHNhbXBsZSBub25jZQ=="

func header(t *testing.T, lines ...string) Header {
	t.Helper()
	req, err := ParseRequest([]byte("GET / HTTP/1.1\r\n" + strings.Join(lines, "\r\n") + "\r\n\r\n"))
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	return req.Header
}

func TestAcceptKey(t *testing.T) {
	if got := AcceptKey(sampleKey); got != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Errorf("AcceptKey() = %q", got)
	}

	for _, c := range []string{"", "chat", sampleKey, strings.Repeat("x", 4096)} {
		key := AcceptKey(c)
		if key != AcceptKey(c) {
			t.Errorf("AcceptKey(%q) is not deterministic", c)
		}
		raw, err := base64.StdEncoding.DecodeString(key)
		if err != nil {
			t.Fatalf("AcceptKey(%q) is not base64: %v", c, err)
		}
		if len(raw) != 20 {
			t.Errorf("AcceptKey(%q) decodes to %d bytes, want 20", c, len(raw))
		}
	}
}

func TestValidate(t *testing.T) {
	valid := []string{
		"Host: example.com",
		"Connection: Upgrade",
		"Upgrade: websocket",
		"Sec-WebSocket-Version: 13",
		"Sec-WebSocket-Key: " + sampleKey,
	}
	without := func(name string) []string {
		var out []string
		for _, l := range valid {
			if !strings.HasPrefix(l, name+":") {
				out = append(out, l)
			}
		}
		return out
	}
	replace := func(name, value string) []string {
		return append(without(name), name+": "+value)
	}

	tests := []struct {
		name       string
		lines      []string
		wantStatus int
		wantReason error
	}{
		{"valid", valid, http.StatusSwitchingProtocols, nil},
		{"case-insensitive values", replace("Upgrade", "WebSocket"), http.StatusSwitchingProtocols, nil},
		{"connection token list", replace("Connection", "keep-alive, Upgrade"), http.StatusSwitchingProtocols, nil},
		{"repeated upgrade", append(valid[:len(valid):len(valid)], "Upgrade: websocket"), http.StatusSwitchingProtocols, nil},
		{"upgrade token list", replace("Upgrade", "h2c, websocket"), http.StatusSwitchingProtocols, nil},
		{"plain http", []string{"Host: example.com", "Accept: */*"}, http.StatusNotFound, ErrNotWebSocket},
		{"connection only", []string{"Host: example.com", "Connection: Upgrade"}, http.StatusNotFound, ErrNotWebSocket},
		{"missing upgrade", without("Upgrade"), http.StatusBadRequest, ErrBadUpgrade},
		{"wrong upgrade", replace("Upgrade", "h2c"), http.StatusBadRequest, ErrBadUpgrade},
		{"missing connection", without("Connection"), http.StatusBadRequest, ErrBadConnection},
		{"connection without upgrade", replace("Connection", "keep-alive"), http.StatusBadRequest, ErrBadConnection},
		{"missing version", without("Sec-WebSocket-Version"), http.StatusBadRequest, ErrBadVersion},
		{"wrong version", replace("Sec-WebSocket-Version", "8"), http.StatusBadRequest, ErrBadVersion},
		{"missing key", without("Sec-WebSocket-Key"), http.StatusBadRequest, ErrMissingChallenge},
		{"key not base64", replace("Sec-WebSocket-Key", "not base64!"), http.StatusBadRequest, ErrBadChallenge},
		{"key wrong length", replace("Sec-WebSocket-Key", "YWJj"), http.StatusBadRequest, ErrBadChallenge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(header(t, tt.lines...), DefaultConfig())
			if res.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", res.Status, tt.wantStatus)
			}
			if !errors.Is(res.Reason, tt.wantReason) || (tt.wantReason == nil && res.Reason != nil) {
				t.Errorf("Reason = %v, want %v", res.Reason, tt.wantReason)
			}
			if res.Accepted() != (tt.wantStatus == http.StatusSwitchingProtocols) {
				t.Errorf("Accepted() = %v", res.Accepted())
			}
		})
	}
}

func TestValidate_AcceptedResult(t *testing.T) {
	h := header(t,
		"Connection: Upgrade",
		"Upgrade: websocket",
		"Sec-WebSocket-Version: 13",
		"Sec-WebSocket-Key: "+sampleKey,
		"Sec-WebSocket-Protocol: superchat")

	res := Validate(h, DefaultConfig())
	if !res.Accepted() {
		t.Fatalf("expected accepted, got %d %v", res.Status, res.Reason)
	}
	if res.AcceptKey != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Errorf("AcceptKey = %q", res.AcceptKey)
	}
	if res.Protocol != "chat" {
		t.Errorf("Protocol = %q, want the configured name", res.Protocol)
	}
}

func TestValidate_LegacyChallenge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChallengeHeader = HeaderProtocol

	h := header(t,
		"Connection: Upgrade",
		"Upgrade: websocket",
		"Sec-WebSocket-Version: 13",
		"Sec-WebSocket-Protocol: chat")

	res := Validate(h, cfg)
	if !res.Accepted() {
		t.Fatalf("expected accepted, got %d %v", res.Status, res.Reason)
	}
	if res.AcceptKey != AcceptKey("chat") {
		t.Errorf("AcceptKey = %q, want key derived from protocol value", res.AcceptKey)
	}

	h = header(t,
		"Connection: Upgrade",
		"Upgrade: websocket",
		"Sec-WebSocket-Version: 13",
		"Sec-WebSocket-Key: "+sampleKey)
	if res := Validate(h, cfg); !errors.Is(res.Reason, ErrMissingChallenge) {
		t.Errorf("Reason = %v, want ErrMissingChallenge", res.Reason)
	}
}

func TestReject(t *testing.T) {
	if r := Reject(ErrNotWebSocket); r.Status != http.StatusNotFound {
		t.Errorf("Reject(ErrNotWebSocket).Status = %d", r.Status)
	}
	if r := Reject(ErrHeaderTooLarge); r.Status != http.StatusBadRequest {
		t.Errorf("Reject(ErrHeaderTooLarge).Status = %d", r.Status)
	}
	if Reject(ErrBadVersion).Accepted() {
		t.Error("rejected result reports accepted")
	}
}
