// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package wsgate

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig(env.Options{Prefix: "WSGATE_DEFAULTS_TEST_"})
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}

	if cfg.Port != "8278" {
		t.Errorf("Port = %q, want 8278", cfg.Port)
	}
	if cfg.TargetHost != "127.0.0.1" || cfg.TargetPort != "1080" {
		t.Errorf("Target = %s:%s, want 127.0.0.1:1080", cfg.TargetHost, cfg.TargetPort)
	}
	if !cfg.WebSocket {
		t.Error("WebSocket should default to true")
	}
	if cfg.BufferSize != 32768 || cfg.MaxHeaderSize != 8192 {
		t.Errorf("BufferSize = %d, MaxHeaderSize = %d", cfg.BufferSize, cfg.MaxHeaderSize)
	}
	if cfg.HandshakeTimeout != 10*time.Second || cfg.IdleTimeout != 0 {
		t.Errorf("HandshakeTimeout = %v, IdleTimeout = %v", cfg.HandshakeTimeout, cfg.IdleTimeout)
	}

	hs := cfg.Handshake()
	if hs.ChallengeHeader != "Sec-WebSocket-Key" || hs.Protocol != "chat" {
		t.Errorf("Handshake() = %+v", hs)
	}
}

func TestNewConfig_Prefix(t *testing.T) {
	t.Setenv("WSGATE_LEGACY_PORT", "9000")
	t.Setenv("WSGATE_LEGACY_TARGET_HOST", "upstream.local")
	t.Setenv("WSGATE_LEGACY_WEBSOCKET", "false")
	t.Setenv("WSGATE_LEGACY_CHALLENGE_HEADER", "Sec-WebSocket-Protocol")
	t.Setenv("WSGATE_LEGACY_IDLE_TIMEOUT", "5m")

	cfg, err := NewConfig(env.Options{Prefix: "WSGATE_LEGACY_"})
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}

	if cfg.Port != "9000" || cfg.TargetHost != "upstream.local" {
		t.Errorf("Port = %q, TargetHost = %q", cfg.Port, cfg.TargetHost)
	}
	if cfg.WebSocket {
		t.Error("WebSocket should be false")
	}
	if cfg.IdleTimeout != 5*time.Minute {
		t.Errorf("IdleTimeout = %v", cfg.IdleTimeout)
	}

	p := cfg.Proxy()
	if p.Handshake.ChallengeHeader != "Sec-WebSocket-Protocol" {
		t.Errorf("ChallengeHeader = %q", p.Handshake.ChallengeHeader)
	}
	if p.Port != "9000" || p.TargetPort != "1080" {
		t.Errorf("Proxy() = %+v", p)
	}
}

func TestNewConfig_Invalid(t *testing.T) {
	t.Setenv("WSGATE_BAD_BUFFER_SIZE", "lots")

	if _, err := NewConfig(env.Options{Prefix: "WSGATE_BAD_"}); err == nil {
		t.Error("expected parse error")
	}
}
