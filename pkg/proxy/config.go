// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/absmach/wsgate/pkg/breaker"
	"github.com/absmach/wsgate/pkg/handshake"
	"github.com/absmach/wsgate/pkg/metrics"
	"github.com/absmach/wsgate/pkg/server/tcp"
)

var (
	// ErrMissingPort is returned when no listen port is configured.
	ErrMissingPort = errors.New("listen port not configured")

	// ErrMissingTarget is returned when the upstream host or port is empty.
	ErrMissingTarget = errors.New("target address not configured")
)

// Config holds configuration shared by both gateway modes.
type Config struct {
	Host       string
	Port       string
	TargetHost string
	TargetPort string

	// Handshake is only used by the WebSocket proxy.
	Handshake        handshake.Config
	HandshakeTimeout time.Duration

	DialTimeout     time.Duration
	IdleTimeout     time.Duration
	BufferSize      int
	MaxConnections  int
	TCPKeepAlive    time.Duration
	ShutdownTimeout time.Duration

	Breaker *breaker.CircuitBreaker
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func (c Config) serverConfig(websocket bool) (tcp.Config, error) {
	if c.Port == "" {
		return tcp.Config{}, ErrMissingPort
	}
	if c.TargetHost == "" || c.TargetPort == "" {
		return tcp.Config{}, ErrMissingTarget
	}

	return tcp.Config{
		Address:          net.JoinHostPort(c.Host, c.Port),
		TargetAddress:    net.JoinHostPort(c.TargetHost, c.TargetPort),
		WebSocket:        websocket,
		Handshake:        c.Handshake,
		HandshakeTimeout: c.HandshakeTimeout,
		DialTimeout:      c.DialTimeout,
		IdleTimeout:      c.IdleTimeout,
		BufferSize:       c.BufferSize,
		MaxConnections:   c.MaxConnections,
		TCPKeepAlive:     c.TCPKeepAlive,
		ShutdownTimeout:  c.ShutdownTimeout,
		Breaker:          c.Breaker,
		Metrics:          c.Metrics,
		Logger:           c.Logger,
	}, nil
}
