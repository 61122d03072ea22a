// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package wsgate holds the environment configuration of a gateway instance.
package wsgate

import (
	"time"

	"github.com/absmach/wsgate/pkg/handshake"
	"github.com/absmach/wsgate/pkg/proxy"
	"github.com/caarlos0/env/v11"
)

// Config describes one gateway listener and its upstream.
type Config struct {
	Host       string `env:"HOST"        envDefault:""`
	Port       string `env:"PORT"        envDefault:"8278"`
	TargetHost string `env:"TARGET_HOST" envDefault:"127.0.0.1"`
	TargetPort string `env:"TARGET_PORT" envDefault:"1080"`

	WebSocket       bool   `env:"WEBSOCKET"        envDefault:"true"`
	Protocol        string `env:"PROTOCOL"         envDefault:"chat"`
	ChallengeHeader string `env:"CHALLENGE_HEADER" envDefault:"Sec-WebSocket-Key"`
	MaxHeaderSize   int    `env:"MAX_HEADER_SIZE"  envDefault:"8192"`

	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT" envDefault:"10s"`
	DialTimeout      time.Duration `env:"DIAL_TIMEOUT"      envDefault:"10s"`
	IdleTimeout      time.Duration `env:"IDLE_TIMEOUT"      envDefault:"0s"`
	BufferSize       int           `env:"BUFFER_SIZE"       envDefault:"32768"`
	MaxConnections   int           `env:"MAX_CONNECTIONS"   envDefault:"0"`
	TCPKeepAlive     time.Duration `env:"TCP_KEEPALIVE"     envDefault:"30s"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT"  envDefault:"30s"`
}

// NewConfig parses the environment, applying opts such as a variable prefix.
func NewConfig(opts env.Options) (Config, error) {
	c := Config{}
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Handshake returns the handshake settings.
func (c Config) Handshake() handshake.Config {
	return handshake.Config{
		MaxHeaderSize:   c.MaxHeaderSize,
		ChallengeHeader: c.ChallengeHeader,
		Protocol:        c.Protocol,
	}
}

// Proxy returns the proxy settings. Breaker, metrics and logger are left to
// the caller.
func (c Config) Proxy() proxy.Config {
	return proxy.Config{
		Host:             c.Host,
		Port:             c.Port,
		TargetHost:       c.TargetHost,
		TargetPort:       c.TargetPort,
		Handshake:        c.Handshake(),
		HandshakeTimeout: c.HandshakeTimeout,
		DialTimeout:      c.DialTimeout,
		IdleTimeout:      c.IdleTimeout,
		BufferSize:       c.BufferSize,
		MaxConnections:   c.MaxConnections,
		TCPKeepAlive:     c.TCPKeepAlive,
		ShutdownTimeout:  c.ShutdownTimeout,
	}
}
