// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"net"

	"github.com/absmach/wsgate/pkg/handler"
	"github.com/absmach/wsgate/pkg/server/tcp"
)

// TCPProxy relays connections without inspecting them.
type TCPProxy struct {
	server *tcp.Server
}

// NewTCP creates a plain TCP proxy.
func NewTCP(cfg Config, h handler.Handler) (*TCPProxy, error) {
	serverCfg, err := cfg.serverConfig(false)
	if err != nil {
		return nil, err
	}

	return &TCPProxy{
		server: tcp.New(serverCfg, h),
	}, nil
}

// Listen starts the TCP proxy server and blocks until context is cancelled.
func (p *TCPProxy) Listen(ctx context.Context) error {
	return p.server.Listen(ctx)
}

// Serve runs the proxy on an existing listener.
func (p *TCPProxy) Serve(ctx context.Context, l net.Listener) error {
	return p.server.Serve(ctx, l)
}

// Server returns the underlying TCP server.
func (p *TCPProxy) Server() *tcp.Server {
	return p.server
}
