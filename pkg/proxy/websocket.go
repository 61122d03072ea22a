// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"net"

	"github.com/absmach/wsgate/pkg/handler"
	"github.com/absmach/wsgate/pkg/server/tcp"
)

// WebSocketProxy relays connections that pass the WebSocket opening handshake.
type WebSocketProxy struct {
	server *tcp.Server
}

// NewWebSocket creates a WebSocket-gated proxy.
func NewWebSocket(cfg Config, h handler.Handler) (*WebSocketProxy, error) {
	serverCfg, err := cfg.serverConfig(true)
	if err != nil {
		return nil, err
	}

	return &WebSocketProxy{
		server: tcp.New(serverCfg, h),
	}, nil
}

// Listen starts the WebSocket proxy server and blocks until context is cancelled.
func (p *WebSocketProxy) Listen(ctx context.Context) error {
	return p.server.Listen(ctx)
}

// Serve runs the proxy on an existing listener.
func (p *WebSocketProxy) Serve(ctx context.Context, l net.Listener) error {
	return p.server.Serve(ctx, l)
}

// Server returns the underlying TCP server.
func (p *WebSocketProxy) Server() *tcp.Server {
	return p.server
}
