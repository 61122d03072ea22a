// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"time"

	"github.com/absmach/wsgate/pkg/handshake"
)

// Gateway modes.
const (
	ModeWebSocket = "websocket"
	ModeTCP       = "tcp"
)

// Context contains connection metadata shared by all hook calls.
type Context struct {
	// SessionID is a unique identifier for this connection
	SessionID string

	// RemoteAddr is the client's network address
	RemoteAddr string

	// Mode is ModeWebSocket or ModeTCP
	Mode string

	// RequestLine is the handshake request line, empty in TCP mode
	RequestLine string

	// Upstream is the address connections are relayed to
	Upstream string

	// StartedAt is when the connection was accepted
	StartedAt time.Time

	// BytesUpstream counts bytes relayed from the client to the upstream
	BytesUpstream int64

	// BytesDownstream counts bytes relayed from the upstream to the client
	BytesDownstream int64
}

// Handler defines the gate and notification callbacks for a connection.
//
// OnAccept is called BEFORE anything is read from the client. Returning an
// error refuses the connection.
//
// OnHandshake, OnRelay and OnDisconnect are notifications. Errors from them
// are logged but don't affect the connection.
type Handler interface {
	// OnAccept is called for every accepted connection.
	// Return an error to close it immediately.
	OnAccept(ctx context.Context, hctx *Context) error

	// OnHandshake is called after the WebSocket handshake has been validated,
	// before the response is written. res.Accepted() tells whether the
	// connection continues.
	OnHandshake(ctx context.Context, hctx *Context, res handshake.Result) error

	// OnRelay is called once the upstream is connected and relaying starts.
	OnRelay(ctx context.Context, hctx *Context) error

	// OnDisconnect is called when the connection is finished, whatever the cause.
	OnDisconnect(ctx context.Context, hctx *Context) error
}

// NoopHandler is a Handler that allows everything and records nothing.
type NoopHandler struct{}

var _ Handler = (*NoopHandler)(nil)

func (h *NoopHandler) OnAccept(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) OnHandshake(ctx context.Context, hctx *Context, res handshake.Result) error {
	return nil
}

func (h *NoopHandler) OnRelay(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) OnDisconnect(ctx context.Context, hctx *Context) error {
	return nil
}

// Elapsed returns how long the connection has been open.
func (c *Context) Elapsed() time.Duration {
	if c.StartedAt.IsZero() {
		return 0
	}
	return time.Since(c.StartedAt)
}
