// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package handler provides the lifecycle hooks a gateway calls for every
// client connection.
//
// # Lifecycle
//
//	accept → OnAccept → [handshake → OnHandshake] → dial → OnRelay → relay → OnDisconnect
//
// OnAccept is the only gate: an error from it refuses the connection before
// any byte is read. The remaining hooks are notifications for audit logging,
// metrics or post-processing. Their errors are logged by the server and never
// change the outcome of the connection.
//
// OnHandshake runs only for gateways in WebSocket mode and receives the
// validation result whether the handshake was accepted or rejected.
//
// # Context
//
// The Context struct carries session metadata across all hook calls:
//   - SessionID: Unique identifier for this connection
//   - RemoteAddr: Client's network address
//   - Mode: "websocket" or "tcp"
//   - RequestLine: HTTP request line of the handshake (WebSocket mode)
//   - Upstream: Address of the upstream service
//   - StartedAt: Accept time
//   - BytesUpstream, BytesDownstream: Relayed byte counts, set before OnDisconnect
//
// # Example
//
//	type AuditHandler struct {
//		handler.NoopHandler
//		log *slog.Logger
//	}
//
//	func (h *AuditHandler) OnDisconnect(ctx context.Context, hctx *handler.Context) error {
//		h.log.Info("session closed", slog.String("session", hctx.SessionID))
//		return nil
//	}
package handler
