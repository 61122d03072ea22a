// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package tcp implements the accept loop and per-connection supervisor of a
// WebSocket-gated TCP relay.
//
// # Architecture
//
//	┌─────────┐         ┌─────────┐         ┌──────────┐
//	│ Client  │ ←─TCP─→ │  Server │ ←─TCP─→ │ Upstream │
//	└─────────┘         └─────────┘         └──────────┘
//	                         ↓
//	                    ┌───────────┐
//	                    │ Handshake │  (WebSocket mode)
//	                    └───────────┘
//	                         ↓
//	                    ┌─────────┐
//	                    │  Relay  │
//	                    └─────────┘
//
// # Connection Flow
//
//  1. Client connects to server
//  2. Server calls handler.OnAccept(); an error closes the connection
//  3. WebSocket mode: server reads the request under HandshakeTimeout and
//     validates it; rejections are answered with 400 or 404 and closed
//  4. Server dials the upstream, through the circuit breaker if configured;
//     a failed dial closes only this connection
//  5. WebSocket mode: server writes 101 Switching Protocols
//  6. Relay copies both directions, starting with any bytes the client sent
//     after its handshake, until both are finished
//  7. Server calls handler.OnDisconnect()
//
// # Graceful Shutdown
//
// When context is canceled:
//
//  1. Server stops accepting new connections
//  2. Server waits for existing connections (with timeout)
//  3. After ShutdownTimeout, forcefully closes remaining connections
//  4. Returns ErrShutdownTimeout if timeout exceeded
//
// # Configuration
//
//   - Address: Server listen address (e.g., ":8278")
//   - TargetAddress: Upstream address (e.g., "127.0.0.1:1080")
//   - WebSocket: Enable the handshake gate
//   - Handshake: Header size limit, challenge header and announced protocol
//   - HandshakeTimeout, DialTimeout, IdleTimeout: Per-connection timeouts
//   - MaxConnections: Concurrent connection limit
//   - ShutdownTimeout: Max wait time for graceful shutdown (default: 30s)
//   - Breaker: Optional upstream circuit breaker
//   - Logger: Structured logger
//
// # Example
//
//	cfg := tcp.Config{
//		Address:          ":8278",
//		TargetAddress:    "127.0.0.1:1080",
//		WebSocket:        true,
//		Handshake:        handshake.DefaultConfig(),
//		HandshakeTimeout: 10 * time.Second,
//	}
//
//	server := tcp.New(cfg, &handler.NoopHandler{})
//	if err := server.Listen(ctx); err != nil {
//		log.Fatal(err)
//	}
package tcp
