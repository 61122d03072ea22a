// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package proxy provides high-level coordinators that wire a TCP server to
// a handler in one of the two gateway modes.
//
// # Overview
//
//	Application
//	     ↓
//	┌──────────────────┐
//	│      Proxy       │  (Coordinator)
//	│ - WebSocketProxy │
//	│ - TCPProxy       │
//	└──────────────────┘
//	     ↓
//	┌─────────────┐
//	│ TCP Server  │  (Transport + supervisor)
//	└─────────────┘
//	     ↓
//	┌─────────────┐
//	│   Handler   │  (Lifecycle hooks)
//	└─────────────┘
//
// WebSocketProxy admits a connection only after a valid WebSocket opening
// handshake; TCPProxy relays every connection straight away.
//
// # Configuration
//
//	Config:
//	  - Host, Port: Server listen address
//	  - TargetHost, TargetPort: Upstream address
//	  - Handshake, HandshakeTimeout: WebSocket gate settings
//	  - DialTimeout, IdleTimeout, BufferSize: Relay settings
//	  - MaxConnections, TCPKeepAlive: Connection limits
//	  - ShutdownTimeout: Graceful shutdown timeout
//	  - Breaker, Metrics: Optional upstream protection and instrumentation
//	  - Logger: Structured logger
//
// Example:
//
//	cfg := proxy.Config{
//		Port:             "8278",
//		TargetHost:       "127.0.0.1",
//		TargetPort:       "1080",
//		Handshake:        handshake.DefaultConfig(),
//		HandshakeTimeout: 10 * time.Second,
//	}
//
//	wsProxy, err := proxy.NewWebSocket(cfg, handler)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if err := wsProxy.Listen(ctx); err != nil {
//		log.Fatal(err)
//	}
package proxy
