// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package errors provides structured error handling for wsgate.
package errors

import (
	"errors"
	"fmt"
)

// Common error types
var (
	// ErrRejected indicates the connection was refused by a handler.
	ErrRejected = errors.New("connection rejected")

	// ErrHandshakeTimeout indicates the client did not finish its handshake in time.
	ErrHandshakeTimeout = errors.New("handshake timeout")

	// ErrUpstreamUnavailable indicates the upstream could not be reached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrConnectionLimit indicates the server is at MaxConnections.
	ErrConnectionLimit = errors.New("connection limit reached")

	// ErrRateLimited indicates a handler refused the connection for exceeding a rate limit.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// ProxyError wraps an error with connection context.
type ProxyError struct {
	Op         string // Operation that failed (accept, handshake, dial, relay)
	Mode       string // Gateway mode (websocket, tcp)
	SessionID  string // Session identifier
	RemoteAddr string // Client address
	Err        error  // Underlying error
}

// Error implements the error interface.
func (e *ProxyError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s %s [%s] %s: %v", e.Mode, e.Op, e.SessionID, e.RemoteAddr, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Mode, e.Op, e.RemoteAddr, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProxyError) Unwrap() error {
	return e.Err
}

// New creates a new ProxyError.
func New(op, mode, sessionID, remoteAddr string, err error) error {
	if err == nil {
		return nil
	}
	return &ProxyError{
		Op:         op,
		Mode:       mode,
		SessionID:  sessionID,
		RemoteAddr: remoteAddr,
		Err:        err,
	}
}
