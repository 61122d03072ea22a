// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handshake

import "errors"

// Transport-level failures. No response is written for these.
var (
	// ErrClientClosed is returned when the client disconnects before sending anything.
	ErrClientClosed = errors.New("client closed connection")

	// ErrIncompleteRequest is returned when the stream ends before the header block does.
	ErrIncompleteRequest = errors.New("incomplete request")
)

// Rejection reasons carried by a rejected Result.
var (
	// ErrNotWebSocket marks a request without any WebSocket headers. It maps to 404.
	ErrNotWebSocket = errors.New("not a WebSocket request")

	// ErrHeaderTooLarge is returned when the header block exceeds the configured maximum.
	ErrHeaderTooLarge = errors.New("header block too large")

	// ErrMalformedRequestLine is returned when the request line is empty.
	ErrMalformedRequestLine = errors.New("malformed request line")

	// ErrMalformedHeader is returned for a header line without a colon or with an empty name.
	ErrMalformedHeader = errors.New("malformed header line")

	// ErrBadConnection is returned when Connection does not carry the upgrade token.
	ErrBadConnection = errors.New("missing upgrade token in Connection header")

	// ErrBadUpgrade is returned when Upgrade is not websocket.
	ErrBadUpgrade = errors.New("Upgrade header is not websocket")

	// ErrBadVersion is returned when Sec-WebSocket-Version is not 13.
	ErrBadVersion = errors.New("unsupported Sec-WebSocket-Version")

	// ErrMissingChallenge is returned when the challenge header is absent or empty.
	ErrMissingChallenge = errors.New("missing challenge header")

	// ErrBadChallenge is returned when Sec-WebSocket-Key is not a base64 encoded 16 byte nonce.
	ErrBadChallenge = errors.New("malformed challenge header")
)
