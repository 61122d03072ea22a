// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package handshake implements the WebSocket opening handshake gate used by
// wsgate.
//
// # Overview
//
// The gate reads an HTTP/1.1 request head straight from the client socket,
// without net/http, decides whether the connection may be relayed and writes
// one of three fixed responses:
//
//	HTTP/1.1 404 Not Found            no WebSocket headers at all
//	HTTP/1.1 400 Bad Request          WebSocket attempt that fails a check
//	HTTP/1.1 101 Switching Protocols  all checks pass
//
// # Pipeline
//
//	ReadHeaderBlock → ParseRequest → Validate → AcceptKey → Response
//
// ReadHeaderBlock buffers at most Config.MaxHeaderSize bytes and tolerates the
// terminating empty line being split across reads. Bytes read past the
// terminator are returned to the caller so they can be forwarded upstream.
//
// # Checks
//
//   - Upgrade equals websocket (case-insensitive)
//   - Connection contains the upgrade token (comma separated list)
//   - Sec-WebSocket-Version equals 13
//   - the challenge header is present; for Sec-WebSocket-Key it must decode
//     to a 16 byte nonce
//
// # Challenge Source
//
// By default the accept key is derived from Sec-WebSocket-Key, as browsers and
// standard clients expect. Config.ChallengeHeader may be set to
// Sec-WebSocket-Protocol for clients built against the legacy gateway, which
// hashed the protocol value instead.
//
// # Example
//
//	hs := handshake.New(handshake.DefaultConfig())
//	res, rest, err := hs.Read(conn)
//	if err != nil {
//		return err // client went away, nothing to answer
//	}
//	if err := handshake.WriteResponse(conn, res); err != nil {
//		return err
//	}
//	if !res.Accepted() {
//		return res.Reason
//	}
//	// relay, forwarding rest first
package handshake
