// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package relay moves bytes between an admitted client and its upstream.
//
// Each connection pair gets two pumps, one per Direction, run as members of
// an errgroup so Run returns only after both have stopped:
//
//	client ──ClientToUpstream──▶ upstream
//	client ◀──UpstreamToClient── upstream
//
// A pump that reads EOF calls CloseWrite on its destination and CloseRead on
// its source, then stops; the opposite pump keeps running. Streams without
// half-close support are closed outright instead. Any other read or write
// error, an idle timeout or cancellation of the context closes both streams,
// which unblocks the opposite pump immediately.
//
// Buffers come from a sync.Pool sized by Config.BufferSize, so a pair never
// buffers more than one window per direction.
package relay
