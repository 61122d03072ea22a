// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handshake

import (
	"bytes"
	"errors"
	"io"
)

// DefaultMaxHeaderSize bounds the header block of a single request.
const DefaultMaxHeaderSize = 8192

// maxEmptyReads guards against readers that keep returning (0, nil).
const maxEmptyReads = 100

var terminator = []byte("\r\n\r\n")

// ReadHeaderBlock reads from r until a complete header block terminated by
// an empty line is available. It returns the block including the terminator
// and any bytes that were read past it. The total amount of buffered data
// never exceeds max.
//
// ErrClientClosed is returned when r reports EOF before any byte arrives,
// ErrIncompleteRequest when EOF arrives mid-block and ErrHeaderTooLarge when
// max bytes were buffered without finding the terminator.
func ReadHeaderBlock(r io.Reader, max int) (block, rest []byte, err error) {
	if max <= 0 {
		max = DefaultMaxHeaderSize
	}

	buf := make([]byte, max)
	n, empty := 0, 0
	for {
		m, rerr := r.Read(buf[n:])
		if m > 0 {
			// Only the tail can complete a terminator split across reads.
			from := n - (len(terminator) - 1)
			if from < 0 {
				from = 0
			}
			n += m
			if i := bytes.Index(buf[from:n], terminator); i >= 0 {
				end := from + i + len(terminator)
				return buf[:end:end], buf[end:n], nil
			}
			if n == max {
				return nil, nil, ErrHeaderTooLarge
			}
			empty = 0
		}

		switch {
		case rerr == nil && m == 0:
			empty++
			if empty >= maxEmptyReads {
				return nil, nil, io.ErrNoProgress
			}
		case errors.Is(rerr, io.EOF):
			if n == 0 {
				return nil, nil, ErrClientClosed
			}
			return nil, nil, ErrIncompleteRequest
		case rerr != nil:
			return nil, nil, rerr
		}
	}
}
