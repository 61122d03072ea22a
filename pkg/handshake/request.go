// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handshake

import (
	"bytes"
	"fmt"
	"strings"
)

// Header maps case-folded header names to trimmed values.
// Repeated names are joined with ", " in arrival order.
type Header struct {
	values map[string]string
}

// Get returns the value for name, compared case-insensitively.
func (h Header) Get(name string) string {
	return h.values[strings.ToLower(name)]
}

// Has reports whether name was present in the request.
func (h Header) Has(name string) bool {
	_, ok := h.values[strings.ToLower(name)]
	return ok
}

// Len returns the number of distinct header names.
func (h Header) Len() int {
	return len(h.values)
}

func (h *Header) add(name, value string) {
	if h.values == nil {
		h.values = make(map[string]string)
	}
	key := strings.ToLower(name)
	if prev, ok := h.values[key]; ok && prev != "" {
		if value != "" {
			h.values[key] = prev + ", " + value
		}
		return
	}
	h.values[key] = value
}

// Request is a parsed request head. Line is kept for logging only.
type Request struct {
	Line   string
	Header Header
}

// ParseRequest splits a header block into its request line and headers.
// The block may or may not include the terminating empty line.
func ParseRequest(block []byte) (Request, error) {
	block = bytes.TrimSuffix(block, terminator)

	var req Request
	first := true
	for len(block) > 0 {
		var line []byte
		if i := bytes.IndexByte(block, '\n'); i >= 0 {
			line, block = block[:i], block[i+1:]
		} else {
			line, block = block, nil
		}
		line = bytes.TrimSuffix(line, []byte("\r"))

		if first {
			first = false
			if len(bytes.TrimSpace(line)) == 0 {
				return Request{}, ErrMalformedRequestLine
			}
			req.Line = string(line)
			continue
		}
		if len(line) == 0 {
			break
		}

		name, value, ok := bytes.Cut(line, []byte(":"))
		if !ok {
			return Request{}, fmt.Errorf("%w: %q", ErrMalformedHeader, line)
		}
		name = bytes.TrimSpace(name)
		if len(name) == 0 {
			return Request{}, fmt.Errorf("%w: %q", ErrMalformedHeader, line)
		}
		req.Header.add(string(name), string(bytes.Trim(value, " \t")))
	}
	if first {
		return Request{}, ErrMalformedRequestLine
	}

	return req, nil
}
