// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handshake

import (
	"errors"
	"io"
)

// Handshaker reads and judges opening handshakes.
type Handshaker struct {
	config Config
}

// New creates a Handshaker, filling unset fields of cfg with defaults.
// Protocol is left as given so that an empty value can omit the header.
func New(cfg Config) *Handshaker {
	if cfg.MaxHeaderSize <= 0 {
		cfg.MaxHeaderSize = DefaultMaxHeaderSize
	}
	if cfg.ChallengeHeader == "" {
		cfg.ChallengeHeader = HeaderKey
	}
	return &Handshaker{config: cfg}
}

// Config returns the effective configuration.
func (h *Handshaker) Config() Config {
	return h.config
}

// Read consumes one request head from r and validates it.
//
// A non-nil error means the transport failed (or the client gave up) and no
// response should be written. Otherwise the returned Result decides the
// response, and rest holds the bytes received after the header block, which
// belong to the relayed stream.
func (h *Handshaker) Read(r io.Reader) (Result, []byte, error) {
	block, rest, err := ReadHeaderBlock(r, h.config.MaxHeaderSize)
	switch {
	case errors.Is(err, ErrHeaderTooLarge):
		return Reject(err), nil, nil
	case err != nil:
		return Result{}, nil, err
	}

	req, err := ParseRequest(block)
	if err != nil {
		return Reject(err), nil, nil
	}

	res := Validate(req.Header, h.config)
	res.RequestLine = req.Line
	if !res.Accepted() {
		rest = nil
	}
	return res, rest, nil
}
