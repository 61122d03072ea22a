// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handshake

import (
	"bytes"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/gobwas/httphead"
)

// Header names inspected by the validator.
const (
	HeaderConnection = "Connection"
	HeaderUpgrade    = "Upgrade"
	HeaderVersion    = "Sec-WebSocket-Version"
	HeaderKey        = "Sec-WebSocket-Key"
	HeaderProtocol   = "Sec-WebSocket-Protocol"

	// Version is the only protocol version accepted.
	Version = "13"

	// DefaultProtocol is the sub-protocol announced in the 101 response.
	DefaultProtocol = "chat"
)

// indicators are headers whose presence marks a request as a WebSocket attempt.
var indicators = []string{HeaderUpgrade, HeaderVersion, HeaderKey, HeaderProtocol}

// Config controls how requests are validated and answered.
type Config struct {
	// MaxHeaderSize bounds the header block. Defaults to DefaultMaxHeaderSize.
	MaxHeaderSize int

	// ChallengeHeader names the header whose value feeds AcceptKey.
	// Defaults to Sec-WebSocket-Key. Setting it to Sec-WebSocket-Protocol
	// keeps compatibility with clients of the legacy gateway, which hashed
	// the protocol value instead of the key.
	ChallengeHeader string

	// Protocol is announced in Sec-WebSocket-Protocol on success.
	// It is a fixed name, not negotiated. Empty omits the header.
	Protocol string
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		MaxHeaderSize:   DefaultMaxHeaderSize,
		ChallengeHeader: HeaderKey,
		Protocol:        DefaultProtocol,
	}
}

func (c Config) challengeHeader() string {
	if c.ChallengeHeader == "" {
		return HeaderKey
	}
	return c.ChallengeHeader
}

// Result is the outcome of a handshake. It is immutable once produced.
type Result struct {
	// Status is 101 on success, 400 or 404 otherwise.
	Status int

	// Reason is nil on success.
	Reason error

	// AcceptKey is set on success.
	AcceptKey string

	// Protocol is echoed in the success response.
	Protocol string

	// RequestLine is kept for logging.
	RequestLine string
}

// Accepted reports whether the connection may proceed to relaying.
func (r Result) Accepted() bool {
	return r.Status == http.StatusSwitchingProtocols
}

// Reject builds a rejected Result. ErrNotWebSocket maps to 404, any
// other reason to 400.
func Reject(reason error) Result {
	status := http.StatusBadRequest
	if errors.Is(reason, ErrNotWebSocket) {
		status = http.StatusNotFound
	}
	return Result{Status: status, Reason: reason}
}

// Validate checks the upgrade preconditions on h.
func Validate(h Header, cfg Config) Result {
	ws := false
	for _, name := range indicators {
		if h.Has(name) {
			ws = true
			break
		}
	}
	if !ws {
		return Reject(ErrNotWebSocket)
	}

	if !hasToken(h.Get(HeaderUpgrade), "websocket") {
		return Reject(ErrBadUpgrade)
	}
	if !hasToken(h.Get(HeaderConnection), "upgrade") {
		return Reject(ErrBadConnection)
	}
	if h.Get(HeaderVersion) != Version {
		return Reject(ErrBadVersion)
	}

	name := cfg.challengeHeader()
	challenge := h.Get(name)
	if challenge == "" {
		return Reject(ErrMissingChallenge)
	}
	if strings.EqualFold(name, HeaderKey) {
		nonce, err := base64.StdEncoding.DecodeString(challenge)
		if err != nil || len(nonce) != 16 {
			return Reject(ErrBadChallenge)
		}
	}

	return Result{
		Status:    http.StatusSwitchingProtocols,
		AcceptKey: AcceptKey(challenge),
		Protocol:  cfg.Protocol,
	}
}

// hasToken reports whether the comma separated list v contains token.
func hasToken(v, token string) bool {
	found := false
	httphead.ScanTokens([]byte(v), func(t []byte) bool {
		if bytes.EqualFold(t, []byte(token)) {
			found = true
			return false
		}
		return true
	})
	return found
}
