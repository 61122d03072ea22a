// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
)

var errHalfCloseUnsupported = errors.New("half-close not supported")

// ReadHalfCloser is implemented by streams that can shut down reading only,
// such as *net.TCPConn.
type ReadHalfCloser interface {
	CloseRead() error
}

// WriteHalfCloser is implemented by streams that can signal end of stream
// while still reading, such as *net.TCPConn.
type WriteHalfCloser interface {
	CloseWrite() error
}

// stream is a connection owned by one relay. It is closed exactly once.
type stream struct {
	net.Conn
	once   sync.Once
	closed atomic.Bool
}

func (s *stream) close() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.Conn.Close()
	})
}

func (s *stream) closeWrite() error {
	if w, ok := s.Conn.(WriteHalfCloser); ok {
		return w.CloseWrite()
	}
	return errHalfCloseUnsupported
}

func (s *stream) closeRead() error {
	if r, ok := s.Conn.(ReadHalfCloser); ok {
		return r.CloseRead()
	}
	return errHalfCloseUnsupported
}

// filter drops errors caused by the relay closing the stream itself.
func (s *stream) filter(err error) error {
	if s.closed.Load() {
		return nil
	}
	return err
}
