// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultBufferSize is the per-direction copy window.
const DefaultBufferSize = 32 * 1024

// ErrIdleTimeout is returned when neither direction moved data for Config.IdleTimeout.
var ErrIdleTimeout = errors.New("relay idle timeout")

// Direction indicates which way bytes flow.
type Direction int

const (
	// ClientToUpstream carries bytes from the client to the upstream.
	ClientToUpstream Direction = iota

	// UpstreamToClient carries bytes from the upstream to the client.
	UpstreamToClient
)

// String returns a string representation of the direction.
func (d Direction) String() string {
	switch d {
	case ClientToUpstream:
		return "upstream"
	case UpstreamToClient:
		return "downstream"
	default:
		return "unknown"
	}
}

// Config holds relay settings.
type Config struct {
	// BufferSize is the size of each direction's copy buffer.
	// If 0, uses DefaultBufferSize.
	BufferSize int

	// IdleTimeout closes the pair when no data moved in either direction
	// for this long. If 0, there is no timeout.
	IdleTimeout time.Duration

	// Logger for relay events
	Logger *slog.Logger
}

// Stats counts bytes moved per direction.
type Stats struct {
	Upstream   int64
	Downstream int64
}

// Relay pumps bytes between connection pairs.
type Relay struct {
	config     Config
	bufferPool *sync.Pool
}

// New creates a relay with the given configuration.
func New(cfg Config) *Relay {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Relay{
		config: cfg,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, cfg.BufferSize)
				return &buf
			},
		},
	}
}

// Run copies bytes between client and upstream until both directions have
// finished, then closes both connections. initial is written to upstream
// before anything is read from client.
//
// A clean EOF on one side half-closes the peer and ends only that direction.
// A read or write error, or cancellation of ctx, closes both connections and
// ends both directions. Run returns the first such error.
func (r *Relay) Run(ctx context.Context, client, upstream net.Conn, initial []byte) (Stats, error) {
	c := &stream{Conn: client}
	u := &stream{Conn: upstream}
	defer c.close()
	defer u.close()

	p := &pair{}
	p.touch()

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() {
		c.close()
		u.close()
	})
	defer stop()

	var stats Stats
	g.Go(func() error {
		n, err := r.pump(p, c, u, ClientToUpstream, initial)
		stats.Upstream = n
		return err
	})
	g.Go(func() error {
		n, err := r.pump(p, u, c, UpstreamToClient, nil)
		stats.Downstream = n
		return err
	})

	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return stats, err
}

// pump copies src to dst until EOF or error.
func (r *Relay) pump(p *pair, src, dst *stream, dir Direction, initial []byte) (int64, error) {
	var written int64

	if len(initial) > 0 {
		n, err := dst.Write(initial)
		written += int64(n)
		if err != nil {
			return written, dst.filter(fmt.Errorf("%s write: %w", dir, err))
		}
		p.touch()
	}

	bufPtr := r.bufferPool.Get().(*[]byte)
	defer r.bufferPool.Put(bufPtr)
	buf := *bufPtr

	for {
		if r.config.IdleTimeout > 0 {
			if err := src.SetReadDeadline(time.Now().Add(r.config.IdleTimeout)); err != nil {
				return written, src.filter(fmt.Errorf("%s deadline: %w", dir, err))
			}
		}

		n, err := src.Read(buf)
		if n > 0 {
			p.touch()
			m, werr := dst.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, dst.filter(fmt.Errorf("%s write: %w", dir, werr))
			}
		}
		if err == nil {
			continue
		}

		if errors.Is(err, io.EOF) {
			r.halfClose(src, dst, dir)
			return written, nil
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() && r.config.IdleTimeout > 0 {
			if p.idle() < r.config.IdleTimeout {
				// The other direction is still moving data.
				continue
			}
			return written, ErrIdleTimeout
		}
		return written, src.filter(fmt.Errorf("%s read: %w", dir, err))
	}
}

// halfClose propagates end of stream from src to dst.
func (r *Relay) halfClose(src, dst *stream, dir Direction) {
	if err := dst.closeWrite(); err != nil {
		r.config.Logger.Debug("half-close unavailable, closing peer",
			slog.String("direction", dir.String()),
			slog.String("error", err.Error()))
		dst.close()
	}
	if err := src.closeRead(); err != nil && !errors.Is(err, errHalfCloseUnsupported) {
		r.config.Logger.Debug("failed to close read half",
			slog.String("direction", dir.String()),
			slog.String("error", err.Error()))
	}
	r.config.Logger.Debug("direction finished", slog.String("direction", dir.String()))
}

// pair tracks the last time either direction moved data.
type pair struct {
	last atomic.Int64
}

func (p *pair) touch() {
	p.last.Store(time.Now().UnixNano())
}

func (p *pair) idle() time.Duration {
	return time.Since(time.Unix(0, p.last.Load()))
}
