// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/wsgate/pkg/breaker"
	proxyerrors "github.com/absmach/wsgate/pkg/errors"
	"github.com/absmach/wsgate/pkg/handler"
	"github.com/absmach/wsgate/pkg/handshake"
	"github.com/absmach/wsgate/pkg/metrics"
	"github.com/absmach/wsgate/pkg/relay"
	"github.com/google/uuid"
	"github.com/jpillora/backoff"
)

var (
	// ErrShutdownTimeout is returned when graceful shutdown exceeds the configured timeout.
	ErrShutdownTimeout = errors.New("shutdown timeout exceeded")
)

// Config holds the TCP server configuration.
type Config struct {
	// Address is the listen address (host:port)
	Address string

	// TargetAddress is the upstream address to relay to (host:port)
	TargetAddress string

	// WebSocket gates every connection behind a WebSocket opening handshake.
	// When false, connections are relayed as soon as the upstream is dialed.
	WebSocket bool

	// Handshake configures handshake validation in WebSocket mode.
	Handshake handshake.Config

	// HandshakeTimeout bounds reading the handshake request. 0 disables it.
	HandshakeTimeout time.Duration

	// DialTimeout bounds the upstream dial. 0 disables it.
	DialTimeout time.Duration

	// BufferSize is the relay window per direction.
	BufferSize int

	// IdleTimeout closes a relayed connection after this long without traffic.
	// 0 disables it.
	IdleTimeout time.Duration

	// MaxConnections limits concurrently served connections. Connections
	// beyond the limit are closed right after accept. 0 means unlimited.
	MaxConnections int

	// TCPKeepAlive is the keep-alive period for client and upstream
	// connections. Negative disables keep-alives.
	TCPKeepAlive time.Duration

	// ShutdownTimeout is the maximum time to wait for active connections to drain
	// during graceful shutdown. After this timeout, remaining connections are
	// forcefully closed.
	ShutdownTimeout time.Duration

	// Breaker optionally guards the upstream dial.
	Breaker *breaker.CircuitBreaker

	// Metrics optionally records upstream dials.
	Metrics *metrics.Metrics

	// Logger for server events
	Logger *slog.Logger
}

// Server accepts client connections and relays each one to the upstream,
// optionally after a WebSocket handshake.
type Server struct {
	config     Config
	handler    handler.Handler
	handshaker *handshake.Handshaker
	relay      *relay.Relay
	connSem    chan struct{}
	active     atomic.Int64
	wg         sync.WaitGroup
}

// New creates a new TCP server with the given configuration and handler.
func New(cfg Config, h handler.Handler) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = relay.DefaultBufferSize
	}
	if h == nil {
		h = &handler.NoopHandler{}
	}

	s := &Server{
		config:     cfg,
		handler:    h,
		handshaker: handshake.New(cfg.Handshake),
		relay: relay.New(relay.Config{
			BufferSize:  cfg.BufferSize,
			IdleTimeout: cfg.IdleTimeout,
			Logger:      cfg.Logger,
		}),
	}
	if cfg.MaxConnections > 0 {
		s.connSem = make(chan struct{}, cfg.MaxConnections)
	}

	return s
}

// Mode returns handler.ModeWebSocket or handler.ModeTCP.
func (s *Server) Mode() string {
	if s.config.WebSocket {
		return handler.ModeWebSocket
	}
	return handler.ModeTCP
}

// Active returns the number of connections currently being served.
func (s *Server) Active() int64 {
	return s.active.Load()
}

// Listen starts the TCP server and blocks until the context is cancelled.
// It implements graceful shutdown with connection draining.
func (s *Server) Listen(ctx context.Context) error {
	lc := net.ListenConfig{KeepAlive: s.config.TCPKeepAlive}
	listener, err := lc.Listen(ctx, "tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}

	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until the context is cancelled, then
// closes the listener and drains active connections.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.config.Logger.Info("TCP server started",
		slog.String("address", listener.Addr().String()),
		slog.String("target", s.config.TargetAddress),
		slog.String("mode", s.Mode()))

	// Create a separate context for active connections
	// This allows us to control when to forcefully close connections
	connCtx, connCancel := context.WithCancel(context.Background())
	defer connCancel()

	// Accept loop
	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		b := &backoff.Backoff{Min: 5 * time.Millisecond, Max: time.Second}
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					// Expected error during shutdown
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				d := b.Duration()
				s.config.Logger.Error("failed to accept connection",
					slog.String("error", err.Error()),
					slog.Duration("retry_in", d))
				time.Sleep(d)
				continue
			}
			b.Reset()

			if !s.acquire() {
				s.config.Logger.Warn("connection refused",
					slog.String("remote", conn.RemoteAddr().String()),
					slog.String("error", proxyerrors.ErrConnectionLimit.Error()))
				conn.Close()
				continue
			}

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer s.release()
				if err := s.handleConn(connCtx, conn); err != nil {
					s.logConnError(err)
				}
			}()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	s.config.Logger.Info("shutdown signal received, closing listener")

	// Close the listener to stop accepting new connections
	if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.config.Logger.Error("error closing listener", slog.String("error", err.Error()))
	}

	// Wait for accept loop to finish
	<-acceptDone

	// Wait for active connections to drain with timeout
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.config.Logger.Info("all connections closed gracefully")
		return nil
	case <-time.After(s.config.ShutdownTimeout):
		s.config.Logger.Warn("shutdown timeout exceeded, forcing connection closure",
			slog.Int64("active", s.Active()))
		// Cancel context to force close remaining connections
		connCancel()
		<-done
		return ErrShutdownTimeout
	}
}

func (s *Server) acquire() bool {
	if s.connSem == nil {
		return true
	}
	select {
	case s.connSem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Server) release() {
	if s.connSem != nil {
		<-s.connSem
	}
}

// handleConn supervises a single client connection:
// 1. Asks the handler whether to serve it
// 2. In WebSocket mode, reads and validates the handshake, rejecting with 400/404
// 3. Dials the upstream
// 4. In WebSocket mode, completes the handshake with 101
// 5. Relays both directions until they finish
// 6. Notifies the handler
func (s *Server) handleConn(ctx context.Context, client net.Conn) error {
	defer client.Close()
	s.active.Add(1)
	defer s.active.Add(-1)

	s.configure(client)

	hctx := &handler.Context{
		SessionID:  uuid.New().String(),
		RemoteAddr: client.RemoteAddr().String(),
		Mode:       s.Mode(),
		Upstream:   s.config.TargetAddress,
		StartedAt:  time.Now(),
	}
	fail := func(op string, err error) error {
		return proxyerrors.New(op, hctx.Mode, hctx.SessionID, hctx.RemoteAddr, err)
	}

	if err := s.handler.OnAccept(ctx, hctx); err != nil {
		return fail("accept", fmt.Errorf("%w: %w", proxyerrors.ErrRejected, err))
	}
	defer s.notify("OnDisconnect", hctx, func() error {
		return s.handler.OnDisconnect(context.Background(), hctx)
	})

	// Forced shutdown must unblock the handshake read and the dial.
	stop := context.AfterFunc(ctx, func() { client.Close() })

	var res handshake.Result
	var initial []byte
	if s.config.WebSocket {
		var err error
		res, initial, err = s.handshake(ctx, client, hctx)
		if err != nil {
			stop()
			return fail("handshake", err)
		}
		if !res.Accepted() {
			stop()
			return nil
		}
	}

	s.config.Logger.Debug("dialing upstream",
		slog.String("session", hctx.SessionID),
		slog.String("upstream", s.config.TargetAddress))

	upstream, err := s.dial(ctx)
	if err != nil {
		stop()
		return fail("dial", fmt.Errorf("%w: %w", proxyerrors.ErrUpstreamUnavailable, err))
	}

	if s.config.WebSocket {
		if err := s.respond(client, hctx, res); err != nil {
			stop()
			upstream.Close()
			return fail("handshake", err)
		}
	}

	if !stop() {
		upstream.Close()
		return fail("relay", ctx.Err())
	}

	s.config.Logger.Debug("connection established",
		slog.String("session", hctx.SessionID),
		slog.String("remote", hctx.RemoteAddr),
		slog.String("upstream", s.config.TargetAddress))
	s.notify("OnRelay", hctx, func() error {
		return s.handler.OnRelay(ctx, hctx)
	})

	stats, err := s.relay.Run(ctx, client, upstream, initial)
	hctx.BytesUpstream = stats.Upstream
	hctx.BytesDownstream = stats.Downstream

	s.config.Logger.Debug("connection closed",
		slog.String("session", hctx.SessionID),
		slog.Int64("bytes_upstream", stats.Upstream),
		slog.Int64("bytes_downstream", stats.Downstream),
		slog.Duration("duration", hctx.Elapsed()))

	if err != nil {
		return fail("relay", err)
	}
	return nil
}

// handshake reads and validates the opening handshake. Rejections are
// answered here; a non-nil error means no response could be sent.
func (s *Server) handshake(ctx context.Context, client net.Conn, hctx *handler.Context) (handshake.Result, []byte, error) {
	if s.config.HandshakeTimeout > 0 {
		if err := client.SetReadDeadline(time.Now().Add(s.config.HandshakeTimeout)); err != nil {
			return handshake.Result{}, nil, fmt.Errorf("handshake deadline: %w", err)
		}
	}

	res, rest, err := s.handshaker.Read(client)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			err = fmt.Errorf("%w: %w", proxyerrors.ErrHandshakeTimeout, err)
		}
		return res, nil, err
	}
	s.clearDeadline(hctx, client.SetReadDeadline)

	hctx.RequestLine = res.RequestLine
	s.notify("OnHandshake", hctx, func() error {
		return s.handler.OnHandshake(ctx, hctx, res)
	})

	if res.Accepted() {
		return res, rest, nil
	}

	s.config.Logger.Info("handshake rejected",
		slog.String("session", hctx.SessionID),
		slog.String("remote", hctx.RemoteAddr),
		slog.String("request", res.RequestLine),
		slog.Int("status", res.Status),
		slog.String("reason", res.Reason.Error()))

	if err := s.respond(client, hctx, res); err != nil {
		return res, nil, err
	}
	return res, nil, nil
}

func (s *Server) respond(client net.Conn, hctx *handler.Context, res handshake.Result) error {
	if s.config.HandshakeTimeout > 0 {
		if err := client.SetWriteDeadline(time.Now().Add(s.config.HandshakeTimeout)); err != nil {
			return fmt.Errorf("response deadline: %w", err)
		}
		defer s.clearDeadline(hctx, client.SetWriteDeadline)
	}
	return handshake.WriteResponse(client, res)
}

// clearDeadline removes a handshake deadline. A failure only means the
// connection is already closed, which the next read or write reports.
func (s *Server) clearDeadline(hctx *handler.Context, set func(time.Time) error) {
	if err := set(time.Time{}); err != nil {
		s.config.Logger.Debug("failed to clear deadline",
			slog.String("session", hctx.SessionID),
			slog.String("error", err.Error()))
	}
}

func (s *Server) dial(ctx context.Context) (net.Conn, error) {
	dial := func(ctx context.Context) (net.Conn, error) {
		d := net.Dialer{
			Timeout:   s.config.DialTimeout,
			KeepAlive: s.config.TCPKeepAlive,
		}
		return d.DialContext(ctx, "tcp", s.config.TargetAddress)
	}

	start := time.Now()
	var conn net.Conn
	var err error
	if s.config.Breaker != nil {
		conn, err = s.config.Breaker.Dial(ctx, dial)
	} else {
		conn, err = dial(ctx)
	}
	if s.config.Metrics != nil {
		s.config.Metrics.ObserveDial(s.config.TargetAddress, time.Since(start), err)
	}
	return conn, err
}

func (s *Server) configure(conn net.Conn) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok || s.config.TCPKeepAlive <= 0 {
		return
	}
	err := tcpConn.SetKeepAlive(true)
	if err == nil {
		err = tcpConn.SetKeepAlivePeriod(s.config.TCPKeepAlive)
	}
	if err != nil {
		s.config.Logger.Debug("failed to enable keep-alive",
			slog.String("remote", conn.RemoteAddr().String()),
			slog.String("error", err.Error()))
	}
}

// notify runs a notification hook. Its error is logged and otherwise ignored.
func (s *Server) notify(hook string, hctx *handler.Context, fn func() error) {
	if err := fn(); err != nil {
		s.config.Logger.Error("handler error",
			slog.String("hook", hook),
			slog.String("session", hctx.SessionID),
			slog.String("error", err.Error()))
	}
}

func (s *Server) logConnError(err error) {
	s.config.Logger.Log(context.Background(), connErrorLevel(err), "connection failed", slog.String("error", err.Error()))
}

// connErrorLevel maps a connection failure to a log level. Clients that
// leave early and rate-limited refusals are routine.
func connErrorLevel(err error) slog.Level {
	switch {
	case errors.Is(err, handshake.ErrClientClosed), errors.Is(err, proxyerrors.ErrRateLimited):
		return slog.LevelDebug
	case errors.Is(err, proxyerrors.ErrUpstreamUnavailable):
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
