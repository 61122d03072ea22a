// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"

	proxyerrors "github.com/absmach/wsgate/pkg/errors"
	"github.com/absmach/wsgate/pkg/handler"
	"github.com/absmach/wsgate/pkg/handshake"
	"github.com/absmach/wsgate/pkg/metrics"
	"github.com/absmach/wsgate/pkg/ratelimit"
)

// RateLimitedHandler wraps a handler with per-host and global accept limits.
type RateLimitedHandler struct {
	handler handler.Handler
	limiter *ratelimit.Limiter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// OnAccept implements handler.Handler with rate limiting.
func (h *RateLimitedHandler) OnAccept(ctx context.Context, hctx *handler.Context) error {
	if err := h.limiter.Allow(hctx.RemoteAddr); err != nil {
		h.metrics.RateLimitedConnections.WithLabelValues(hctx.Mode).Inc()
		h.logger.Warn("Rate limit exceeded",
			slog.String("remote", hctx.RemoteAddr),
			slog.String("mode", hctx.Mode))
		return fmt.Errorf("%w: %w", proxyerrors.ErrRateLimited, err)
	}

	return h.handler.OnAccept(ctx, hctx)
}

// OnHandshake implements handler.Handler.
func (h *RateLimitedHandler) OnHandshake(ctx context.Context, hctx *handler.Context, res handshake.Result) error {
	return h.handler.OnHandshake(ctx, hctx, res)
}

// OnRelay implements handler.Handler.
func (h *RateLimitedHandler) OnRelay(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnRelay(ctx, hctx)
}

// OnDisconnect implements handler.Handler.
func (h *RateLimitedHandler) OnDisconnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnDisconnect(ctx, hctx)
}

// InstrumentedHandler wraps a handler with metrics instrumentation.
type InstrumentedHandler struct {
	handler handler.Handler
	metrics *metrics.Metrics
}

// OnAccept implements handler.Handler with metrics.
func (h *InstrumentedHandler) OnAccept(ctx context.Context, hctx *handler.Context) error {
	err := h.handler.OnAccept(ctx, hctx)
	h.metrics.ObserveAccept(hctx.Mode, err)
	return err
}

// OnHandshake implements handler.Handler with metrics.
func (h *InstrumentedHandler) OnHandshake(ctx context.Context, hctx *handler.Context, res handshake.Result) error {
	h.metrics.ObserveHandshake(res)
	return h.handler.OnHandshake(ctx, hctx, res)
}

// OnRelay implements handler.Handler.
func (h *InstrumentedHandler) OnRelay(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnRelay(ctx, hctx)
}

// OnDisconnect implements handler.Handler with metrics.
func (h *InstrumentedHandler) OnDisconnect(ctx context.Context, hctx *handler.Context) error {
	h.metrics.ObserveDisconnect(hctx.Mode, hctx.Elapsed(), hctx.BytesUpstream, hctx.BytesDownstream)
	return h.handler.OnDisconnect(ctx, hctx)
}
