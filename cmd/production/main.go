// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package main provides a production-ready wsgate deployment
// with metrics, health checks, circuit breaking and rate limiting.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/absmach/wsgate"
	"github.com/absmach/wsgate/examples/simple"
	"github.com/absmach/wsgate/pkg/breaker"
	"github.com/absmach/wsgate/pkg/health"
	"github.com/absmach/wsgate/pkg/metrics"
	"github.com/absmach/wsgate/pkg/proxy"
	"github.com/absmach/wsgate/pkg/ratelimit"
	"github.com/absmach/wsgate/pkg/server/tcp"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const envPrefix = "WSGATE_"

// Config holds the production settings on top of the gateway configuration.
type Config struct {
	// Observability
	MetricsPort int    `env:"METRICS_PORT" envDefault:"9090"`
	HealthPort  int    `env:"HEALTH_PORT"  envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT"   envDefault:"json"`

	// Resource Limits
	MaxGoroutines int `env:"MAX_GOROUTINES" envDefault:"50000"`

	// Circuit Breaker
	BreakerMaxFailures  int           `env:"BREAKER_MAX_FAILURES"  envDefault:"5"`
	BreakerResetTimeout time.Duration `env:"BREAKER_RESET_TIMEOUT" envDefault:"30s"`

	// Rate Limiting (connections per second)
	RateLimitPerHost   int64 `env:"RATE_LIMIT_PER_HOST"    envDefault:"10"`
	RateLimitHostBurst int64 `env:"RATE_LIMIT_HOST_BURST"  envDefault:"100"`
	RateLimitGlobal    int64 `env:"RATE_LIMIT_GLOBAL"      envDefault:"1000"`
	RateLimitBurst     int64 `env:"RATE_LIMIT_GLOBAL_BURST" envDefault:"10000"`
}

func main() {
	// .env file is optional
	_ = godotenv.Load()

	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse config: %v\n", err)
		os.Exit(1)
	}
	gwCfg, err := wsgate.NewConfig(env.Options{Prefix: envPrefix})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse gateway config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	target := net.JoinHostPort(gwCfg.TargetHost, gwCfg.TargetPort)
	logger.Info("Starting wsgate in production mode",
		slog.String("target", target),
		slog.Bool("websocket", gwCfg.WebSocket),
		slog.Int("max_connections", gwCfg.MaxConnections))

	m := metrics.New("wsgate", prometheus.DefaultRegisterer)

	cb := breaker.New(breaker.Config{
		MaxFailures:  cfg.BreakerMaxFailures,
		ResetTimeout: cfg.BreakerResetTimeout,
	})
	m.ObserveBreaker(target, cb)

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		PerHostRate:  cfg.RateLimitPerHost,
		PerHostBurst: cfg.RateLimitHostBurst,
		GlobalRate:   cfg.RateLimitGlobal,
		GlobalBurst:  cfg.RateLimitBurst,
	})
	defer limiter.Close()

	h := &InstrumentedHandler{
		handler: &RateLimitedHandler{
			handler: simple.New(logger),
			limiter: limiter,
			metrics: m,
			logger:  logger,
		},
		metrics: m,
	}

	pcfg := gwCfg.Proxy()
	pcfg.Breaker = cb
	pcfg.Metrics = m
	pcfg.Logger = logger

	var server *tcp.Server
	var listen func(context.Context) error
	if gwCfg.WebSocket {
		p, err := proxy.NewWebSocket(pcfg, h)
		if err != nil {
			logger.Error("Failed to create gateway", slog.String("error", err.Error()))
			os.Exit(1)
		}
		server, listen = p.Server(), p.Listen
	} else {
		p, err := proxy.NewTCP(pcfg, h)
		if err != nil {
			logger.Error("Failed to create gateway", slog.String("error", err.Error()))
			os.Exit(1)
		}
		server, listen = p.Server(), p.Listen
	}

	checker := health.NewChecker(5 * time.Second)
	registerChecks(checker, cfg, gwCfg, cb, server)

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return listen(ctx)
	})
	g.Go(func() error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		return serveHTTP(ctx, "metrics", fmt.Sprintf(":%d", cfg.MetricsPort), mux, logger)
	})
	g.Go(func() error {
		return serveHTTP(ctx, "health", fmt.Sprintf(":%d", cfg.HealthPort), checker.Mux(), logger)
	})
	g.Go(func() error {
		return stopSignalHandler(ctx, cancel, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Graceful shutdown completed")
}

func registerChecks(checker *health.Checker, cfg Config, gwCfg wsgate.Config, cb *breaker.CircuitBreaker, server *tcp.Server) {
	checker.RegisterCritical("upstream", func(ctx context.Context) error {
		if state := cb.State(); state == breaker.StateOpen {
			return fmt.Errorf("circuit breaker is %s", state)
		}
		return nil
	})

	checker.Register("connections", func(ctx context.Context) error {
		if gwCfg.MaxConnections <= 0 {
			return nil
		}
		active := server.Active()
		if active*10 >= int64(gwCfg.MaxConnections)*9 {
			return fmt.Errorf("near connection limit: %d of %d", active, gwCfg.MaxConnections)
		}
		return nil
	})

	checker.Register("goroutines", func(ctx context.Context) error {
		if count := runtime.NumGoroutine(); count > cfg.MaxGoroutines {
			return fmt.Errorf("too many goroutines: %d > %d", count, cfg.MaxGoroutines)
		}
		return nil
	})
}

// setupLogger creates a structured logger with the specified level and format.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// serveHTTP runs an auxiliary HTTP server until ctx is cancelled.
func serveHTTP(ctx context.Context, name, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	})
	defer stop()

	logger.Info("Starting "+name+" server", slog.String("address", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}
