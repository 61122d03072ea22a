// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/absmach/wsgate"
	"github.com/absmach/wsgate/examples/simple"
	"github.com/absmach/wsgate/pkg/handler"
	"github.com/absmach/wsgate/pkg/proxy"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const envPrefix = "WSGATE_"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	logger := slog.New(logHandler)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		logger.Warn("no .env file found, using environment variables")
	}

	cfg, err := wsgate.NewConfig(env.Options{Prefix: envPrefix})
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := startGateway(ctx, g, cfg, simple.New(logger), logger); err != nil {
		logger.Error("gateway not started", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Signal handler
	g.Go(func() error {
		return StopSignalHandler(ctx, cancel, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("wsgate service terminated with error: %s", err))
	} else {
		logger.Info("wsgate service stopped")
	}
}

func startGateway(ctx context.Context, g *errgroup.Group, cfg wsgate.Config, h handler.Handler, logger *slog.Logger) error {
	pcfg := cfg.Proxy()
	pcfg.Logger = logger

	if !cfg.WebSocket {
		p, err := proxy.NewTCP(pcfg, h)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return p.Listen(ctx)
		})
		logger.Info("TCP gateway started", slog.String("prefix", envPrefix))
		return nil
	}

	p, err := proxy.NewWebSocket(pcfg, h)
	if err != nil {
		return err
	}
	g.Go(func() error {
		return p.Listen(ctx)
	})
	logger.Info("WebSocket gateway started",
		slog.String("prefix", envPrefix),
		slog.String("challenge_header", cfg.ChallengeHeader))
	return nil
}

func StopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-c:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
		return nil
	case <-ctx.Done():
		return nil
	}
}
