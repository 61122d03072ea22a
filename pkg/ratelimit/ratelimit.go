// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit limits how fast new connections are admitted, per client
// host and overall, using token buckets from golang.org/x/time/rate.
package ratelimit

import (
	"errors"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrRateLimitExceeded is returned when rate limit is exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// bucket is a per-host limiter with the time it last admitted or refused a
// connection. lastUsed is guarded by Limiter.mu.
type bucket struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

func newLimiter(r, burst int64) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(float64(r)), int(burst))
}

// Config holds limiter settings. A zero rate disables that bucket.
type Config struct {
	// PerHostRate is the number of connections per second admitted from one host.
	PerHostRate int64
	// PerHostBurst is the per-host bucket capacity. If 0, uses PerHostRate.
	PerHostBurst int64
	// GlobalRate is the number of connections per second admitted in total.
	GlobalRate int64
	// GlobalBurst is the global bucket capacity. If 0, uses GlobalRate.
	GlobalBurst int64
	// MaxHosts bounds the number of tracked hosts. If 0, uses 10000.
	MaxHosts int
	// IdleTTL drops buckets of hosts that have not connected for this long.
	// If 0, uses 5 minutes.
	IdleTTL time.Duration
}

// Limiter admits connections against a per-host and a global bucket.
type Limiter struct {
	mu           sync.Mutex
	config       Config
	hosts        map[string]*bucket
	global       *rate.Limiter
	cleanupTimer *time.Timer
	closed       bool
}

// NewLimiter creates a new connection limiter.
func NewLimiter(cfg Config) *Limiter {
	if cfg.PerHostBurst <= 0 {
		cfg.PerHostBurst = cfg.PerHostRate
	}
	if cfg.GlobalBurst <= 0 {
		cfg.GlobalBurst = cfg.GlobalRate
	}
	if cfg.MaxHosts <= 0 {
		cfg.MaxHosts = 10000
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 5 * time.Minute
	}

	l := &Limiter{
		config: cfg,
		hosts:  make(map[string]*bucket),
	}
	if cfg.GlobalRate > 0 {
		l.global = newLimiter(cfg.GlobalRate, cfg.GlobalBurst)
	}
	if cfg.PerHostRate > 0 {
		l.cleanupTimer = time.AfterFunc(cfg.IdleTTL, l.cleanup)
	}

	return l
}

// Allow admits a connection from addr, a host or host:port. It returns
// ErrRateLimitExceeded when either bucket is empty. A refused connection
// spends no token from either bucket.
func (l *Limiter) Allow(addr string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var b *bucket
	if l.config.PerHostRate > 0 {
		var ok bool
		if b, ok = l.hostBucket(Host(addr)); !ok {
			return ErrRateLimitExceeded
		}
		b.lastUsed = time.Now()
		// Allow calls are serialized by mu and tokens only accrue over time,
		// so a host with a token now still has one after the global check.
		if b.limiter.Tokens() < 1 {
			return ErrRateLimitExceeded
		}
	}
	if l.global != nil && !l.global.Allow() {
		return ErrRateLimitExceeded
	}
	if b != nil && !b.limiter.Allow() {
		return ErrRateLimitExceeded
	}
	return nil
}

// hostBucket returns the bucket of host, creating it if the table has room.
// Callers hold l.mu.
func (l *Limiter) hostBucket(host string) (*bucket, bool) {
	b, exists := l.hosts[host]
	if exists {
		return b, true
	}
	if len(l.hosts) >= l.config.MaxHosts {
		return nil, false
	}
	b = &bucket{limiter: newLimiter(l.config.PerHostRate, l.config.PerHostBurst)}
	l.hosts[host] = b
	return b, true
}

// cleanup removes buckets of idle hosts to prevent unbounded growth.
func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	cutoff := time.Now().Add(-l.config.IdleTTL)
	for host, b := range l.hosts {
		if b.lastUsed.Before(cutoff) {
			delete(l.hosts, host)
		}
	}

	l.cleanupTimer = time.AfterFunc(l.config.IdleTTL, l.cleanup)
}

// Hosts returns the number of tracked hosts.
func (l *Limiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hosts)
}

// Close stops the cleanup timer.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	if l.cleanupTimer != nil {
		l.cleanupTimer.Stop()
	}
}

// Host strips the port from addr if there is one.
func Host(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
