// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestLimiter_RefusalSpendsNoTokens(t *testing.T) {
	l := NewLimiter(Config{PerHostRate: 1, PerHostBurst: 1, GlobalRate: 1, GlobalBurst: 1})
	defer l.Close()

	if err := l.Allow("10.0.0.1:1"); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	// The global bucket is now empty.
	if err := l.Allow("10.0.0.2:1"); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("Allow() error = %v, want ErrRateLimitExceeded", err)
	}
	if got := l.hosts["10.0.0.2"].limiter.Tokens(); got < 1 {
		t.Errorf("host tokens after global refusal = %v, want >= 1", got)
	}
}

func TestLimiter_HostRefusalKeepsGlobalToken(t *testing.T) {
	l := NewLimiter(Config{PerHostRate: 1, PerHostBurst: 1, GlobalRate: 1, GlobalBurst: 2})
	defer l.Close()

	if err := l.Allow("10.0.0.1:1"); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if err := l.Allow("10.0.0.1:2"); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("Allow() error = %v, want ErrRateLimitExceeded", err)
	}
	if err := l.Allow("10.0.0.2:1"); err != nil {
		t.Errorf("Allow() other host error = %v, want the global token still available", err)
	}
}

func TestLimiter_PerHost(t *testing.T) {
	l := NewLimiter(Config{PerHostRate: 1, PerHostBurst: 2})
	defer l.Close()

	for i := 0; i < 2; i++ {
		if err := l.Allow("10.0.0.1:4000"); err != nil {
			t.Fatalf("Allow() #%d error = %v", i, err)
		}
	}

	// A different port from the same host shares the bucket.
	if err := l.Allow("10.0.0.1:4001"); !errors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("Allow() error = %v, want ErrRateLimitExceeded", err)
	}

	// Other hosts are unaffected.
	if err := l.Allow("10.0.0.2:4000"); err != nil {
		t.Errorf("Allow() other host error = %v", err)
	}
	if got := l.Hosts(); got != 2 {
		t.Errorf("Hosts() = %d, want 2", got)
	}
}

func TestLimiter_Global(t *testing.T) {
	l := NewLimiter(Config{GlobalRate: 1, GlobalBurst: 2})
	defer l.Close()

	addrs := []string{"10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1"}
	var refused int
	for _, a := range addrs {
		if err := l.Allow(a); err != nil {
			refused++
		}
	}
	if refused != 1 {
		t.Errorf("refused = %d, want 1", refused)
	}
	if l.Hosts() != 0 {
		t.Errorf("Hosts() = %d, want no per-host tracking", l.Hosts())
	}
}

func TestLimiter_MaxHosts(t *testing.T) {
	l := NewLimiter(Config{PerHostRate: 10, MaxHosts: 1})
	defer l.Close()

	if err := l.Allow("10.0.0.1:1"); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if err := l.Allow("10.0.0.2:1"); !errors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("Allow() beyond MaxHosts error = %v", err)
	}
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(Config{})
	defer l.Close()

	for i := 0; i < 100; i++ {
		if err := l.Allow("10.0.0.1:1"); err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
	}
}

func TestLimiter_CleanupDropsIdleHosts(t *testing.T) {
	l := NewLimiter(Config{PerHostRate: 10, IdleTTL: 20 * time.Millisecond})
	defer l.Close()

	l.Allow("10.0.0.1:1")
	time.Sleep(30 * time.Millisecond)
	l.cleanup()

	if got := l.Hosts(); got != 0 {
		t.Errorf("Hosts() = %d, want 0", got)
	}
}

func TestHost(t *testing.T) {
	tests := map[string]string{
		"10.0.0.1:4000":    "10.0.0.1",
		"[::1]:4000":       "::1",
		"example.com":      "example.com",
		"example.com:8080": "example.com",
	}
	for in, want := range tests {
		if got := Host(in); got != want {
			t.Errorf("Host(%q) = %q, want %q", in, got, want)
		}
	}
}
