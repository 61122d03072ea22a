// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// tcpPair returns both ends of a loopback TCP connection.
func tcpPair(t *testing.T) (*net.TCPConn, *net.TCPConn) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer l.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- conn
	}()

	dialed, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	conn, ok := <-accepted
	if !ok {
		t.Fatal("Failed to accept")
	}

	a, b := dialed.(*net.TCPConn), conn.(*net.TCPConn)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

type fixture struct {
	clientPeer   *net.TCPConn // the remote client
	client       *net.TCPConn // server side of the client connection
	upstream     *net.TCPConn // server side of the upstream connection
	upstreamPeer *net.TCPConn // the remote upstream
}

func newFixture(t *testing.T) fixture {
	var f fixture
	f.clientPeer, f.client = tcpPair(t)
	f.upstream, f.upstreamPeer = tcpPair(t)
	return f
}

type result struct {
	stats Stats
	err   error
}

func run(ctx context.Context, r *Relay, client, upstream net.Conn, initial []byte) <-chan result {
	done := make(chan result, 1)
	go func() {
		stats, err := r.Run(ctx, client, upstream, initial)
		done <- result{stats, err}
	}()
	return done
}

func wait(t *testing.T, done <-chan result) result {
	t.Helper()
	select {
	case res := <-done:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not finish")
		return result{}
	}
}

func testRelay(cfg Config) *Relay {
	cfg.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(cfg)
}

func TestDirection_String(t *testing.T) {
	tests := []struct {
		dir  Direction
		want string
	}{
		{ClientToUpstream, "upstream"},
		{UpstreamToClient, "downstream"},
		{Direction(7), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.dir.String(); got != tt.want {
			t.Errorf("Direction(%d).String() = %q, want %q", tt.dir, got, tt.want)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	r := New(Config{})
	if r.config.BufferSize != DefaultBufferSize {
		t.Errorf("BufferSize = %d, want %d", r.config.BufferSize, DefaultBufferSize)
	}
	if r.config.Logger == nil {
		t.Error("Expected default logger to be set")
	}
	buf := r.bufferPool.Get().(*[]byte)
	if len(*buf) != DefaultBufferSize {
		t.Errorf("pooled buffer size = %d", len(*buf))
	}
	r.bufferPool.Put(buf)
}

func TestRun_HalfClose(t *testing.T) {
	f := newFixture(t)
	done := run(context.Background(), testRelay(Config{BufferSize: 16}), f.client, f.upstream, []byte("early:"))

	request := []byte("a request that spans several small buffers")
	if _, err := f.clientPeer.Write(request); err != nil {
		t.Fatalf("client write: %v", err)
	}
	if err := f.clientPeer.CloseWrite(); err != nil {
		t.Fatalf("client CloseWrite: %v", err)
	}

	// Upstream sees the early bytes first, then the request, then EOF.
	got, err := io.ReadAll(f.upstreamPeer)
	if err != nil {
		t.Fatalf("upstream read: %v", err)
	}
	want := append([]byte("early:"), request...)
	if !bytes.Equal(got, want) {
		t.Errorf("upstream got %q, want %q", got, want)
	}

	// The other direction still works after the client half-closed.
	reply := []byte("the reply")
	if _, err := f.upstreamPeer.Write(reply); err != nil {
		t.Fatalf("upstream write: %v", err)
	}
	if err := f.upstreamPeer.CloseWrite(); err != nil {
		t.Fatalf("upstream CloseWrite: %v", err)
	}

	got, err = io.ReadAll(f.clientPeer)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if !bytes.Equal(got, reply) {
		t.Errorf("client got %q, want %q", got, reply)
	}

	res := wait(t, done)
	if res.err != nil {
		t.Errorf("Run() error = %v", res.err)
	}
	if res.stats.Upstream != int64(len(want)) {
		t.Errorf("Stats.Upstream = %d, want %d", res.stats.Upstream, len(want))
	}
	if res.stats.Downstream != int64(len(reply)) {
		t.Errorf("Stats.Downstream = %d, want %d", res.stats.Downstream, len(reply))
	}
}

func TestRun_LargeTransfer(t *testing.T) {
	f := newFixture(t)
	done := run(context.Background(), testRelay(Config{}), f.client, f.upstream, nil)

	payload := make([]byte, 1<<20)
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("rand: %v", err)
	}

	go func() {
		f.upstreamPeer.Write(payload)
		f.upstreamPeer.CloseWrite()
	}()

	got, err := io.ReadAll(f.clientPeer)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("client got %d bytes, want %d identical bytes", len(got), len(payload))
	}

	f.clientPeer.CloseWrite()
	if _, err := io.ReadAll(f.upstreamPeer); err != nil {
		t.Fatalf("upstream read: %v", err)
	}

	res := wait(t, done)
	if res.err != nil {
		t.Errorf("Run() error = %v", res.err)
	}
	if res.stats.Downstream != int64(len(payload)) {
		t.Errorf("Stats.Downstream = %d", res.stats.Downstream)
	}
}

func TestRun_ResetClosesBoth(t *testing.T) {
	f := newFixture(t)
	done := run(context.Background(), testRelay(Config{}), f.client, f.upstream, nil)

	// Abort the upstream so the relay sees a reset rather than EOF.
	f.upstreamPeer.SetLinger(0)
	f.upstreamPeer.Close()

	res := wait(t, done)
	if res.err == nil {
		t.Error("Run() expected error after upstream reset")
	}

	f.clientPeer.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := f.clientPeer.Read(make([]byte, 1)); err == nil {
		t.Error("client connection should be closed")
	}
}

func TestRun_ContextCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := run(ctx, testRelay(Config{}), f.client, f.upstream, nil)

	time.Sleep(50 * time.Millisecond)
	cancel()

	res := wait(t, done)
	if !errors.Is(res.err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", res.err)
	}
}

func TestRun_IdleTimeout(t *testing.T) {
	f := newFixture(t)
	done := run(context.Background(), testRelay(Config{IdleTimeout: 100 * time.Millisecond}), f.client, f.upstream, nil)

	res := wait(t, done)
	if !errors.Is(res.err, ErrIdleTimeout) {
		t.Errorf("Run() error = %v, want ErrIdleTimeout", res.err)
	}
}

func TestRun_IdleTimeoutOneWayTraffic(t *testing.T) {
	f := newFixture(t)
	done := run(context.Background(), testRelay(Config{IdleTimeout: 200 * time.Millisecond}), f.client, f.upstream, nil)

	// Only the upstream talks; the silent client direction must not time out.
	for i := 0; i < 6; i++ {
		if _, err := f.upstreamPeer.Write([]byte("tick")); err != nil {
			t.Fatalf("upstream write: %v", err)
		}
		buf := make([]byte, 4)
		if _, err := io.ReadFull(f.clientPeer, buf); err != nil {
			t.Fatalf("client read: %v", err)
		}
		time.Sleep(100 * time.Millisecond)
	}

	f.upstreamPeer.CloseWrite()
	f.clientPeer.CloseWrite()

	res := wait(t, done)
	if res.err != nil {
		t.Errorf("Run() error = %v", res.err)
	}
}

func TestRun_WithoutHalfClose(t *testing.T) {
	clientPeer, client := net.Pipe()
	upstream, upstreamPeer := net.Pipe()
	defer clientPeer.Close()
	defer upstreamPeer.Close()

	done := run(context.Background(), testRelay(Config{}), client, upstream, nil)

	go func() {
		clientPeer.Write([]byte("bye"))
		clientPeer.Close()
	}()

	got, err := io.ReadAll(upstreamPeer)
	if err != nil {
		t.Fatalf("upstream read: %v", err)
	}
	if string(got) != "bye" {
		t.Errorf("upstream got %q", got)
	}

	res := wait(t, done)
	if res.err != nil {
		t.Errorf("Run() error = %v", res.err)
	}
}
