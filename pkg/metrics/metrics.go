// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Prometheus instrumentation for wsgate.
package metrics

import (
	"errors"
	"time"

	"github.com/absmach/wsgate/pkg/breaker"
	"github.com/absmach/wsgate/pkg/handshake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for a gateway.
type Metrics struct {
	// Connection metrics
	ActiveConnections  *prometheus.GaugeVec
	TotalConnections   *prometheus.CounterVec
	ConnectionDuration *prometheus.HistogramVec

	// Handshake metrics
	Handshakes *prometheus.CounterVec

	// Relay metrics
	RelayedBytes *prometheus.CounterVec

	// Upstream metrics
	DialErrors   *prometheus.CounterVec
	DialDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec

	// Rate limiter metrics
	RateLimitedConnections *prometheus.CounterVec
}

// New creates a new Metrics instance and registers it with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "wsgate"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ActiveConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_connections",
				Help:      "Number of currently active connections",
			},
			[]string{"mode"},
		),
		TotalConnections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_total",
				Help:      "Total number of connections",
			},
			[]string{"mode", "status"},
		),
		ConnectionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "connection_duration_seconds",
				Help:      "Connection duration in seconds",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 600, 3600},
			},
			[]string{"mode"},
		),
		Handshakes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handshakes_total",
				Help:      "Total number of WebSocket handshakes by response status",
			},
			[]string{"status", "reason"},
		),
		RelayedBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relayed_bytes_total",
				Help:      "Total number of bytes relayed",
			},
			[]string{"direction"},
		),
		DialErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_dial_errors_total",
				Help:      "Total number of failed upstream dials",
			},
			[]string{"upstream", "error_type"},
		),
		DialDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_dial_duration_seconds",
				Help:      "Upstream dial duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"upstream"},
		),
		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half_open, 2=open)",
			},
			[]string{"upstream"},
		),
		CircuitBreakerTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_trips_total",
				Help:      "Total number of circuit breaker trips",
			},
			[]string{"upstream"},
		),
		RateLimitedConnections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_connections_total",
				Help:      "Total number of connections refused by the rate limiter",
			},
			[]string{"mode"},
		),
	}
}

// ObserveAccept records the outcome of the accept gate. Accepted
// connections stay active until ObserveDisconnect.
func (m *Metrics) ObserveAccept(mode string, err error) {
	if err != nil {
		m.TotalConnections.WithLabelValues(mode, "refused").Inc()
		return
	}
	m.TotalConnections.WithLabelValues(mode, "accepted").Inc()
	m.ActiveConnections.WithLabelValues(mode).Inc()
}

// ObserveDisconnect records the end of an accepted connection.
func (m *Metrics) ObserveDisconnect(mode string, d time.Duration, upstream, downstream int64) {
	m.ActiveConnections.WithLabelValues(mode).Dec()
	m.ConnectionDuration.WithLabelValues(mode).Observe(d.Seconds())
	m.ObserveRelay(upstream, downstream)
}

// ObserveHandshake counts a handshake outcome.
func (m *Metrics) ObserveHandshake(res handshake.Result) {
	m.Handshakes.WithLabelValues(statusLabel(res.Status), ReasonLabel(res.Reason)).Inc()
}

// ObserveRelay adds relayed byte counts.
func (m *Metrics) ObserveRelay(upstream, downstream int64) {
	m.RelayedBytes.WithLabelValues("upstream").Add(float64(upstream))
	m.RelayedBytes.WithLabelValues("downstream").Add(float64(downstream))
}

// ObserveDial records an upstream dial.
func (m *Metrics) ObserveDial(upstream string, d time.Duration, err error) {
	m.DialDuration.WithLabelValues(upstream).Observe(d.Seconds())
	if err == nil {
		return
	}
	kind := "error"
	if errors.Is(err, breaker.ErrCircuitOpen) {
		kind = "circuit_open"
	}
	m.DialErrors.WithLabelValues(upstream, kind).Inc()
}

// ObserveBreaker wires breaker state changes into the breaker metrics.
func (m *Metrics) ObserveBreaker(upstream string, cb *breaker.CircuitBreaker) {
	m.CircuitBreakerState.WithLabelValues(upstream).Set(float64(cb.State()))
	cb.OnStateChange(func(from, to breaker.State) {
		m.CircuitBreakerState.WithLabelValues(upstream).Set(float64(to))
		if to == breaker.StateOpen {
			m.CircuitBreakerTrips.WithLabelValues(upstream).Inc()
		}
	})
}

func statusLabel(status int) string {
	switch status {
	case 101:
		return "101"
	case 400:
		return "400"
	case 404:
		return "404"
	default:
		return "other"
	}
}

// ReasonLabel maps a handshake rejection reason to a bounded label value.
func ReasonLabel(reason error) string {
	switch {
	case reason == nil:
		return "none"
	case errors.Is(reason, handshake.ErrNotWebSocket):
		return "not_websocket"
	case errors.Is(reason, handshake.ErrHeaderTooLarge):
		return "header_too_large"
	case errors.Is(reason, handshake.ErrMalformedRequestLine), errors.Is(reason, handshake.ErrMalformedHeader):
		return "malformed"
	case errors.Is(reason, handshake.ErrBadUpgrade):
		return "bad_upgrade"
	case errors.Is(reason, handshake.ErrBadConnection):
		return "bad_connection"
	case errors.Is(reason, handshake.ErrBadVersion):
		return "bad_version"
	case errors.Is(reason, handshake.ErrMissingChallenge), errors.Is(reason, handshake.ErrBadChallenge):
		return "bad_challenge"
	default:
		return "other"
	}
}
