// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package breaker guards the upstream dial with a circuit breaker so that a
// dead upstream costs each new client one fast failure instead of a full
// dial timeout.
package breaker

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration.
type Config struct {
	// MaxFailures is the number of consecutive failures before opening the circuit.
	MaxFailures int
	// ResetTimeout is how long to wait in Open state before transitioning to HalfOpen.
	ResetTimeout time.Duration
	// SuccessThreshold is the number of consecutive successes in HalfOpen before closing.
	SuccessThreshold int
	// HalfOpenProbes is the number of concurrent calls let through in HalfOpen.
	HalfOpenProbes int
}

// DialFunc opens a connection to the upstream.
type DialFunc func(ctx context.Context) (net.Conn, error)

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	mu              sync.Mutex
	config          Config
	state           State
	failures        int
	successes       int
	probes          int
	trips           uint64
	lastStateChange time.Time
	onStateChange   func(from, to State)
}

// New creates a new circuit breaker.
func New(config Config) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	if config.HalfOpenProbes <= 0 {
		config.HalfOpenProbes = 1
	}

	return &CircuitBreaker{
		config:          config,
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// Call executes fn if the circuit breaker allows it and records the outcome.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}

	err := fn()

	cb.after(err, err != nil)
	return err
}

// Dial opens an upstream connection through the breaker. Failures caused by
// cancellation of ctx are not counted against the upstream.
func (cb *CircuitBreaker) Dial(ctx context.Context, dial DialFunc) (net.Conn, error) {
	if err := cb.before(); err != nil {
		return nil, err
	}

	conn, err := dial(ctx)

	cb.after(err, err != nil && ctx.Err() == nil)
	return conn, err
}

// before checks if the call is allowed.
func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()

	var err error
	var change func()
	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastStateChange) < cb.config.ResetTimeout {
			err = ErrCircuitOpen
			break
		}
		change = cb.setState(StateHalfOpen)
		cb.probes++

	case StateHalfOpen:
		if cb.probes >= cb.config.HalfOpenProbes {
			err = ErrCircuitOpen
			break
		}
		cb.probes++
	}

	cb.mu.Unlock()
	if change != nil {
		change()
	}
	return err
}

// after records the result of the call. Neutral outcomes only release the probe slot.
func (cb *CircuitBreaker) after(err error, failed bool) {
	cb.mu.Lock()

	if cb.state == StateHalfOpen && cb.probes > 0 {
		cb.probes--
	}

	var change func()
	switch {
	case failed:
		change = cb.onFailure()
	case err == nil:
		change = cb.onSuccess()
	}

	cb.mu.Unlock()
	if change != nil {
		change()
	}
}

func (cb *CircuitBreaker) onFailure() func() {
	cb.failures++
	cb.successes = 0

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.MaxFailures {
			return cb.setState(StateOpen)
		}

	case StateHalfOpen:
		// Any failure in HalfOpen immediately opens the circuit
		return cb.setState(StateOpen)
	}
	return nil
}

func (cb *CircuitBreaker) onSuccess() func() {
	switch cb.state {
	case StateClosed:
		cb.failures = 0

	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			return cb.setState(StateClosed)
		}
	}
	return nil
}

// setState changes the state and returns the notification to run once the
// lock is released.
func (cb *CircuitBreaker) setState(newState State) func() {
	if cb.state == newState {
		return nil
	}

	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = time.Now()

	switch newState {
	case StateClosed:
		cb.failures = 0
		cb.successes = 0
	case StateHalfOpen:
		cb.successes = 0
		cb.probes = 0
	case StateOpen:
		cb.trips++
		cb.probes = 0
	}

	fn := cb.onStateChange
	if fn == nil {
		return nil
	}
	return func() { fn(oldState, newState) }
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// OnStateChange registers a callback for state changes. It runs on the
// goroutine whose call caused the transition.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Stats returns circuit breaker statistics.
func (cb *CircuitBreaker) Stats() (state State, failures int, trips uint64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state, cb.failures, cb.trips
}
