package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CircuitBreakerState represents the state of a circuit breaker.
type CircuitBreakerState int

const (
	// CircuitBreakerClosed indicates the circuit breaker is closed (normal operation).
	CircuitBreakerClosed CircuitBreakerState = iota

	// CircuitBreakerOpen indicates the circuit breaker is open (blocking requests).
	CircuitBreakerOpen

	// CircuitBreakerHalfOpen indicates the circuit breaker is half-open (testing recovery).
	CircuitBreakerHalfOpen
)

// String returns the string representation of the circuit breaker state.
func (s CircuitBreakerState) String() string {
	switch s {
	case CircuitBreakerClosed:
		return "closed"
	case CircuitBreakerOpen:
		return "open"
	case CircuitBreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state as its string form.
func (s CircuitBreakerState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CircuitBreaker implements the circuit breaker pattern for a single provider.
//
// A closed breaker passes calls through and counts failures. Reaching the
// failure threshold opens it; an open breaker rejects calls with ErrCircuitOpen
// until Timeout has elapsed since the last failure, then lets exactly one probe
// through in the half-open state. A successful call always closes the breaker and
// zeroes the failure count. The count is not reset when the breaker opens, so a
// failed probe re-opens it immediately.
type CircuitBreaker struct {
	config       CircuitBreakerConfig
	state        CircuitBreakerState
	failureCount int
	lastFailTime time.Time
	probing      bool
	mutex        sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
// Non-positive values fall back to the defaults.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	defaults := DefaultCircuitBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	return &CircuitBreaker{
		config: config,
		state:  CircuitBreakerClosed,
	}
}

// Execute executes the given function with circuit breaker protection.
// The function's error is returned unchanged.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := cb.acquire()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.recordResult(probe, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	err = fn(ctx)

	cb.recordResult(probe, err)

	return err
}

// acquire decides whether a call may run and whether it is the half-open probe.
func (cb *CircuitBreaker) acquire() (bool, error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case CircuitBreakerOpen:
		if time.Since(cb.lastFailTime) < cb.config.Timeout {
			return false, ErrCircuitOpen
		}
		cb.state = CircuitBreakerHalfOpen
		cb.probing = true
		return true, nil
	case CircuitBreakerHalfOpen:
		if cb.probing {
			return false, ErrCircuitOpen
		}
		cb.probing = true
		return true, nil
	default:
		return false, nil
	}
}

// recordResult records the result of an operation.
func (cb *CircuitBreaker) recordResult(probe bool, err error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if probe {
		cb.probing = false
	}

	if err != nil {
		cb.failureCount++
		cb.lastFailTime = time.Now()

		if cb.failureCount >= cb.config.FailureThreshold {
			cb.state = CircuitBreakerOpen
		}
		return
	}

	cb.failureCount = 0
	cb.state = CircuitBreakerClosed
}

// State returns the current state of the circuit breaker.
// It does not advance an open breaker to half-open.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// FailureCount returns the current failure count.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.failureCount
}
