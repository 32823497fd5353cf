package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	assert.Equal(t, 3, cb.config.FailureThreshold)
	assert.Equal(t, 60*time.Second, cb.config.Timeout)
	assert.Equal(t, CircuitBreakerClosed, cb.State())
	assert.Equal(t, 0, cb.FailureCount())
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
		assert.Equal(t, CircuitBreakerClosed, cb.State())
	}

	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, CircuitBreakerOpen, cb.State())
	assert.Equal(t, 3, cb.FailureCount())

	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "open breaker must not invoke the operation")
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, Timeout: time.Minute})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	require.Equal(t, 2, cb.FailureCount())

	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, 0, cb.FailureCount())

	// Failures are counted from zero again.
	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, CircuitBreakerClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbeSuccessCloses(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, Timeout: 50 * time.Millisecond})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.Equal(t, CircuitBreakerOpen, cb.State())

	time.Sleep(60 * time.Millisecond)

	var seen CircuitBreakerState
	err := cb.Execute(ctx, func(context.Context) error {
		seen = cb.State()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, CircuitBreakerHalfOpen, seen)
	assert.Equal(t, CircuitBreakerClosed, cb.State())
	assert.Equal(t, 0, cb.FailureCount())
}

func TestCircuitBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, Timeout: 50 * time.Millisecond})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	require.Equal(t, CircuitBreakerOpen, cb.State())

	time.Sleep(60 * time.Millisecond)

	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, CircuitBreakerOpen, cb.State())
	assert.Equal(t, 3, cb.FailureCount())

	// The failed probe restarted the timeout.
	assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen)
}

func TestCircuitBreaker_SingleProbe(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, Timeout: 20 * time.Millisecond})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	time.Sleep(30 * time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = cb.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen)

	close(release)
	wg.Wait()
	assert.Equal(t, CircuitBreakerClosed, cb.State())
}

func TestCircuitBreaker_PanicCountsAsFailure(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Minute})

	assert.Panics(t, func() {
		_ = cb.Execute(context.Background(), func(context.Context) error {
			panic("provider exploded")
		})
	})
	assert.Equal(t, CircuitBreakerOpen, cb.State())
}

func TestCircuitBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitBreakerClosed.String())
	assert.Equal(t, "open", CircuitBreakerOpen.String())
	assert.Equal(t, "half-open", CircuitBreakerHalfOpen.String())
	assert.Equal(t, "unknown", CircuitBreakerState(42).String())

	text, err := CircuitBreakerOpen.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "open", string(text))
}
