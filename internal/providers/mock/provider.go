// Package mock provides a simulated email provider with configurable latency
// and failure injection. It never touches the network.
package mock

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/lattiq/dispatcher/internal/core"
)

// DefaultName is the provider name used when none is configured.
const DefaultName = "mock"

// ErrSimulatedFailure is the cause of every injected delivery failure.
var ErrSimulatedFailure = errors.New("simulated delivery failure")

// Provider implements the core.Provider interface with simulated deliveries.
type Provider struct {
	name       string
	minLatency time.Duration
	maxLatency time.Duration

	mu          sync.RWMutex
	failureRate float64
	down        bool
	delivered   []core.Message
}

// New creates a mock provider. Each delivery sleeps for a random duration in
// [minLatency, maxLatency) and then fails with probability failureRate.
func New(name string, failureRate float64, minLatency, maxLatency time.Duration) *Provider {
	if name == "" {
		name = DefaultName
	}
	if maxLatency < minLatency {
		maxLatency = minLatency
	}
	return &Provider{
		name:        name,
		failureRate: failureRate,
		minLatency:  minLatency,
		maxLatency:  maxLatency,
	}
}

// Provider1 returns the first reference provider: 30% failures, 100-300ms latency.
func Provider1() *Provider {
	return New("MockProvider1", 0.3, 100*time.Millisecond, 300*time.Millisecond)
}

// Provider2 returns the second reference provider: 20% failures, 150-400ms latency.
func Provider2() *Provider {
	return New("MockProvider2", 0.2, 150*time.Millisecond, 400*time.Millisecond)
}

// NewProvider creates a mock provider from settings: failure_rate (0..1),
// min_latency and max_latency (Go durations) and down (bool).
func NewProvider(name string, settings core.ProviderSettings) (*Provider, error) {
	failureRate := 0.0
	if v := settings.Get("failure_rate"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil || rate < 0 || rate > 1 {
			return nil, core.NewValidationErrorWithValue("failure_rate", "failure rate must be a number between 0 and 1", v)
		}
		failureRate = rate
	}

	minLatency, err := parseDuration(settings, "min_latency")
	if err != nil {
		return nil, err
	}
	maxLatency, err := parseDuration(settings, "max_latency")
	if err != nil {
		return nil, err
	}
	if maxLatency < minLatency {
		return nil, core.NewValidationError("max_latency", "max latency must not be less than min latency")
	}

	p := New(name, failureRate, minLatency, maxLatency)
	if v := settings.Get("down"); v != "" {
		down, err := strconv.ParseBool(v)
		if err != nil {
			return nil, core.NewValidationErrorWithValue("down", "down must be a boolean", v)
		}
		p.SetDown(down)
	}
	return p, nil
}

func parseDuration(settings core.ProviderSettings, key string) (time.Duration, error) {
	v := settings.Get(key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, core.NewValidationErrorWithValue(key, "must be a non-negative duration", v)
	}
	return d, nil
}

// Deliver simulates network latency and then succeeds or fails.
func (p *Provider) Deliver(ctx context.Context, msg *core.Message) error {
	if err := p.sleep(ctx); err != nil {
		return core.WrapProviderError(p.name, "timeout", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.down || rand.Float64() < p.failureRate {
		return core.WrapProviderError(p.name, "send_failed", ErrSimulatedFailure)
	}
	p.delivered = append(p.delivered, *msg)
	return nil
}

func (p *Provider) sleep(ctx context.Context) error {
	latency := p.minLatency
	if spread := p.maxLatency - p.minLatency; spread > 0 {
		latency += time.Duration(rand.Int63n(int64(spread)))
	}
	if latency <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(latency)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return p.name
}

// Healthy reports false only while the provider is marked down.
func (p *Provider) Healthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.down
}

// SetDown forces every delivery to fail while down is true.
func (p *Provider) SetDown(down bool) {
	p.mu.Lock()
	p.down = down
	p.mu.Unlock()
}

// SetFailureRate changes the probability of an injected failure.
func (p *Provider) SetFailureRate(rate float64) {
	p.mu.Lock()
	p.failureRate = rate
	p.mu.Unlock()
}

// Delivered returns copies of the messages accepted so far, in order.
func (p *Provider) Delivered() []core.Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]core.Message(nil), p.delivered...)
}
