package dispatcher

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Empty(t, cfg.Providers)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
	assert.Equal(t, 10, cfg.RateLimit.MaxRequests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 3, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.CircuitBreaker.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"unknown provider", func(c *Config) { c.Providers = []ProviderConfig{{Type: "carrier-pigeon"}} }, "providers.type"},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }, "retry.max_retries"},
		{"negative base delay", func(c *Config) { c.Retry.BaseDelay = -time.Second }, "retry.base_delay"},
		{"small multiplier", func(c *Config) { c.Retry.Multiplier = 0.5 }, "retry.multiplier"},
		{"zero max requests", func(c *Config) { c.RateLimit.MaxRequests = 0 }, "rate_limit.max_requests"},
		{"zero window", func(c *Config) { c.RateLimit.Window = 0 }, "rate_limit.window"},
		{"zero threshold", func(c *Config) { c.CircuitBreaker.FailureThreshold = 0 }, "circuit_breaker.failure_threshold"},
		{"zero timeout", func(c *Config) { c.CircuitBreaker.Timeout = 0 }, "circuit_breaker.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestProviderType_Valid(t *testing.T) {
	for _, pt := range []ProviderType{ProviderMock, ProviderAWSSES, ProviderSendGrid, ProviderMailgun, ProviderSMTP} {
		assert.True(t, pt.Valid(), pt.String())
	}
	assert.False(t, ProviderType("fax").Valid())
}

func TestOptions(t *testing.T) {
	reg := prometheus.NewRegistry()
	logger := zerolog.Nop()

	cfg := DefaultConfig()
	for _, opt := range []Option{
		WithRetry(5, 2*time.Second),
		WithBackoff(3, time.Minute),
		WithJitter(true),
		WithRateLimit(20, 30*time.Second),
		WithCircuitBreaker(4, 10*time.Second),
		WithTracing("svc"),
		WithMetrics("ns", reg),
		WithLogging("debug", "console", "stderr"),
		WithLogger(logger),
		WithSendGrid("key"),
		WithMailgunEU("key", "mg.example.com"),
		WithSMTPAuth("smtp.example.com", "587", "user", "pass"),
		WithMockProvider("mock-a", 0.25, 10*time.Millisecond, 20*time.Millisecond),
	} {
		opt(&cfg)
	}

	assert.Equal(t, RetryConfig{MaxRetries: 5, BaseDelay: 2 * time.Second, Multiplier: 3, MaxDelay: time.Minute, Jitter: true}, cfg.Retry)
	assert.Equal(t, RateLimitConfig{MaxRequests: 20, Window: 30 * time.Second}, cfg.RateLimit)
	assert.Equal(t, CircuitBreakerConfig{FailureThreshold: 4, Timeout: 10 * time.Second}, cfg.CircuitBreaker)
	assert.Equal(t, "svc", cfg.Monitoring.Tracing.ServiceName)
	assert.Equal(t, "ns", cfg.Monitoring.Metrics.Namespace)
	assert.Same(t, reg, cfg.Monitoring.Metrics.Registerer)
	assert.Equal(t, "debug", cfg.Monitoring.Logging.Level)
	assert.NotNil(t, cfg.Monitoring.Logging.Logger)

	require.Len(t, cfg.Providers, 4)
	assert.Equal(t, ProviderSendGrid, cfg.Providers[0].Type)
	assert.Equal(t, "https://api.eu.mailgun.net/v3", cfg.Providers[1].Settings.Get("base_url"))
	assert.Equal(t, "587", cfg.Providers[2].Settings.Get("port"))
	assert.Equal(t, "mock-a", cfg.Providers[3].Name)
	assert.Equal(t, "0.25", cfg.Providers[3].Settings.Get("failure_rate"))
	assert.Equal(t, "10ms", cfg.Providers[3].Settings.Get("min_latency"))

	assert.NoError(t, cfg.Validate())

	cfg2 := DefaultConfig()
	WithoutTracing()(&cfg2)
	WithoutMetrics()(&cfg2)
	assert.False(t, cfg2.Monitoring.Tracing.Enabled)
	assert.False(t, cfg2.Monitoring.Metrics.Enabled)
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(ProviderConfig{Type: ProviderMock, Name: "sim"})
	require.NoError(t, err)
	assert.Equal(t, "sim", p.Name())
	assert.True(t, p.Healthy())

	_, err = NewProvider(ProviderConfig{Type: "telegraph"})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = NewProvider(ProviderConfig{Type: ProviderSendGrid})
	assert.ErrorAs(t, err, &ve, "missing api key")
}
