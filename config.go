package dispatcher

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Config holds the complete dispatcher configuration.
type Config struct {
	// Providers lists the delivery providers in rotation order.
	Providers []ProviderConfig `mapstructure:"providers"`

	// Retry contains retry policy configuration.
	Retry RetryConfig `mapstructure:"retry"`

	// RateLimit contains rate limiting configuration.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// CircuitBreaker contains the configuration applied to every provider's breaker.
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`

	// Monitoring contains observability configuration.
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ProviderConfig describes one provider to build.
type ProviderConfig struct {
	// Type specifies which provider implementation to use.
	Type ProviderType `mapstructure:"type"`

	// Name overrides the provider's default name. Names must be unique.
	Name string `mapstructure:"name"`

	// Settings contains provider specific settings (api keys, regions, hosts).
	Settings ProviderSettings `mapstructure:"settings"`
}

// ProviderType represents the type of email provider.
type ProviderType string

const (
	// ProviderMock represents an in-process simulated provider.
	ProviderMock ProviderType = "mock"

	// ProviderAWSSES represents Amazon Simple Email Service.
	ProviderAWSSES ProviderType = "aws_ses"

	// ProviderSendGrid represents the SendGrid email service.
	ProviderSendGrid ProviderType = "sendgrid"

	// ProviderMailgun represents the Mailgun email service.
	ProviderMailgun ProviderType = "mailgun"

	// ProviderSMTP represents a generic SMTP server.
	ProviderSMTP ProviderType = "smtp"
)

// String returns the string representation of the provider type.
func (pt ProviderType) String() string {
	return string(pt)
}

// Valid checks if the provider type is supported.
func (pt ProviderType) Valid() bool {
	switch pt {
	case ProviderMock, ProviderAWSSES, ProviderSendGrid, ProviderMailgun, ProviderSMTP:
		return true
	default:
		return false
	}
}

// RetryConfig contains retry policy configuration.
type RetryConfig struct {
	// MaxRetries is the number of extra rounds after the first full provider rotation.
	MaxRetries int `mapstructure:"max_retries"`

	// BaseDelay is the wait after the first failed round.
	BaseDelay time.Duration `mapstructure:"base_delay"`

	// Multiplier is the backoff multiplier between rounds.
	Multiplier float64 `mapstructure:"multiplier"`

	// MaxDelay caps the wait between rounds. Zero means uncapped.
	MaxDelay time.Duration `mapstructure:"max_delay"`

	// Jitter indicates whether up to 10% random jitter is added to delays.
	Jitter bool `mapstructure:"jitter"`
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	// MaxRequests is the number of admissions allowed per window.
	MaxRequests int `mapstructure:"max_requests"`

	// Window is the length of the sliding window.
	Window time.Duration `mapstructure:"window"`
}

// CircuitBreakerConfig contains circuit breaker configuration.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of failures that opens the circuit.
	FailureThreshold int `mapstructure:"failure_threshold"`

	// Timeout is how long an open circuit waits after the last failure before
	// letting a probe through.
	Timeout time.Duration `mapstructure:"timeout"`
}

// MonitoringConfig contains observability configuration.
type MonitoringConfig struct {
	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Logging contains logging configuration.
	Logging LoggingConfig `mapstructure:"logging"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled indicates whether spans are recorded.
	Enabled bool `mapstructure:"enabled"`

	// ServiceName is the instrumentation name used for the tracer.
	ServiceName string `mapstructure:"service_name"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled indicates whether metrics collection is enabled.
	Enabled bool `mapstructure:"enabled"`

	// Namespace is the metrics namespace/prefix.
	Namespace string `mapstructure:"namespace"`

	// Registerer receives the collectors. A private registry is used when nil.
	Registerer prometheus.Registerer `mapstructure:"-"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error).
	Level string `mapstructure:"level"`

	// Format is the log format (json, console).
	Format string `mapstructure:"format"`

	// Output is where to write logs (stdout, stderr, or file path).
	Output string `mapstructure:"output"`

	// Logger overrides the logger built from the fields above.
	Logger *zerolog.Logger `mapstructure:"-"`
}

// DefaultConfig returns a configuration with the documented defaults.
// It has no providers; add them with WithProvider or pass them to New.
func DefaultConfig() Config {
	return Config{
		Retry:          DefaultRetryConfig(),
		RateLimit:      DefaultRateLimitConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		Monitoring: MonitoringConfig{
			Tracing: TracingConfig{
				Enabled:     true,
				ServiceName: "github.com/lattiq/dispatcher",
			},
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "dispatcher",
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
		},
	}
}

// DefaultRetryConfig returns default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Multiplier: 2.0,
	}
}

// DefaultRateLimitConfig returns default rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxRequests: 10,
		Window:      time.Minute,
	}
}

// DefaultCircuitBreakerConfig returns default circuit breaker configuration.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 3,
		Timeout:          60 * time.Second,
	}
}

// Validate checks if the configuration is valid and complete.
func (c *Config) Validate() error {
	for i, p := range c.Providers {
		if !p.Type.Valid() {
			return NewValidationErrorWithValue("providers.type", "invalid or unsupported provider type at index "+strconv.Itoa(i), string(p.Type))
		}
	}

	if c.Retry.MaxRetries < 0 {
		return NewValidationError("retry.max_retries", "max retries must not be negative")
	}
	if c.Retry.BaseDelay < 0 {
		return NewValidationError("retry.base_delay", "base delay must not be negative")
	}
	if c.Retry.Multiplier < 1.0 {
		return NewValidationError("retry.multiplier", "multiplier must be at least 1.0")
	}

	if c.RateLimit.MaxRequests <= 0 {
		return NewValidationError("rate_limit.max_requests", "max requests must be greater than 0")
	}
	if c.RateLimit.Window <= 0 {
		return NewValidationError("rate_limit.window", "window must be greater than 0")
	}

	if c.CircuitBreaker.FailureThreshold <= 0 {
		return NewValidationError("circuit_breaker.failure_threshold", "failure threshold must be greater than 0")
	}
	if c.CircuitBreaker.Timeout <= 0 {
		return NewValidationError("circuit_breaker.timeout", "timeout must be greater than 0")
	}

	return nil
}
