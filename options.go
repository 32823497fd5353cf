package dispatcher

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Option is a functional option for configuring the dispatch service.
type Option func(*Config)

// WithProvider appends a provider to the rotation.
func WithProvider(providerType ProviderType, settings ProviderSettings) Option {
	return WithNamedProvider(providerType, "", settings)
}

// WithNamedProvider appends a provider with an explicit name. Use it to run
// two providers of the same type side by side.
func WithNamedProvider(providerType ProviderType, name string, settings ProviderSettings) Option {
	return func(c *Config) {
		c.Providers = append(c.Providers, ProviderConfig{
			Type:     providerType,
			Name:     name,
			Settings: settings,
		})
	}
}

// WithMockProvider appends a simulated provider.
func WithMockProvider(name string, failureRate float64, minLatency, maxLatency time.Duration) Option {
	return WithNamedProvider(ProviderMock, name, ProviderSettings{
		"failure_rate": strconv.FormatFloat(failureRate, 'f', -1, 64),
		"min_latency":  minLatency.String(),
		"max_latency":  maxLatency.String(),
	})
}

// WithRetry configures the number of retry rounds and the first backoff delay.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(c *Config) {
		c.Retry.MaxRetries = maxRetries
		c.Retry.BaseDelay = baseDelay
	}
}

// WithBackoff sets the backoff multiplier and an optional delay cap.
func WithBackoff(multiplier float64, maxDelay time.Duration) Option {
	return func(c *Config) {
		c.Retry.Multiplier = multiplier
		c.Retry.MaxDelay = maxDelay
	}
}

// WithJitter enables or disables jitter in retry delays.
func WithJitter(enabled bool) Option {
	return func(c *Config) {
		c.Retry.Jitter = enabled
	}
}

// WithRateLimit configures the global sliding window.
func WithRateLimit(maxRequests int, window time.Duration) Option {
	return func(c *Config) {
		c.RateLimit.MaxRequests = maxRequests
		c.RateLimit.Window = window
	}
}

// WithCircuitBreaker configures every provider's circuit breaker.
func WithCircuitBreaker(failureThreshold int, timeout time.Duration) Option {
	return func(c *Config) {
		c.CircuitBreaker.FailureThreshold = failureThreshold
		c.CircuitBreaker.Timeout = timeout
	}
}

// WithTracing enables tracing under the given instrumentation name.
func WithTracing(serviceName string) Option {
	return func(c *Config) {
		c.Monitoring.Tracing.Enabled = true
		c.Monitoring.Tracing.ServiceName = serviceName
	}
}

// WithoutTracing disables distributed tracing.
func WithoutTracing() Option {
	return func(c *Config) {
		c.Monitoring.Tracing.Enabled = false
	}
}

// WithMetrics configures metrics collection. A nil registerer keeps the
// collectors in a private registry.
func WithMetrics(namespace string, reg prometheus.Registerer) Option {
	return func(c *Config) {
		c.Monitoring.Metrics.Enabled = true
		c.Monitoring.Metrics.Namespace = namespace
		c.Monitoring.Metrics.Registerer = reg
	}
}

// WithoutMetrics disables metrics collection.
func WithoutMetrics() Option {
	return func(c *Config) {
		c.Monitoring.Metrics.Enabled = false
	}
}

// WithLogging configures logging.
func WithLogging(level, format, output string) Option {
	return func(c *Config) {
		c.Monitoring.Logging.Level = level
		c.Monitoring.Logging.Format = format
		c.Monitoring.Logging.Output = output
	}
}

// WithLogger uses logger instead of building one from the logging settings.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) {
		c.Monitoring.Logging.Logger = &logger
	}
}

// WithAWSSES appends an AWS SES provider.
func WithAWSSES(region string) Option {
	return WithProvider(ProviderAWSSES, ProviderSettings{
		"region": region,
	})
}

// WithAWSSESCredentials appends an AWS SES provider with explicit credentials.
func WithAWSSESCredentials(region, accessKey, secretKey string) Option {
	return WithProvider(ProviderAWSSES, ProviderSettings{
		"region":     region,
		"access_key": accessKey,
		"secret_key": secretKey,
	})
}

// WithSendGrid appends a SendGrid provider.
func WithSendGrid(apiKey string) Option {
	return WithProvider(ProviderSendGrid, ProviderSettings{
		"api_key": apiKey,
	})
}

// WithMailgun appends a Mailgun provider.
func WithMailgun(apiKey, domain string) Option {
	return WithProvider(ProviderMailgun, ProviderSettings{
		"api_key": apiKey,
		"domain":  domain,
	})
}

// WithMailgunEU appends a Mailgun provider using the EU region.
func WithMailgunEU(apiKey, domain string) Option {
	return WithProvider(ProviderMailgun, ProviderSettings{
		"api_key":  apiKey,
		"domain":   domain,
		"base_url": "https://api.eu.mailgun.net/v3",
	})
}

// WithSMTP appends an SMTP provider without authentication.
func WithSMTP(host, port string) Option {
	return WithProvider(ProviderSMTP, ProviderSettings{
		"host": host,
		"port": port,
	})
}

// WithSMTPAuth appends an SMTP provider with PLAIN authentication.
func WithSMTPAuth(host, port, username, password string) Option {
	return WithProvider(ProviderSMTP, ProviderSettings{
		"host":     host,
		"port":     port,
		"username": username,
		"password": password,
	})
}
