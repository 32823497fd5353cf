// Package config loads the dispatcher binary's configuration from a YAML file
// and DISPATCHER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lattiq/dispatcher"
)

// EnvPrefix prefixes every environment override, e.g. DISPATCHER_SERVER_ADDR.
const EnvPrefix = "DISPATCHER"

// Config is the complete configuration of the dispatcher binary.
type Config struct {
	Server ServerConfig `mapstructure:"server"`

	dispatcher.Config `mapstructure:",squash"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// Load reads configuration from path, or searches ./configs and the working
// directory for dispatcher.yaml when path is empty. A missing file in search
// mode is not an error. Environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dispatcher")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if len(cfg.Providers) == 0 {
		cfg.Providers = DefaultProviders()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultProviders is the simulated provider pair used when none is configured.
func DefaultProviders() []dispatcher.ProviderConfig {
	return []dispatcher.ProviderConfig{
		{
			Type: dispatcher.ProviderMock,
			Name: "MockProvider1",
			Settings: dispatcher.ProviderSettings{
				"failure_rate": "0.3",
				"min_latency":  "100ms",
				"max_latency":  "300ms",
			},
		},
		{
			Type: dispatcher.ProviderMock,
			Name: "MockProvider2",
			Settings: dispatcher.ProviderSettings{
				"failure_rate": "0.2",
				"min_latency":  "150ms",
				"max_latency":  "400ms",
			},
		},
	}
}

func setDefaults(v *viper.Viper) {
	defaults := dispatcher.DefaultConfig()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("retry.max_retries", defaults.Retry.MaxRetries)
	v.SetDefault("retry.base_delay", defaults.Retry.BaseDelay)
	v.SetDefault("retry.multiplier", defaults.Retry.Multiplier)
	v.SetDefault("retry.max_delay", defaults.Retry.MaxDelay)
	v.SetDefault("retry.jitter", defaults.Retry.Jitter)

	v.SetDefault("rate_limit.max_requests", defaults.RateLimit.MaxRequests)
	v.SetDefault("rate_limit.window", defaults.RateLimit.Window)

	v.SetDefault("circuit_breaker.failure_threshold", defaults.CircuitBreaker.FailureThreshold)
	v.SetDefault("circuit_breaker.timeout", defaults.CircuitBreaker.Timeout)

	v.SetDefault("monitoring.tracing.enabled", defaults.Monitoring.Tracing.Enabled)
	v.SetDefault("monitoring.tracing.service_name", defaults.Monitoring.Tracing.ServiceName)
	v.SetDefault("monitoring.metrics.enabled", defaults.Monitoring.Metrics.Enabled)
	v.SetDefault("monitoring.metrics.namespace", defaults.Monitoring.Metrics.Namespace)
	v.SetDefault("monitoring.logging.level", defaults.Monitoring.Logging.Level)
	v.SetDefault("monitoring.logging.format", defaults.Monitoring.Logging.Format)
	v.SetDefault("monitoring.logging.output", defaults.Monitoring.Logging.Output)
}
