package dispatcher

import (
	"context"

	"github.com/lattiq/dispatcher/internal/core"
	"github.com/lattiq/dispatcher/internal/providers"
)

// Public interfaces for the dispatcher library
type (
	// Dispatcher accepts messages for asynchronous delivery and reports on them.
	// All methods are safe for concurrent use.
	Dispatcher interface {
		// Submit records a pending delivery attempt and queues the message.
		// Submitting an id that was already sent returns the existing record
		// without queueing anything.
		Submit(ctx context.Context, msg *Message) (DeliveryAttempt, error)

		// Status returns a snapshot of the attempt record for id.
		Status(id string) (DeliveryAttempt, bool)

		// ProviderStats reports each provider's health and circuit state.
		ProviderStats() []ProviderStat

		// RateLimitStats reports the admitted count and queue depth.
		RateLimitStats() RateLimitStat

		// Close stops accepting submissions and waits for queued messages to finish.
		Close(ctx context.Context) error
	}
)

// Type aliases to re-export core types for the public API.
type (
	Provider         = core.Provider
	ProviderSettings = core.ProviderSettings
	Message          = core.Message
	Status           = core.Status
	DeliveryAttempt  = core.DeliveryAttempt
	ValidationError  = core.ValidationError
	ProviderError    = core.ProviderError
)

// Status constants
const (
	StatusPending  = core.StatusPending
	StatusRetrying = core.StatusRetrying
	StatusSent     = core.StatusSent
	StatusFailed   = core.StatusFailed
)

// Error constructor functions
var (
	NewValidationError          = core.NewValidationError
	NewValidationErrorWithValue = core.NewValidationErrorWithValue
	NewProviderError            = core.NewProviderError
	IsRetryable                 = core.IsRetryable
)

// ProviderStat is a read-only snapshot of one provider.
type ProviderStat struct {
	Name         string              `json:"name"`
	Healthy      bool                `json:"healthy"`
	CircuitState CircuitBreakerState `json:"circuitState"`
}

// RateLimitStat is a snapshot of the global admission state.
type RateLimitStat struct {
	RequestCount int `json:"requestCount"`
	QueueSize    int `json:"queueSize"`
}

// NewProvider builds a provider from its configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	if !cfg.Type.Valid() {
		return nil, NewValidationErrorWithValue("providers.type", "invalid or unsupported provider type", string(cfg.Type))
	}
	settings := cfg.Settings
	if settings == nil {
		settings = ProviderSettings{}
	}
	return providers.New(cfg.Type.String(), cfg.Name, settings)
}

// NewProviders builds every provider in cfg.Providers, in order.
func NewProviders(cfg Config) ([]Provider, error) {
	built := make([]Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		p, err := NewProvider(pc)
		if err != nil {
			return nil, err
		}
		built = append(built, p)
	}
	return built, nil
}
