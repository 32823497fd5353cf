package dispatcher

import (
	"errors"
	"fmt"
)

// Predefined sentinel errors for common cases.
var (
	// ErrCircuitOpen indicates the provider's circuit breaker rejected the call
	// without invoking the provider.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrRetriesExhausted indicates every retry round failed for a message.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrNoProviders indicates a service was built without any provider.
	ErrNoProviders = errors.New("no providers configured")

	// ErrInvalidConfiguration indicates invalid configuration.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrClosed indicates the service has been closed.
	ErrClosed = errors.New("dispatcher closed")
)

// PanicError is produced when a queued message's processing, or a provider's
// delivery call, panics.
type PanicError struct {
	// MessageID is the id of the message being processed.
	MessageID string

	// Provider is set when the panic came from a provider's Deliver.
	Provider string

	// Panic is the recovered value.
	Panic interface{}

	// Stack is the goroutine stack at the time of the panic.
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("provider %s panicked delivering message %s: %v", e.Provider, e.MessageID, e.Panic)
	}
	return fmt.Sprintf("panic while processing message %s: %v", e.MessageID, e.Panic)
}
