package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// Provider defines the interface for email delivery providers.
// Implementations handle provider-specific logic for delivering a single message.
type Provider interface {
	// Name returns the provider's unique name. It keys the provider's circuit breaker.
	Name() string

	// Deliver attempts to deliver one message. A nil error means the provider
	// accepted the message.
	Deliver(ctx context.Context, msg *Message) error

	// Healthy reports the provider's own view of its health. It is advisory only.
	Healthy() bool
}

// ProviderSettings represents configuration settings for email providers.
type ProviderSettings map[string]string

// Get retrieves a configuration value by key.
func (ps ProviderSettings) Get(key string) string {
	return ps[key]
}

// Set sets a configuration value.
func (ps ProviderSettings) Set(key, value string) {
	ps[key] = value
}

// Message is an email submitted for delivery.
type Message struct {
	ID        string    `json:"id"`        // Caller-assigned unique id
	To        string    `json:"to"`        // Recipient address
	From      string    `json:"from"`      // Sender address
	Subject   string    `json:"subject"`   // Email subject
	Body      string    `json:"body"`      // Plain text body
	CreatedAt time.Time `json:"timestamp"` // Creation time
}

// Status is the delivery state of a message.
type Status string

const (
	// StatusPending indicates the message is queued or on its first round.
	StatusPending Status = "pending"

	// StatusRetrying indicates at least one full provider rotation failed.
	StatusRetrying Status = "retrying"

	// StatusSent indicates a provider accepted the message.
	StatusSent Status = "sent"

	// StatusFailed indicates every retry round was exhausted.
	StatusFailed Status = "failed"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Terminal reports whether no further processing will happen for the status.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// DeliveryAttempt tracks the delivery history of one message id.
type DeliveryAttempt struct {
	ID          string    `json:"id"`
	Message     Message   `json:"email"`
	Status      Status    `json:"status"`
	Attempts    int       `json:"attempts"`
	LastAttempt time.Time `json:"lastAttempt"`
	Provider    string    `json:"provider,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Health tracks the outcome of the last delivery made by a provider.
// The zero value is healthy.
type Health struct {
	down atomic.Bool
}

// Record updates the health from a delivery result.
func (h *Health) Record(err error) {
	h.down.Store(err != nil)
}

// Healthy reports whether the last recorded delivery succeeded.
func (h *Health) Healthy() bool {
	return !h.down.Load()
}

// ValidationError represents a validation error with specific field information.
type ValidationError struct {
	// Field is the name of the field that failed validation.
	Field string

	// Message is the validation error message.
	Message string

	// Value is the invalid value (optional).
	Value interface{}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation error in %s: %s (value: %v)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// Is implements error matching for errors.Is.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// ProviderError represents an error from an email provider.
type ProviderError struct {
	// Provider is the name of the provider that generated the error.
	Provider string

	// Code is the provider-specific error code.
	Code string

	// Message is the error message from the provider.
	Message string

	// StatusCode is the HTTP status code (for HTTP-based providers).
	StatusCode int

	// IsRetryable indicates whether the error can be retried.
	IsRetryable bool

	// Cause is the underlying error that caused this provider error.
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s error [%s] (status: %d): %s",
			e.Provider, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s error [%s]: %s", e.Provider, e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for errors.Is.
func (e *ProviderError) Is(target error) bool {
	pe, ok := target.(*ProviderError)
	if !ok {
		return false
	}
	return e.Provider == pe.Provider && e.Code == pe.Code
}

// Retryable reports whether the provider considers the failure transient.
func (e *ProviderError) Retryable() bool {
	return e.IsRetryable
}

// NewProviderError creates a new provider error.
func NewProviderError(provider, code, message string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Code:     code,
		Message:  message,
	}
}

// WrapProviderError creates a retryable provider error around cause.
func WrapProviderError(provider, code string, cause error) *ProviderError {
	return &ProviderError{
		Provider:    provider,
		Code:        code,
		Message:     cause.Error(),
		IsRetryable: true,
		Cause:       cause,
	}
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewValidationErrorWithValue creates a new validation error with a value.
func NewValidationErrorWithValue(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// IsRetryable checks if an error is marked retryable by its provider.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.IsRetryable
	}
	return false
}
