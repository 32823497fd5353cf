package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Service implements the Dispatcher interface. Submitted messages are queued
// and delivered one at a time by a background consumer that rotates through
// the providers, each behind its own circuit breaker, under a global rate limit.
// All methods are safe for concurrent use.
type Service struct {
	config      Config
	providers   []Provider
	breakers    map[string]*CircuitBreaker
	rateLimiter *RateLimiter
	retry       *RetryPolicy
	queue       *DeliveryQueue
	metrics     *serviceMetrics
	logger      zerolog.Logger
	logFile     io.Closer
	closeLog    sync.Once
	tracer      trace.Tracer

	mu       sync.RWMutex
	attempts map[string]*DeliveryAttempt
	sticky   int
	closed   bool
}

var _ Dispatcher = (*Service)(nil)

// New creates a new dispatch service. When providers is empty they are built
// from config.Providers. Provider order is the rotation order.
func New(config Config, providers []Provider, opts ...Option) (*Service, error) {
	for _, opt := range opts {
		opt(&config)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if len(providers) == 0 {
		built, err := NewProviders(config)
		if err != nil {
			return nil, fmt.Errorf("failed to create providers: %w", err)
		}
		providers = built
	}
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}

	breakers := make(map[string]*CircuitBreaker, len(providers))
	for _, p := range providers {
		if p == nil {
			return nil, NewValidationError("providers", "provider must not be nil")
		}
		if _, dup := breakers[p.Name()]; dup {
			return nil, NewValidationErrorWithValue("providers.name", "duplicate provider name", p.Name())
		}
		breakers[p.Name()] = NewCircuitBreaker(config.CircuitBreaker)
	}

	logger, logFile, err := newLogger(config.Monitoring.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	s := &Service{
		config:      config,
		providers:   append([]Provider(nil), providers...),
		breakers:    breakers,
		rateLimiter: NewRateLimiter(config.RateLimit),
		retry:       NewRetryPolicy(config.Retry),
		logger:      logger.With().Str("component", "dispatcher").Logger(),
		logFile:     logFile,
		tracer:      newTracer(config.Monitoring.Tracing),
		attempts:    make(map[string]*DeliveryAttempt),
	}
	s.queue = NewDeliveryQueue(context.Background(), s.process, logger)

	s.metrics, err = newServiceMetrics(config.Monitoring.Metrics, s.queue.Size, s.rateLimiter.Count)
	if err != nil {
		s.closeLogFile()
		return nil, err
	}
	for _, p := range s.providers {
		s.metrics.observeCircuit(p.Name(), CircuitBreakerClosed)
	}

	return s, nil
}

func newTracer(config TracingConfig) trace.Tracer {
	if !config.Enabled {
		return noop.NewTracerProvider().Tracer("")
	}
	name := config.ServiceName
	if name == "" {
		name = "github.com/lattiq/dispatcher"
	}
	return otel.Tracer(name)
}

// Submit records a pending attempt for msg and queues it for delivery.
// A message whose id was already sent is not queued again; its existing
// record is returned instead.
func (s *Service) Submit(ctx context.Context, msg *Message) (DeliveryAttempt, error) {
	_, span := s.tracer.Start(ctx, "dispatcher.Service.Submit")
	defer span.End()

	if msg == nil || msg.ID == "" {
		err := NewValidationError("id", "message id is required")
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid message")
		return DeliveryAttempt{}, err
	}
	span.SetAttributes(attribute.String("dispatcher.message_id", msg.ID))

	queued := *msg
	if queued.CreatedAt.IsZero() {
		queued.CreatedAt = time.Now()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		span.RecordError(ErrClosed)
		span.SetStatus(codes.Error, ErrClosed.Error())
		return DeliveryAttempt{}, ErrClosed
	}

	if existing, ok := s.attempts[msg.ID]; ok && existing.Status == StatusSent {
		snapshot := *existing
		s.mu.Unlock()
		s.logger.Info().Str("message_id", msg.ID).Msg("message already sent, skipping")
		span.SetAttributes(attribute.Bool("dispatcher.duplicate", true))
		span.SetStatus(codes.Ok, "already sent")
		return snapshot, nil
	}

	attempt := &DeliveryAttempt{
		ID:          msg.ID,
		Message:     queued,
		Status:      StatusPending,
		Attempts:    0,
		LastAttempt: time.Now(),
	}
	s.attempts[msg.ID] = attempt
	snapshot := *attempt
	s.queue.Enqueue(&queued)
	s.mu.Unlock()

	s.metrics.observeSubmit()
	span.SetStatus(codes.Ok, "queued")
	return snapshot, nil
}

// process delivers one dequeued message. It runs on the queue consumer only.
func (s *Service) process(ctx context.Context, msg *Message) error {
	ctx, span := s.tracer.Start(ctx, "dispatcher.Service.process",
		trace.WithAttributes(attribute.String("dispatcher.message_id", msg.ID)))
	defer span.End()

	if s.isSent(msg.ID) {
		s.logger.Info().Str("message_id", msg.ID).Msg("message already sent, skipping")
		span.SetStatus(codes.Ok, "already sent")
		return nil
	}

	if err := s.rateLimiter.Acquire(ctx); err != nil {
		s.markFailed(msg.ID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limit wait aborted")
		return fmt.Errorf("failed to acquire rate limit slot: %w", err)
	}

	maxRetries := s.retry.MaxRetries()
	var lastErr error

	for retryCount := 0; retryCount <= maxRetries; retryCount++ {
		start := s.beginRound(msg.ID, retryCount)

		for i := 0; i < len(s.providers); i++ {
			idx := (start + i) % len(s.providers)
			provider := s.providers[idx]

			s.logger.Info().
				Str("message_id", msg.ID).
				Str("provider", provider.Name()).
				Int("attempt", retryCount+1).
				Msg("attempting delivery")

			err := s.deliver(ctx, provider, msg, retryCount+1)
			if err == nil {
				s.markSent(msg.ID, provider.Name(), idx)
				s.logger.Info().
					Str("message_id", msg.ID).
					Str("provider", provider.Name()).
					Msg("message sent")
				span.SetAttributes(attribute.String("dispatcher.provider", provider.Name()))
				span.SetStatus(codes.Ok, "sent")
				return nil
			}

			lastErr = err
			s.logger.Warn().
				Err(err).
				Str("message_id", msg.ID).
				Str("provider", provider.Name()).
				Bool("retryable", IsRetryable(err)).
				Msg("provider failed")
		}

		if retryCount < maxRetries {
			delay := s.retry.Delay(retryCount)
			s.logger.Info().
				Str("message_id", msg.ID).
				Dur("delay", delay).
				Int("next_attempt", retryCount+2).
				Msg("all providers failed, waiting before retry")

			if err := s.retry.Wait(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}
	}

	s.markFailed(msg.ID, lastErr)
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "retries exhausted")
	return fmt.Errorf("%w: message %s after %d attempts: %v", ErrRetriesExhausted, msg.ID, maxRetries+1, lastErr)
}

func (s *Service) deliver(ctx context.Context, provider Provider, msg *Message, attempt int) error {
	ctx, span := s.tracer.Start(ctx, "dispatcher.Service.deliver",
		trace.WithAttributes(
			attribute.String("dispatcher.provider", provider.Name()),
			attribute.Int("dispatcher.attempt", attempt),
		))
	defer span.End()

	breaker := s.breakers[provider.Name()]
	started := time.Now()
	err := s.execute(ctx, breaker, provider, msg)
	s.metrics.observeDelivery(provider.Name(), started, err)
	s.metrics.observeCircuit(provider.Name(), breaker.State())

	switch {
	case errors.Is(err, ErrCircuitOpen):
		span.SetStatus(codes.Error, "circuit open")
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
	default:
		span.SetStatus(codes.Ok, "delivered")
	}
	return err
}

// execute runs one breaker-guarded delivery. A panicking provider has already
// been counted as a failure by the breaker; it is turned into a PanicError so
// the rotation moves on to the next provider.
func (s *Service) execute(ctx context.Context, breaker *CircuitBreaker, provider Provider, msg *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := make([]byte, 64<<10)
			stack = stack[:runtime.Stack(stack, false)]
			err = &PanicError{MessageID: msg.ID, Provider: provider.Name(), Panic: r, Stack: stack}
		}
	}()

	return breaker.Execute(ctx, func(ctx context.Context) error {
		return provider.Deliver(ctx, msg)
	})
}

func (s *Service) isSent(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[id]
	return ok && a.Status == StatusSent
}

// beginRound stamps the record for a new rotation and returns the sticky index.
func (s *Service) beginRound(id string, retryCount int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.attempts[id]; ok {
		if retryCount > 0 {
			a.Status = StatusRetrying
		} else {
			a.Status = StatusPending
		}
		a.Attempts = retryCount + 1
		a.LastAttempt = time.Now()
	}
	return s.sticky
}

func (s *Service) markSent(id, provider string, idx int) {
	s.mu.Lock()
	if a, ok := s.attempts[id]; ok {
		a.Status = StatusSent
		a.Provider = provider
	}
	s.sticky = idx
	s.mu.Unlock()

	s.metrics.observeOutcome(StatusSent)
}

func (s *Service) markFailed(id string, err error) {
	text := "unknown error"
	if err != nil {
		text = err.Error()
	}

	s.mu.Lock()
	if a, ok := s.attempts[id]; ok {
		a.Status = StatusFailed
		a.Error = text
	}
	s.mu.Unlock()

	s.metrics.observeOutcome(StatusFailed)
}

// Status returns a snapshot of the attempt record for id.
func (s *Service) Status(id string) (DeliveryAttempt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attempts[id]
	if !ok {
		return DeliveryAttempt{}, false
	}
	return *a, true
}

// ProviderStats reports each provider in rotation order.
func (s *Service) ProviderStats() []ProviderStat {
	stats := make([]ProviderStat, 0, len(s.providers))
	for _, p := range s.providers {
		stats = append(stats, ProviderStat{
			Name:         p.Name(),
			Healthy:      p.Healthy(),
			CircuitState: s.breakers[p.Name()].State(),
		})
	}
	return stats
}

// RateLimitStats reports admissions in the current window and the queue depth.
func (s *Service) RateLimitStats() RateLimitStat {
	return RateLimitStat{
		RequestCount: s.rateLimiter.Count(),
		QueueSize:    s.queue.Size(),
	}
}

// Close stops accepting submissions and waits until every queued message has
// been processed or ctx is done, then closes the log file the service opened,
// if any. Calling Close more than once is safe.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	err := s.queue.Wait(ctx)
	if err != nil {
		err = fmt.Errorf("failed to drain delivery queue: %w", err)
	}
	return errors.Join(err, s.closeLogFile())
}

func (s *Service) closeLogFile() error {
	var err error
	s.closeLog.Do(func() {
		if s.logFile != nil {
			err = s.logFile.Close()
		}
	})
	return err
}
