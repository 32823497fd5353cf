package dispatcher

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// maxDelayFloat is the largest float64 that converts to a time.Duration
// without overflowing.
var maxDelayFloat = math.Nextafter(float64(math.MaxInt64), 0)

// RetryPolicy computes and waits out the backoff between provider rotations.
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a new retry policy with the given configuration.
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	if config.Multiplier < 1.0 {
		config.Multiplier = DefaultRetryConfig().Multiplier
	}
	return &RetryPolicy{
		config: config,
	}
}

// MaxRetries returns how many rounds follow the first one.
func (r *RetryPolicy) MaxRetries() int {
	return r.config.MaxRetries
}

// Delay returns the wait after failed round retryCount (zero based):
// BaseDelay * Multiplier^retryCount, capped by MaxDelay when set.
func (r *RetryPolicy) Delay(retryCount int) time.Duration {
	// Clamp before converting: the product overflows time.Duration long
	// before float64 does.
	f := float64(r.config.BaseDelay) * math.Pow(r.config.Multiplier, float64(retryCount))
	if math.IsNaN(f) || f < 0 {
		f = 0
	}

	var delay time.Duration
	switch {
	case r.config.MaxDelay > 0 && f >= float64(r.config.MaxDelay):
		delay = r.config.MaxDelay
	case f >= maxDelayFloat:
		delay = time.Duration(math.MaxInt64)
	default:
		delay = time.Duration(f)
	}

	if r.config.Jitter {
		// Add up to 10% jitter using cryptographically secure random
		maxJitter := int64(float64(delay) * 0.1)
		if maxJitter > 0 && delay <= time.Duration(math.MaxInt64-maxJitter) {
			jitterBig, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
			if err == nil {
				delay += time.Duration(jitterBig.Int64())
			}
		}
	}

	return delay
}

// Wait sleeps for delay or until ctx is done.
func (r *RetryPolicy) Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
