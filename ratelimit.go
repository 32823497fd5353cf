package dispatcher

import (
	"context"
	"sync"
	"time"
)

// RateLimiter bounds admissions to MaxRequests per sliding Window, shared by
// every provider.
type RateLimiter struct {
	config   RateLimitConfig
	requests []time.Time
	mutex    sync.Mutex
}

// NewRateLimiter creates a new rate limiter with the given configuration.
// Non-positive values fall back to the defaults.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	defaults := DefaultRateLimitConfig()
	if config.MaxRequests <= 0 {
		config.MaxRequests = defaults.MaxRequests
	}
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	return &RateLimiter{
		config:   config,
		requests: make([]time.Time, 0, config.MaxRequests),
	}
}

// Acquire blocks until an admission slot is free and then records the admission.
// It returns early only when ctx is done.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	for {
		wait, admitted := rl.tryAcquire()
		if admitted {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// Other admissions may have happened meanwhile, so check again.
		}
	}
}

// tryAcquire admits immediately when the window has room. Otherwise it returns
// how long until the oldest admission leaves the window.
func (rl *RateLimiter) tryAcquire() (time.Duration, bool) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()
	rl.prune(now)

	if len(rl.requests) < rl.config.MaxRequests {
		rl.requests = append(rl.requests, now)
		return 0, true
	}

	wait := rl.config.Window - now.Sub(rl.requests[0])
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

// Count prunes expired admissions and returns how many remain in the window.
func (rl *RateLimiter) Count() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.prune(time.Now())
	return len(rl.requests)
}

// prune drops admissions that are at least one window old. Callers hold the mutex.
func (rl *RateLimiter) prune(now time.Time) {
	keep := 0
	for keep < len(rl.requests) && now.Sub(rl.requests[keep]) >= rl.config.Window {
		keep++
	}
	if keep == 0 {
		return
	}
	n := copy(rl.requests, rl.requests[keep:])
	rl.requests = rl.requests[:n]
}
