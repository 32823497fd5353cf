package dispatcher

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Delay(t *testing.T) {
	tests := []struct {
		name       string
		config     RetryConfig
		retryCount int
		want       time.Duration
	}{
		{"first round", RetryConfig{BaseDelay: time.Second, Multiplier: 2}, 0, time.Second},
		{"second round", RetryConfig{BaseDelay: time.Second, Multiplier: 2}, 1, 2 * time.Second},
		{"third round", RetryConfig{BaseDelay: time.Second, Multiplier: 2}, 2, 4 * time.Second},
		{"custom multiplier", RetryConfig{BaseDelay: 100 * time.Millisecond, Multiplier: 3}, 2, 900 * time.Millisecond},
		{"capped", RetryConfig{BaseDelay: time.Second, Multiplier: 2, MaxDelay: 3 * time.Second}, 5, 3 * time.Second},
		{"invalid multiplier falls back", RetryConfig{BaseDelay: time.Second, Multiplier: 0}, 1, 2 * time.Second},
		{"zero base", RetryConfig{Multiplier: 2}, 3, 0},
		{"cap holds past duration range", RetryConfig{BaseDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute}, 34, time.Minute},
		{"cap holds far past duration range", RetryConfig{BaseDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute}, 200, time.Minute},
		{"uncapped saturates", RetryConfig{BaseDelay: time.Second, Multiplier: 2}, 64, time.Duration(math.MaxInt64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewRetryPolicy(tt.config).Delay(tt.retryCount))
		})
	}
}

func TestRetryPolicy_Jitter(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{BaseDelay: time.Second, Multiplier: 2, Jitter: true})

	for i := 0; i < 20; i++ {
		d := p.Delay(0)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 1100*time.Millisecond)
	}
}

func TestRetryPolicy_DelayNeverNegative(t *testing.T) {
	for _, cfg := range []RetryConfig{
		{BaseDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute},
		{BaseDelay: time.Second, Multiplier: 2},
		{BaseDelay: time.Second, Multiplier: 2, Jitter: true},
	} {
		p := NewRetryPolicy(cfg)
		for retry := 0; retry < 100; retry++ {
			assert.Positive(t, p.Delay(retry), "retry %d", retry)
		}
	}
}

func TestRetryPolicy_Wait(t *testing.T) {
	p := NewRetryPolicy(DefaultRetryConfig())

	start := time.Now()
	assert.NoError(t, p.Wait(context.Background(), 30*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	assert.NoError(t, p.Wait(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Wait(ctx, time.Hour), context.Canceled)
}
