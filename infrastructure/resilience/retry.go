// Package resilience provides fault tolerance patterns used by the
// Scheduler's store-unavailability backoff, the Notifier's delivery retry
// ladder, and the Submission Gateway's one-quick-retry rule (spec §4.2,
// §4.5, §7).
package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0-1, adds randomness
}

// DefaultRetryConfig returns the Scheduler's backoff shape: base 1s, cap 60s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  1 << 30, // effectively unbounded; caller supplies ctx cancellation
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// NotifierRetryConfig returns the Notifier's fixed ladder: 1s, 4s, 16s, 60s
// over at most 4 attempts (spec §4.5).
func NotifierRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  4,
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   4.0,
		Jitter:       0,
	}
}

// Retry executes fn with exponential backoff until it succeeds, ctx is
// cancelled, or MaxAttempts is exhausted.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt < cfg.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(addJitter(delay, cfg.Jitter)):
			}
			delay = nextDelay(delay, cfg)
		}
	}
	return lastErr
}

func nextDelay(current time.Duration, cfg RetryConfig) time.Duration {
	next := time.Duration(float64(current) * cfg.Multiplier)
	if next > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return next
}

func addJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	delta := float64(d) * jitter
	return d + time.Duration(rand.Float64()*delta*2-delta)
}
