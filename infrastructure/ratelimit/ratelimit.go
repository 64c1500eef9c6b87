// Package ratelimit bounds per-prober submission throughput ahead of the
// cooldown check in the Ad-hoc Submission Gateway (spec §4.3), so a
// misbehaving prober can't flood the gateway with submissions that would
// all fail the cooldown check anyway.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config configures per-key rate limiting.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

func DefaultConfig() Config {
	return Config{RequestsPerSecond: 1, Burst: 3}
}

// PerKeyLimiter holds one token bucket per key (prober ID), created lazily.
type PerKeyLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	config   Config
}

func New(cfg Config) *PerKeyLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 3
	}
	return &PerKeyLimiter{limiters: make(map[string]*rate.Limiter), config: cfg}
}

func (p *PerKeyLimiter) limiterFor(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(p.config.RequestsPerSecond), p.config.Burst)
		p.limiters[key] = l
	}
	return l
}

// Allow reports whether key may act now, consuming a token if so.
func (p *PerKeyLimiter) Allow(key string) bool {
	return p.limiterFor(key).Allow()
}

// Forget drops the limiter for key, bounding memory for long-lived
// processes with a churning prober population.
func (p *PerKeyLimiter) Forget(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.limiters, key)
}
