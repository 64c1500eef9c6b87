package scheduler

import (
	"context"
	"time"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
	"github.com/upweb-network/monitor-engine/infrastructure/cache"
	"github.com/upweb-network/monitor-engine/ports"
)

const snapshotKey = "active-targets"

// CachedSnapshot wraps a TargetStore with infrastructure/cache's versioned
// TTL store, so scheduler ticks read the store (and take its lock) at most
// once per TTL; every other tick is served from the cache (spec §5: "a
// versioned snapshot pattern avoids locking in the Scheduler hot path").
type CachedSnapshot struct {
	store ports.TargetStore
	cache *cache.Cache
	ttl   time.Duration
}

// NewCachedSnapshot builds a CachedSnapshot refreshing at most once per ttl
// (default 5s, well under the interval floor so deactivation still takes
// effect promptly per spec §8 scenario 6).
func NewCachedSnapshot(store ports.TargetStore, ttl time.Duration) *CachedSnapshot {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &CachedSnapshot{store: store, cache: cache.New(cache.Config{DefaultTTL: ttl}), ttl: ttl}
}

// Snapshot implements ports.TargetSnapshotSource.
func (c *CachedSnapshot) Snapshot(ctx context.Context) ([]*monitoring.Target, error) {
	if v, ok := c.cache.Get(snapshotKey); ok {
		return v.([]*monitoring.Target), nil
	}
	targets, err := c.store.ListActiveTargets(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Set(snapshotKey, targets, c.ttl)
	return targets, nil
}

// Invalidate drops the cached snapshot so the next tick re-reads the store
// immediately, used when an external collaborator signals a Target edit or
// deactivation.
func (c *CachedSnapshot) Invalidate() {
	c.cache.InvalidateAll()
}

var _ ports.TargetSnapshotSource = (*CachedSnapshot)(nil)
