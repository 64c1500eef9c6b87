package pubsub

import (
	"context"
	"time"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
	"github.com/upweb-network/monitor-engine/ports"
)

// CachedCooldownStore layers CooldownCache ahead of an underlying
// ports.CooldownStore, so the Submission Gateway's hot-path cooldown check
// (spec §5) rarely round-trips to the database. A cache miss or cache error
// falls through to the underlying store; Upsert always writes through to
// both.
type CachedCooldownStore struct {
	store ports.CooldownStore
	cache *CooldownCache
}

func NewCachedCooldownStore(store ports.CooldownStore, cache *CooldownCache) *CachedCooldownStore {
	return &CachedCooldownStore{store: store, cache: cache}
}

func (c *CachedCooldownStore) Get(ctx context.Context, proberID, targetID string) (*monitoring.CooldownIndex, error) {
	if idx, ok, err := c.cache.Get(ctx, proberID, targetID); err == nil && ok {
		return idx, nil
	}
	return c.store.Get(ctx, proberID, targetID)
}

func (c *CachedCooldownStore) Upsert(ctx context.Context, proberID, targetID string, at time.Time) error {
	if err := c.store.Upsert(ctx, proberID, targetID, at); err != nil {
		return err
	}
	// Best-effort: a cache write failure just means the next Get falls
	// through to the store, not a lost submission.
	_ = c.cache.Set(ctx, proberID, targetID, at)
	return nil
}

func (c *CachedCooldownStore) ListEligibleTargetIDs(ctx context.Context, proberID string, allTargetIDs []string, cooldown time.Duration) ([]string, error) {
	return c.store.ListEligibleTargetIDs(ctx, proberID, allTargetIDs, cooldown)
}

var _ ports.CooldownStore = (*CachedCooldownStore)(nil)
