package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
)

type countingTargetStore struct {
	calls   int32
	targets []*monitoring.Target
}

func (c *countingTargetStore) GetTarget(ctx context.Context, id string) (*monitoring.Target, error) {
	return nil, nil
}

func (c *countingTargetStore) ListActiveTargets(ctx context.Context) ([]*monitoring.Target, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.targets, nil
}

// TestCachedSnapshotServesFromCacheWithinTTL verifies a tick never round
// trips to the store while the cached snapshot is still fresh.
func TestCachedSnapshotServesFromCacheWithinTTL(t *testing.T) {
	store := &countingTargetStore{targets: []*monitoring.Target{{ID: "t1"}}}
	snap := NewCachedSnapshot(store, time.Hour)

	for i := 0; i < 5; i++ {
		got, err := snap.Snapshot(context.Background())
		require.NoError(t, err)
		assert.Len(t, got, 1)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&store.calls))
}

// TestCachedSnapshotReloadsAfterTTL verifies the cache refreshes once its
// TTL elapses rather than serving a stale active-target list forever.
func TestCachedSnapshotReloadsAfterTTL(t *testing.T) {
	store := &countingTargetStore{targets: []*monitoring.Target{{ID: "t1"}}}
	snap := NewCachedSnapshot(store, 10*time.Millisecond)

	_, err := snap.Snapshot(context.Background())
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	_, err = snap.Snapshot(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt32(&store.calls))
}

// TestCachedSnapshotInvalidateForcesReload verifies Invalidate drops the
// cached entry so the very next call re-reads the store, used when a Target
// edit or deactivation must take effect before the TTL would naturally
// expire it.
func TestCachedSnapshotInvalidateForcesReload(t *testing.T) {
	store := &countingTargetStore{targets: []*monitoring.Target{{ID: "t1"}}}
	snap := NewCachedSnapshot(store, time.Hour)

	_, err := snap.Snapshot(context.Background())
	require.NoError(t, err)
	snap.Invalidate()
	_, err = snap.Snapshot(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt32(&store.calls))
}
