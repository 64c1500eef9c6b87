package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
)

func TestMemoryStoreListActiveTargetsFiltersInactive(t *testing.T) {
	store := NewMemoryStore()
	store.PutTarget(&monitoring.Target{ID: "t1", Active: true})
	store.PutTarget(&monitoring.Target{ID: "t2", Active: false})

	out, err := store.ListActiveTargets(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "t1", out[0].ID)
}

func TestMemoryStoreGetTargetNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.GetTarget(context.Background(), "missing")
	assert.Error(t, err)
}

func TestMemoryStoreOpenIncidentRejectsSecondOpen(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.OpenIncident(ctx, &monitoring.Incident{ID: "i1", TargetID: "t1", StartedAt: time.Now()}))
	err := store.OpenIncident(ctx, &monitoring.Incident{ID: "i2", TargetID: "t1", StartedAt: time.Now()})
	assert.Error(t, err)
}

func TestMemoryStoreResolveIncidentClearsOpenSlot(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.OpenIncident(ctx, &monitoring.Incident{ID: "i1", TargetID: "t1", StartedAt: time.Now()}))

	require.NoError(t, store.ResolveIncident(ctx, "i1", "check-2", time.Now()))

	open, err := store.GetOpenIncident(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, open)

	require.NoError(t, store.OpenIncident(ctx, &monitoring.Incident{ID: "i2", TargetID: "t1", StartedAt: time.Now()}))
}

func TestMemoryStoreCreditIdempotentOnlyCreditsOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	credited1, err := store.CreditIdempotent(ctx, "prober-1", "check-1", 5, time.Now())
	require.NoError(t, err)
	assert.True(t, credited1)

	credited2, err := store.CreditIdempotent(ctx, "prober-1", "check-1", 5, time.Now())
	require.NoError(t, err)
	assert.False(t, credited2)

	wallet, err := store.GetOrCreateWallet(ctx, "prober-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), wallet.Balance)
	assert.Len(t, wallet.Ledger, 1)
}

func TestMemoryStoreCooldownEligibility(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	cooldown := 5 * time.Minute

	eligible, err := store.ListEligibleTargetIDs(ctx, "prober-1", []string{"t1", "t2"}, cooldown)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1", "t2"}, eligible)

	require.NoError(t, store.Upsert(ctx, "prober-1", "t1", time.Now()))

	eligible, err = store.ListEligibleTargetIDs(ctx, "prober-1", []string{"t1", "t2"}, cooldown)
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, eligible)
}

func TestMemoryStoreLastTimestampTracksMostRecentPerRegion(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	require.NoError(t, store.CreateCheck(ctx, &monitoring.Check{ID: "c1", TargetID: "t1", Region: "us-east", Timestamp: older}))
	require.NoError(t, store.CreateCheck(ctx, &monitoring.Check{ID: "c2", TargetID: "t1", Region: "us-east", Timestamp: newer}))

	ts, found, err := store.LastTimestamp(ctx, "t1", "us-east")
	require.NoError(t, err)
	require.True(t, found)
	assert.WithinDuration(t, newer, ts, time.Millisecond)

	_, found, err = store.LastTimestamp(ctx, "t1", "eu-west")
	require.NoError(t, err)
	assert.False(t, found)
}
