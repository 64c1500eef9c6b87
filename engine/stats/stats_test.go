package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
	"github.com/upweb-network/monitor-engine/infrastructure/database"
)

func seedTarget(t *testing.T, store *database.MemoryStore, id string) {
	t.Helper()
	store.PutTarget(&monitoring.Target{ID: id, Active: true, Kind: monitoring.KindHTTP})
}

func TestGetTargetStatsComputesAggregates(t *testing.T) {
	store := database.NewMemoryStore()
	seedTarget(t, store, "t1")

	now := time.Now()
	checks := []*monitoring.Check{
		{ID: "c1", TargetID: "t1", Success: true, ResponseTimeMs: 100, Timestamp: now.Add(-3 * time.Hour)},
		{ID: "c2", TargetID: "t1", Success: true, ResponseTimeMs: 200, Timestamp: now.Add(-2 * time.Hour)},
		{ID: "c3", TargetID: "t1", Success: false, ResponseTimeMs: 50, Timestamp: now.Add(-1 * time.Hour)},
	}
	for _, c := range checks {
		require.NoError(t, store.CreateCheck(context.Background(), c))
	}

	view := New(store, store, store, store)
	result, err := view.GetTargetStats(context.Background(), "t1", 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalChecks)
	assert.InDelta(t, 66.66, result.UptimePct, 0.1)
	assert.Equal(t, int64(50), result.MinResponseTimeMs)
	assert.Equal(t, int64(200), result.MaxResponseTimeMs)
	assert.Equal(t, monitoring.StatusDown, result.CurrentStatus)
	require.Len(t, result.DayRollups, 1)
}

func TestGetTargetStatsUnknownStatusWithNoChecks(t *testing.T) {
	store := database.NewMemoryStore()
	seedTarget(t, store, "t1")

	view := New(store, store, store, store)
	result, err := view.GetTargetStats(context.Background(), "t1", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, monitoring.StatusUnknown, result.CurrentStatus)
	assert.Equal(t, 0, result.TotalChecks)
}

func TestGetTargetStatsIncludesOpenAndRecentResolvedIncidents(t *testing.T) {
	store := database.NewMemoryStore()
	seedTarget(t, store, "t1")

	require.NoError(t, store.OpenIncident(context.Background(), &monitoring.Incident{ID: "i1", TargetID: "t1", StartedAt: time.Now()}))

	view := New(store, store, store, store)
	result, err := view.GetTargetStats(context.Background(), "t1", time.Hour)
	require.NoError(t, err)

	require.Len(t, result.OpenIncidents, 1)
	assert.Equal(t, "i1", result.OpenIncidents[0].ID)
}

func TestRollupJobPrecomputesYesterday(t *testing.T) {
	store := database.NewMemoryStore()
	seedTarget(t, store, "t1")

	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	require.NoError(t, store.CreateCheck(context.Background(), &monitoring.Check{
		ID: "c1", TargetID: "t1", Success: true, ResponseTimeMs: 80,
		Timestamp: time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 12, 0, 0, 0, time.UTC),
	}))

	job := NewRollupJob(store, store, store, nil)
	job.RunNow()

	since := time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, time.UTC)
	rollups, err := store.ListRollups(context.Background(), "t1", since, since)
	require.NoError(t, err)
	require.Len(t, rollups, 1)
	assert.Equal(t, 1, rollups[0].TotalChecks)
	assert.Equal(t, float64(100), rollups[0].UptimePct)
}
