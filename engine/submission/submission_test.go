package submission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
	"github.com/upweb-network/monitor-engine/engine/executor"
	engerrors "github.com/upweb-network/monitor-engine/infrastructure/errors"
	"github.com/upweb-network/monitor-engine/infrastructure/database"
	"github.com/upweb-network/monitor-engine/infrastructure/ratelimit"
)

type capturingSink struct{ checks []*monitoring.Check }

func (c *capturingSink) Submit(ctx context.Context, check *monitoring.Check) {
	c.checks = append(c.checks, check)
}

func newTestGateway(t *testing.T, cooldown time.Duration) (*Gateway, *database.MemoryStore, *capturingSink) {
	t.Helper()
	store := database.NewMemoryStore()
	store.PutTarget(&monitoring.Target{ID: "t1", Kind: monitoring.KindHTTP, Active: true})

	registry := executor.NewRegistry()
	registry.Register(monitoring.KindHTTP, stubExec{})

	sink := &capturingSink{}
	limiter := ratelimit.New(ratelimit.Config{RequestsPerSecond: 100, Burst: 100})
	gw := New(Config{Cooldown: cooldown}, store, store, registry, sink, limiter)
	return gw, store, sink
}

type stubExec struct{}

func (stubExec) Execute(ctx context.Context, target *monitoring.Target) executor.Outcome {
	return executor.Outcome{Success: true, StatusCode: 200, ResponseTimeMs: 10}
}

// TestCooldownEnforcement implements spec §8 scenario 2: a prober submits,
// then resubmits within the cooldown window and gets a Conflict; only one
// Check is ever persisted.
func TestCooldownEnforcement(t *testing.T) {
	gw, _, sink := newTestGateway(t, 300*time.Second)

	_, err := gw.SubmitProbe(context.Background(), "p1", "t1", "us-east", nil)
	require.NoError(t, err)

	_, err = gw.SubmitProbe(context.Background(), "p1", "t1", "us-east", nil)
	require.Error(t, err)
	assert.True(t, engerrors.IsConflict(err))

	assert.Len(t, sink.checks, 1)
}

func TestSubmitProbeRejectsInactiveTarget(t *testing.T) {
	gw, store, _ := newTestGateway(t, time.Minute)
	store.PutTarget(&monitoring.Target{ID: "t1", Kind: monitoring.KindHTTP, Active: false})

	_, err := gw.SubmitProbe(context.Background(), "p1", "t1", "us-east", nil)
	require.Error(t, err)
}

func TestListAvailableExcludesOnCooldown(t *testing.T) {
	gw, _, _ := newTestGateway(t, 300*time.Second)

	_, err := gw.SubmitProbe(context.Background(), "p1", "t1", "us-east", nil)
	require.NoError(t, err)

	available, err := gw.ListAvailable(context.Background(), "p1")
	require.NoError(t, err)
	assert.Empty(t, available)

	availableOther, err := gw.ListAvailable(context.Background(), "p2")
	require.NoError(t, err)
	assert.Len(t, availableOther, 1)
}

// TestManualProbeByOwnerIsPaid covers spec §6's "no payment if actor is
// admin" by implication: an owner-triggered ManualProbe carries the
// actor's ID as ProberID, so the Payment Dispatcher's IsSubmitted() gate
// treats it like any other submitted Check.
func TestManualProbeByOwnerIsPaid(t *testing.T) {
	gw, store, sink := newTestGateway(t, time.Minute)
	store.PutTarget(&monitoring.Target{ID: "t1", Kind: monitoring.KindHTTP, Active: true, OwnerID: "owner-1"})

	check, err := gw.ManualProbe(context.Background(), "t1", "owner-1", ActorOwner)
	require.NoError(t, err)
	require.Len(t, sink.checks, 1)
	assert.Equal(t, "owner-1", check.ProberID)
	assert.True(t, check.IsSubmitted())
}

// TestManualProbeByAdminSkipsPayment covers the other half: an
// admin-triggered probe leaves ProberID blank, so it is never paid.
func TestManualProbeByAdminSkipsPayment(t *testing.T) {
	gw, store, sink := newTestGateway(t, time.Minute)
	store.PutTarget(&monitoring.Target{ID: "t1", Kind: monitoring.KindHTTP, Active: true, OwnerID: "owner-1"})

	check, err := gw.ManualProbe(context.Background(), "t1", "admin-1", ActorAdmin)
	require.NoError(t, err)
	require.Len(t, sink.checks, 1)
	assert.Empty(t, check.ProberID)
	assert.False(t, check.IsSubmitted())
}

// TestManualProbeRejectsNonOwningOwner rejects an "owner" actor that isn't
// actually the target's owner, rather than silently treating them as an
// admin or letting them probe (and get paid for) someone else's target.
func TestManualProbeRejectsNonOwningOwner(t *testing.T) {
	gw, store, _ := newTestGateway(t, time.Minute)
	store.PutTarget(&monitoring.Target{ID: "t1", Kind: monitoring.KindHTTP, Active: true, OwnerID: "owner-1"})

	_, err := gw.ManualProbe(context.Background(), "t1", "someone-else", ActorOwner)
	require.Error(t, err)
	assert.Equal(t, engerrors.ErrCodeInvalid, engerrors.Code(err))
}

// TestManualProbeRejectsInactiveTarget matches SubmitProbe's own behavior:
// a deactivated target can't be probed through either entry point.
func TestManualProbeRejectsInactiveTarget(t *testing.T) {
	gw, store, _ := newTestGateway(t, time.Minute)
	store.PutTarget(&monitoring.Target{ID: "t1", Kind: monitoring.KindHTTP, Active: false, OwnerID: "owner-1"})

	_, err := gw.ManualProbe(context.Background(), "t1", "owner-1", ActorOwner)
	require.Error(t, err)
}

func TestParseLocationDetailsHandlesPartialPayload(t *testing.T) {
	loc := parseLocationDetails([]byte(`{"city":"Paris"}`))
	require.NotNil(t, loc)
	assert.Equal(t, "Paris", loc.City)
	assert.False(t, loc.HasCoords)
	assert.Equal(t, "Unknown", loc.Field(func(l monitoring.LocationInfo) string { return l.Country }))
}
