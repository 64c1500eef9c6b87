package processor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
	"github.com/upweb-network/monitor-engine/infrastructure/database"
	"github.com/upweb-network/monitor-engine/infrastructure/logging"
	"github.com/upweb-network/monitor-engine/infrastructure/metrics"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []monitoring.NotificationEvent
}

func (r *recordingNotifier) Notify(ctx context.Context, event monitoring.NotificationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type recordingPayment struct {
	mu     sync.Mutex
	checks []*monitoring.Check
}

func (r *recordingPayment) Credit(ctx context.Context, check *monitoring.Check) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, check)
}

func newTestProcessor(t *testing.T) (*Processor, *database.MemoryStore, *recordingNotifier) {
	t.Helper()
	store := database.NewMemoryStore()
	notifier := &recordingNotifier{}
	payment := &recordingPayment{}
	m := metrics.NewForTesting()
	logger := logging.New("monitor-processor-test", "error", "json")
	p := New(Config{Shards: 4}, store, store, store, notifier, payment, m, logger)
	return p, store, notifier
}

// TestThresholdOpenClose implements spec §8 scenario 1: feeding
// [S,S,F,F,F,S] against alertThreshold=3 opens exactly one Incident at
// check #5 and closes it at check #6, with exactly one down and one up
// notification.
func TestThresholdOpenClose(t *testing.T) {
	p, store, notifier := newTestProcessor(t)
	defer p.Close()

	target := &monitoring.Target{
		ID: "t1", Kind: monitoring.KindHTTP, AlertThreshold: 3, RecoveryThreshold: 1,
		Regions: []string{"us-east"}, Active: true,
	}
	store.PutTarget(target)

	outcomes := []bool{true, true, false, false, false, true}
	base := time.Now()
	for i, ok := range outcomes {
		check := &monitoring.Check{
			TargetID: target.ID, Region: "us-east", Success: ok,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		if !ok {
			check.ErrorMessage = "connection refused"
		}
		p.Submit(context.Background(), check)
	}

	waitForCondition(t, func() bool { return notifier.count() >= 2 })

	checks, err := store.ListChecks(context.Background(), target.ID, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, checks, 6)

	for _, c := range checks {
		if !c.Success {
			assert.NotEmpty(t, c.ErrorMessage)
		}
	}

	incidents, err := store.ListIncidents(context.Background(), target.ID)
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.True(t, incidents[0].Resolved())

	assert.Equal(t, 2, notifier.count())
}

// TestOutOfOrderCheckDropped verifies spec §5's ordering rule: a Check
// whose timestamp is not after the last accepted one for its
// (target, region) is dropped rather than persisted.
func TestOutOfOrderCheckDropped(t *testing.T) {
	p, store, _ := newTestProcessor(t)
	defer p.Close()

	target := &monitoring.Target{ID: "t1", AlertThreshold: 3, RecoveryThreshold: 1, Active: true}
	store.PutTarget(target)

	now := time.Now()
	p.Submit(context.Background(), &monitoring.Check{TargetID: "t1", Region: "us-east", Success: true, Timestamp: now})
	p.Submit(context.Background(), &monitoring.Check{TargetID: "t1", Region: "us-east", Success: true, Timestamp: now.Add(-time.Minute)})

	waitForCondition(t, func() bool {
		checks, _ := store.ListChecks(context.Background(), "t1", time.Time{}, time.Time{})
		return len(checks) >= 1
	})
	time.Sleep(50 * time.Millisecond)

	checks, err := store.ListChecks(context.Background(), "t1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, checks, 1)
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
