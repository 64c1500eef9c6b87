package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
	"github.com/upweb-network/monitor-engine/engine/executor"
	"github.com/upweb-network/monitor-engine/infrastructure/database"
	"github.com/upweb-network/monitor-engine/infrastructure/logging"
	"github.com/upweb-network/monitor-engine/infrastructure/metrics"
)

type countingSink struct {
	mu     sync.Mutex
	checks []*monitoring.Check
}

func (c *countingSink) Submit(ctx context.Context, check *monitoring.Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check)
}

func (c *countingSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.checks)
}

func (c *countingSink) snapshot() []*monitoring.Check {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*monitoring.Check, len(c.checks))
	copy(out, c.checks)
	return out
}

// blockingExecutor holds Execute open until release is closed, so a test can
// keep a probe "in flight" for as long as it needs to exercise the
// scheduler's overrun guard.
type blockingExecutor struct {
	release <-chan struct{}
	outcome executor.Outcome
}

func (b blockingExecutor) Execute(ctx context.Context, target *monitoring.Target) executor.Outcome {
	<-b.release
	return b.outcome
}

func newTestRegistry(outcome executor.Outcome) *executor.Registry {
	r := executor.NewRegistry()
	r.Register(monitoring.KindHTTP, stubExecutor{outcome: outcome})
	return r
}

type stubExecutor struct{ outcome executor.Outcome }

func (s stubExecutor) Execute(ctx context.Context, target *monitoring.Target) executor.Outcome {
	return s.outcome
}

// TestSchedulerDriftBound exercises spec §8's drift bound: in a test window
// covering N intervals, an active target sees between N-1 and N+1 scheduled
// checks per region.
func TestSchedulerDriftBound(t *testing.T) {
	store := database.NewMemoryStore()
	target := &monitoring.Target{
		ID: "t1", Kind: monitoring.KindHTTP, IntervalSec: 1,
		TimeoutMs: 500, Active: true, Regions: []string{"us-east"},
	}
	store.PutTarget(target)

	sink := &countingSink{}
	registry := newTestRegistry(executor.Outcome{Success: true, ResponseTimeMs: 5})
	m := metrics.NewForTesting()
	sched := New(Config{ExecutorConcurrency: 8}, store, registry, sink, m, noopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx)

	const n = 3
	time.Sleep(time.Duration(n)*time.Second + 500*time.Millisecond)
	cancel()
	sched.Stop()

	got := sink.count()
	assert.GreaterOrEqual(t, got, n-1)
	assert.LessOrEqual(t, got, n+1)
}

// TestSchedulerDropsDeactivatedTarget verifies cancellation: a target
// deactivated before its next tick is not reinserted (spec §4.2).
func TestSchedulerDropsDeactivatedTarget(t *testing.T) {
	store := database.NewMemoryStore()
	target := &monitoring.Target{
		ID: "t1", Kind: monitoring.KindHTTP, IntervalSec: 1,
		TimeoutMs: 500, Active: true, Regions: []string{"us-east"},
	}
	store.PutTarget(target)

	sink := &countingSink{}
	registry := newTestRegistry(executor.Outcome{Success: true, ResponseTimeMs: 5})
	m := metrics.NewForTesting()
	sched := New(Config{ExecutorConcurrency: 8}, store, registry, sink, m, noopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx)

	time.Sleep(300 * time.Millisecond)
	target.Active = false
	store.PutTarget(target)

	time.Sleep(2 * time.Second)
	cancel()
	sched.Stop()

	assert.LessOrEqual(t, sink.count(), 1)
}

// TestSchedulerRecordsOverrunOnlyWhenInFlightProbeFails exercises spec
// §4.2's overrun policy: a slot skipped because a (target, region) pair
// already has a probe running only becomes a recorded Check once that
// in-flight probe resolves, and only if it failed.
func TestSchedulerRecordsOverrunOnlyWhenInFlightProbeFails(t *testing.T) {
	store := database.NewMemoryStore()
	target := &monitoring.Target{
		ID: "t1", Kind: monitoring.KindHTTP, IntervalSec: 1,
		TimeoutMs: 5000, Active: true, Regions: []string{"us-east"},
	}
	store.PutTarget(target)

	release := make(chan struct{})
	registry := executor.NewRegistry()
	registry.Register(monitoring.KindHTTP, blockingExecutor{
		release: release,
		outcome: executor.Outcome{Success: false, ErrorKind: monitoring.ErrorTransport},
	})

	sink := &countingSink{}
	m := metrics.NewForTesting()
	sched := New(Config{ExecutorConcurrency: 8}, store, registry, sink, m, noopLogger())

	now := time.Now()
	sched.runProbe(context.Background(), target, "us-east", now, now)
	require.Eventually(t, func() bool {
		_, running := sched.inFlight["t1|us-east"]
		return running
	}, time.Second, time.Millisecond)

	sched.runProbe(context.Background(), target, "us-east", now, now) // skipped: the slot above is still in flight

	close(release)

	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, time.Millisecond)

	checks := sink.snapshot()
	var sawOverrun bool
	for _, c := range checks {
		if c.ErrorKind == monitoring.ErrorOverrun {
			sawOverrun = true
		}
	}
	assert.True(t, sawOverrun, "expected the skipped slot to surface as an overrun Check once the blocking probe failed")
}

// TestSchedulerSkipsOverrunCheckWhenInFlightProbeSucceeds verifies the other
// half of the overrun policy: a skip behind a probe that ends up healthy
// leaves no trace, since nothing was actually down during the skipped slot.
func TestSchedulerSkipsOverrunCheckWhenInFlightProbeSucceeds(t *testing.T) {
	store := database.NewMemoryStore()
	target := &monitoring.Target{
		ID: "t1", Kind: monitoring.KindHTTP, IntervalSec: 1,
		TimeoutMs: 5000, Active: true, Regions: []string{"us-east"},
	}
	store.PutTarget(target)

	release := make(chan struct{})
	registry := executor.NewRegistry()
	registry.Register(monitoring.KindHTTP, blockingExecutor{
		release: release,
		outcome: executor.Outcome{Success: true, ResponseTimeMs: 5},
	})

	sink := &countingSink{}
	m := metrics.NewForTesting()
	sched := New(Config{ExecutorConcurrency: 8}, store, registry, sink, m, noopLogger())

	now := time.Now()
	sched.runProbe(context.Background(), target, "us-east", now, now)
	require.Eventually(t, func() bool {
		_, running := sched.inFlight["t1|us-east"]
		return running
	}, time.Second, time.Millisecond)

	sched.runProbe(context.Background(), target, "us-east", now, now) // skipped

	close(release)

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond) // give a wrongly-emitted overrun Check a chance to show up

	checks := sink.snapshot()
	require.Len(t, checks, 1)
	assert.True(t, checks[0].Success)
}

func TestReadyQueueOrdersByDueAt(t *testing.T) {
	q := newReadyQueue()
	now := time.Now()

	heap.Push(q, &entry{targetID: "c", dueAt: now.Add(3 * time.Second)})
	heap.Push(q, &entry{targetID: "a", dueAt: now.Add(1 * time.Second)})
	heap.Push(q, &entry{targetID: "b", dueAt: now.Add(2 * time.Second)})

	first := heap.Pop(q).(*entry)
	require.Equal(t, "a", first.targetID)
	second := heap.Pop(q).(*entry)
	require.Equal(t, "b", second.targetID)
	third := heap.Pop(q).(*entry)
	require.Equal(t, "c", third.targetID)
}

func noopLogger() *logging.Logger {
	return logging.New("monitor-scheduler-test", "error", "json")
}
