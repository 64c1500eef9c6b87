// Package scheduler emits probe jobs at roughly every Target.IntervalSec,
// per configured region, with bounded drift (spec §4.2). It owns the
// in-memory ready queue and per-target timers; Targets themselves are
// read-only from the Scheduler's point of view (spec §3's ownership rule).
package scheduler

import (
	"container/heap"
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
	"github.com/upweb-network/monitor-engine/engine/executor"
	"github.com/upweb-network/monitor-engine/infrastructure/logging"
	"github.com/upweb-network/monitor-engine/infrastructure/logging/hotpath"
	"github.com/upweb-network/monitor-engine/infrastructure/metrics"
	"github.com/upweb-network/monitor-engine/infrastructure/resilience"
	"github.com/upweb-network/monitor-engine/ports"
)

// ResultSink is what the Scheduler hands a finished probe outcome to. The
// Result Processor implements this; the Scheduler never writes a Check
// itself (spec §3: "Result Processor owns writes to Checks").
type ResultSink interface {
	Submit(ctx context.Context, check *monitoring.Check)
}

// tickInterval is the driver's wake-up granularity (spec §4.2: "≤ 1s
// granularity").
const tickInterval = 1 * time.Second

// Config configures a Scheduler.
type Config struct {
	ExecutorConcurrency int           // worker pool size, default max(64, 2*CPU) per spec §6
	ShutdownGrace       time.Duration // spec §5: default 5s grace for in-flight probes
}

// Scheduler maintains the ready queue and drives the probe worker pool.
type Scheduler struct {
	cfg      Config
	snapshot ports.TargetSnapshotSource
	registry *executor.Registry
	sink     ResultSink
	metrics  *metrics.Metrics
	logger   *logging.Logger

	mu             sync.Mutex
	queue          *readyQueue
	inFlight       map[string]struct{} // guard set keyed by targetID+region
	overrunPending map[string]int      // slots dropped while key was in-flight, since its last resolution

	workSem chan struct{}
	wg      sync.WaitGroup

	stopCh chan struct{}
	doneCh chan struct{}

	backoff resilience.RetryConfig
	tracer  trace.Tracer
	hot     *zap.SugaredLogger
}

// New constructs a Scheduler. registry resolves the Executor for a
// Target.Kind; sink receives every finished Check.
func New(cfg Config, snapshot ports.TargetSnapshotSource, registry *executor.Registry, sink ResultSink, m *metrics.Metrics, logger *logging.Logger) *Scheduler {
	if cfg.ExecutorConcurrency <= 0 {
		cfg.ExecutorConcurrency = 64
		if n := 2 * runtime.NumCPU(); n > 64 {
			cfg.ExecutorConcurrency = n
		}
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}
	return &Scheduler{
		cfg:            cfg,
		snapshot:       snapshot,
		registry:       registry,
		sink:           sink,
		metrics:        m,
		logger:         logger,
		queue:          newReadyQueue(),
		inFlight:       make(map[string]struct{}),
		overrunPending: make(map[string]int),
		workSem:        make(chan struct{}, cfg.ExecutorConcurrency),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
		backoff:        resilience.DefaultRetryConfig(),
		tracer:         otel.Tracer("monitor-engine-noop"),
		hot:            hotpath.Noop(),
	}
}

// WithTracer attaches the tracer probe spans are started from. The Result
// Processor's spans for the same Check are not linked to these (see
// Processor.WithTracer). A Scheduler built with New uses the global no-op
// tracer until this is called.
func (s *Scheduler) WithTracer(tracer trace.Tracer) *Scheduler {
	s.tracer = tracer
	return s
}

// WithHotLogger attaches the zap logger used for every completed probe, the
// engine's highest-frequency log statement (infrastructure/logging/hotpath:
// logrus's field-map allocation is wasteful at fleet-wide per-probe volume).
// A Scheduler built with New discards these logs until this is called.
func (s *Scheduler) WithHotLogger(l *zap.SugaredLogger) *Scheduler {
	s.hot = l
	return s
}

// Run seeds the queue from the current snapshot and drives ticks until ctx
// is cancelled or Stop is called. Run blocks; callers run it in a goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.doneCh)

	if err := s.seed(ctx); err != nil {
		if s.logger != nil {
			s.logger.WithField("error", err.Error()).Warn("scheduler: initial seed failed, backing off")
		}
		s.backoffUntilSeeded(ctx)
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case <-s.stopCh:
			s.drain()
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

// Stop requests the driver loop to exit; in-flight probes are given
// cfg.ShutdownGrace to finish (spec §5 exit behavior).
func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	<-s.doneCh
}

// seed loads the active-target snapshot once at startup and schedules each
// target's first due time immediately.
func (s *Scheduler) seed(ctx context.Context) error {
	targets, err := s.snapshot.Snapshot(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range targets {
		heap.Push(s.queue, &entry{targetID: t.ID, dueAt: now})
	}
	s.metrics.SchedulerQueueDepth.Set(float64(s.queue.Len()))
	return nil
}

// backoffUntilSeeded retries the initial snapshot load with the Scheduler's
// exponential backoff, per spec §4.2's "store unavailability ... back off
// exponentially (base 1s, cap 60s)."
func (s *Scheduler) backoffUntilSeeded(ctx context.Context) {
	resilience.Retry(ctx, s.backoff, func() error {
		return s.seed(ctx)
	})
}

// tick pops every entry due at or before now, reloads its Target, fans out
// one probe job per region, and reinserts with nextDueAt = max(now,
// prevDueAt) + intervalSec (spec §4.2).
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	targets, err := s.snapshot.Snapshot(ctx)
	if err != nil {
		// Store unavailable: emit no probes this tick and let the next
		// tick retry naturally (spec §4.2 backoff policy).
		if s.logger != nil {
			s.logger.WithField("error", err.Error()).Warn("scheduler tick: snapshot unavailable, skipping")
		}
		return
	}
	byID := make(map[string]*monitoring.Target, len(targets))
	for _, t := range targets {
		byID[t.ID] = t
	}

	var due []*entry
	s.mu.Lock()
	for s.queue.Len() > 0 && !(*s.queue)[0].dueAt.After(now) {
		due = append(due, heap.Pop(s.queue).(*entry))
	}
	s.mu.Unlock()

	for _, e := range due {
		target, active := byID[e.targetID]
		if !active {
			// Deactivated or deleted: drop it (spec §4.2 cancellation —
			// "removes future entries within one tick"). Do not reinsert.
			continue
		}
		s.dispatch(ctx, target, e.dueAt)
	}

	s.mu.Lock()
	s.metrics.SchedulerQueueDepth.Set(float64(s.queue.Len()))
	s.mu.Unlock()
}

// dispatch fans one probe job out per configured region and reinserts the
// target's next due entry.
func (s *Scheduler) dispatch(ctx context.Context, target *monitoring.Target, prevDueAt time.Time) {
	now := time.Now()
	nextDue := prevDueAt
	if nextDue.Before(now) {
		nextDue = now
	}
	nextDue = nextDue.Add(time.Duration(target.IntervalSec) * time.Second)

	s.mu.Lock()
	heap.Push(s.queue, &entry{targetID: target.ID, dueAt: nextDue})
	s.mu.Unlock()

	for _, region := range target.Regions {
		s.runProbe(ctx, target, region, prevDueAt, now)
	}
}

// runProbe respects the in-flight guard (overrun policy: skip this tick's
// slot for a (target, region) pair still running from a prior tick) and
// the bounded worker pool, then executes and reports drift. A skipped slot
// only becomes a recorded Check if the probe it was blocked behind turns
// out to have failed (spec §4.2); a healthy resolution makes the overrun
// invisible, so the count of skips is just remembered until resolution.
func (s *Scheduler) runProbe(ctx context.Context, target *monitoring.Target, region string, scheduledDueAt, actualDueAt time.Time) {
	key := target.ID + "|" + region

	s.mu.Lock()
	if _, running := s.inFlight[key]; running {
		s.overrunPending[key]++
		s.mu.Unlock()
		return
	}
	s.inFlight[key] = struct{}{}
	s.mu.Unlock()

	select {
	case s.workSem <- struct{}{}:
	default:
		// Pool saturated: drop this slot rather than block the driver tick.
		s.mu.Lock()
		delete(s.inFlight, key)
		s.mu.Unlock()
		return
	}

	s.metrics.SchedulerDrift.WithLabelValues(region).Observe(float64(actualDueAt.Sub(scheduledDueAt).Milliseconds()))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.workSem }()

		failed := s.execute(ctx, target, region)

		s.mu.Lock()
		skipped := s.overrunPending[key]
		delete(s.overrunPending, key)
		delete(s.inFlight, key)
		s.mu.Unlock()

		if failed && skipped > 0 {
			s.recordOverrun(ctx, target, region, skipped)
		}
	}()
}

// recordOverrun emits one Check per slot dropped while key's prior probe was
// still in flight. It is only called once that prior probe is known to have
// failed: a skip behind a probe that ultimately succeeds leaves no trace,
// since nothing was actually down during the skipped slot.
func (s *Scheduler) recordOverrun(ctx context.Context, target *monitoring.Target, region string, count int) {
	now := time.Now()
	for i := 0; i < count; i++ {
		s.sink.Submit(ctx, &monitoring.Check{
			ID:           newCheckID(),
			TargetID:     target.ID,
			OwnerID:      target.OwnerID,
			Success:      false,
			ErrorKind:    monitoring.ErrorOverrun,
			ErrorMessage: "probe slot skipped: prior probe for this target/region was still in flight",
			Region:       region,
			Timestamp:    now.Add(time.Duration(i+1) * time.Nanosecond),
		})
	}
}

// execute runs target's probe and reports the outcome to the sink, returning
// whether the probe failed so runProbe can resolve any pending overrun.
func (s *Scheduler) execute(ctx context.Context, target *monitoring.Target, region string) bool {
	exec, ok := s.registry.For(target.Kind)
	if !ok {
		return false
	}

	ctx, span := s.tracer.Start(ctx, "probe.execute",
		trace.WithAttributes(
			attribute.String("target_id", target.ID),
			attribute.String("region", region),
			attribute.String("kind", string(target.Kind)),
		))
	defer span.End()

	outcome := exec.Execute(ctx, target)

	s.metrics.ProbeLatency.WithLabelValues(string(target.Kind), region).Observe(float64(outcome.ResponseTimeMs))
	s.metrics.ProbeResult.WithLabelValues(string(target.Kind), region, successLabel(outcome.Success)).Inc()
	s.hot.Infow("probe outcome",
		"target_id", target.ID,
		"region", region,
		"kind", string(target.Kind),
		"success", outcome.Success,
		"error_kind", string(outcome.ErrorKind),
		"response_time_ms", outcome.ResponseTimeMs,
	)

	check := &monitoring.Check{
		ID:             newCheckID(),
		TargetID:       target.ID,
		OwnerID:        target.OwnerID,
		Success:        outcome.Success,
		StatusCode:     outcome.StatusCode,
		ResponseTimeMs: outcome.ResponseTimeMs,
		ErrorKind:      outcome.ErrorKind,
		ErrorMessage:   outcome.ErrorMessage,
		Region:         region,
		Timestamp:      time.Now(),
	}
	s.sink.Submit(ctx, check)
	return !outcome.Success
}

// drain waits up to cfg.ShutdownGrace for in-flight probes to finish
// (spec §5: "in-flight probes are given a grace period to complete; queued
// (un-started) jobs are dropped").
func (s *Scheduler) drain() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownGrace):
	}
}

func successLabel(ok bool) string {
	if ok {
		return "true"
	}
	return "false"
}

func newCheckID() string {
	return uuid.NewString()
}
