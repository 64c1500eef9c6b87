// Package processor implements the Result Processor: it owns all writes to
// Checks and Incidents, and runs the per-target Incident State Machine
// (spec §3, §4.4). Ordering per (target, region) is enforced by routing
// every Check for a target through the same serial shard, sharded by
// hash(targetID) mod processorShards (spec §5), grounded on
// PilotFiber-icmp-mon's switch-based ProcessProbeResult.
package processor

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
	"github.com/upweb-network/monitor-engine/infrastructure/logging"
	"github.com/upweb-network/monitor-engine/infrastructure/logging/hotpath"
	"github.com/upweb-network/monitor-engine/infrastructure/metrics"
	"github.com/upweb-network/monitor-engine/ports"
)

// queueDepth bounds each shard's channel; a processor that falls behind
// exerts backpressure on the scheduler's Submit call rather than growing
// without bound.
const queueDepth = 1024

// Config configures a Processor.
type Config struct {
	Shards int // default 16 per spec §6's processorShards
}

// Processor fans Checks out to per-target-hashed serial shards.
type Processor struct {
	cfg         Config
	targets     ports.TargetStore
	checks      ports.CheckStore
	incidents   ports.IncidentStore
	notifier    ports.Notifier
	payment     ports.PaymentDispatcher
	metrics     *metrics.Metrics
	logger      *logging.Logger

	shards []chan *monitoring.Check

	mu         sync.Mutex
	states     map[string]*monitoring.TargetState // targetID -> SM state
	lastSeen   map[string]time.Time               // targetID|region -> last accepted Check timestamp

	wg     sync.WaitGroup
	tracer trace.Tracer
	hot    *zap.SugaredLogger
}

// New constructs a Processor and starts its shard workers. Callers must
// call Close on shutdown to drain in-flight work.
func New(cfg Config, targets ports.TargetStore, checks ports.CheckStore, incidents ports.IncidentStore, notifier ports.Notifier, payment ports.PaymentDispatcher, m *metrics.Metrics, logger *logging.Logger) *Processor {
	if cfg.Shards <= 0 {
		cfg.Shards = 16
	}
	p := &Processor{
		cfg:       cfg,
		targets:   targets,
		checks:    checks,
		incidents: incidents,
		notifier:  notifier,
		payment:   payment,
		metrics:   m,
		logger:    logger,
		shards:    make([]chan *monitoring.Check, cfg.Shards),
		states:    make(map[string]*monitoring.TargetState),
		lastSeen:  make(map[string]time.Time),
		tracer:    otel.Tracer("monitor-engine-noop"),
		hot:       hotpath.Noop(),
	}
	for i := range p.shards {
		p.shards[i] = make(chan *monitoring.Check, queueDepth)
		p.wg.Add(1)
		go p.runShard(p.shards[i])
	}
	return p
}

// WithTracer attaches the tracer result-processing spans are started from.
// runShard processes every Check under context.Background(), so each of
// these spans starts its own trace; it is not a child of the probe span the
// Scheduler started for the same Check.
func (p *Processor) WithTracer(tracer trace.Tracer) *Processor {
	p.tracer = tracer
	return p
}

// WithHotLogger attaches the zap logger used for every persisted check, the
// processor's highest-frequency log statement (infrastructure/logging/hotpath).
// A Processor built with New discards these logs until this is called.
func (p *Processor) WithHotLogger(l *zap.SugaredLogger) *Processor {
	p.hot = l
	return p
}

// Submit implements scheduler.ResultSink: it routes check to its shard by
// hash(targetID). Submit never blocks the caller beyond the channel's
// buffer; a full shard applies backpressure to the scheduler worker.
func (p *Processor) Submit(ctx context.Context, check *monitoring.Check) {
	shard := p.shards[shardFor(check.TargetID, len(p.shards))]
	select {
	case shard <- check:
	case <-ctx.Done():
	}
}

// Hydrate loads currently open incidents into in-memory SM state so a
// restarted process doesn't reopen an already-open incident (spec §3:
// "at most one open incident per target").
func (p *Processor) Hydrate(ctx context.Context, targetIDs []string) {
	for _, id := range targetIDs {
		inc, err := p.incidents.GetOpenIncident(ctx, id)
		if err != nil || inc == nil {
			continue
		}
		p.mu.Lock()
		p.states[id] = &monitoring.TargetState{
			TargetID:       id,
			Current:        monitoring.StateDown,
			OpenIncidentID: inc.ID,
		}
		p.mu.Unlock()
	}
}

func shardFor(targetID string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(targetID))
	return int(h.Sum32()) % n
}

func (p *Processor) runShard(ch chan *monitoring.Check) {
	defer p.wg.Done()
	for check := range ch {
		p.process(context.Background(), check)
	}
}

// process persists one Check and advances that target's state machine.
// It is only ever called from the single goroutine owning check's shard,
// so no lock is needed around the per-target state transition itself.
func (p *Processor) process(ctx context.Context, check *monitoring.Check) {
	ctx, span := p.tracer.Start(ctx, "result.process",
		trace.WithAttributes(
			attribute.String("target_id", check.TargetID),
			attribute.String("check_id", check.ID),
		))
	defer span.End()

	if !p.acceptOrdered(check) {
		if p.logger != nil {
			p.logger.WithContext(ctx).WithField("target_id", check.TargetID).
				WithField("region", check.Region).Warn("dropped out-of-order check")
		}
		return
	}

	if check.ID == "" {
		check.ID = uuid.NewString()
	}
	if err := p.checks.CreateCheck(ctx, check); err != nil {
		if p.logger != nil {
			p.logger.WithContext(ctx).WithField("target_id", check.TargetID).
				WithField("error", err.Error()).Error("failed to persist check")
		}
		return
	}
	p.hot.Infow("check persisted",
		"check_id", check.ID,
		"target_id", check.TargetID,
		"region", check.Region,
		"success", check.Success,
	)

	target, err := p.targets.GetTarget(ctx, check.TargetID)
	if err != nil {
		return
	}

	p.transition(ctx, target, check)

	if check.IsSubmitted() {
		p.payment.Credit(ctx, check)
	}
}

// acceptOrdered enforces spec §5's strict per-(target,region) ordering:
// Checks with a timestamp not after the last accepted one are dropped.
func (p *Processor) acceptOrdered(check *monitoring.Check) bool {
	key := check.TargetID + "|" + check.Region
	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.lastSeen[key]; ok && !check.Timestamp.After(last) {
		return false
	}
	p.lastSeen[key] = check.Timestamp
	return true
}

func (p *Processor) stateFor(targetID string) *monitoring.TargetState {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.states[targetID]
	if !ok {
		s = &monitoring.TargetState{TargetID: targetID, Current: monitoring.StateHealthy}
		p.states[targetID] = s
	}
	return s
}

func (p *Processor) transition(ctx context.Context, target *monitoring.Target, check *monitoring.Check) {
	state := p.stateFor(target.ID)
	prev := state.Current

	d := applyCheck(state, check.Success, target.AlertThreshold, target.RecoveryThreshold)
	state.Current = d.next

	if p.logger != nil && d.next != prev {
		p.logger.LogIncidentTransition(ctx, target.ID, string(prev), string(d.next), string(check.ErrorKind))
	}

	switch {
	case d.openIncident:
		p.openIncident(ctx, state, target, check, d.emit)
	case d.closeIncident:
		p.closeIncident(ctx, state, target, check, d.emit)
	}
}

func (p *Processor) openIncident(ctx context.Context, state *monitoring.TargetState, target *monitoring.Target, check *monitoring.Check, emit monitoring.Transition) {
	incident := &monitoring.Incident{
		ID:           uuid.NewString(),
		TargetID:     target.ID,
		StartCheckID: check.ID,
		StartedAt:    check.Timestamp,
		Reason:       string(check.ErrorKind),
		Region:       check.Region,
	}
	if err := p.incidents.OpenIncident(ctx, incident); err != nil {
		// Conflict means an incident is already open (e.g. after a restart
		// raced Hydrate); adopt it instead of failing the pipeline.
		if existing, gerr := p.incidents.GetOpenIncident(ctx, target.ID); gerr == nil && existing != nil {
			incident = existing
		} else {
			return
		}
	}
	state.OpenIncidentID = incident.ID
	p.metrics.OpenIncidents.Inc()
	p.notify(ctx, target, incident, check, emit)
}

func (p *Processor) closeIncident(ctx context.Context, state *monitoring.TargetState, target *monitoring.Target, check *monitoring.Check, emit monitoring.Transition) {
	incidentID := state.OpenIncidentID
	if incidentID == "" {
		return
	}
	if err := p.incidents.ResolveIncident(ctx, incidentID, check.ID, check.Timestamp); err != nil {
		return
	}
	p.metrics.OpenIncidents.Dec()
	incident, err := p.incidents.GetIncident(ctx, incidentID)
	if err != nil {
		incident = &monitoring.Incident{ID: incidentID, TargetID: target.ID}
	}
	state.OpenIncidentID = ""
	p.notify(ctx, target, incident, check, emit)
}

func (p *Processor) notify(ctx context.Context, target *monitoring.Target, incident *monitoring.Incident, check *monitoring.Check, transition monitoring.Transition) {
	if p.notifier == nil {
		return
	}
	p.notifier.Notify(ctx, monitoring.NotificationEvent{
		TargetID:        target.ID,
		TargetName:      target.Name,
		TargetURL:       target.URL,
		IncidentID:      incident.ID,
		Transition:      transition,
		Reason:          string(check.ErrorKind),
		Region:          check.Region,
		LocationDetails: check.LocationInfo,
		AlertContacts:   target.AlertContacts,
		OwnerEmail:      target.OwnerEmail,
		OccurredAt:      check.Timestamp,
	})
}

// Close stops accepting new work and waits for every shard to drain its
// queue, matching spec §5's "flushes the notification queue" exit behavior
// extended to the processor's own in-flight Checks.
func (p *Processor) Close() {
	for _, ch := range p.shards {
		close(ch)
	}
	p.wg.Wait()
}
