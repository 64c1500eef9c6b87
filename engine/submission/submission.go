// Package submission implements the Ad-hoc Submission Gateway (spec §4.3):
// SubmitProbe and ListAvailable. The gateway never trusts a client-reported
// outcome — it runs the probe itself through the same Probe Executors the
// Scheduler uses, then hands the resulting Check to the Result Processor.
package submission

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
	"github.com/upweb-network/monitor-engine/engine/executor"
	engerrors "github.com/upweb-network/monitor-engine/infrastructure/errors"
	"github.com/upweb-network/monitor-engine/infrastructure/ratelimit"
	"github.com/upweb-network/monitor-engine/infrastructure/resilience"
	"github.com/upweb-network/monitor-engine/ports"
)

// Sink is what the Gateway hands a completed submitted Check to (the
// Result Processor; see scheduler.ResultSink for the matching shape).
type Sink interface {
	Submit(ctx context.Context, check *monitoring.Check)
}

// locationRequest carries the required identity fields of a submission;
// the optional locationDetails JSON itself is read separately with gjson
// so a prober can send extra/unknown keys without breaking deserialization
// (spec §9 location enrichment note).
type locationRequest struct {
	ProberID    string `validate:"required"`
	TargetID    string `validate:"required"`
	LocationTag string `validate:"required"`
}

// Config configures a Gateway.
type Config struct {
	Cooldown time.Duration // default 300s per spec §6
}

// Gateway implements SubmitProbe/ListAvailable.
type Gateway struct {
	cfg       Config
	targets   ports.TargetStore
	cooldowns ports.CooldownStore
	registry  *executor.Registry
	sink      Sink
	limiter   *ratelimit.PerKeyLimiter
	validate  *validator.Validate
}

// New constructs a Gateway.
func New(cfg Config, targets ports.TargetStore, cooldowns ports.CooldownStore, registry *executor.Registry, sink Sink, limiter *ratelimit.PerKeyLimiter) *Gateway {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Gateway{
		cfg: cfg, targets: targets, cooldowns: cooldowns,
		registry: registry, sink: sink, limiter: limiter,
		validate: validator.New(),
	}
}

// SubmitProbe performs the single operation spec §4.3 describes: validates
// the request, enforces per-prober rate limiting ahead of the cooldown
// check, enforces the cooldown, self-probes the Target, and hands the
// resulting Check to the sink.
func (g *Gateway) SubmitProbe(ctx context.Context, proberID, targetID, locationTag string, locationDetailsJSON []byte) (*monitoring.Check, error) {
	req := locationRequest{ProberID: proberID, TargetID: targetID, LocationTag: locationTag}
	if err := g.validate.Struct(req); err != nil {
		return nil, engerrors.Invalid(err.Error())
	}

	if !g.limiter.Allow(proberID) {
		return nil, engerrors.Conflict("too many submissions", 0)
	}

	target, err := g.targets.GetTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !target.Active {
		return nil, engerrors.Invalid("target is not active")
	}

	// Cooldown store failures get one quick retry before surfacing as
	// Unavailable.
	quickRetry := resilience.RetryConfig{MaxAttempts: 2, InitialDelay: 100 * time.Millisecond, MaxDelay: 100 * time.Millisecond, Multiplier: 1}

	now := time.Now()
	var entry *monitoring.CooldownIndex
	err = resilience.Retry(ctx, quickRetry, func() error {
		var getErr error
		entry, getErr = g.cooldowns.Get(ctx, proberID, targetID)
		return getErr
	})
	if err != nil {
		return nil, engerrors.Unavailable("cooldown_lookup", err)
	}
	if !entry.Eligible(now, g.cfg.Cooldown) {
		return nil, engerrors.Conflict("submission within cooldown window", entry.Remaining(now, g.cfg.Cooldown))
	}

	exec, ok := g.registry.For(target.Kind)
	if !ok {
		return nil, engerrors.Invalid("unsupported target kind")
	}
	outcome := exec.Execute(ctx, target)

	loc := parseLocationDetails(locationDetailsJSON)

	check := &monitoring.Check{
		ID:             uuid.NewString(),
		TargetID:       target.ID,
		OwnerID:        target.OwnerID,
		Success:        outcome.Success,
		StatusCode:     outcome.StatusCode,
		ResponseTimeMs: outcome.ResponseTimeMs,
		ErrorKind:      outcome.ErrorKind,
		ErrorMessage:   outcome.ErrorMessage,
		Region:         locationTag,
		LocationInfo:   loc,
		ProberID:       proberID,
		Timestamp:      now,
	}

	if err := resilience.Retry(ctx, quickRetry, func() error {
		return g.cooldowns.Upsert(ctx, proberID, targetID, now)
	}); err != nil {
		return nil, engerrors.Unavailable("cooldown_upsert", err)
	}

	g.sink.Submit(ctx, check)
	return check, nil
}

// ActorRole distinguishes who is allowed to call ManualProbe.
type ActorRole string

const (
	ActorAdmin ActorRole = "admin"
	ActorOwner ActorRole = "owner"
)

// ManualProbe lets an admin or the target's own owner trigger an immediate
// out-of-band probe (spec §6), bypassing the per-prober rate limit and
// cooldown below — those exist to stop an untrusted prober fleet from
// flooding a target, which doesn't describe an authorized operator. It
// reuses the same executor registry and sink SubmitProbe does, so the
// resulting Check flows through the Result Processor identically. Per spec
// §6 the probe is paid like any ad-hoc submission when the owner triggers
// it themselves, but never when an admin acts on someone else's target.
func (g *Gateway) ManualProbe(ctx context.Context, targetID, actorID string, actorRole ActorRole) (*monitoring.Check, error) {
	if actorID == "" {
		return nil, engerrors.Invalid("actorId is required")
	}
	if actorRole != ActorAdmin && actorRole != ActorOwner {
		return nil, engerrors.Invalid("actorRole must be admin or owner")
	}

	target, err := g.targets.GetTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if actorRole == ActorOwner && target.OwnerID != actorID {
		return nil, engerrors.Invalid("actor does not own this target")
	}
	if !target.Active {
		return nil, engerrors.Invalid("target is not active")
	}

	exec, ok := g.registry.For(target.Kind)
	if !ok {
		return nil, engerrors.Invalid("unsupported target kind")
	}
	outcome := exec.Execute(ctx, target)

	check := &monitoring.Check{
		ID:             uuid.NewString(),
		TargetID:       target.ID,
		OwnerID:        target.OwnerID,
		Success:        outcome.Success,
		StatusCode:     outcome.StatusCode,
		ResponseTimeMs: outcome.ResponseTimeMs,
		ErrorKind:      outcome.ErrorKind,
		ErrorMessage:   outcome.ErrorMessage,
		Region:         "manual",
		Timestamp:      time.Now(),
	}
	if actorRole == ActorOwner {
		// Gives this Check a ProberID so the Payment Dispatcher's existing
		// IsSubmitted() check pays it; an admin-triggered Check keeps a
		// blank ProberID and is silently skipped the same way scheduled
		// Checks are.
		check.ProberID = actorID
	}

	g.sink.Submit(ctx, check)
	return check, nil
}

// ListAvailable returns active targets whose CooldownIndex entry for
// proberID is absent or older than the cooldown window (spec §4.3).
func (g *Gateway) ListAvailable(ctx context.Context, proberID string) ([]*monitoring.Target, error) {
	active, err := g.targets.ListActiveTargets(ctx)
	if err != nil {
		return nil, engerrors.Unavailable("list_active_targets", err)
	}
	ids := make([]string, len(active))
	for i, t := range active {
		ids[i] = t.ID
	}
	eligible, err := g.cooldowns.ListEligibleTargetIDs(ctx, proberID, ids, g.cfg.Cooldown)
	if err != nil {
		return nil, engerrors.Unavailable("list_eligible_targets", err)
	}
	eligibleSet := make(map[string]bool, len(eligible))
	for _, id := range eligible {
		eligibleSet[id] = true
	}
	out := make([]*monitoring.Target, 0, len(eligible))
	for _, t := range active {
		if eligibleSet[t.ID] {
			out = append(out, t)
		}
	}
	return out, nil
}

// parseLocationDetails reads the optional enrichment fields with gjson so
// an unrecognized or partially-populated payload never fails the
// submission; absent fields render as "Unknown" at the notification
// boundary via LocationInfo.Field.
func parseLocationDetails(raw []byte) *monitoring.LocationInfo {
	if len(raw) == 0 {
		return nil
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.Exists() {
		return nil
	}
	info := &monitoring.LocationInfo{
		City:    parsed.Get("city").String(),
		Country: parsed.Get("country").String(),
		IP:      parsed.Get("ip").String(),
	}
	if lat := parsed.Get("latitude"); lat.Exists() {
		if lon := parsed.Get("longitude"); lon.Exists() {
			info.Latitude = lat.Float()
			info.Longitude = lon.Float()
			info.HasCoords = true
		}
	}
	return info
}
