// Package ports declares the explicit interfaces the monitoring engine
// depends on, replacing the teacher's per-request string module lookups
// (design note, spec §9) with injected collaborators. Concrete
// implementations live in infrastructure/database, infrastructure/pubsub
// and the engine's own packages; the external system wires whichever
// implementation fits its deployment.
package ports

import (
	"context"
	"time"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
)

// TargetStore is read-mostly; the Scheduler only reads. Target CRUD is an
// external collaborator's concern (spec §1), but the engine still needs a
// read path to discover active targets and react to edits/deactivation.
type TargetStore interface {
	GetTarget(ctx context.Context, id string) (*monitoring.Target, error)
	ListActiveTargets(ctx context.Context) ([]*monitoring.Target, error)
}

// CheckStore owns all writes to Checks. Checks are immutable once written
// except for the one-shot PaymentSettled flip (spec §3).
type CheckStore interface {
	CreateCheck(ctx context.Context, c *monitoring.Check) error
	LatestCheck(ctx context.Context, targetID string) (*monitoring.Check, error)
	ListChecks(ctx context.Context, targetID string, since, until time.Time) ([]*monitoring.Check, error)
	MarkPaymentSettled(ctx context.Context, checkID string) error
	LastTimestamp(ctx context.Context, targetID, region string) (time.Time, bool, error)
}

// IncidentStore owns all writes to Incidents. At most one open incident per
// target is the core invariant it must uphold (spec §3, §8).
type IncidentStore interface {
	OpenIncident(ctx context.Context, i *monitoring.Incident) error
	ResolveIncident(ctx context.Context, incidentID, endCheckID string, resolvedAt time.Time) error
	GetOpenIncident(ctx context.Context, targetID string) (*monitoring.Incident, error)
	GetIncident(ctx context.Context, id string) (*monitoring.Incident, error)
	ListIncidents(ctx context.Context, targetID string) ([]*monitoring.Incident, error)
	RecentResolved(ctx context.Context, targetID string, limit int) ([]*monitoring.Incident, error)
}

// WalletStore owns all writes to ProberWallets.
type WalletStore interface {
	GetOrCreateWallet(ctx context.Context, proberID string) (*monitoring.ProberWallet, error)
	CreditIdempotent(ctx context.Context, proberID, checkID string, amountMin int64, at time.Time) (credited bool, err error)
}

// CooldownStore upserts the (proberID, targetID) cooldown pairs.
type CooldownStore interface {
	Get(ctx context.Context, proberID, targetID string) (*monitoring.CooldownIndex, error)
	Upsert(ctx context.Context, proberID, targetID string, at time.Time) error
	ListEligibleTargetIDs(ctx context.Context, proberID string, allTargetIDs []string, cooldown time.Duration) ([]string, error)
}

// EmailSender is the external email transport port (spec §1: "out of
// scope ... the email transport"). The engine only ever calls Send; how
// mail is actually delivered is a collaborator's concern.
type EmailSender interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// PushChannel is the real-time delivery port for spec §4.5/§6's
// monitor:update and incident:{opened,resolved} topics.
type PushChannel interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// TargetSnapshotSource lets the Scheduler read a versioned, lock-free
// snapshot of active targets (spec §5: "versioned snapshot pattern avoids
// locking in the Scheduler hot path").
type TargetSnapshotSource interface {
	Snapshot(ctx context.Context) ([]*monitoring.Target, error)
}

// Notifier is the Result Processor's outbound port to the Notifier
// component (spec §4.4: "emit down/up notification"). Notify must not
// block the processor's serial per-target queue; implementations enqueue
// and return.
type Notifier interface {
	Notify(ctx context.Context, event monitoring.NotificationEvent)
}

// PaymentDispatcher is the Result Processor's outbound port to the Payment
// Dispatcher (spec §4.6). Credit must not fail the probe pipeline; payment
// failures are deferred internally.
type PaymentDispatcher interface {
	Credit(ctx context.Context, check *monitoring.Check)
}

// RollupStore persists the Stats View's precomputed DayRollups (spec §4.7),
// which serve a query's per-day list; the query's scalar aggregates still
// come from the window's raw Checks.
type RollupStore interface {
	SaveRollup(ctx context.Context, targetID string, rollup monitoring.DayRollup) error
	ListRollups(ctx context.Context, targetID string, since, until time.Time) ([]monitoring.DayRollup, error)
}
