package monitoring

import "time"

// IncidentState is the per-target state machine state from spec §4.4.
type IncidentState string

const (
	StateHealthy    IncidentState = "healthy"
	StateFailing    IncidentState = "failing"
	StateDown       IncidentState = "down"
	StateRecovering IncidentState = "recovering"
)

// Transition is the kind of notification-worthy event a state change emits.
type Transition string

const (
	TransitionDown Transition = "down"
	TransitionUp   Transition = "up"
)

// Incident is a contiguous period during which a Target is considered Down.
// At most one Incident per Target is unresolved at any time (spec §3).
type Incident struct {
	ID          string
	TargetID    string
	StartCheckID string
	EndCheckID  string
	StartedAt   time.Time
	ResolvedAt  time.Time
	DurationMs  int64
	Reason      string
	Region      string
}

// Resolved reports whether the incident has been closed.
func (i *Incident) Resolved() bool {
	return !i.ResolvedAt.IsZero()
}

// Resolve closes the incident exactly once, per spec §3's "set exactly once"
// invariant. Calling Resolve on an already-resolved incident is a no-op so
// callers racing on at-least-once delivery don't double-close.
func (i *Incident) Resolve(endCheckID string, resolvedAt time.Time) {
	if i.Resolved() {
		return
	}
	i.EndCheckID = endCheckID
	i.ResolvedAt = resolvedAt
	i.DurationMs = resolvedAt.Sub(i.StartedAt).Milliseconds()
}

// TargetState tracks the consecutive failure/success run for one target so
// the Incident State Machine (spec §4.4) can decide transitions.
type TargetState struct {
	TargetID          string
	Current           IncidentState
	ConsecutiveCount  int // failures while Failing, successes while Recovering
	OpenIncidentID    string
}

// NotificationEvent carries one state-change alert from the Result
// Processor to the Notifier (spec §4.5).
type NotificationEvent struct {
	TargetID        string
	TargetName      string
	TargetURL       string
	IncidentID      string
	Transition      Transition
	Reason          string
	Region          string
	LocationDetails *LocationInfo
	AlertContacts   []string
	OwnerEmail      string
	OccurredAt      time.Time
}
