package database

import (
	"context"
	"sort"
	"sync"
	"time"

	engerrors "github.com/upweb-network/monitor-engine/infrastructure/errors"
	"github.com/upweb-network/monitor-engine/domain/monitoring"
	"github.com/upweb-network/monitor-engine/ports"
)

// MemoryStore is an in-memory implementation of every port, for
// single-process deployments and tests. It mirrors the constraints the
// Postgres schema enforces (at most one open incident per target, one
// ledger entry per check) in application code instead of unique indexes.
type MemoryStore struct {
	mu sync.RWMutex

	targets       map[string]*monitoring.Target
	checks        map[string]*monitoring.Check
	checksByOwner map[string][]string // targetID -> check IDs, insertion order
	incidents     map[string]*monitoring.Incident
	openIncident  map[string]string // targetID -> incidentID
	wallets       map[string]*monitoring.ProberWallet
	credited      map[string]bool // checkID -> already credited
	cooldowns     map[string]*monitoring.CooldownIndex
	rollups       map[string][]monitoring.DayRollup // targetID -> rollups, insertion order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		targets:       make(map[string]*monitoring.Target),
		checks:        make(map[string]*monitoring.Check),
		checksByOwner: make(map[string][]string),
		incidents:     make(map[string]*monitoring.Incident),
		openIncident:  make(map[string]string),
		wallets:       make(map[string]*monitoring.ProberWallet),
		credited:      make(map[string]bool),
		cooldowns:     make(map[string]*monitoring.CooldownIndex),
		rollups:       make(map[string][]monitoring.DayRollup),
	}
}

func cooldownKey(proberID, targetID string) string { return proberID + "|" + targetID }

// PutTarget seeds or updates a target, used by the external collaborator
// that owns Target CRUD and by tests.
func (m *MemoryStore) PutTarget(t *monitoring.Target) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.targets[t.ID] = &cp
}

func (m *MemoryStore) GetTarget(ctx context.Context, id string) (*monitoring.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.targets[id]
	if !ok {
		return nil, engerrors.NotFound("target", id)
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) ListActiveTargets(ctx context.Context) ([]*monitoring.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*monitoring.Target, 0, len(m.targets))
	for _, t := range m.targets {
		if t.Active {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Snapshot(ctx context.Context) ([]*monitoring.Target, error) {
	return m.ListActiveTargets(ctx)
}

func (m *MemoryStore) CreateCheck(ctx context.Context, c *monitoring.Check) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.checks[c.ID] = &cp
	m.checksByOwner[c.TargetID] = append(m.checksByOwner[c.TargetID], c.ID)
	return nil
}

func (m *MemoryStore) LatestCheck(ctx context.Context, targetID string) (*monitoring.Check, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.checksByOwner[targetID]
	if len(ids) == 0 {
		return nil, engerrors.NotFound("check", targetID)
	}
	cp := *m.checks[ids[len(ids)-1]]
	return &cp, nil
}

func (m *MemoryStore) ListChecks(ctx context.Context, targetID string, since, until time.Time) ([]*monitoring.Check, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*monitoring.Check, 0)
	for _, id := range m.checksByOwner[targetID] {
		c := m.checks[id]
		if !since.IsZero() && c.Timestamp.Before(since) {
			continue
		}
		if !until.IsZero() && c.Timestamp.After(until) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) MarkPaymentSettled(ctx context.Context, checkID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.checks[checkID]
	if !ok {
		return nil
	}
	c.PaymentSettled = true
	c.PaymentSettleAt = time.Now()
	return nil
}

func (m *MemoryStore) LastTimestamp(ctx context.Context, targetID, region string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var last time.Time
	found := false
	for _, id := range m.checksByOwner[targetID] {
		c := m.checks[id]
		if c.Region != region {
			continue
		}
		if !found || c.Timestamp.After(last) {
			last = c.Timestamp
			found = true
		}
	}
	return last, found, nil
}

func (m *MemoryStore) OpenIncident(ctx context.Context, i *monitoring.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.openIncident[i.TargetID]; exists {
		return engerrors.Conflict("target already has an open incident", 0)
	}
	cp := *i
	m.incidents[i.ID] = &cp
	m.openIncident[i.TargetID] = i.ID
	return nil
}

func (m *MemoryStore) ResolveIncident(ctx context.Context, incidentID, endCheckID string, resolvedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.incidents[incidentID]
	if !ok {
		return engerrors.NotFound("incident", incidentID)
	}
	i.Resolve(endCheckID, resolvedAt)
	delete(m.openIncident, i.TargetID)
	return nil
}

func (m *MemoryStore) GetOpenIncident(ctx context.Context, targetID string) (*monitoring.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.openIncident[targetID]
	if !ok {
		return nil, nil
	}
	cp := *m.incidents[id]
	return &cp, nil
}

func (m *MemoryStore) GetIncident(ctx context.Context, id string) (*monitoring.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.incidents[id]
	if !ok {
		return nil, engerrors.NotFound("incident", id)
	}
	cp := *i
	return &cp, nil
}

func (m *MemoryStore) ListIncidents(ctx context.Context, targetID string) ([]*monitoring.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*monitoring.Incident, 0)
	for _, i := range m.incidents {
		if i.TargetID == targetID {
			cp := *i
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].StartedAt.After(out[b].StartedAt) })
	return out, nil
}

func (m *MemoryStore) RecentResolved(ctx context.Context, targetID string, limit int) ([]*monitoring.Incident, error) {
	all, _ := m.ListIncidents(ctx, targetID)
	out := make([]*monitoring.Incident, 0, limit)
	for _, i := range all {
		if i.Resolved() {
			out = append(out, i)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) GetOrCreateWallet(ctx context.Context, proberID string) (*monitoring.ProberWallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[proberID]
	if !ok {
		w = &monitoring.ProberWallet{ProberID: proberID}
		m.wallets[proberID] = w
	}
	cp := *w
	cp.Ledger = append([]monitoring.LedgerEntry(nil), w.Ledger...)
	return &cp, nil
}

func (m *MemoryStore) CreditIdempotent(ctx context.Context, proberID, checkID string, amountMin int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.credited[checkID] {
		return false, nil
	}
	w, ok := m.wallets[proberID]
	if !ok {
		w = &monitoring.ProberWallet{ProberID: proberID}
		m.wallets[proberID] = w
	}
	w.Credit(checkID, amountMin, at)
	m.credited[checkID] = true
	return true, nil
}

func (m *MemoryStore) Get(ctx context.Context, proberID, targetID string) (*monitoring.CooldownIndex, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cooldowns[cooldownKey(proberID, targetID)]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) Upsert(ctx context.Context, proberID, targetID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cooldowns[cooldownKey(proberID, targetID)] = &monitoring.CooldownIndex{
		ProberID: proberID, TargetID: targetID, LastSubmitted: at,
	}
	return nil
}

func (m *MemoryStore) ListEligibleTargetIDs(ctx context.Context, proberID string, allTargetIDs []string, cooldown time.Duration) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(allTargetIDs))
	for _, id := range allTargetIDs {
		c, ok := m.cooldowns[cooldownKey(proberID, id)]
		if !ok || c.Eligible(time.Now(), cooldown) {
			out = append(out, id)
		}
	}
	return out, nil
}

// SaveRollup upserts the DayRollup for rollup.Date, replacing any existing
// entry for that day (a rollup job that re-runs for a partially-elapsed day
// must overwrite, not duplicate).
func (m *MemoryStore) SaveRollup(ctx context.Context, targetID string, rollup monitoring.DayRollup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.rollups[targetID]
	for i, r := range existing {
		if r.Date == rollup.Date {
			existing[i] = rollup
			return nil
		}
	}
	m.rollups[targetID] = append(existing, rollup)
	return nil
}

func (m *MemoryStore) ListRollups(ctx context.Context, targetID string, since, until time.Time) ([]monitoring.DayRollup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]monitoring.DayRollup, 0)
	for _, r := range m.rollups[targetID] {
		day, err := time.Parse("2006-01-02", r.Date)
		if err != nil {
			continue
		}
		if !since.IsZero() && day.Before(since) {
			continue
		}
		if !until.IsZero() && day.After(until) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

var (
	_ ports.TargetStore         = (*MemoryStore)(nil)
	_ ports.CheckStore          = (*MemoryStore)(nil)
	_ ports.IncidentStore       = (*MemoryStore)(nil)
	_ ports.WalletStore         = (*MemoryStore)(nil)
	_ ports.CooldownStore       = (*MemoryStore)(nil)
	_ ports.RollupStore         = (*MemoryStore)(nil)
	_ ports.TargetSnapshotSource = (*MemoryStore)(nil)

	_ ports.TargetStore         = (*PostgresTargetStore)(nil)
	_ ports.CheckStore          = (*PostgresCheckStore)(nil)
	_ ports.IncidentStore       = (*PostgresIncidentStore)(nil)
	_ ports.WalletStore         = (*PostgresWalletStore)(nil)
	_ ports.CooldownStore       = (*PostgresCooldownStore)(nil)
	_ ports.TargetSnapshotSource = (*PostgresTargetStore)(nil)
)
