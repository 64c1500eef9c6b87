// Package stats implements the Stats View (spec §4.7): uptime, response
// time aggregates, per-day rollups, current status, and the open plus 10
// most recent resolved Incidents for a Target, computed on query over an
// index on (targetId, timestamp).
package stats

import (
	"context"
	"time"

	engerrors "github.com/upweb-network/monitor-engine/infrastructure/errors"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
	"github.com/upweb-network/monitor-engine/ports"
)

const recentResolvedLimit = 10

// View answers Stats View queries.
type View struct {
	targets   ports.TargetStore
	checks    ports.CheckStore
	incidents ports.IncidentStore
	rollups   ports.RollupStore
}

func New(targets ports.TargetStore, checks ports.CheckStore, incidents ports.IncidentStore, rollups ports.RollupStore) *View {
	return &View{targets: targets, checks: checks, incidents: incidents, rollups: rollups}
}

// GetTargetStats computes the full Stats View payload for targetID over
// the trailing window.
func (v *View) GetTargetStats(ctx context.Context, targetID string, window time.Duration) (*monitoring.TargetStats, error) {
	if _, err := v.targets.GetTarget(ctx, targetID); err != nil {
		return nil, err
	}

	now := time.Now()
	since := now.Add(-window)

	checks, err := v.checks.ListChecks(ctx, targetID, since, now)
	if err != nil {
		return nil, engerrors.Unavailable("list_checks", err)
	}

	stats := &monitoring.TargetStats{TargetID: targetID, Window: window, CurrentStatus: monitoring.StatusUnknown}
	summarize(stats, checks)

	if latest, err := v.checks.LatestCheck(ctx, targetID); err == nil && latest != nil {
		stats.CurrentStatus = statusFor(latest.Success)
	}

	if v.rollups != nil {
		rollups, err := v.rollups.ListRollups(ctx, targetID, since, now)
		if err == nil {
			stats.DayRollups = rollups
		}
	}
	if len(stats.DayRollups) == 0 {
		stats.DayRollups = rollupFromChecks(checks)
	}

	if open, err := v.incidents.GetOpenIncident(ctx, targetID); err == nil && open != nil {
		stats.OpenIncidents = []*monitoring.Incident{open}
	}
	if recent, err := v.incidents.RecentResolved(ctx, targetID, recentResolvedLimit); err == nil {
		stats.RecentResolved = recent
	}

	return stats, nil
}

func statusFor(success bool) string {
	if success {
		return monitoring.StatusUp
	}
	return monitoring.StatusDown
}

// summarize fills in the scalar aggregates spec §4.7 names: uptimePct,
// avg/min/max responseTimeMs, total checks.
func summarize(stats *monitoring.TargetStats, checks []*monitoring.Check) {
	stats.TotalChecks = len(checks)
	if len(checks) == 0 {
		return
	}

	var successful int
	var sumResponse int64
	minResponse := checks[0].ResponseTimeMs
	maxResponse := checks[0].ResponseTimeMs

	for _, c := range checks {
		if c.Success {
			successful++
		}
		sumResponse += c.ResponseTimeMs
		if c.ResponseTimeMs < minResponse {
			minResponse = c.ResponseTimeMs
		}
		if c.ResponseTimeMs > maxResponse {
			maxResponse = c.ResponseTimeMs
		}
	}

	stats.UptimePct = float64(successful) / float64(len(checks)) * 100
	stats.AvgResponseTimeMs = float64(sumResponse) / float64(len(checks))
	stats.MinResponseTimeMs = minResponse
	stats.MaxResponseTimeMs = maxResponse
}

// rollupFromChecks computes per-day rollups directly from raw Checks, used
// when no RollupStore is wired, when its query fails, or when it returns no
// rollups for the window. When the store returns any rollups they are used
// as they are: days it lacks (such as today, which the nightly job hasn't
// rolled up yet) are not filled in from raw Checks.
func rollupFromChecks(checks []*monitoring.Check) []monitoring.DayRollup {
	byDay := make(map[string]*monitoring.DayRollup)
	order := make([]string, 0)

	for _, c := range checks {
		day := c.Timestamp.UTC().Format("2006-01-02")
		r, ok := byDay[day]
		if !ok {
			r = &monitoring.DayRollup{Date: day}
			byDay[day] = r
			order = append(order, day)
		}
		r.TotalChecks++
		if c.Success {
			r.Successful++
		}
		r.AvgResponseMs += float64(c.ResponseTimeMs)
	}

	out := make([]monitoring.DayRollup, 0, len(order))
	for _, day := range order {
		r := byDay[day]
		if r.TotalChecks > 0 {
			r.AvgResponseMs /= float64(r.TotalChecks)
			r.UptimePct = float64(r.Successful) / float64(r.TotalChecks) * 100
		}
		out = append(out, *r)
	}
	return out
}
