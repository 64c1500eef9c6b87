package monitoring

import "time"

// DayRollup is one day's aggregate over a Target's Checks (spec §4.7).
type DayRollup struct {
	Date          string // YYYY-MM-DD, UTC
	TotalChecks   int
	Successful    int
	UptimePct     float64
	AvgResponseMs float64
}

// TargetStats is the derived view spec §4.7 describes: computed on query
// (or served from precomputed DayRollups for days fully in the past).
type TargetStats struct {
	TargetID          string
	Window            time.Duration
	UptimePct         float64
	AvgResponseTimeMs float64
	MinResponseTimeMs int64
	MaxResponseTimeMs int64
	TotalChecks       int
	CurrentStatus     string // "up", "down", or "unknown" if no Checks exist
	DayRollups        []DayRollup
	OpenIncidents     []*Incident
	RecentResolved    []*Incident
}

const (
	StatusUp      = "up"
	StatusDown    = "down"
	StatusUnknown = "unknown"
)
