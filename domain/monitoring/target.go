// Package monitoring holds the core entities of the monitoring engine:
// Target, Check, Incident, ProberWallet and CooldownIndex.
package monitoring

import (
	"net/url"
	"time"
)

// TargetKind is the probe protocol a Target is checked with.
type TargetKind string

const (
	KindHTTP  TargetKind = "http"
	KindHTTPS TargetKind = "https"
	KindDNS   TargetKind = "dns"
	KindSSL   TargetKind = "ssl"
	KindTCP   TargetKind = "tcp"
	KindPing  TargetKind = "ping"
)

// ValidKind reports whether k is one of the recognized protocol kinds.
func ValidKind(k TargetKind) bool {
	switch k {
	case KindHTTP, KindHTTPS, KindDNS, KindSSL, KindTCP, KindPing:
		return true
	}
	return false
}

// Target is a monitored endpoint: a URL, a probe kind, and a schedule.
type Target struct {
	ID                string
	OwnerID           string
	URL               string
	Kind              TargetKind
	IntervalSec       int
	TimeoutMs         int
	ExpectedStatus    int
	Active            bool
	Regions           []string
	AlertThreshold    int
	RecoveryThreshold int
	AlertContacts     []string
	OwnerEmail        string
	Name              string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Validate checks the invariants from spec §3: timeoutMs < intervalSec*1000,
// regions is a non-empty subset of knownRegions, the URL parses, and
// intervalSec respects the configured floor.
func (t *Target) Validate(knownRegions map[string]bool, intervalFloorSeconds int) error {
	if t.IntervalSec < intervalFloorSeconds {
		return errInvalidTarget("intervalSec below floor")
	}
	if t.TimeoutMs <= 0 || t.TimeoutMs >= t.IntervalSec*1000 {
		return errInvalidTarget("timeoutMs must be less than intervalSec*1000")
	}
	if !ValidKind(t.Kind) {
		return errInvalidTarget("unknown target kind")
	}
	if len(t.Regions) == 0 {
		return errInvalidTarget("regions must be non-empty")
	}
	for _, r := range t.Regions {
		if !knownRegions[r] {
			return errInvalidTarget("unknown region: " + r)
		}
	}
	if _, err := url.ParseRequestURI(t.URL); err != nil {
		return errInvalidTarget("url does not parse: " + err.Error())
	}
	if t.AlertThreshold < 1 {
		return errInvalidTarget("alertThreshold must be >= 1")
	}
	if t.RecoveryThreshold < 1 {
		t.RecoveryThreshold = 1
	}
	return nil
}

type invalidTargetError struct{ reason string }

func (e invalidTargetError) Error() string { return e.reason }

func errInvalidTarget(reason string) error { return invalidTargetError{reason: reason} }
