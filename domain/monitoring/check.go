package monitoring

import "time"

// ErrorKind categorizes why a probe failed. Populated only when Success is
// false; the zero value means no error.
type ErrorKind string

const (
	ErrorNone             ErrorKind = ""
	ErrorStatusMismatch   ErrorKind = "status_mismatch"
	ErrorTransport        ErrorKind = "transport"
	ErrorTLS              ErrorKind = "tls"
	ErrorTimeout          ErrorKind = "timeout"
	ErrorDNS              ErrorKind = "dns"
	ErrorNXDomain         ErrorKind = "nxdomain"
	ErrorServFail         ErrorKind = "servfail"
	ErrorCertExpired      ErrorKind = "cert_expired"
	ErrorCertUntrusted    ErrorKind = "cert_untrusted"
	ErrorCertSignature    ErrorKind = "cert_signature"
	ErrorHandshakeTimeout ErrorKind = "handshake_timeout"
	ErrorOverrun          ErrorKind = "overrun"
)

// LocationInfo enriches a Check with where the probe physically ran from.
// Absent fields render as "Unknown" at the notification boundary, per
// spec §9 (location enrichment design note).
type LocationInfo struct {
	City      string
	Country   string
	Latitude  float64
	Longitude float64
	HasCoords bool
	IP        string
}

// Field renders a location field or "Unknown" if absent, matching the
// design note that absent enrichment fields are never left blank.
func (l *LocationInfo) Field(get func(LocationInfo) string) string {
	if l == nil {
		return "Unknown"
	}
	if v := get(*l); v != "" {
		return v
	}
	return "Unknown"
}

// Check is the immutable record of one probe outcome.
type Check struct {
	ID              string
	TargetID        string
	OwnerID         string
	Success         bool
	StatusCode      int
	ResponseTimeMs  int64
	ErrorKind       ErrorKind
	ErrorMessage    string
	Region          string
	LocationInfo    *LocationInfo
	ProberID        string
	Timestamp       time.Time
	PaymentSettled  bool
	PaymentSettleAt time.Time
}

// IsSubmitted reports whether this check carries a ProberID: a check from
// the ad-hoc Submission Gateway or an owner-triggered manual probe, as
// opposed to a scheduled or admin-triggered probe.
func (c *Check) IsSubmitted() bool {
	return c.ProberID != ""
}
