package monitoring

import "time"

// LedgerEntry is one append-only credit into a ProberWallet, keyed by the
// Check that earned it so payment crediting is idempotent under retry
// (spec §4.6, §8).
type LedgerEntry struct {
	CheckID   string
	ProberID  string
	AmountMin int64 // minor currency units
	CreatedAt time.Time
}

// ProberWallet accumulates per-check micro-payments for a roaming prober.
// balance = sum(ledger.amount) is re-derivable at any time (spec §8).
type ProberWallet struct {
	ProberID string
	Balance  int64
	Ledger   []LedgerEntry
}

// HasCredited reports whether checkID has already been paid, making Credit
// idempotent per the ledger-key design note in spec §9.
func (w *ProberWallet) HasCredited(checkID string) bool {
	for _, e := range w.Ledger {
		if e.CheckID == checkID {
			return true
		}
	}
	return false
}

// Credit appends a ledger entry and updates the balance. Callers must check
// HasCredited first; Credit itself does not re-check to keep store-backed
// implementations able to enforce the uniqueness constraint at the
// persistence layer instead.
func (w *ProberWallet) Credit(checkID string, amountMin int64, at time.Time) {
	w.Ledger = append(w.Ledger, LedgerEntry{
		CheckID:   checkID,
		ProberID:  w.ProberID,
		AmountMin: amountMin,
		CreatedAt: at,
	})
	w.Balance += amountMin
}

// CooldownIndex upserts (proberID, targetID) -> lastSubmittedAt pairs used
// by the Submission Gateway to enforce the per-pair cooldown (spec §3, §4.3).
type CooldownIndex struct {
	ProberID       string
	TargetID       string
	LastSubmitted  time.Time
}

// Eligible reports whether a prober may submit again for a target given the
// configured cooldown window.
func (c *CooldownIndex) Eligible(now time.Time, cooldown time.Duration) bool {
	if c == nil {
		return true
	}
	return now.Sub(c.LastSubmitted) >= cooldown
}

// Remaining returns how much of the cooldown window is left, for surfacing
// in a Conflict error per spec §7.
func (c *CooldownIndex) Remaining(now time.Time, cooldown time.Duration) time.Duration {
	if c == nil {
		return 0
	}
	rem := cooldown - now.Sub(c.LastSubmitted)
	if rem < 0 {
		return 0
	}
	return rem
}
