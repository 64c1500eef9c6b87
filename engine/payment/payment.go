// Package payment implements the Payment Dispatcher (spec §4.6): idempotent
// per-check crediting of a ProberWallet. Only checks carrying a real
// ProberID are paid: Submission Gateway checks and owner-triggered manual
// probes. Scheduled and admin probes are excluded (spec §9 open-question
// resolution, recorded in DESIGN.md).
package payment

import (
	"context"
	"time"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
	"github.com/upweb-network/monitor-engine/infrastructure/logging"
	"github.com/upweb-network/monitor-engine/infrastructure/metrics"
	"github.com/upweb-network/monitor-engine/infrastructure/resilience"
	"github.com/upweb-network/monitor-engine/ports"
)

// retryConfig bounds the wallet-lookup retry before the Check is marked
// permanently unsettled and an operator alert is raised (spec §4.6:
// "bounded" retry, exact ladder left to the implementation).
func retryConfig() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		Jitter:       0.1,
	}
}

// OperatorAlerter receives a best-effort notification when a Check's
// payment permanently fails to settle (spec §4.6: "emit an operator
// alert"). A nil Alerter is valid; the dispatcher only logs in that case.
type OperatorAlerter interface {
	AlertPaymentExhausted(ctx context.Context, check *monitoring.Check, err error)
}

// Dispatcher credits ProberWallets. It satisfies ports.PaymentDispatcher.
type Dispatcher struct {
	wallets        ports.WalletStore
	checks         ports.CheckStore
	amountPerCheck int64
	alerter        OperatorAlerter
	metrics        *metrics.Metrics
	logger         *logging.Logger
	retry          resilience.RetryConfig
}

// New constructs a Dispatcher crediting amountPerCheckMinorUnits per paid
// Check (spec §6: paymentPerCheckMinorUnits, default 5).
func New(wallets ports.WalletStore, checks ports.CheckStore, amountPerCheckMinorUnits int64, alerter OperatorAlerter, m *metrics.Metrics, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{
		wallets: wallets, checks: checks, amountPerCheck: amountPerCheckMinorUnits,
		alerter: alerter, metrics: m, logger: logger, retry: retryConfig(),
	}
}

// WithRetryConfig overrides the wallet-lookup retry ladder, used by tests
// that need retry exhaustion to happen faster than the production ladder.
func (d *Dispatcher) WithRetryConfig(cfg resilience.RetryConfig) *Dispatcher {
	d.retry = cfg
	return d
}

// Credit implements ports.PaymentDispatcher. It runs asynchronously so a
// wallet-store hiccup never blocks or fails the probe pipeline (spec §4.6,
// §7: "Payment failures never fail the caller's probe; they are
// deferred"). Only checks carrying a ProberID (ad-hoc submissions and
// owner-triggered manual probes) are paid; scheduled/admin probes have no
// ProberID and are silently skipped.
func (d *Dispatcher) Credit(ctx context.Context, check *monitoring.Check) {
	if !check.IsSubmitted() {
		return
	}
	go d.creditWithRetry(check)
}

func (d *Dispatcher) creditWithRetry(check *monitoring.Check) {
	ctx := context.Background()
	var credited bool

	err := resilience.Retry(ctx, d.retry, func() error {
		ok, err := d.wallets.CreditIdempotent(ctx, check.ProberID, check.ID, d.amountPerCheck, time.Now())
		if err != nil {
			return err
		}
		credited = ok
		return nil
	})

	if err != nil {
		d.exhausted(ctx, check, err)
		return
	}

	d.metrics.PaymentCredits.Inc()
	if d.logger != nil {
		d.logger.LogPaymentCredit(ctx, check.ProberID, check.ID, d.amountPerCheck, credited)
	}

	if markErr := d.checks.MarkPaymentSettled(ctx, check.ID); markErr != nil && d.logger != nil {
		d.logger.WithContext(ctx).WithField("check_id", check.ID).
			WithField("error", markErr.Error()).Warn("failed to mark payment settled")
	}
}

// exhausted marks the Check permanently unsettled and raises an operator
// alert without failing the pipeline (spec §4.6).
func (d *Dispatcher) exhausted(ctx context.Context, check *monitoring.Check, err error) {
	d.metrics.PaymentExhausted.Inc()
	if d.logger != nil {
		d.logger.WithContext(ctx).WithField("check_id", check.ID).
			WithField("prober_id", check.ProberID).WithField("error", err.Error()).
			Error("payment settlement exhausted retries")
	}
	if d.alerter != nil {
		d.alerter.AlertPaymentExhausted(ctx, check, err)
	}
}
