package payment

import (
	"context"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
	"github.com/upweb-network/monitor-engine/infrastructure/logging"
)

// LogAlerter is the default OperatorAlerter: it surfaces exhausted payment
// settlements as a structured error-level log line. A deployment wanting a
// paged alert swaps this for an OperatorAlerter backed by its own transport
// without touching the Dispatcher.
type LogAlerter struct {
	logger *logging.Logger
}

func NewLogAlerter(logger *logging.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

func (a *LogAlerter) AlertPaymentExhausted(ctx context.Context, check *monitoring.Check, err error) {
	if a.logger == nil {
		return
	}
	a.logger.WithContext(ctx).WithField("check_id", check.ID).
		WithField("prober_id", check.ProberID).WithField("error", err.Error()).
		Error("operator alert: payment settlement permanently exhausted")
}
