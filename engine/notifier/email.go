package notifier

import (
	"context"

	"github.com/upweb-network/monitor-engine/infrastructure/logging"
)

// NoopEmailSender satisfies ports.EmailSender by logging instead of
// sending. Actual mail delivery is an external collaborator's concern
// (spec §1); a deployment wires a real transport in its place.
type NoopEmailSender struct {
	logger *logging.Logger
}

func NewNoopEmailSender(logger *logging.Logger) *NoopEmailSender {
	return &NoopEmailSender{logger: logger}
}

func (s *NoopEmailSender) Send(ctx context.Context, to []string, subject, body string) error {
	if s.logger != nil {
		s.logger.WithContext(ctx).WithField("to", to).WithField("subject", subject).
			Info("email suppressed (no transport configured)")
	}
	return nil
}
