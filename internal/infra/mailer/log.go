package mailer

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/social-identity/internal/core/domain"
	"github.com/arklim/social-identity/internal/infra/logger"
)

// LogTransport writes messages to the log instead of sending them. Used when no SMTP relay is configured.
type LogTransport struct {
	logger *zap.Logger
}

// NewLogTransport builds a LogTransport. A nil logger discards everything.
func NewLogTransport(log *zap.Logger) *LogTransport {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogTransport{logger: log}
}

// Send logs the masked recipient and subject, and the body at debug level.
// It fails only when ctx is already done.
func (t *LogTransport) Send(ctx context.Context, msg domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := logger.WithContext(ctx, t.logger)
	l.Info("smtp disabled, email not sent",
		zap.String("to", logger.MaskEmail(msg.To)),
		zap.String("subject", msg.Subject),
	)
	l.Debug("email body", zap.String("text", msg.Text))
	return nil
}
