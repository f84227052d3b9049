package mailer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-identity/internal/core/domain"
	"github.com/arklim/social-identity/internal/core/port"
	"github.com/arklim/social-identity/internal/infra/logger"
)

// Transport hands a rendered message to an outbound channel.
type Transport interface {
	Send(ctx context.Context, msg domain.Notification) error
}

// CodeMailer renders one-time code emails and delivers them through a Transport.
type CodeMailer struct {
	transport Transport
	logger    *zap.Logger
	clock     func() time.Time
}

// Option customises the CodeMailer.
type Option func(*CodeMailer)

// WithClock overrides the time source used to compute the remaining lifetime shown in emails.
func WithClock(clock func() time.Time) Option {
	return func(m *CodeMailer) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewCodeMailer constructs a mailer on top of transport.
func NewCodeMailer(transport Transport, log *zap.Logger, opts ...Option) (*CodeMailer, error) {
	if transport == nil {
		return nil, errors.New("mailer: transport is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &CodeMailer{
		transport: transport,
		logger:    log,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// SendCode renders and sends the code. Delivery errors are returned to the caller.
func (m *CodeMailer) SendCode(ctx context.Context, n port.CodeNotification) error {
	if n.Email == "" {
		return errors.New("mailer: recipient is required")
	}

	minutes := int(math.Ceil(n.ExpiresAt.Sub(m.clock()).Minutes()))
	msg, err := renderCode(n.Email, n.FullName, n.Code, n.Purpose, minutes)
	if err != nil {
		return fmt.Errorf("mailer: %w", err)
	}

	if err := m.transport.Send(ctx, msg); err != nil {
		logger.WithContext(ctx, m.logger).Warn("code email delivery failed",
			zap.String("email", logger.MaskEmail(n.Email)),
			zap.String("purpose", string(n.Purpose)),
			zap.Error(err),
		)
		return fmt.Errorf("mailer: send %s code: %w", n.Purpose, err)
	}

	logger.WithContext(ctx, m.logger).Info("code email sent",
		zap.String("email", logger.MaskEmail(n.Email)),
		zap.String("purpose", string(n.Purpose)),
	)
	return nil
}

var _ port.CodeSender = (*CodeMailer)(nil)
