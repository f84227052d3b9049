package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-identity/internal/core/domain"
	"github.com/arklim/social-identity/internal/core/port"
	"github.com/arklim/social-identity/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(log *zap.Logger) *StubPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &StubPublisher{logger: log}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published", append([]zap.Field{
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
	}, fields...)...)
}

// PublishUserRegistered logs identity.user.registered events.
func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	p.logEvent(eventUserRegistered, event.UserID, event.RegisteredAt,
		zap.String("email", logger.MaskEmail(event.Email)),
	)
	return nil
}

// PublishUserVerified logs identity.user.verified events.
func (p *StubPublisher) PublishUserVerified(_ context.Context, event domain.UserVerifiedEvent) error {
	p.logEvent(eventUserVerified, event.UserID, event.VerifiedAt,
		zap.String("email", logger.MaskEmail(event.Email)),
	)
	return nil
}

// PublishPasswordReset logs identity.user.password_reset events.
func (p *StubPublisher) PublishPasswordReset(_ context.Context, event domain.PasswordResetEvent) error {
	p.logEvent(eventPasswordReset, event.UserID, event.ResetAt)
	return nil
}

// PublishCodeIssued logs identity.code.issued events.
func (p *StubPublisher) PublishCodeIssued(_ context.Context, event domain.CodeIssuedEvent) error {
	p.logEvent(eventCodeIssued, event.UserID, event.IssuedAt,
		zap.String("purpose", string(event.Purpose)),
		zap.Time("expires_at", event.ExpiresAt.UTC()),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
