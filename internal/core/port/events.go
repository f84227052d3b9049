package port

import (
	"context"

	"github.com/arklim/social-identity/internal/core/domain"
)

// EventPublisher publishes identity events to the message bus.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
	PublishUserVerified(ctx context.Context, event domain.UserVerifiedEvent) error
	PublishPasswordReset(ctx context.Context, event domain.PasswordResetEvent) error
	PublishCodeIssued(ctx context.Context, event domain.CodeIssuedEvent) error
}
