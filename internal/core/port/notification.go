package port

import (
	"context"
	"time"

	"github.com/arklim/social-identity/internal/core/domain"
)

// CodeNotification describes a one-time code that must reach the account owner.
type CodeNotification struct {
	Email     string
	FullName  string
	Code      string
	Purpose   domain.CodePurpose
	ExpiresAt time.Time
}

// CodeSender delivers one-time codes over an outbound channel.
type CodeSender interface {
	SendCode(ctx context.Context, notification CodeNotification) error
}
