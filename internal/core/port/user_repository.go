package port

import (
	"context"
	"time"

	"github.com/arklim/social-identity/internal/core/domain"
)

// UserRepository exposes persistence behavior for users and their one-time code slot.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error

	// SetCode overwrites the code slot of the user owning email.
	SetCode(ctx context.Context, email string, slot domain.CodeSlot) error
	// ConsumeCode marks a matching, unused, unexpired code as used and returns the owning user.
	// It must be a single conditional update so that concurrent callers cannot both succeed.
	// Consuming a registration code marks the account verified in that same update.
	ConsumeCode(ctx context.Context, email, code string, purpose domain.CodePurpose, now time.Time) (*domain.User, error)
	// ClearExpiredCodes resets every slot whose expiry is before now and returns the number of rows touched.
	ClearExpiredCodes(ctx context.Context, now time.Time) (int64, error)
}
