package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/arklim/social-identity/internal/core/domain"
	"github.com/arklim/social-identity/internal/core/port"
	"github.com/arklim/social-identity/internal/infra/telemetry"
	"github.com/arklim/social-identity/internal/repository"
)

// VerificationEngine checks submitted codes and consumes them exactly once.
type VerificationEngine struct {
	users port.UserRepository
	opts  options
}

// NewVerificationEngine wires a verification engine on top of the user store.
func NewVerificationEngine(users port.UserRepository, opts ...Option) (*VerificationEngine, error) {
	if users == nil {
		return nil, errors.New("verification engine: user repository is required")
	}
	return &VerificationEngine{users: users, opts: buildOptions(opts)}, nil
}

// Verify reports whether code is the user's current, unused, unexpired code for purpose.
// A successful call consumes the code; unknown users and every kind of mismatch
// return false without an error.
func (e *VerificationEngine) Verify(ctx context.Context, email, code string, purpose domain.CodePurpose) (user *domain.User, ok bool, err error) {
	ctx, span := tracer.Start(ctx, "code.verify")
	span.SetAttributes(attribute.String("code.purpose", string(purpose)))
	defer func() {
		span.SetAttributes(attribute.Bool("code.accepted", ok))
		finishSpan(span, err)
	}()

	email = domain.NormalizeEmail(email)
	if email == "" || code == "" || !purpose.Valid() {
		e.opts.metrics.Verification(string(purpose), telemetry.ResultRejected)
		return nil, false, nil
	}

	user, err = e.users.ConsumeCode(ctx, email, code, purpose, e.opts.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			e.opts.metrics.Verification(string(purpose), telemetry.ResultRejected)
			return nil, false, nil
		}
		e.opts.metrics.Verification(string(purpose), telemetry.ResultError)
		return nil, false, fmt.Errorf("consume code: %w", err)
	}

	e.opts.metrics.Verification(string(purpose), telemetry.ResultSuccess)
	return user, true, nil
}
