package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/arklim/social-identity/internal/core/domain"
	"github.com/arklim/social-identity/internal/core/port"
	"github.com/arklim/social-identity/internal/infra/logger"
	"github.com/arklim/social-identity/internal/repository"
)

// DefaultCodeTTL is how long an issued code stays valid.
const DefaultCodeTTL = 10 * time.Minute

// CodeIssue describes a code that was stored and delivered. The code value is never returned.
type CodeIssue struct {
	Purpose   domain.CodePurpose
	ExpiresAt time.Time
}

// CodeService issues one-time codes: generate, store on the user row, deliver.
type CodeService struct {
	users     port.UserRepository
	generator port.CodeGenerator
	sender    port.CodeSender
	ttl       time.Duration
	opts      options
}

// NewCodeService wires a code service. A non-positive ttl falls back to DefaultCodeTTL.
func NewCodeService(users port.UserRepository, generator port.CodeGenerator, sender port.CodeSender, ttl time.Duration, opts ...Option) (*CodeService, error) {
	if users == nil {
		return nil, errors.New("code service: user repository is required")
	}
	if generator == nil {
		return nil, errors.New("code service: code generator is required")
	}
	if sender == nil {
		return nil, errors.New("code service: code sender is required")
	}
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	return &CodeService{
		users:     users,
		generator: generator,
		sender:    sender,
		ttl:       ttl,
		opts:      buildOptions(opts),
	}, nil
}

// TTL returns the lifetime applied to new codes.
func (s *CodeService) TTL() time.Duration {
	return s.ttl
}

// Issue overwrites the user's code slot with a fresh code and waits for delivery.
// When delivery fails the stored code stays in place and ErrDeliveryFailure is returned.
func (s *CodeService) Issue(ctx context.Context, user *domain.User, purpose domain.CodePurpose) (issue CodeIssue, err error) {
	ctx, span := tracer.Start(ctx, "code.issue")
	span.SetAttributes(attribute.String("code.purpose", string(purpose)))
	defer func() { finishSpan(span, err) }()

	if user == nil {
		return CodeIssue{}, errors.New("issue code: user is required")
	}
	if !purpose.Valid() {
		return CodeIssue{}, fmt.Errorf("issue code: unsupported purpose %q", purpose)
	}

	code, err := s.generator.Generate()
	if err != nil {
		return CodeIssue{}, fmt.Errorf("generate code: %w", err)
	}

	now := s.opts.now().UTC()
	expiresAt := now.Add(s.ttl)

	if err = s.users.SetCode(ctx, user.Email, domain.NewCodeSlot(code, purpose, expiresAt)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return CodeIssue{}, ErrUserNotFound
		}
		return CodeIssue{}, fmt.Errorf("store code: %w", err)
	}

	log := logger.WithContext(ctx, s.opts.logger).With(
		zap.String("user_id", user.ID),
		zap.String("purpose", string(purpose)),
	)

	err = s.sender.SendCode(ctx, port.CodeNotification{
		Email:     user.Email,
		FullName:  user.FullName,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		s.opts.metrics.DeliveryFailed(string(purpose))
		log.Error("code delivery failed", zap.Error(err))
		return CodeIssue{}, fmt.Errorf("%w: %v", ErrDeliveryFailure, err)
	}

	s.opts.metrics.CodeIssued(string(purpose))
	log.Info("code issued", zap.Time("expires_at", expiresAt))

	if s.opts.events != nil {
		event := domain.CodeIssuedEvent{
			EventID:   uuid.NewString(),
			UserID:    user.ID,
			Purpose:   purpose,
			IssuedAt:  now,
			ExpiresAt: expiresAt,
		}
		if pubErr := s.opts.events.PublishCodeIssued(ctx, event); pubErr != nil {
			log.Warn("publish code issued event failed", zap.Error(pubErr))
		}
	}

	return CodeIssue{Purpose: purpose, ExpiresAt: expiresAt}, nil
}
