package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/arklim/social-identity/internal/core/domain"
	"github.com/arklim/social-identity/internal/core/port"
	"github.com/arklim/social-identity/internal/infra/logger"
	"github.com/arklim/social-identity/internal/infra/security"
	"github.com/arklim/social-identity/internal/infra/telemetry"
	"github.com/arklim/social-identity/internal/repository"
)

// TokenIssuer mints session tokens.
type TokenIssuer interface {
	Issue(userID, email string) (string, time.Time, error)
}

var _ TokenIssuer = (*security.SessionTokenIssuer)(nil)

// RegistrationOutcome distinguishes a fresh account from a re-sent code.
type RegistrationOutcome string

const (
	RegistrationCreated    RegistrationOutcome = "created"
	RegistrationCodeResent RegistrationOutcome = "code_resent"
)

const (
	registrationAlreadyVerified = "already_registered"
	registrationFailed          = "error"
)

// RegisterInput carries the register-initiate request.
type RegisterInput struct {
	FullName string
	Email    string
	Password string
}

// RegistrationResult is returned by RegisterInitiate.
type RegistrationResult struct {
	User          domain.User
	Outcome       RegistrationOutcome
	CodeExpiresAt time.Time
}

// AuthResult carries the profile and session token of an authenticated user.
type AuthResult struct {
	User  domain.User
	Token domain.SessionToken
}

// LoginResult is either an authenticated session or a request to verify the account first.
type LoginResult struct {
	AuthResult
	VerificationRequired bool
	CodeExpiresAt        time.Time
}

// ResetPasswordInput carries the reset-password request.
type ResetPasswordInput struct {
	Email       string
	Code        string
	NewPassword string
}

// IdentityService drives the per-user state machine
// unregistered -> pending_verification -> verified.
type IdentityService struct {
	users    port.UserRepository
	hasher   port.PasswordHasher
	policy   port.PasswordPolicyValidator
	codes    *CodeService
	verifier *VerificationEngine
	tokens   TokenIssuer
	opts     options
}

// NewIdentityService wires the identity state machine.
func NewIdentityService(
	users port.UserRepository,
	hasher port.PasswordHasher,
	policy port.PasswordPolicyValidator,
	codes *CodeService,
	verifier *VerificationEngine,
	tokens TokenIssuer,
	opts ...Option,
) (*IdentityService, error) {
	switch {
	case users == nil:
		return nil, errors.New("identity service: user repository is required")
	case hasher == nil:
		return nil, errors.New("identity service: password hasher is required")
	case codes == nil:
		return nil, errors.New("identity service: code service is required")
	case verifier == nil:
		return nil, errors.New("identity service: verification engine is required")
	case tokens == nil:
		return nil, errors.New("identity service: token issuer is required")
	}
	if policy == nil {
		policy = security.NewPasswordPolicy()
	}
	return &IdentityService{
		users:    users,
		hasher:   hasher,
		policy:   policy,
		codes:    codes,
		verifier: verifier,
		tokens:   tokens,
		opts:     buildOptions(opts),
	}, nil
}

// RegisterInitiate creates an unverified account and sends a registration code.
// For an existing unverified account it only re-sends a fresh code; the stored
// password is kept. Verified accounts get ErrAlreadyRegistered.
func (s *IdentityService) RegisterInitiate(ctx context.Context, in RegisterInput) (res RegistrationResult, err error) {
	ctx, span := tracer.Start(ctx, "identity.register_initiate")
	defer func() { finishSpan(span, err) }()

	fullName := strings.TrimSpace(in.FullName)
	email := domain.NormalizeEmail(in.Email)
	if err = requireFields(field{"full_name", fullName}, field{"email", email}, field{"password", in.Password}); err != nil {
		return RegistrationResult{}, err
	}

	existing, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return s.resendRegistration(ctx, existing)
	case !errors.Is(err, repository.ErrNotFound):
		s.opts.metrics.Registration(registrationFailed)
		return RegistrationResult{}, fmt.Errorf("lookup user: %w", err)
	}

	if err = s.policy.Validate(in.Password, fullName, email); err != nil {
		return RegistrationResult{}, passwordError("password", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return RegistrationResult{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.opts.now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     fullName,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err = s.users.Create(ctx, user); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			s.opts.metrics.Registration(registrationFailed)
			return RegistrationResult{}, fmt.Errorf("create user: %w", err)
		}
		// Lost a concurrent create for the same email.
		winner, lookupErr := s.users.GetByEmail(ctx, email)
		if lookupErr != nil {
			err = fmt.Errorf("lookup user after conflict: %w", lookupErr)
			return RegistrationResult{}, err
		}
		return s.resendRegistration(ctx, winner)
	}

	span.SetAttributes(attribute.String("user.id", user.ID))
	s.publishRegistered(ctx, user)

	issue, err := s.codes.Issue(ctx, &user, domain.CodePurposeRegistration)
	if err != nil {
		s.opts.metrics.Registration(registrationFailed)
		return RegistrationResult{}, err
	}

	s.opts.metrics.Registration(string(RegistrationCreated))
	logger.WithContext(ctx, s.opts.logger).Info("user registered",
		zap.String("user_id", user.ID),
		zap.String("email", logger.MaskEmail(email)),
	)

	return RegistrationResult{
		User:          user.Sanitized(),
		Outcome:       RegistrationCreated,
		CodeExpiresAt: issue.ExpiresAt,
	}, nil
}

func (s *IdentityService) resendRegistration(ctx context.Context, user *domain.User) (RegistrationResult, error) {
	if user.IsVerified {
		s.opts.metrics.Registration(registrationAlreadyVerified)
		return RegistrationResult{}, ErrAlreadyRegistered
	}

	issue, err := s.codes.Issue(ctx, user, domain.CodePurposeRegistration)
	if err != nil {
		s.opts.metrics.Registration(registrationFailed)
		return RegistrationResult{}, err
	}

	s.opts.metrics.Registration(string(RegistrationCodeResent))
	return RegistrationResult{
		User:          user.Sanitized(),
		Outcome:       RegistrationCodeResent,
		CodeExpiresAt: issue.ExpiresAt,
	}, nil
}

// RegisterVerify consumes a registration code, marks the account verified and opens a session.
func (s *IdentityService) RegisterVerify(ctx context.Context, email, code string) (res AuthResult, err error) {
	ctx, span := tracer.Start(ctx, "identity.register_verify")
	defer func() { finishSpan(span, err) }()

	email = domain.NormalizeEmail(email)
	if err = requireFields(field{"email", email}, field{"code", code}); err != nil {
		return AuthResult{}, err
	}

	user, ok, err := s.verifier.Verify(ctx, email, code, domain.CodePurposeRegistration)
	if err != nil {
		return AuthResult{}, err
	}
	if !ok {
		return AuthResult{}, ErrInvalidOrExpiredCode
	}

	if !user.IsVerified {
		return AuthResult{}, fmt.Errorf("registration code consumed for %s without verifying the account", user.ID)
	}
	now := s.opts.now().UTC()

	token, err := s.issueToken(user)
	if err != nil {
		return AuthResult{}, err
	}

	if s.opts.events != nil {
		event := domain.UserVerifiedEvent{
			EventID:    uuid.NewString(),
			UserID:     user.ID,
			Email:      user.Email,
			VerifiedAt: now,
		}
		if pubErr := s.opts.events.PublishUserVerified(ctx, event); pubErr != nil {
			s.warnPublish(ctx, "user verified", pubErr)
		}
	}

	return AuthResult{User: user.Sanitized(), Token: token}, nil
}

// Login authenticates a verified account. Unverified accounts are sent a fresh
// registration code without their password being checked.
func (s *IdentityService) Login(ctx context.Context, email, password string) (res LoginResult, err error) {
	ctx, span := tracer.Start(ctx, "identity.login")
	defer func() { finishSpan(span, err) }()

	email = domain.NormalizeEmail(email)
	if err = requireFields(field{"email", email}, field{"password", password}); err != nil {
		return LoginResult{}, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.opts.metrics.Login(telemetry.ResultNotFound)
			return LoginResult{}, ErrUserNotFound
		}
		s.opts.metrics.Login(telemetry.ResultError)
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}

	if !user.IsVerified {
		issue, issueErr := s.codes.Issue(ctx, user, domain.CodePurposeRegistration)
		if issueErr != nil {
			s.opts.metrics.Login(telemetry.ResultError)
			return LoginResult{}, issueErr
		}
		s.opts.metrics.Login(telemetry.ResultVerificationNeeded)
		return LoginResult{
			AuthResult:           AuthResult{User: user.Sanitized()},
			VerificationRequired: true,
			CodeExpiresAt:        issue.ExpiresAt,
		}, nil
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		s.opts.metrics.Login(telemetry.ResultInvalidCredentials)
		logger.WithContext(ctx, s.opts.logger).Info("login rejected",
			zap.String("user_id", user.ID),
		)
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.issueToken(user)
	if err != nil {
		s.opts.metrics.Login(telemetry.ResultError)
		return LoginResult{}, err
	}

	s.opts.metrics.Login(telemetry.ResultSuccess)
	return LoginResult{AuthResult: AuthResult{User: user.Sanitized(), Token: token}}, nil
}

// ForgotPassword sends a password reset code to an existing account.
func (s *IdentityService) ForgotPassword(ctx context.Context, email string) (issue CodeIssue, err error) {
	ctx, span := tracer.Start(ctx, "identity.forgot_password")
	defer func() { finishSpan(span, err) }()

	email = domain.NormalizeEmail(email)
	if err = requireFields(field{"email", email}); err != nil {
		return CodeIssue{}, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return CodeIssue{}, ErrUserNotFound
		}
		return CodeIssue{}, fmt.Errorf("lookup user: %w", err)
	}

	return s.codes.Issue(ctx, user, domain.CodePurposeForgotPassword)
}

// ResetPassword consumes a forgot_password code and replaces the password hash.
// It does not open a session.
func (s *IdentityService) ResetPassword(ctx context.Context, in ResetPasswordInput) (err error) {
	ctx, span := tracer.Start(ctx, "identity.reset_password")
	defer func() { finishSpan(span, err) }()

	email := domain.NormalizeEmail(in.Email)
	if err = requireFields(field{"email", email}, field{"code", in.Code}, field{"new_password", in.NewPassword}); err != nil {
		return err
	}
	if err = s.policy.Validate(in.NewPassword, email); err != nil {
		return passwordError("new_password", err)
	}

	user, ok, err := s.verifier.Verify(ctx, email, in.Code, domain.CodePurposeForgotPassword)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidOrExpiredCode
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.opts.now().UTC()
	if err = s.users.UpdatePassword(ctx, user.ID, hash, now); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	logger.WithContext(ctx, s.opts.logger).Info("password reset", zap.String("user_id", user.ID))

	if s.opts.events != nil {
		event := domain.PasswordResetEvent{EventID: uuid.NewString(), UserID: user.ID, ResetAt: now}
		if pubErr := s.opts.events.PublishPasswordReset(ctx, event); pubErr != nil {
			s.warnPublish(ctx, "password reset", pubErr)
		}
	}

	return nil
}

// Profile returns the sanitized account for userID.
func (s *IdentityService) Profile(ctx context.Context, userID string) (domain.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.User{}, ErrUserNotFound
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user.Sanitized(), nil
}

func (s *IdentityService) issueToken(user *domain.User) (domain.SessionToken, error) {
	value, expiresAt, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return domain.SessionToken{}, fmt.Errorf("issue session token: %w", err)
	}
	return domain.SessionToken{Value: value, ExpiresAt: expiresAt}, nil
}

func (s *IdentityService) publishRegistered(ctx context.Context, user domain.User) {
	if s.opts.events == nil {
		return
	}
	event := domain.UserRegisteredEvent{
		EventID:      uuid.NewString(),
		UserID:       user.ID,
		Email:        user.Email,
		FullName:     user.FullName,
		RegisteredAt: user.CreatedAt,
	}
	if err := s.opts.events.PublishUserRegistered(ctx, event); err != nil {
		s.warnPublish(ctx, "user registered", err)
	}
}

func (s *IdentityService) warnPublish(ctx context.Context, event string, err error) {
	logger.WithContext(ctx, s.opts.logger).Warn("publish event failed",
		zap.String("event", event),
		zap.Error(err),
	)
}

type field struct {
	name  string
	value string
}

func requireFields(fields ...field) error {
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return newValidationError(f.name, "is required")
		}
	}
	return nil
}

func passwordError(fieldName string, err error) error {
	var pve *security.PasswordValidationError
	if errors.As(err, &pve) {
		return newValidationError(fieldName, pve.Message)
	}
	return newValidationError(fieldName, err.Error())
}
