package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-identity/internal/core/domain"
	"github.com/arklim/social-identity/internal/core/port"
	"github.com/arklim/social-identity/internal/infra/security"
	"github.com/arklim/social-identity/internal/infra/telemetry"
	"github.com/arklim/social-identity/internal/repository"
)

// -------- test fakes --------

type memoryUsers struct {
	mu         sync.Mutex
	byEmail    map[string]*domain.User
	getErr     error
	consumeErr error
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byEmail: map[string]*domain.User{}}
}

func (m *memoryUsers) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[user.Email]; ok {
		return repository.ErrConflict
	}
	u := user
	m.byEmail[user.Email] = &u
	return nil
}

func (m *memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byEmail {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	u, ok := m.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memoryUsers) UpdatePassword(_ context.Context, id string, hash string, at time.Time) error {
	return m.update(id, func(u *domain.User) {
		u.PasswordHash = hash
		u.UpdatedAt = at
	})
}

func (m *memoryUsers) update(id string, fn func(*domain.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byEmail {
		if u.ID == id {
			fn(u)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memoryUsers) SetCode(_ context.Context, email string, slot domain.CodeSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byEmail[email]
	if !ok {
		return repository.ErrNotFound
	}
	u.Code = slot
	return nil
}

// ConsumeCode mirrors the conditional UPDATE: check and mark under one lock.
func (m *memoryUsers) ConsumeCode(_ context.Context, email, code string, purpose domain.CodePurpose, now time.Time) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.consumeErr != nil {
		return nil, m.consumeErr
	}
	u, ok := m.byEmail[email]
	if !ok || !u.Code.Active(now) || *u.Code.Code != code || *u.Code.Purpose != purpose {
		return nil, repository.ErrNotFound
	}
	u.Code = domain.CodeSlot{Used: true}
	u.UpdatedAt = now
	if purpose == domain.CodePurposeRegistration {
		u.IsVerified = true
	}
	cp := *u
	return &cp, nil
}

func (m *memoryUsers) ClearExpiredCodes(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, u := range m.byEmail {
		if u.Code.ExpiresAt != nil && u.Code.ExpiresAt.Before(now) {
			u.Code = domain.CodeSlot{}
			n++
		}
	}
	return n, nil
}

func (m *memoryUsers) snapshot(t *testing.T, email string) domain.User {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byEmail[email]
	if !ok {
		t.Fatalf("user %s not stored", email)
	}
	return *u
}

type sentCode struct {
	email   string
	code    string
	purpose domain.CodePurpose
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (r *recordingSender) SendCode(_ context.Context, n port.CodeNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentCode{email: n.Email, code: n.Code, purpose: n.Purpose})
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func (r *recordingSender) last(t *testing.T) sentCode {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		t.Fatal("no code sent")
	}
	return r.sent[len(r.sent)-1]
}

// sequenceGenerator hands out 100001, 100002, ... so each issue is distinguishable.
type sequenceGenerator struct {
	mu   sync.Mutex
	next int
}

func (g *sequenceGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%06d", 100000+g.next), nil
}

type failingGenerator struct{}

func (failingGenerator) Generate() (string, error) {
	return "", errors.New("entropy unavailable")
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingEvents struct {
	mu         sync.Mutex
	registered []domain.UserRegisteredEvent
	verified   []domain.UserVerifiedEvent
	resets     []domain.PasswordResetEvent
	codes      []domain.CodeIssuedEvent
}

func (r *recordingEvents) PublishUserRegistered(_ context.Context, e domain.UserRegisteredEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = append(r.registered, e)
	return nil
}

func (r *recordingEvents) PublishUserVerified(_ context.Context, e domain.UserVerifiedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verified = append(r.verified, e)
	return nil
}

func (r *recordingEvents) PublishPasswordReset(_ context.Context, e domain.PasswordResetEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets = append(r.resets, e)
	return nil
}

func (r *recordingEvents) PublishCodeIssued(_ context.Context, e domain.CodeIssuedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, e)
	return nil
}

// -------- harness --------

const (
	testSecret   = "test-session-secret"
	testPassword = "Correct-Horse-Battery-42"
)

type harness struct {
	users    *memoryUsers
	sender   *recordingSender
	events   *recordingEvents
	clock    *clock
	metrics  *telemetry.IdentityMetrics
	tokens   *security.SessionTokenIssuer
	codes    *CodeService
	verifier *VerificationEngine
	svc      *IdentityService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		users:   newMemoryUsers(),
		sender:  &recordingSender{},
		events:  &recordingEvents{},
		clock:   &clock{now: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)},
		metrics: telemetry.NewNopIdentityMetrics(),
	}

	opts := []Option{
		WithLogger(zap.NewNop()),
		WithClock(h.clock.Now),
		WithMetrics(h.metrics),
		WithEventPublisher(h.events),
	}

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewArgon2Hasher: %v", err)
	}

	h.tokens, err = security.NewSessionTokenIssuer(security.SessionTokenConfig{
		Secret:   testSecret,
		Issuer:   "social-identity",
		Audience: "social-app",
	}, security.WithSessionClock(h.clock.Now))
	if err != nil {
		t.Fatalf("NewSessionTokenIssuer: %v", err)
	}

	if h.codes, err = NewCodeService(h.users, &sequenceGenerator{}, h.sender, DefaultCodeTTL, opts...); err != nil {
		t.Fatalf("NewCodeService: %v", err)
	}
	if h.verifier, err = NewVerificationEngine(h.users, opts...); err != nil {
		t.Fatalf("NewVerificationEngine: %v", err)
	}
	if h.svc, err = NewIdentityService(h.users, hasher, security.NewPasswordPolicy(), h.codes, h.verifier, h.tokens, opts...); err != nil {
		t.Fatalf("NewIdentityService: %v", err)
	}

	return h
}

func (h *harness) register(t *testing.T, email string) RegistrationResult {
	t.Helper()
	res, err := h.svc.RegisterInitiate(context.Background(), RegisterInput{
		FullName: "Jane Doe",
		Email:    email,
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("RegisterInitiate(%s): %v", email, err)
	}
	return res
}

func (h *harness) registerVerified(t *testing.T, email string) AuthResult {
	t.Helper()
	h.register(t, email)
	res, err := h.svc.RegisterVerify(context.Background(), email, h.sender.last(t).code)
	if err != nil {
		t.Fatalf("RegisterVerify(%s): %v", email, err)
	}
	return res
}
