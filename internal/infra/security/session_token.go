package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

// ErrInvalidToken indicates a session token failed signature, claim, or expiry validation.
var ErrInvalidToken = errors.New("invalid session token")

const defaultSessionTTL = 7 * 24 * time.Hour

// SessionClaims is the payload carried by a session token.
type SessionClaims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// SessionTokenConfig configures the issuer.
type SessionTokenConfig struct {
	Secret   string
	TTL      time.Duration
	Issuer   string
	Audience string
}

// SessionTokenIssuer mints and validates HS256 session tokens.
type SessionTokenIssuer struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	audience string
	clock    func() time.Time
}

// SessionTokenOption customises the issuer.
type SessionTokenOption func(*SessionTokenIssuer)

// WithSessionClock overrides the time source used for issuing and validating tokens.
func WithSessionClock(clock func() time.Time) SessionTokenOption {
	return func(i *SessionTokenIssuer) {
		if clock != nil {
			i.clock = clock
		}
	}
}

// NewSessionTokenIssuer validates cfg and returns an issuer.
func NewSessionTokenIssuer(cfg SessionTokenConfig, opts ...SessionTokenOption) (*SessionTokenIssuer, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, fmt.Errorf("jwt: signing secret is required")
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, fmt.Errorf("jwt: issuer is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = issuer
	}

	i := &SessionTokenIssuer{
		secret:   []byte(secret),
		ttl:      ttl,
		issuer:   issuer,
		audience: audience,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// TTL returns the lifetime applied to new tokens.
func (i *SessionTokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a new session token for the user and returns it with its expiry.
func (i *SessionTokenIssuer) Issue(userID, email string) (string, time.Time, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", time.Time{}, fmt.Errorf("jwt: user id is required")
	}

	now := i.clock().UTC().Truncate(time.Second)
	expiresAt := now.Add(i.ttl)

	claims := SessionClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify validates the signature, issuer, audience and expiry of token.
func (i *SessionTokenIssuer) Verify(token string) (*SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid || strings.TrimSpace(claims.UserID) == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Decode parses token without checking its signature. The result must not be
// used for authorization.
func (i *SessionTokenIssuer) Decode(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(token), claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
