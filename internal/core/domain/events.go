package domain

import "time"

// UserRegisteredEvent represents the payload for identity.user.registered messages.
type UserRegisteredEvent struct {
	EventID      string
	UserID       string
	Email        string
	FullName     string
	RegisteredAt time.Time
}

// UserVerifiedEvent represents the payload for identity.user.verified messages.
type UserVerifiedEvent struct {
	EventID    string
	UserID     string
	Email      string
	VerifiedAt time.Time
}

// PasswordResetEvent represents the payload for identity.user.password_reset messages.
type PasswordResetEvent struct {
	EventID string
	UserID  string
	ResetAt time.Time
}

// CodeIssuedEvent represents the payload for identity.code.issued messages.
// The code itself is never part of the event.
type CodeIssuedEvent struct {
	EventID   string
	UserID    string
	Purpose   CodePurpose
	IssuedAt  time.Time
	ExpiresAt time.Time
}
