package domain

import (
	"strings"
	"time"
)

// CodePurpose tags why a one-time code was issued.
type CodePurpose string

const (
	CodePurposeRegistration   CodePurpose = "registration"
	CodePurposeForgotPassword CodePurpose = "forgot_password"
)

// Valid reports whether the purpose is one the service issues codes for.
func (p CodePurpose) Valid() bool {
	switch p {
	case CodePurposeRegistration, CodePurposeForgotPassword:
		return true
	default:
		return false
	}
}

// IdentityState enumerates the verification lifecycle of an account.
type IdentityState string

const (
	IdentityStateUnregistered        IdentityState = "unregistered"
	IdentityStatePendingVerification IdentityState = "pending_verification"
	IdentityStateVerified            IdentityState = "verified"
)

// CodeSlot is the single outstanding one-time code stored on a user row.
// When Code is set, Purpose and ExpiresAt are set and Used is false.
type CodeSlot struct {
	Code      *string
	Purpose   *CodePurpose
	ExpiresAt *time.Time
	Used      bool
}

// Active reports whether the slot holds an unused, unexpired code at the given instant.
func (s CodeSlot) Active(now time.Time) bool {
	if s.Code == nil || s.Purpose == nil || s.ExpiresAt == nil || s.Used {
		return false
	}
	return s.ExpiresAt.After(now)
}

// NewCodeSlot builds a fresh slot for the supplied code.
func NewCodeSlot(code string, purpose CodePurpose, expiresAt time.Time) CodeSlot {
	expires := expiresAt.UTC()
	return CodeSlot{
		Code:      &code,
		Purpose:   &purpose,
		ExpiresAt: &expires,
		Used:      false,
	}
}

// User mirrors the persisted representation in the users table.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	IsVerified   bool
	Code         CodeSlot
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// State maps the stored verification flag onto the identity lifecycle.
func (u *User) State() IdentityState {
	if u == nil {
		return IdentityStateUnregistered
	}
	if u.IsVerified {
		return IdentityStateVerified
	}
	return IdentityStatePendingVerification
}

// Sanitized returns a copy safe to hand to transport layers.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	u.Code = CodeSlot{}
	return u
}

// NormalizeEmail trims and lower-cases an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
