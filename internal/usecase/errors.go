package usecase

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrAlreadyRegistered indicates the email belongs to a verified account.
	ErrAlreadyRegistered = errors.New("email already registered")
	// ErrInvalidOrExpiredCode covers wrong, expired, used and mismatched-purpose codes alike.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")
	// ErrInvalidCredentials indicates a password mismatch for a verified account.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound indicates no account exists for the identifier.
	ErrUserNotFound = errors.New("user not found")
	// ErrDeliveryFailure indicates the outbound mail channel rejected or timed out sending a code.
	ErrDeliveryFailure = errors.New("failed to deliver verification code")
)

// ValidationError describes a single rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func newValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
