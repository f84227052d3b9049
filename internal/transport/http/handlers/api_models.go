package handlers

import (
	"time"

	"github.com/arklim/social-identity/internal/core/domain"
)

// RegisterRequest defines the payload for register-initiate.
type RegisterRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// VerifyRegistrationRequest defines the payload for register-verify.
type VerifyRegistrationRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// ForgotPasswordRequest defines the payload for forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordRequest defines the payload for reset-password.
type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Code        string `json:"code" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AuthResponse is returned when a session is opened.
type AuthResponse struct {
	User      UserResponse `json:"user"`
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// CodeSentResponse is returned whenever a one-time code was delivered.
type CodeSentResponse struct {
	User                 *UserResponse `json:"user,omitempty"`
	VerificationRequired bool          `json:"verification_required,omitempty"`
	CodeExpiresAt        time.Time     `json:"code_expires_at"`
}

// ProfileResponse wraps the current user's profile.
type ProfileResponse struct {
	User UserResponse `json:"user"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string            `json:"status"`
	StartedAt time.Time         `json:"started_at"`
	Checks    map[string]string `json:"checks,omitempty"`
}

func newUserResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Email:      u.Email,
		FullName:   u.FullName,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

func newAuthResponse(u domain.User, token domain.SessionToken) AuthResponse {
	return AuthResponse{
		User:      newUserResponse(u),
		Token:     token.Value,
		TokenType: "Bearer",
		ExpiresAt: token.ExpiresAt,
	}
}
