package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-identity/internal/core/domain"
	"github.com/arklim/social-identity/internal/transport/http/middleware"
	"github.com/arklim/social-identity/internal/usecase"
)

// IdentityService is the part of the identity state machine the HTTP layer drives.
type IdentityService interface {
	RegisterInitiate(ctx context.Context, in usecase.RegisterInput) (usecase.RegistrationResult, error)
	RegisterVerify(ctx context.Context, email, code string) (usecase.AuthResult, error)
	Login(ctx context.Context, email, password string) (usecase.LoginResult, error)
	ForgotPassword(ctx context.Context, email string) (usecase.CodeIssue, error)
	ResetPassword(ctx context.Context, in usecase.ResetPasswordInput) error
	Profile(ctx context.Context, userID string) (domain.User, error)
}

var _ IdentityService = (*usecase.IdentityService)(nil)

// AuthHandler exposes the identity endpoints.
type AuthHandler struct {
	identity IdentityService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(identity IdentityService) *AuthHandler {
	return &AuthHandler{identity: identity}
}

// RegisterRoutes binds authentication routes under r.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/register", h.register)
	r.POST("/register/verify", h.verifyRegistration)
	r.POST("/login", h.login)
	r.POST("/logout", h.logout)
	r.POST("/password/forgot", h.forgotPassword)
	r.POST("/password/reset", h.resetPassword)
}

// RegisterProfileRoutes binds the authenticated profile route.
func (h *AuthHandler) RegisterProfileRoutes(r *gin.RouterGroup, auth gin.HandlerFunc) {
	r.GET("/me", auth, h.me)
}

// Register godoc
// @Summary Start registration
// @Description Creates an unverified account and emails a registration code. Re-sends a code for pending accounts.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration payload"
// @Success 201 {object} middleware.Envelope
// @Success 200 {object} middleware.Envelope
// @Failure 400 {object} middleware.Envelope
// @Failure 500 {object} middleware.Envelope
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) register(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.identity.RegisterInitiate(c.Request.Context(), usecase.RegisterInput{
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondIdentityError(c, err)
		return
	}

	user := newUserResponse(res.User)
	data := CodeSentResponse{User: &user, CodeExpiresAt: res.CodeExpiresAt}

	if res.Outcome == usecase.RegistrationCreated {
		middleware.Success(c, http.StatusCreated, "account created, verification code sent", data)
		return
	}
	middleware.Success(c, http.StatusOK, "verification code sent", data)
}

// VerifyRegistration godoc
// @Summary Complete registration
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body VerifyRegistrationRequest true "Verification payload"
// @Success 200 {object} middleware.Envelope
// @Failure 400 {object} middleware.Envelope
// @Router /api/v1/auth/register/verify [post]
func (h *AuthHandler) verifyRegistration(c *gin.Context) {
	var req VerifyRegistrationRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.identity.RegisterVerify(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		respondIdentityError(c, err)
		return
	}

	middleware.Success(c, http.StatusOK, "email verified", newAuthResponse(res.User, res.Token))
}

// Login godoc
// @Summary Log in
// @Description Verified accounts receive a session token. Unverified accounts are sent a fresh registration code instead.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login payload"
// @Success 200 {object} middleware.Envelope
// @Failure 400 {object} middleware.Envelope
// @Failure 401 {object} middleware.Envelope
// @Failure 404 {object} middleware.Envelope
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.identity.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondIdentityError(c, err)
		return
	}

	if res.VerificationRequired {
		user := newUserResponse(res.User)
		middleware.Success(c, http.StatusOK, "verify your email to continue, code sent", CodeSentResponse{
			User:                 &user,
			VerificationRequired: true,
			CodeExpiresAt:        res.CodeExpiresAt,
		})
		return
	}

	middleware.Success(c, http.StatusOK, "login successful", newAuthResponse(res.User, res.Token))
}

// Logout is a no-op: session tokens are stateless and the client discards them.
func (h *AuthHandler) logout(c *gin.Context) {
	middleware.Success(c, http.StatusOK, "logged out", nil)
}

// ForgotPassword godoc
// @Summary Request a password reset code
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body ForgotPasswordRequest true "Forgot password payload"
// @Success 200 {object} middleware.Envelope
// @Failure 400 {object} middleware.Envelope
// @Failure 404 {object} middleware.Envelope
// @Failure 500 {object} middleware.Envelope
// @Router /api/v1/auth/password/forgot [post]
func (h *AuthHandler) forgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	issue, err := h.identity.ForgotPassword(c.Request.Context(), req.Email)
	if err != nil {
		respondIdentityError(c, err)
		return
	}

	middleware.Success(c, http.StatusOK, "password reset code sent", CodeSentResponse{CodeExpiresAt: issue.ExpiresAt})
}

// ResetPassword godoc
// @Summary Reset password with a code
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body ResetPasswordRequest true "Reset password payload"
// @Success 200 {object} middleware.Envelope
// @Failure 400 {object} middleware.Envelope
// @Router /api/v1/auth/password/reset [post]
func (h *AuthHandler) resetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	err := h.identity.ResetPassword(c.Request.Context(), usecase.ResetPasswordInput{
		Email:       req.Email,
		Code:        req.Code,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		respondIdentityError(c, err)
		return
	}

	middleware.Success(c, http.StatusOK, "password reset successful", nil)
}

// Me godoc
// @Summary Current profile
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} middleware.Envelope
// @Failure 401 {object} middleware.Envelope
// @Failure 404 {object} middleware.Envelope
// @Router /api/v1/users/me [get]
func (h *AuthHandler) me(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		middleware.Fail(c, http.StatusUnauthorized, "authentication required")
		return
	}

	user, err := h.identity.Profile(c.Request.Context(), userID)
	if err != nil {
		respondIdentityError(c, err)
		return
	}

	middleware.Success(c, http.StatusOK, "profile retrieved", ProfileResponse{User: newUserResponse(user)})
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		middleware.Fail(c, http.StatusBadRequest, "invalid request payload")
		return false
	}
	return true
}
