package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-identity/internal/transport/http/middleware"
	"github.com/arklim/social-identity/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

var identityErrorCases = []ErrorCase{
	{Err: usecase.ErrAlreadyRegistered, Status: http.StatusBadRequest, Message: "email already registered"},
	{Err: usecase.ErrInvalidOrExpiredCode, Status: http.StatusBadRequest, Message: "invalid or expired code"},
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
	{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
	{Err: usecase.ErrDeliveryFailure, Status: http.StatusInternalServerError, Message: "failed to deliver verification code"},
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
// Validation errors echo their field message; anything unmapped is attached to the context for the access log
// and answered without detail.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	var verr *usecase.ValidationError
	if errors.As(err, &verr) {
		middleware.Fail(c, http.StatusBadRequest, verr.Error())
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			if cs.Status >= http.StatusInternalServerError {
				_ = c.Error(err)
			}
			middleware.Fail(c, cs.Status, cs.Message)
			return
		}
	}

	_ = c.Error(err)
	middleware.Fail(c, fallbackStatus, fallbackMessage)
}

func respondIdentityError(c *gin.Context, err error) {
	RespondWithMappedError(c, err, identityErrorCases, http.StatusInternalServerError, "internal server error")
}
