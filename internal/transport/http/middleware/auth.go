package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-identity/internal/infra/security"
)

// TokenVerifier validates session tokens.
type TokenVerifier interface {
	Verify(token string) (*security.SessionClaims, error)
}

// RequireAuth validates the bearer session token and stores its claims on the context.
func RequireAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			AbortWithError(c, http.StatusUnauthorized, "missing authorization header")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			AbortWithError(c, http.StatusUnauthorized, "invalid authorization format: expected 'Bearer <token>'")
			return
		}

		token = strings.TrimSpace(token)
		if token == "" {
			AbortWithError(c, http.StatusUnauthorized, "missing session token")
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			AbortWithError(c, http.StatusUnauthorized, "invalid or expired session token")
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(ClaimsKey, claims)

		c.Next()
	}
}
