package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arklim/social-identity/internal/core/domain"
	"github.com/arklim/social-identity/internal/infra/config"
	"github.com/arklim/social-identity/internal/infra/security"
	"github.com/arklim/social-identity/internal/transport/http/handlers"
	"github.com/arklim/social-identity/internal/transport/http/middleware"
	httproutes "github.com/arklim/social-identity/internal/transport/http/routes"
	"github.com/arklim/social-identity/internal/usecase"
)

type profileOnly struct {
	handlers.IdentityService
}

func (profileOnly) Profile(_ context.Context, id string) (domain.User, error) {
	return domain.User{ID: id, Email: "jane@example.com", IsVerified: true}, nil
}

func (profileOnly) ForgotPassword(context.Context, string) (usecase.CodeIssue, error) {
	return usecase.CodeIssue{}, usecase.ErrUserNotFound
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		App:  config.AppSettings{Env: "test"},
		CORS: config.CORSSettings{AllowedOrigins: []string{"*"}},
	}
}

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := httproutes.Register(httproutes.Dependencies{
		Config: testConfig(),
		Logger: zap.NewNop(),
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("NewHTTPMetrics: %v", err)
	}

	r := httproutes.Register(httproutes.Dependencies{
		Config:   testConfig(),
		Metrics:  metrics,
		Gatherer: registry,
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "identity_http_requests_total") {
		t.Fatalf("expected http metrics in exposition, got %d", w.Code)
	}
}

func TestProfileRouteRequiresSessionToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	issuer, err := security.NewSessionTokenIssuer(security.SessionTokenConfig{
		Secret: "routes-secret",
		TTL:    time.Hour,
		Issuer: "social-identity",
	})
	if err != nil {
		t.Fatalf("NewSessionTokenIssuer: %v", err)
	}

	r := httproutes.Register(httproutes.Dependencies{
		Config:   testConfig(),
		Identity: profileOnly{},
		Tokens:   issuer,
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	token, _, err := issuer.Issue("user-7", "jane@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}

	var env middleware.Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	data, _ := env.Data.(map[string]any)
	user, _ := data["user"].(map[string]any)
	if user["id"] != "user-7" {
		t.Fatalf("expected profile of token subject, got %+v", env.Data)
	}
}

func TestForgotPasswordUnknownEmailIs404(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := httproutes.Register(httproutes.Dependencies{
		Config:   testConfig(),
		Identity: profileOnly{},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/password/forgot", bytes.NewBufferString(`{"email":"ghost@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
