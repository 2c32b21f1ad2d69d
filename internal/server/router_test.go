package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/mute-meter-api/internal/authz"
	"github.com/noah-isme/mute-meter-api/internal/handler"
	"github.com/noah-isme/mute-meter-api/internal/models"
	"github.com/noah-isme/mute-meter-api/internal/repository"
	"github.com/noah-isme/mute-meter-api/internal/service"
	"github.com/noah-isme/mute-meter-api/pkg/config"
)

type stubCredentials struct {
	account *models.UserAccount
}

func (s *stubCredentials) FindByEmailAndRole(_ context.Context, email string, role models.UserRole) (*models.UserAccount, error) {
	if s.account == nil || s.account.Email != email || s.account.Role != role {
		return nil, sql.ErrNoRows
	}
	acct := *s.account
	return &acct, nil
}

func (s *stubCredentials) CreateAuditLog(context.Context, *models.AuditLog) error { return nil }

func newTestRouter(t *testing.T, env string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)
	circle := "Sukkur"
	creds := &stubCredentials{account: &models.UserAccount{
		ID:           "u-1",
		Email:        "field@sepco.com.pk",
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		AccessScope:  models.AccessScope{Circle: &circle},
	}}

	enforcer, err := authz.NewEnforcer()
	require.NoError(t, err)
	store := repository.NewMemorySessionStore()
	sessions := service.NewSessionService(store, authz.NewPageAuthorizer(enforcer, nil), nil)
	auth := service.NewAuthService(creds, store, service.NewValidator("sepco.com.pk"), nil, service.AuthConfig{
		SessionSecret: "router-test-secret",
		SessionTTL:    time.Hour,
	})

	cfg := &config.Config{Env: env, APIPrefix: "/api/v1"}
	r := NewEngine(cfg, nil, service.NewMetricsService())
	RegisterRoutes(r, cfg, Routes{
		Auth:      handler.NewAuthHandler(auth, sessions, false),
		Search:    handler.NewSearchHandler(nil),
		Analytics: handler.NewAnalyticsHandler(nil),
		Transfer:  handler.NewTransferHandler(nil, 0),
		Meters:    handler.NewMeterHandler(nil),
		Users:     handler.NewUserHandler(nil),
		Ops:       handler.NewMetricsHandler(service.NewMetricsService(), nil),
		Sessions:  auth,
		Pages:     sessions,
	}, nil)
	return r
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func do(t *testing.T, r http.Handler, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

func login(t *testing.T, r http.Handler) string {
	t.Helper()
	rec, env := do(t, r, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "field@sepco.com.pk",
		"password": "secret1",
		"role":     "user",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var res models.LoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.NotEmpty(t, res.SessionToken)
	return res.SessionToken
}

func TestHealthIsPublic(t *testing.T) {
	r := newTestRouter(t, config.EnvDevelopment)
	rec, _ := do(t, r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedViewRequiresLogin(t *testing.T) {
	r := newTestRouter(t, config.EnvDevelopment)
	rec, env := do(t, r, http.MethodGet, "/api/v1/welcome", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "LOGIN_REQUIRED", env.Error.Code)
}

func TestLoginRejectsWrongRole(t *testing.T) {
	r := newTestRouter(t, config.EnvDevelopment)
	rec, env := do(t, r, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "field@sepco.com.pk",
		"password": "secret1",
		"role":     "admin",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
	assert.Equal(t, "user not found or incorrect role", env.Error.Message)
}

func TestUserSessionCannotOpenAdminDashboard(t *testing.T) {
	r := newTestRouter(t, config.EnvDevelopment)
	token := login(t, r)

	rec, _ := do(t, r, http.MethodGet, "/api/v1/session", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := do(t, r, http.MethodGet, "/api/v1/admin/users", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "ACCESS_DENIED", env.Error.Code)
}

func TestLogoutEndsSession(t *testing.T) {
	r := newTestRouter(t, config.EnvDevelopment)
	token := login(t, r)

	rec, _ := do(t, r, http.MethodPost, "/api/v1/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = do(t, r, http.MethodGet, "/api/v1/session", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDocsHiddenInProduction(t *testing.T) {
	r := newTestRouter(t, config.EnvProduction)
	rec, _ := do(t, r, http.MethodGet, "/docs/index.html", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	gin.SetMode(gin.TestMode)
}
