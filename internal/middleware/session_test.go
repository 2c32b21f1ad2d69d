package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mute-meter-api/internal/models"
	appErrors "github.com/noah-isme/mute-meter-api/pkg/errors"
	"github.com/noah-isme/mute-meter-api/pkg/response"
)

type stubResolver struct {
	sessions map[string]*models.SessionState
	tokens   []string
}

func (s *stubResolver) ResolveSession(ctx context.Context, token string) (*models.SessionState, error) {
	s.tokens = append(s.tokens, token)
	state, ok := s.sessions[token]
	if !ok || !state.LoggedIn {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session expired")
	}
	return state, nil
}

type stubEnterer struct {
	denied map[models.Page]bool
}

func (s *stubEnterer) Enter(ctx context.Context, sessionID string, page models.Page) (*models.SessionState, error) {
	if s.denied[page] {
		return nil, appErrors.ErrForbidden
	}
	return &models.SessionState{ID: sessionID, LoggedIn: true, CurrentPage: page}, nil
}

type recordedAudit struct {
	logs []*models.AuditLog
}

func (r *recordedAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func newSessionRouter(resolver sessionResolver, enterer pageEnterer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	protected := router.Group("/", Session(resolver))
	protected.GET("/welcome", Page(enterer, models.PageWelcome), func(c *gin.Context) {
		state, _ := SessionFromContext(c)
		c.JSON(http.StatusOK, gin.H{"page": state.CurrentPage})
	})
	protected.GET("/admin", Page(enterer, models.PageAdminDashboard), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func TestSessionRequiresLogin(t *testing.T) {
	router := newSessionRouter(&stubResolver{}, &stubEnterer{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/welcome", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	envelope := decodeEnvelope(t, rec)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "LOGIN_REQUIRED", envelope.Error.Code)
	assert.Equal(t, response.LoginPath, envelope.Meta["redirect"])
}

func TestSessionLoggedOutStateRedirects(t *testing.T) {
	resolver := &stubResolver{sessions: map[string]*models.SessionState{
		"tok": {ID: "s1", LoggedIn: false},
	}}
	router := newSessionRouter(resolver, &stubEnterer{})

	req := httptest.NewRequest(http.MethodGet, "/welcome", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, response.LoginPath, decodeEnvelope(t, rec).Meta["redirect"])
}

func TestSessionAcceptsCookie(t *testing.T) {
	resolver := &stubResolver{sessions: map[string]*models.SessionState{
		"tok": {ID: "s1", LoggedIn: true, UserRole: models.RoleUser, ExpiresAt: time.Now().Add(time.Hour)},
	}}
	router := newSessionRouter(resolver, &stubEnterer{})

	req := httptest.NewRequest(http.MethodGet, "/welcome", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "tok"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"page":"welcome"}`, rec.Body.String())
	assert.Equal(t, []string{"tok"}, resolver.tokens)
}

func TestSessionRejectsMalformedHeader(t *testing.T) {
	router := newSessionRouter(&stubResolver{}, &stubEnterer{})

	req := httptest.NewRequest(http.MethodGet, "/welcome", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPageForbidden(t *testing.T) {
	resolver := &stubResolver{sessions: map[string]*models.SessionState{
		"tok": {ID: "s1", LoggedIn: true, UserRole: models.RoleUser},
	}}
	router := newSessionRouter(resolver, &stubEnterer{denied: map[models.Page]bool{models.PageAdminDashboard: true}})

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, decodeEnvelope(t, rec).Meta)
}

func TestAuditRecordsSuccessfulDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	audit := &recordedAudit{}
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(ContextSessionKey, &models.SessionState{ID: "s1", UserID: "u1", LoggedIn: true})
		c.Next()
	})
	router.GET("/export", Audit(audit, nil, models.AuditActionMeterExport, models.AuditResourceMeter), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/broken", Audit(audit, nil, models.AuditActionMeterExport, models.AuditResourceMeter), func(c *gin.Context) {
		c.Status(http.StatusBadRequest)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/export?format=xlsx", nil))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/broken", nil))

	require.Len(t, audit.logs, 1)
	assert.Equal(t, "u1", *audit.logs[0].UserID)
	assert.Contains(t, string(audit.logs[0].NewValues), `"format":"xlsx"`)
}

func TestResponseMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(WithResponseMeta())
	router.GET("/", func(c *gin.Context) {
		SetCacheHit(c, true)
		c.JSON(http.StatusOK, ExtractMeta(c))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.JSONEq(t, `{"cache_hit":true}`, rec.Body.String())
}
