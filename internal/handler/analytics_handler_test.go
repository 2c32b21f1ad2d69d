package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mute-meter-api/internal/middleware"
	"github.com/noah-isme/mute-meter-api/internal/models"
	"github.com/noah-isme/mute-meter-api/internal/service"
	appErrors "github.com/noah-isme/mute-meter-api/pkg/errors"
)

type responseEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta       map[string]interface{} `json:"meta"`
	Pagination *models.Pagination     `json:"pagination"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var env responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func newTestContext(method, target string, body io.Reader, state *models.SessionState) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, body)
	if body != nil {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	if state != nil {
		c.Set(middleware.ContextSessionKey, state)
	}
	return c, rec
}

func userSession() *models.SessionState {
	circle := "Sukkur"
	return &models.SessionState{
		ID:          "sess-user",
		LoggedIn:    true,
		UserID:      "u-1",
		UserEmail:   "field@sepco.com.pk",
		UserRole:    models.RoleUser,
		AccessScope: &models.AccessScope{Circle: &circle},
		CurrentPage: models.PageWelcome,
	}
}

func adminSession() *models.SessionState {
	return &models.SessionState{
		ID:          "sess-admin",
		LoggedIn:    true,
		UserID:      "a-1",
		UserEmail:   "admin@sepco.com.pk",
		UserRole:    models.RoleAdmin,
		CurrentPage: models.PageAdminDashboard,
	}
}

type fakeAnalyticsSrv struct {
	welcome    *models.WelcomeSummary
	mute       *models.MuteAnalytics
	hit        bool
	err        error
	lastActor  service.Actor
	lastFilter models.MeterFilter
}

func (f *fakeAnalyticsSrv) Welcome(_ context.Context, actor service.Actor) (*models.WelcomeSummary, error) {
	f.lastActor = actor
	return f.welcome, f.err
}

func (f *fakeAnalyticsSrv) MuteAnalytics(_ context.Context, actor service.Actor, filter models.MeterFilter) (*models.MuteAnalytics, bool, error) {
	f.lastActor, f.lastFilter = actor, filter
	return f.mute, f.hit, f.err
}

func (f *fakeAnalyticsSrv) TariffInsights(_ context.Context, actor service.Actor, filter models.MeterFilter) (*models.TariffInsights, bool, error) {
	f.lastActor, f.lastFilter = actor, filter
	return &models.TariffInsights{}, f.hit, f.err
}

func (f *fakeAnalyticsSrv) FilterOptions(_ context.Context, actor service.Actor, filter models.MeterFilter) (*models.FilterOptions, error) {
	f.lastActor, f.lastFilter = actor, filter
	return &models.FilterOptions{}, f.err
}

func TestAnalyticsHandlerMuteAnalyticsPassesFilter(t *testing.T) {
	srv := &fakeAnalyticsSrv{mute: &models.MuteAnalytics{TotalVisible: 4, TotalMuted: 2}, hit: true}
	h := NewAnalyticsHandler(srv)

	c, rec := newTestContext(http.MethodGet, "/analytics/mute?division=%20Rohri%20&feeder=F-1", nil, userSession())
	h.MuteAnalytics(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Rohri", srv.lastFilter.Division)
	assert.Equal(t, "F-1", srv.lastFilter.Feeder)
	assert.Equal(t, models.RoleUser, srv.lastActor.Role)
	require.NotNil(t, srv.lastActor.Scope.Circle)
	assert.Equal(t, "Sukkur", *srv.lastActor.Scope.Circle)

	env := decode(t, rec)
	assert.Equal(t, true, env.Meta["cache_hit"])
	var body models.MuteAnalytics
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, 2, body.TotalMuted)
}

func TestAnalyticsHandlerWelcomeRequiresSession(t *testing.T) {
	h := NewAnalyticsHandler(&fakeAnalyticsSrv{})

	c, rec := newTestContext(http.MethodGet, "/welcome", nil, nil)
	h.Welcome(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	env := decode(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, env.Error.Code)
	assert.Equal(t, "/auth/login", env.Meta["redirect"])
}

func TestAnalyticsHandlerLoggedOutSessionRejected(t *testing.T) {
	h := NewAnalyticsHandler(&fakeAnalyticsSrv{})
	state := userSession()
	state.LoggedIn = false

	c, rec := newTestContext(http.MethodGet, "/welcome", nil, state)
	h.Welcome(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAnalyticsHandlerStorageError(t *testing.T) {
	h := NewAnalyticsHandler(&fakeAnalyticsSrv{err: appErrors.Storage(errors.New("db down"), "failed to load meters")})

	c, rec := newTestContext(http.MethodGet, "/analytics/filters", nil, adminSession())
	h.FilterOptions(c)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	env := decode(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "STORAGE_ERROR", env.Error.Code)
}
