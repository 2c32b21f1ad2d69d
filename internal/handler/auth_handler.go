package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mute-meter-api/internal/dto"
	"github.com/noah-isme/mute-meter-api/internal/middleware"
	"github.com/noah-isme/mute-meter-api/internal/models"
	appErrors "github.com/noah-isme/mute-meter-api/pkg/errors"
	"github.com/noah-isme/mute-meter-api/pkg/response"
)

type authService interface {
	Authenticate(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, *models.SessionState, error)
	Logout(ctx context.Context, state *models.SessionState, meta models.LoginRequest) error
}

type navigationService interface {
	Enter(ctx context.Context, sessionID string, page models.Page) (*models.SessionState, error)
	Navigation(state *models.SessionState) dto.Navigation
}

// AuthHandler serves the login view and session navigation.
type AuthHandler struct {
	auth         authService
	sessions     navigationService
	secureCookie bool
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(auth authService, sessions navigationService, secureCookie bool) *AuthHandler {
	return &AuthHandler{auth: auth, sessions: sessions, secureCookie: secureCookie}
}

// Login godoc
// @Summary Log in
// @Description Authenticate by email, password and role together
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if !bindJSON(c, &req, "invalid login payload") {
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, _, err := h.auth.Authenticate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.SessionCookie, res.SessionToken, int(res.ExpiresIn), "/", "", h.secureCookie, true)
	response.JSON(c, http.StatusOK, res, nil)
}

// Logout godoc
// @Summary Log out
// @Description Clear every key of the current session
// @Tags Authentication
// @Produce json
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	state, ok := middleware.SessionFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	meta := models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	if err := h.auth.Logout(c.Request.Context(), state, meta); err != nil {
		response.Error(c, err)
		return
	}

	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.secureCookie, true)
	response.NoContent(c)
}

// Session godoc
// @Summary Current session
// @Description Returns the user, the pages they may open and the actions of the current page
// @Tags Session
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /session [get]
func (h *AuthHandler) Session(c *gin.Context) {
	state, _, ok := currentActor(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, h.sessions.Navigation(state), nil)
}

// Navigate godoc
// @Summary Switch page
// @Description Moves the session to another page when the role allows it
// @Tags Session
// @Accept json
// @Produce json
// @Param payload body map[string]string true "Page slug"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /session/page [post]
func (h *AuthHandler) Navigate(c *gin.Context) {
	state, _, ok := currentActor(c)
	if !ok {
		return
	}
	var payload struct {
		Page models.Page `json:"page"`
	}
	if !bindJSON(c, &payload, "invalid page payload") {
		return
	}
	if !payload.Page.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "unknown page"))
		return
	}

	updated, err := h.sessions.Enter(c.Request.Context(), state.ID, payload.Page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.sessions.Navigation(updated), nil)
}
