package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mute-meter-api/internal/models"
	appErrors "github.com/noah-isme/mute-meter-api/pkg/errors"
	"github.com/noah-isme/mute-meter-api/pkg/response"
)

// ContextSessionKey is the gin context key storing the resolved session state.
const ContextSessionKey = "currentSession"

// SessionCookie carries the session token for browser clients.
const SessionCookie = "session_token"

type sessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*models.SessionState, error)
}

type pageEnterer interface {
	Enter(ctx context.Context, sessionID string, page models.Page) (*models.SessionState, error)
}

// Session requires a logged-in session. Without one the request ends with
// LOGIN_REQUIRED and a redirect hint to the login view.
func Session(resolver sessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := sessionToken(c)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		state, err := resolver.ResolveSession(c.Request.Context(), token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextSessionKey, state)
		c.Next()
	}
}

// Page records page as the current view and rejects roles that may not open it.
func Page(sessions pageEnterer, page models.Page) gin.HandlerFunc {
	return func(c *gin.Context) {
		current, ok := SessionFromContext(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		state, err := sessions.Enter(c.Request.Context(), current.ID, page)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Set(ContextSessionKey, state)
		c.Next()
	}
}

// SessionFromContext returns the state stored by Session.
func SessionFromContext(c *gin.Context) (*models.SessionState, bool) {
	value, exists := c.Get(ContextSessionKey)
	if !exists {
		return nil, false
	}
	state, ok := value.(*models.SessionState)
	return state, ok && state != nil
}

func sessionToken(c *gin.Context) (string, error) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
		}
		return strings.TrimSpace(parts[1]), nil
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		return cookie, nil
	}
	return "", appErrors.ErrUnauthorized
}
