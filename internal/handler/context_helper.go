package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mute-meter-api/internal/middleware"
	"github.com/noah-isme/mute-meter-api/internal/models"
	"github.com/noah-isme/mute-meter-api/internal/service"
	appErrors "github.com/noah-isme/mute-meter-api/pkg/errors"
	"github.com/noah-isme/mute-meter-api/pkg/response"
)

// currentActor returns the session and the actor it authorises. When absent it
// writes LOGIN_REQUIRED and returns false.
func currentActor(c *gin.Context) (*models.SessionState, service.Actor, bool) {
	state, ok := middleware.SessionFromContext(c)
	if !ok || !state.LoggedIn {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, service.Actor{}, false
	}
	return state, service.ActorFromSession(state, c.ClientIP(), c.GetHeader("User-Agent")), true
}

func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

func meterFilter(c *gin.Context) models.MeterFilter {
	var filter models.MeterFilter
	_ = c.ShouldBindQuery(&filter)
	filter.Circle = strings.TrimSpace(filter.Circle)
	filter.Division = strings.TrimSpace(filter.Division)
	filter.SubDivision = strings.TrimSpace(filter.SubDivision)
	filter.Feeder = strings.TrimSpace(filter.Feeder)
	return filter
}

func analyticsMeta(c *gin.Context, cacheHit bool) map[string]interface{} {
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{"cache_hit": cacheHit}
	}
	return meta
}
