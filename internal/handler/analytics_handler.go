package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mute-meter-api/internal/models"
	"github.com/noah-isme/mute-meter-api/internal/service"
	"github.com/noah-isme/mute-meter-api/pkg/response"
)

type analyticsService interface {
	Welcome(ctx context.Context, actor service.Actor) (*models.WelcomeSummary, error)
	MuteAnalytics(ctx context.Context, actor service.Actor, filter models.MeterFilter) (*models.MuteAnalytics, bool, error)
	TariffInsights(ctx context.Context, actor service.Actor, filter models.MeterFilter) (*models.TariffInsights, bool, error)
	FilterOptions(ctx context.Context, actor service.Actor, filter models.MeterFilter) (*models.FilterOptions, error)
}

// AnalyticsHandler serves the welcome, mute analytics and traffic insights views.
type AnalyticsHandler struct {
	service analyticsService
}

// NewAnalyticsHandler constructs the handler.
func NewAnalyticsHandler(service analyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{service: service}
}

// Welcome godoc
// @Summary Welcome summary
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /welcome [get]
func (h *AnalyticsHandler) Welcome(c *gin.Context) {
	_, actor, ok := currentActor(c)
	if !ok {
		return
	}
	summary, err := h.service.Welcome(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// MuteAnalytics godoc
// @Summary Mute analytics
// @Description Reason distribution and map points for muted meters in scope
// @Tags Analytics
// @Produce json
// @Param circle query string false "Circle"
// @Param division query string false "Division"
// @Param sub_division query string false "Sub division"
// @Param feeder query string false "Feeder"
// @Success 200 {object} response.Envelope
// @Router /analytics/mute [get]
func (h *AnalyticsHandler) MuteAnalytics(c *gin.Context) {
	_, actor, ok := currentActor(c)
	if !ok {
		return
	}
	result, hit, err := h.service.MuteAnalytics(c.Request.Context(), actor, meterFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, analyticsMeta(c, hit))
}

// TrafficInsights godoc
// @Summary Traffic insights
// @Description Tariff, sanction load, transformer capacity, model and installation views
// @Tags Analytics
// @Produce json
// @Param circle query string false "Circle"
// @Param division query string false "Division"
// @Param sub_division query string false "Sub division"
// @Param feeder query string false "Feeder"
// @Success 200 {object} response.Envelope
// @Router /analytics/traffic [get]
func (h *AnalyticsHandler) TrafficInsights(c *gin.Context) {
	_, actor, ok := currentActor(c)
	if !ok {
		return
	}
	result, hit, err := h.service.TariffInsights(c.Request.Context(), actor, meterFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, analyticsMeta(c, hit))
}

// FilterOptions godoc
// @Summary Drill-down options
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/filters [get]
func (h *AnalyticsHandler) FilterOptions(c *gin.Context) {
	_, actor, ok := currentActor(c)
	if !ok {
		return
	}
	opts, err := h.service.FilterOptions(c.Request.Context(), actor, meterFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, opts, nil)
}
