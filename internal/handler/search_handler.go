package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mute-meter-api/internal/dto"
	"github.com/noah-isme/mute-meter-api/internal/models"
	"github.com/noah-isme/mute-meter-api/internal/service"
	appErrors "github.com/noah-isme/mute-meter-api/pkg/errors"
	"github.com/noah-isme/mute-meter-api/pkg/response"
)

type searchService interface {
	Current(ctx context.Context, state *models.SessionState, actor service.Actor) (*dto.SearchResult, error)
	Search(ctx context.Context, sessionID string, actor service.Actor, referenceNo string) (*dto.SearchResult, error)
	SelectReason(ctx context.Context, sessionID string, actor service.Actor, raw string) (*dto.SearchResult, error)
	SubmitReason(ctx context.Context, state *models.SessionState, actor service.Actor) (*dto.SearchResult, error)
}

// SearchHandler serves the customer search view.
type SearchHandler struct {
	service searchService
}

// NewSearchHandler constructs the handler.
func NewSearchHandler(service searchService) *SearchHandler {
	return &SearchHandler{service: service}
}

// Reasons godoc
// @Summary Mute reason catalog
// @Tags Search
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /search/reasons [get]
func (h *SearchHandler) Reasons(c *gin.Context) {
	response.JSON(c, http.StatusOK, models.MuteReasonCatalog, nil)
}

// Current godoc
// @Summary Current search view
// @Tags Search
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /search [get]
func (h *SearchHandler) Current(c *gin.Context) {
	state, actor, ok := currentActor(c)
	if !ok {
		return
	}
	result, err := h.service.Current(c.Request.Context(), state, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Search godoc
// @Summary Search by reference number
// @Tags Search
// @Accept json
// @Produce json
// @Param payload body dto.SearchRequest true "Reference number"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /search [post]
func (h *SearchHandler) Search(c *gin.Context) {
	state, actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.SearchRequest
	if !bindJSON(c, &req, "invalid search payload") {
		return
	}
	if strings.TrimSpace(req.ReferenceNo) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "reference number is required"))
		return
	}
	result, err := h.service.Search(c.Request.Context(), state.ID, actor, req.ReferenceNo)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// SelectReason godoc
// @Summary Stage a mute reason
// @Tags Search
// @Accept json
// @Produce json
// @Param payload body dto.SelectReasonRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /search/reason [post]
func (h *SearchHandler) SelectReason(c *gin.Context) {
	state, actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.SelectReasonRequest
	if !bindJSON(c, &req, "invalid reason payload") {
		return
	}
	result, err := h.service.SelectReason(c.Request.Context(), state.ID, actor, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// SubmitReason godoc
// @Summary Submit the staged mute reason
// @Description A user who loses a race receives 409 together with the stored reason
// @Tags Search
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /search/submit [post]
func (h *SearchHandler) SubmitReason(c *gin.Context) {
	state, actor, ok := currentActor(c)
	if !ok {
		return
	}
	result, err := h.service.SubmitReason(c.Request.Context(), state, actor)
	if err != nil {
		if result != nil && errors.Is(err, appErrors.ErrMuteReasonSet) {
			response.ErrorWithData(c, err, result)
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
