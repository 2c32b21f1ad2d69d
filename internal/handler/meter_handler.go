package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mute-meter-api/internal/dto"
	"github.com/noah-isme/mute-meter-api/internal/models"
	"github.com/noah-isme/mute-meter-api/internal/service"
	"github.com/noah-isme/mute-meter-api/pkg/response"
)

type muteReasonService interface {
	Lookup(ctx context.Context, actor service.Actor, referenceNo string) (*models.MeterRecord, error)
	Submit(ctx context.Context, actor service.Actor, referenceNo, raw string) (*models.MeterRecord, error)
}

// MeterHandler lets administrators inspect and annotate individual meters.
type MeterHandler struct {
	service muteReasonService
}

// NewMeterHandler constructs the handler.
func NewMeterHandler(service muteReasonService) *MeterHandler {
	return &MeterHandler{service: service}
}

// Get godoc
// @Summary Get meter
// @Tags Admin
// @Produce json
// @Param reference_no path string true "Reference number"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/meters/{reference_no} [get]
func (h *MeterHandler) Get(c *gin.Context) {
	_, actor, ok := currentActor(c)
	if !ok {
		return
	}
	record, err := h.service.Lookup(c.Request.Context(), actor, c.Param("reference_no"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// SetMuteReason godoc
// @Summary Override mute reason
// @Description Writes any reason; a blank reason clears it
// @Tags Admin
// @Accept json
// @Produce json
// @Param reference_no path string true "Reference number"
// @Param payload body dto.MuteReasonRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/meters/{reference_no}/mute-reason [put]
func (h *MeterHandler) SetMuteReason(c *gin.Context) {
	_, actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.MuteReasonRequest
	if !bindJSON(c, &req, "invalid mute reason payload") {
		return
	}
	record, err := h.service.Submit(c.Request.Context(), actor, c.Param("reference_no"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}
