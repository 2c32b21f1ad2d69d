package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mute-meter-api/internal/dto"
	"github.com/noah-isme/mute-meter-api/internal/models"
	"github.com/noah-isme/mute-meter-api/internal/service"
	appErrors "github.com/noah-isme/mute-meter-api/pkg/errors"
	"github.com/noah-isme/mute-meter-api/pkg/response"
)

type transferService interface {
	Preview(ctx context.Context, actor service.Actor, filter models.MeterFilter) (*dto.ExportPreview, error)
	Export(ctx context.Context, actor service.Actor, filter models.MeterFilter, format string) (*dto.ExportFile, error)
	ImportFile(ctx context.Context, actor service.Actor, filename string, r io.Reader) (*dto.ImportReport, error)
	ReviewDelete(ctx context.Context, sessionID string, actor service.Actor, req dto.DeleteReviewRequest) (*dto.DeleteReviewResponse, error)
	ConfirmDelete(ctx context.Context, state *models.SessionState, actor service.Actor, req dto.DeleteConfirmRequest) (*dto.DeleteResult, error)
	CancelDelete(ctx context.Context, sessionID string) error
}

// TransferHandler serves export downloads and the administrator's bulk import and delete.
type TransferHandler struct {
	service        transferService
	maxUploadBytes int64
}

// NewTransferHandler constructs the handler.
func NewTransferHandler(service transferService, maxUploadBytes int64) *TransferHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 20 << 20
	}
	return &TransferHandler{service: service, maxUploadBytes: maxUploadBytes}
}

// Preview godoc
// @Summary Export preview
// @Tags Export
// @Produce json
// @Param circle query string false "Circle"
// @Param division query string false "Division"
// @Success 200 {object} response.Envelope
// @Router /export/preview [get]
func (h *TransferHandler) Preview(c *gin.Context) {
	_, actor, ok := currentActor(c)
	if !ok {
		return
	}
	preview, err := h.service.Preview(c.Request.Context(), actor, meterFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, preview, nil)
}

// Download godoc
// @Summary Download records
// @Description Exports the records visible to the caller as csv, xlsx, json or pdf
// @Tags Export
// @Produce octet-stream
// @Param format query string false "csv, xlsx, json or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /export/download [get]
func (h *TransferHandler) Download(c *gin.Context) {
	_, actor, ok := currentActor(c)
	if !ok {
		return
	}
	file, err := h.service.Export(c.Request.Context(), actor, meterFilter(c), c.DefaultQuery("format", service.FormatCSV))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Payload)
}

// Import godoc
// @Summary Bulk import meters
// @Description Inserts rows whose reference number is new; existing ones are skipped
// @Tags Admin
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV or XLSX file"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /admin/meters/import [post]
func (h *TransferHandler) Import(c *gin.Context) {
	_, actor, ok := currentActor(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unable to open uploaded file"))
		return
	}
	defer file.Close()

	report, err := h.service.ImportFile(c.Request.Context(), actor, header.Filename, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// ReviewDelete godoc
// @Summary Review a bulk delete
// @Description Stages the listed records, or every record the filter selects, for deletion
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.DeleteReviewRequest true "References or filter"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/meters/delete/review [post]
func (h *TransferHandler) ReviewDelete(c *gin.Context) {
	state, actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.DeleteReviewRequest
	if !bindJSON(c, &req, "invalid delete payload") {
		return
	}
	review, err := h.service.ReviewDelete(c.Request.Context(), state.ID, actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, review, nil)
}

// ConfirmDelete godoc
// @Summary Confirm a reviewed delete
// @Description Removes exactly the reviewed records or nothing
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.DeleteConfirmRequest true "Confirmation"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/meters/delete/confirm [post]
func (h *TransferHandler) ConfirmDelete(c *gin.Context) {
	state, actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.DeleteConfirmRequest
	if !bindJSON(c, &req, "invalid confirmation payload") {
		return
	}
	result, err := h.service.ConfirmDelete(c.Request.Context(), state, actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// CancelDelete godoc
// @Summary Cancel a reviewed delete
// @Tags Admin
// @Success 204 {object} response.Envelope
// @Router /admin/meters/delete/review [delete]
func (h *TransferHandler) CancelDelete(c *gin.Context) {
	state, _, ok := currentActor(c)
	if !ok {
		return
	}
	if err := h.service.CancelDelete(c.Request.Context(), state.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
