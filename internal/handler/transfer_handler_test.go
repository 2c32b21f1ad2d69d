package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mute-meter-api/internal/dto"
	"github.com/noah-isme/mute-meter-api/internal/models"
	"github.com/noah-isme/mute-meter-api/internal/service"
	appErrors "github.com/noah-isme/mute-meter-api/pkg/errors"
)

type fakeTransferSrv struct {
	err          error
	lastFormat   string
	lastFilter   models.MeterFilter
	lastFilename string
	lastUpload   string
	lastReview   *dto.DeleteReviewRequest
	lastConfirm  dto.DeleteConfirmRequest
	cancelled    string
}

func (f *fakeTransferSrv) Preview(_ context.Context, _ service.Actor, filter models.MeterFilter) (*dto.ExportPreview, error) {
	f.lastFilter = filter
	return &dto.ExportPreview{Total: 1, Formats: service.ExportFormats}, f.err
}

func (f *fakeTransferSrv) Export(_ context.Context, _ service.Actor, filter models.MeterFilter, format string) (*dto.ExportFile, error) {
	f.lastFilter, f.lastFormat = filter, format
	if f.err != nil {
		return nil, f.err
	}
	return &dto.ExportFile{Filename: "meter_data_20240101_120000.csv", ContentType: "text/csv", Payload: []byte("reference_no\n1\n")}, nil
}

func (f *fakeTransferSrv) ImportFile(_ context.Context, _ service.Actor, filename string, r io.Reader) (*dto.ImportReport, error) {
	f.lastFilename = filename
	raw, _ := io.ReadAll(r)
	f.lastUpload = string(raw)
	return &dto.ImportReport{Imported: 3, Skipped: 2}, f.err
}

func (f *fakeTransferSrv) ReviewDelete(_ context.Context, _ string, _ service.Actor, req dto.DeleteReviewRequest) (*dto.DeleteReviewResponse, error) {
	f.lastReview = &req
	return &dto.DeleteReviewResponse{ReviewID: "rev-1", Count: len(req.ReferenceNos)}, f.err
}

func (f *fakeTransferSrv) ConfirmDelete(_ context.Context, _ *models.SessionState, _ service.Actor, req dto.DeleteConfirmRequest) (*dto.DeleteResult, error) {
	f.lastConfirm = req
	if f.err != nil {
		return nil, f.err
	}
	return &dto.DeleteResult{Deleted: 2}, nil
}

func (f *fakeTransferSrv) CancelDelete(_ context.Context, sessionID string) error {
	f.cancelled = sessionID
	return f.err
}

func TestTransferHandlerDownload(t *testing.T) {
	srv := &fakeTransferSrv{}
	h := NewTransferHandler(srv, 0)

	c, rec := newTestContext(http.MethodGet, "/export/download?circle=Sukkur", nil, userSession())
	h.Download(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.FormatCSV, srv.lastFormat)
	assert.Equal(t, "Sukkur", srv.lastFilter.Circle)
	assert.Equal(t, `attachment; filename="meter_data_20240101_120000.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "reference_no\n1\n", rec.Body.String())
}

func TestTransferHandlerDownloadUnknownFormat(t *testing.T) {
	srv := &fakeTransferSrv{err: appErrors.Clone(appErrors.ErrValidation, "unsupported export format")}
	h := NewTransferHandler(srv, 0)

	c, rec := newTestContext(http.MethodGet, "/export/download?format=docx", nil, userSession())
	h.Download(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "docx", srv.lastFormat)
}

func multipartBody(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestTransferHandlerImport(t *testing.T) {
	srv := &fakeTransferSrv{}
	h := NewTransferHandler(srv, 1<<20)

	body, contentType := multipartBody(t, "meters.csv", "reference_no,name\n1,A\n")
	c, rec := newTestContext(http.MethodPost, "/admin/meters/import", body, adminSession())
	c.Request.Header.Set("Content-Type", contentType)
	h.Import(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "meters.csv", srv.lastFilename)
	assert.Equal(t, "reference_no,name\n1,A\n", srv.lastUpload)

	var report dto.ImportReport
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &report))
	assert.Equal(t, dto.ImportReport{Imported: 3, Skipped: 2}, report)
}

func TestTransferHandlerImportRequiresFile(t *testing.T) {
	h := NewTransferHandler(&fakeTransferSrv{}, 0)

	c, rec := newTestContext(http.MethodPost, "/admin/meters/import", strings.NewReader("{}"), adminSession())
	h.Import(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransferHandlerImportTooLarge(t *testing.T) {
	srv := &fakeTransferSrv{}
	h := NewTransferHandler(srv, 16)

	body, contentType := multipartBody(t, "meters.csv", strings.Repeat("x", 1024))
	c, rec := newTestContext(http.MethodPost, "/admin/meters/import", body, adminSession())
	c.Request.Header.Set("Content-Type", contentType)
	h.Import(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, srv.lastFilename)
}

func TestTransferHandlerReviewAndConfirmDelete(t *testing.T) {
	srv := &fakeTransferSrv{}
	h := NewTransferHandler(srv, 0)

	c, rec := newTestContext(http.MethodPost, "/admin/meters/delete/review", strings.NewReader(`{"reference_nos":["1","2"]}`), adminSession())
	h.ReviewDelete(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, srv.lastReview)
	assert.Equal(t, []string{"1", "2"}, srv.lastReview.ReferenceNos)
	assert.Nil(t, srv.lastReview.Filter)

	c, rec = newTestContext(http.MethodPost, "/admin/meters/delete/confirm", strings.NewReader(`{"review_id":"rev-1","confirm":true}`), adminSession())
	h.ConfirmDelete(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.DeleteConfirmRequest{ReviewID: "rev-1", Confirm: true}, srv.lastConfirm)
}

func TestTransferHandlerConfirmDeleteConflict(t *testing.T) {
	srv := &fakeTransferSrv{err: appErrors.Clone(appErrors.ErrConflict, "records changed since review; nothing was deleted")}
	h := NewTransferHandler(srv, 0)

	c, rec := newTestContext(http.MethodPost, "/admin/meters/delete/confirm", strings.NewReader(`{"review_id":"rev-1","confirm":true}`), adminSession())
	h.ConfirmDelete(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTransferHandlerCancelDelete(t *testing.T) {
	srv := &fakeTransferSrv{}
	h := NewTransferHandler(srv, 0)

	c, _ := newTestContext(http.MethodDelete, "/admin/meters/delete/review", nil, adminSession())
	h.CancelDelete(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "sess-admin", srv.cancelled)
}

func TestTransferHandlerReviewDeleteByFilter(t *testing.T) {
	srv := &fakeTransferSrv{}
	h := NewTransferHandler(srv, 0)

	c, rec := newTestContext(http.MethodPost, "/admin/meters/delete/review", strings.NewReader(`{"filter":{"circle":"Sukkur","feeder":"F1"}}`), adminSession())
	h.ReviewDelete(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, srv.lastReview)
	require.NotNil(t, srv.lastReview.Filter)
	assert.Equal(t, models.MeterFilter{Circle: "Sukkur", Feeder: "F1"}, *srv.lastReview.Filter)
}

func TestTransferHandlerDeletePayloadLimits(t *testing.T) {
	srv := &fakeTransferSrv{}
	h := NewTransferHandler(srv, 0)

	body := `{"reference_nos":["` + strings.Repeat("9", 65) + `"]}`
	c, rec := newTestContext(http.MethodPost, "/admin/meters/delete/review", strings.NewReader(body), adminSession())
	h.ReviewDelete(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, srv.lastReview)

	c, rec = newTestContext(http.MethodPost, "/admin/meters/delete/confirm", strings.NewReader(`{"confirm":true}`), adminSession())
	h.ConfirmDelete(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, srv.lastConfirm.ReviewID)
}
