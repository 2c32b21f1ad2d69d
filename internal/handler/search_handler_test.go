package handler

import (
	"context"
	"encoding/json"
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

type fakeSearchSrv struct {
	result      *dto.SearchResult
	err         error
	searchCalls int
	lastSession string
	lastRef     string
	lastReason  string
}

func (f *fakeSearchSrv) Current(_ context.Context, state *models.SessionState, _ service.Actor) (*dto.SearchResult, error) {
	f.lastSession = state.ID
	return f.result, f.err
}

func (f *fakeSearchSrv) Search(_ context.Context, sessionID string, _ service.Actor, referenceNo string) (*dto.SearchResult, error) {
	f.searchCalls++
	f.lastSession, f.lastRef = sessionID, referenceNo
	return f.result, f.err
}

func (f *fakeSearchSrv) SelectReason(_ context.Context, sessionID string, _ service.Actor, raw string) (*dto.SearchResult, error) {
	f.lastSession, f.lastReason = sessionID, raw
	return f.result, f.err
}

func (f *fakeSearchSrv) SubmitReason(_ context.Context, state *models.SessionState, _ service.Actor) (*dto.SearchResult, error) {
	f.lastSession = state.ID
	return f.result, f.err
}

func TestSearchHandlerReasonsCatalog(t *testing.T) {
	h := NewSearchHandler(&fakeSearchSrv{})

	c, rec := newTestContext(http.MethodGet, "/search/reasons", nil, userSession())
	h.Reasons(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var reasons []string
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &reasons))
	assert.Equal(t, models.MuteReasonCatalog, reasons)
}

func TestSearchHandlerRejectsBlankReference(t *testing.T) {
	srv := &fakeSearchSrv{}
	h := NewSearchHandler(srv)

	c, rec := newTestContext(http.MethodPost, "/search", strings.NewReader(`{"reference_no":"   "}`), userSession())
	h.Search(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, srv.searchCalls)
}

func TestSearchHandlerSearch(t *testing.T) {
	srv := &fakeSearchSrv{result: &dto.SearchResult{
		State:    models.SearchViewState{Phase: models.SearchSearched, ReferenceNo: "0412345"},
		Record:   &models.MeterRecord{ReferenceNo: "0412345"},
		Editable: true,
	}}
	h := NewSearchHandler(srv)

	c, rec := newTestContext(http.MethodPost, "/search", strings.NewReader(`{"reference_no":"0412345"}`), userSession())
	h.Search(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sess-user", srv.lastSession)
	assert.Equal(t, "0412345", srv.lastRef)

	var body dto.SearchResult
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &body))
	assert.True(t, body.Editable)
}

func TestSearchHandlerSelectReason(t *testing.T) {
	srv := &fakeSearchSrv{result: &dto.SearchResult{}}
	h := NewSearchHandler(srv)

	c, rec := newTestContext(http.MethodPost, "/search/reason", strings.NewReader(`{"reason":"Meter Burnt"}`), userSession())
	h.SelectReason(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Meter Burnt", srv.lastReason)
}

func TestSearchHandlerSubmitLostRaceReturnsStoredRecord(t *testing.T) {
	stored := "Not In Use"
	srv := &fakeSearchSrv{
		result: &dto.SearchResult{Record: &models.MeterRecord{ReferenceNo: "0412345", MuteReason: &stored}},
		err:    appErrors.Clone(appErrors.ErrMuteReasonSet, "mute reason was set by another user"),
	}
	h := NewSearchHandler(srv)

	c, rec := newTestContext(http.MethodPost, "/search/submit", nil, userSession())
	h.SubmitReason(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	env := decode(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "MUTE_REASON_ALREADY_SET", env.Error.Code)

	var body dto.SearchResult
	require.NoError(t, json.Unmarshal(env.Data, &body))
	require.NotNil(t, body.Record)
	assert.Equal(t, "Not In Use", *body.Record.MuteReason)
}

func TestSearchHandlerSubmitNotFound(t *testing.T) {
	h := NewSearchHandler(&fakeSearchSrv{err: appErrors.Clone(appErrors.ErrNotFound, "meter not found")})

	c, rec := newTestContext(http.MethodPost, "/search/submit", nil, userSession())
	h.SubmitReason(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, decode(t, rec).Data)
}

func TestSearchHandlerPayloadLimits(t *testing.T) {
	srv := &fakeSearchSrv{}
	h := NewSearchHandler(srv)

	c, rec := newTestContext(http.MethodPost, "/search", strings.NewReader(`{"reference_no":"`+strings.Repeat("1", 65)+`"}`), userSession())
	h.Search(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, srv.searchCalls)

	c, rec = newTestContext(http.MethodPost, "/search/reason", strings.NewReader(`{"reason":"`+strings.Repeat("x", 300)+`"}`), userSession())
	h.SelectReason(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, srv.lastReason)
}
