package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/mute-meter-api/internal/dto"
	"github.com/noah-isme/mute-meter-api/internal/models"
	appErrors "github.com/noah-isme/mute-meter-api/pkg/errors"
)

// SearchService runs the customer search view:
// Idle -> Searched -> ReasonPending -> ReasonSubmitted.
// Entering a different reference number resets the view to Searched.
type SearchService struct {
	sessions *SessionService
	reasons  *MuteReasonService
	logger   *zap.Logger
}

// NewSearchService constructs a SearchService.
func NewSearchService(sessions *SessionService, reasons *MuteReasonService, logger *zap.Logger) *SearchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchService{sessions: sessions, reasons: reasons, logger: logger}
}

// Current re-renders the view from session state, re-reading the record.
func (s *SearchService) Current(ctx context.Context, state *models.SessionState, actor Actor) (*dto.SearchResult, error) {
	view := state.Search
	if view.Phase == "" {
		view.Phase = models.SearchIdle
	}
	if view.Phase == models.SearchIdle || view.ReferenceNo == "" {
		return &dto.SearchResult{State: models.SearchViewState{Phase: models.SearchIdle}}, nil
	}
	record, err := s.reasons.Lookup(ctx, actor, view.ReferenceNo)
	if err != nil {
		return nil, err
	}
	return s.render(view, record, actor), nil
}

// Search looks up a reference number. A new number clears the previous view's transient state.
func (s *SearchService) Search(ctx context.Context, sessionID string, actor Actor, referenceNo string) (*dto.SearchResult, error) {
	referenceNo = models.NormalizeReferenceNo(referenceNo)
	record, err := s.reasons.Lookup(ctx, actor, referenceNo)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			if _, resetErr := s.sessions.Update(ctx, sessionID, func(state *models.SessionState) error {
				state.Search = models.SearchViewState{Phase: models.SearchIdle}
				return nil
			}); resetErr != nil {
				return nil, resetErr
			}
		}
		return nil, err
	}

	state, err := s.sessions.Update(ctx, sessionID, func(state *models.SessionState) error {
		if state.Search.ReferenceNo != record.ReferenceNo {
			state.Search = models.SearchViewState{ReferenceNo: record.ReferenceNo}
		}
		if !state.Search.Submitted {
			state.Search.Phase = models.SearchSearched
			state.Search.SelectedReason = ""
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.render(state.Search, record, actor), nil
}

// SelectReason stages a reason for the current record.
func (s *SearchService) SelectReason(ctx context.Context, sessionID string, actor Actor, raw string) (*dto.SearchResult, error) {
	reason, err := ParseMuteReason(raw, actor.Role)
	if err != nil {
		return nil, err
	}

	var referenceNo string
	state, err := s.sessions.Update(ctx, sessionID, func(state *models.SessionState) error {
		switch state.Search.Phase {
		case models.SearchSearched, models.SearchReasonPending:
		case models.SearchReasonSubmitted:
			return appErrors.Clone(appErrors.ErrMuteReasonSet, "mute reason already submitted for this record")
		default:
			return appErrors.Clone(appErrors.ErrValidation, "search for a reference number first")
		}
		state.Search.Phase = models.SearchReasonPending
		state.Search.SelectedReason = reason.Text()
		referenceNo = state.Search.ReferenceNo
		return nil
	})
	if err != nil {
		return nil, err
	}

	record, err := s.reasons.Lookup(ctx, actor, referenceNo)
	if err != nil {
		return nil, err
	}
	return s.render(state.Search, record, actor), nil
}

// SubmitReason writes the staged reason. A user who loses a race to another
// writer sees the stored value and the view moves to ReasonSubmitted.
func (s *SearchService) SubmitReason(ctx context.Context, state *models.SessionState, actor Actor) (*dto.SearchResult, error) {
	view := state.Search
	switch view.Phase {
	case models.SearchReasonPending:
	case models.SearchReasonSubmitted:
		return nil, appErrors.Clone(appErrors.ErrMuteReasonSet, "mute reason already submitted for this record")
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "select a mute reason first")
	}

	record, submitErr := s.reasons.Submit(ctx, actor, view.ReferenceNo, view.SelectedReason)
	if submitErr != nil && (record == nil || !errors.Is(submitErr, appErrors.ErrMuteReasonSet)) {
		return nil, submitErr
	}

	updated, err := s.sessions.Update(ctx, state.ID, func(st *models.SessionState) error {
		if st.Search.ReferenceNo != view.ReferenceNo {
			return appErrors.Clone(appErrors.ErrConflict, "search changed while submitting")
		}
		st.Search.Phase = models.SearchReasonSubmitted
		st.Search.Submitted = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := s.render(updated.Search, record, actor)
	if submitErr != nil {
		return result, submitErr
	}
	result.Message = "mute reason saved"
	return result, nil
}

func (s *SearchService) render(view models.SearchViewState, record *models.MeterRecord, actor Actor) *dto.SearchResult {
	editable := !view.Submitted && (actor.IsAdmin() || record.MuteState() == models.MuteStateUnset)
	return &dto.SearchResult{State: view, Record: record, Editable: editable}
}
