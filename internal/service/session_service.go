package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/mute-meter-api/internal/authz"
	"github.com/noah-isme/mute-meter-api/internal/dto"
	"github.com/noah-isme/mute-meter-api/internal/models"
	"github.com/noah-isme/mute-meter-api/internal/repository"
	appErrors "github.com/noah-isme/mute-meter-api/pkg/errors"
)

// Navigation actions.
const (
	ActionView     = authz.ActionView
	ActionDownload = authz.ActionDownload
	ActionManage   = authz.ActionManage
)

type pageAuthorizer interface {
	Can(role models.UserRole, page models.Page, action string) bool
	Pages(role models.UserRole) []models.Page
}

// SessionService drives per-session navigation state.
type SessionService struct {
	store      sessionStore
	authorizer pageAuthorizer
	logger     *zap.Logger
}

// NewSessionService constructs a SessionService.
func NewSessionService(store sessionStore, authorizer pageAuthorizer, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{store: store, authorizer: authorizer, logger: logger}
}

// Enter records page as the session's current page after checking the role may open it.
func (s *SessionService) Enter(ctx context.Context, sessionID string, page models.Page) (*models.SessionState, error) {
	return s.Update(ctx, sessionID, func(state *models.SessionState) error {
		if !s.authorizer.Can(state.UserRole, page, ActionView) {
			return appErrors.Clone(appErrors.ErrForbidden, "you do not have access to "+page.Title())
		}
		state.CurrentPage = page
		return nil
	})
}

// Update mutates the session atomically and maps store failures to domain errors.
func (s *SessionService) Update(ctx context.Context, sessionID string, fn func(*models.SessionState) error) (*models.SessionState, error) {
	state, err := s.store.Update(ctx, sessionID, fn)
	if err != nil {
		var appErr *appErrors.Error
		switch {
		case errors.As(err, &appErr):
			return nil, appErr
		case errors.Is(err, repository.ErrSessionNotFound):
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session expired")
		}
		return nil, appErrors.Storage(err, "failed to update session")
	}
	return state, nil
}

// Navigation lists the pages the holder may open and the actions of the current page.
// Download is only offered while the export view is active.
func (s *SessionService) Navigation(state *models.SessionState) dto.Navigation {
	nav := dto.Navigation{
		User: models.UserInfo{
			ID:    state.UserID,
			Email: state.UserEmail,
			Role:  state.UserRole,
			Scope: state.AccessScope,
		},
		CurrentPage: state.CurrentPage,
		Actions:     []string{},
	}
	for _, page := range s.authorizer.Pages(state.UserRole) {
		nav.Pages = append(nav.Pages, dto.NavItem{Page: page, Title: page.Title(), Active: page == state.CurrentPage})
	}
	if s.authorizer.Can(state.UserRole, state.CurrentPage, ActionView) {
		nav.Actions = append(nav.Actions, ActionView)
	}
	if state.CurrentPage == models.PageDataExport && s.authorizer.Can(state.UserRole, models.PageDataExport, ActionDownload) {
		nav.Actions = append(nav.Actions, ActionDownload)
	}
	if s.authorizer.Can(state.UserRole, state.CurrentPage, ActionManage) {
		nav.Actions = append(nav.Actions, ActionManage)
	}
	return nav
}
