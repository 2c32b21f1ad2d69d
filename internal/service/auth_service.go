package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/mute-meter-api/internal/models"
	"github.com/noah-isme/mute-meter-api/internal/repository"
	appErrors "github.com/noah-isme/mute-meter-api/pkg/errors"
)

type credentialRepository interface {
	FindByEmailAndRole(ctx context.Context, email string, role models.UserRole) (*models.UserAccount, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type sessionStore interface {
	Save(ctx context.Context, state *models.SessionState) error
	Get(ctx context.Context, id string) (*models.SessionState, error)
	Update(ctx context.Context, id string, fn func(*models.SessionState) error) (*models.SessionState, error)
	Delete(ctx context.Context, id string) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	SessionSecret string
	SessionTTL    time.Duration
	Issuer        string
}

// AuthService verifies credentials and owns the lifecycle of server-held sessions.
type AuthService struct {
	repo      credentialRepository
	sessions  sessionStore
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo credentialRepository, sessions sessionStore, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator("")
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = 8 * time.Hour
	}
	return &AuthService{repo: repo, sessions: sessions, validator: validate, logger: logger, config: config, now: time.Now}
}

// Authenticate checks email, password and role together and opens a session.
func (s *AuthService) Authenticate(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, *models.SessionState, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.repo.FindByEmailAndRole(ctx, req.Email, req.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "user not found or incorrect role")
		}
		return nil, nil, appErrors.Storage(err, "failed to fetch user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid credentials")
	}

	issuedAt := s.now().UTC()
	state := &models.SessionState{
		ID:          uuid.NewString(),
		LoggedIn:    true,
		UserID:      user.ID,
		UserEmail:   user.Email,
		UserRole:    user.Role,
		CurrentPage: models.PageWelcome,
		Search:      models.SearchViewState{Phase: models.SearchIdle},
		CreatedAt:   issuedAt,
		ExpiresAt:   issuedAt.Add(s.config.SessionTTL),
	}
	if !user.IsAdmin() {
		scope := user.AccessScope.Normalize()
		state.AccessScope = &scope
	}

	if err := s.sessions.Save(ctx, state); err != nil {
		return nil, nil, appErrors.Storage(err, "failed to open session")
	}

	token, err := s.signSession(state)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign session")
	}

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &user.ID,
		Action:     models.AuditActionLogin,
		Resource:   "auth",
		ResourceID: &user.ID,
		NewValues:  []byte(fmt.Sprintf(`{"role":%q}`, user.Role)),
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record login audit log", zap.Error(err))
	}

	return &models.LoginResponse{
		SessionToken: token,
		ExpiresIn:    int64(s.config.SessionTTL.Seconds()),
		IssuedAt:     issuedAt,
		User: models.UserInfo{
			ID:    user.ID,
			Email: user.Email,
			Role:  user.Role,
			Scope: state.AccessScope,
		},
	}, state, nil
}

// ResolveSession validates a session token and loads the state it points to.
// A non-admin session without a scope is destroyed.
func (s *AuthService) ResolveSession(ctx context.Context, token string) (*models.SessionState, error) {
	claims, err := s.parseSession(token)
	if err != nil {
		return nil, err
	}

	state, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session expired")
		}
		return nil, appErrors.Storage(err, "failed to load session")
	}

	if !state.LoggedIn || state.UserEmail != claims.Email || state.UserRole != claims.Role {
		return nil, appErrors.ErrUnauthorized
	}

	if !state.IsAdmin() && state.AccessScope == nil {
		s.logger.Error("session without access scope", zap.String("session_id", state.ID), zap.String("email", state.UserEmail))
		if err := s.sessions.Delete(ctx, state.ID); err != nil {
			s.logger.Warn("failed to drop session", zap.Error(err))
		}
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "access scope missing, please log in again")
	}

	return state, nil
}

// Logout clears every key of the session.
func (s *AuthService) Logout(ctx context.Context, state *models.SessionState, meta models.LoginRequest) error {
	if state == nil {
		return nil
	}
	userID := state.UserID
	if err := s.sessions.Delete(ctx, state.ID); err != nil {
		return appErrors.Storage(err, "failed to close session")
	}
	state.Reset()

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionLogout,
		Resource:   "auth",
		ResourceID: &userID,
		NewValues:  []byte(`{"status":"logout"}`),
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record logout audit log", zap.Error(err))
	}
	return nil
}

func (s *AuthService) signSession(state *models.SessionState) (string, error) {
	claims := &models.SessionClaims{
		SessionID: state.ID,
		Email:     state.UserEmail,
		Role:      state.UserRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   state.UserID,
			ExpiresAt: jwt.NewNumericDate(state.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(state.CreatedAt),
			NotBefore: jwt.NewNumericDate(state.CreatedAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.SessionSecret))
}

func (s *AuthService) parseSession(tokenString string) (*models.SessionClaims, error) {
	if tokenString == "" {
		return nil, appErrors.ErrUnauthorized
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.SessionSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, appErrors.ErrUnauthorized.Message)
	}

	claims, ok := token.Claims.(*models.SessionClaims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid session token")
	}
	return claims, nil
}
