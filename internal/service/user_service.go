package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/mute-meter-api/internal/dto"
	"github.com/noah-isme/mute-meter-api/internal/models"
	"github.com/noah-isme/mute-meter-api/internal/repository"
	appErrors "github.com/noah-isme/mute-meter-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.UserAccount, int, error)
	FindByID(ctx context.Context, id string) (*models.UserAccount, error)
	FindByEmail(ctx context.Context, email string) (*models.UserAccount, error)
	Create(ctx context.Context, user *models.UserAccount) error
	Update(ctx context.Context, user *models.UserAccount) error
	Delete(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type sessionRevoker interface {
	DeleteByUser(ctx context.Context, userID string) (int, error)
}

// UserService handles account administration.
type UserService struct {
	repo       userRepository
	sessions   sessionRevoker
	validator  *validator.Validate
	logger     *zap.Logger
	bcryptCost int
}

// NewUserService creates an instance of UserService.
// Sessions opened by an account are revoked when the account changes; sessions may be nil.
func NewUserService(repo userRepository, sessions sessionRevoker, validate *validator.Validate, logger *zap.Logger, bcryptCost int) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator("")
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &UserService{repo: repo, sessions: sessions, validator: validate, logger: logger, bcryptCost: bcryptCost}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.UserAccount, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Storage(err, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.UserAccount, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Storage(err, "failed to load user")
	}
	return user, nil
}

// Create adds a new account with a bcrypt-hashed password.
func (s *UserService) Create(ctx context.Context, req dto.CreateUserRequest, actor Actor) (*models.UserAccount, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Storage(err, "failed to check email uniqueness")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.UserAccount{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: string(passwordHash),
		Role:         req.Role,
		AccessScope:  scopeForRole(req.Role, req.Scope),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
		}
		return nil, appErrors.Storage(err, "failed to create user")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"id": user.ID, "email": user.Email, "role": user.Role, "scope": user.AccessScope})
	s.audit(ctx, actor, models.AuditActionUserCreate, user.ID, nil, newPayload)
	return user, nil
}

// Update changes email, role and scope; the password is re-hashed only when provided.
func (s *UserService) Update(ctx context.Context, id string, req dto.UpdateUserRequest, actor Actor) (*models.UserAccount, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update user payload")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	oldPayload, _ := json.Marshal(map[string]interface{}{"email": user.Email, "role": user.Role, "scope": user.AccessScope})

	if req.Email != user.Email {
		if existing, err := s.repo.FindByEmail(ctx, req.Email); err == nil && existing.ID != user.ID {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
		} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Storage(err, "failed to check email uniqueness")
		}
	}

	user.Email = req.Email
	user.Role = req.Role
	user.AccessScope = scopeForRole(req.Role, req.Scope)
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		user.PasswordHash = string(hash)
	}

	if err := s.repo.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Storage(err, "failed to update user")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"email": user.Email, "role": user.Role, "scope": user.AccessScope, "password_changed": req.Password != ""})
	s.audit(ctx, actor, models.AuditActionUserUpdate, user.ID, oldPayload, newPayload)
	s.revokeSessions(ctx, user.ID)
	return user, nil
}

// Delete removes an account. Administrators cannot delete themselves.
func (s *UserService) Delete(ctx context.Context, id string, actor Actor) error {
	if id == actor.UserID {
		return appErrors.Clone(appErrors.ErrConflict, "cannot delete the account in use")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Storage(err, "failed to delete user")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"email": user.Email, "role": user.Role})
	s.audit(ctx, actor, models.AuditActionUserDelete, id, oldPayload, nil)
	s.revokeSessions(ctx, id)
	return nil
}

// revokeSessions logs the user out everywhere so role and scope changes apply at the next request.
func (s *UserService) revokeSessions(ctx context.Context, userID string) {
	if s.sessions == nil {
		return
	}
	revoked, err := s.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to revoke user sessions", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if revoked > 0 {
		s.logger.Info("revoked user sessions", zap.String("user_id", userID), zap.Int("sessions", revoked))
	}
}

func (s *UserService) audit(ctx context.Context, actor Actor, action, resourceID string, oldValues, newValues []byte) {
	var actorID *string
	if actor.UserID != "" {
		actorID = &actor.UserID
	}
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     actorID,
		Action:     action,
		Resource:   models.AuditResourceUser,
		ResourceID: &resourceID,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record user audit log", zap.String("action", action), zap.Error(err))
	}
}

// scopeForRole drops scope restrictions for administrators, who bypass them anyway.
func scopeForRole(role models.UserRole, payload dto.ScopePayload) models.AccessScope {
	if role == models.RoleAdmin {
		return models.AccessScope{}
	}
	return payload.ToModel()
}
