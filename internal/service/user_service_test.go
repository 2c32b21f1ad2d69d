package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/mute-meter-api/internal/dto"
	"github.com/noah-isme/mute-meter-api/internal/models"
	"github.com/noah-isme/mute-meter-api/internal/repository"
	appErrors "github.com/noah-isme/mute-meter-api/pkg/errors"
)

type mockUserRepo struct {
	users     map[string]*models.UserAccount
	listErr   error
	auditLogs []*models.AuditLog
}

func newMockUserRepo(users ...*models.UserAccount) *mockUserRepo {
	m := &mockUserRepo{users: map[string]*models.UserAccount{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.UserAccount, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	users := make([]models.UserAccount, 0, len(m.users))
	for _, u := range m.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		users = append(users, *u)
	}
	return users, len(users), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.UserAccount, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *u
	return &clone, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.UserAccount, error) {
	for _, u := range m.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.UserAccount) error {
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.UserAccount) error {
	if _, ok := m.users[user.ID]; !ok {
		return sql.ErrNoRows
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.users, id)
	return nil
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func newTestUserService(repo *mockUserRepo) *UserService {
	return NewUserService(repo, nil, NewValidator("sepco.com.pk"), zap.NewNop(), bcrypt.MinCost)
}

func TestUserServiceCreate(t *testing.T) {
	repo := newMockUserRepo()
	svc := newTestUserService(repo)

	user, err := svc.Create(context.Background(), dto.CreateUserRequest{
		Email:    " New.User@sepco.com.pk",
		Password: "secret1",
		Role:     models.RoleUser,
		Scope:    dto.ScopePayload{Circle: "Sukkur", Division: "All"},
	}, adminActor())
	require.NoError(t, err)
	assert.Equal(t, "new.user@sepco.com.pk", user.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret1")))
	require.NotNil(t, user.AccessScope.Circle)
	assert.Equal(t, "Sukkur", *user.AccessScope.Circle)
	assert.Nil(t, user.AccessScope.Division)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionUserCreate, repo.auditLogs[0].Action)
}

func TestUserServiceCreateAdminDropsScope(t *testing.T) {
	svc := newTestUserService(newMockUserRepo())

	user, err := svc.Create(context.Background(), dto.CreateUserRequest{
		Email:    "chief@sepco.com.pk",
		Password: "secret1",
		Role:     models.RoleAdmin,
		Scope:    dto.ScopePayload{Circle: "Sukkur"},
	}, adminActor())
	require.NoError(t, err)
	assert.True(t, user.AccessScope.Unrestricted())
}

func TestUserServiceCreateDuplicateEmail(t *testing.T) {
	repo := newMockUserRepo(&models.UserAccount{ID: "u1", Email: "taken@sepco.com.pk", Role: models.RoleUser})
	svc := newTestUserService(repo)

	_, err := svc.Create(context.Background(), dto.CreateUserRequest{Email: "taken@sepco.com.pk", Password: "secret1", Role: models.RoleUser}, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestUserServiceCreateValidation(t *testing.T) {
	svc := newTestUserService(newMockUserRepo())

	_, err := svc.Create(context.Background(), dto.CreateUserRequest{Email: "x@gmail.com", Password: "secret1", Role: models.RoleUser}, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(context.Background(), dto.CreateUserRequest{Email: "x@sepco.com.pk", Password: "123", Role: models.RoleUser}, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(context.Background(), dto.CreateUserRequest{Email: "x@sepco.com.pk", Password: "secret1", Role: "root"}, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestUserServiceUpdateKeepsPasswordWhenBlank(t *testing.T) {
	repo := newMockUserRepo(&models.UserAccount{ID: "u1", Email: "a@sepco.com.pk", PasswordHash: "old-hash", Role: models.RoleUser})
	svc := newTestUserService(repo)

	user, err := svc.Update(context.Background(), "u1", dto.UpdateUserRequest{Email: "a@sepco.com.pk", Role: models.RoleUser, Scope: dto.ScopePayload{Feeder: "F1"}}, adminActor())
	require.NoError(t, err)
	assert.Equal(t, "old-hash", user.PasswordHash)
	assert.Equal(t, "F1", *repo.users["u1"].AccessScope.Feeder)

	user, err = svc.Update(context.Background(), "u1", dto.UpdateUserRequest{Email: "a@sepco.com.pk", Password: "newpass", Role: models.RoleUser}, adminActor())
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("newpass")))
}

func TestUserServiceUpdateEmailTaken(t *testing.T) {
	repo := newMockUserRepo(
		&models.UserAccount{ID: "u1", Email: "a@sepco.com.pk", Role: models.RoleUser},
		&models.UserAccount{ID: "u2", Email: "b@sepco.com.pk", Role: models.RoleUser},
	)
	svc := newTestUserService(repo)

	_, err := svc.Update(context.Background(), "u1", dto.UpdateUserRequest{Email: "b@sepco.com.pk", Role: models.RoleUser}, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestUserServiceDelete(t *testing.T) {
	repo := newMockUserRepo(&models.UserAccount{ID: "u1", Email: "a@sepco.com.pk", Role: models.RoleUser})
	svc := newTestUserService(repo)

	require.NoError(t, svc.Delete(context.Background(), "u1", adminActor()))
	assert.Empty(t, repo.users)

	err := svc.Delete(context.Background(), "u1", adminActor())
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestUserServiceDeleteSelf(t *testing.T) {
	repo := newMockUserRepo(&models.UserAccount{ID: "a-1", Email: "admin@sepco.com.pk", Role: models.RoleAdmin})
	svc := newTestUserService(repo)

	err := svc.Delete(context.Background(), "a-1", adminActor())
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Len(t, repo.users, 1)
}

func TestUserServiceList(t *testing.T) {
	repo := newMockUserRepo(
		&models.UserAccount{ID: "u1", Email: "a@sepco.com.pk", Role: models.RoleUser},
		&models.UserAccount{ID: "a1", Email: "b@sepco.com.pk", Role: models.RoleAdmin},
	)
	svc := newTestUserService(repo)
	role := models.RoleAdmin

	users, pagination, err := svc.List(context.Background(), models.UserFilter{Role: &role, PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestUserServiceChangesRevokeSessions(t *testing.T) {
	ctx := context.Background()
	repo := newMockUserRepo(
		&models.UserAccount{ID: "u1", Email: "a@sepco.com.pk", Role: models.RoleUser},
		&models.UserAccount{ID: "u2", Email: "b@sepco.com.pk", Role: models.RoleUser},
	)
	store := repository.NewMemorySessionStore()
	for id, owner := range map[string]string{"s1": "u1", "s2": "u1", "s3": "u2"} {
		require.NoError(t, store.Save(ctx, &models.SessionState{ID: id, LoggedIn: true, UserID: owner, ExpiresAt: time.Now().Add(time.Hour)}))
	}
	svc := NewUserService(repo, store, NewValidator("sepco.com.pk"), zap.NewNop(), bcrypt.MinCost)

	_, err := svc.Update(ctx, "u1", dto.UpdateUserRequest{Email: "a@sepco.com.pk", Role: models.RoleUser, Scope: dto.ScopePayload{Circle: "Larkana"}}, adminActor())
	require.NoError(t, err)
	for _, id := range []string{"s1", "s2"} {
		_, err := store.Get(ctx, id)
		assert.ErrorIs(t, err, repository.ErrSessionNotFound)
	}
	_, err = store.Get(ctx, "s3")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "u2", adminActor()))
	_, err = store.Get(ctx, "s3")
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}
