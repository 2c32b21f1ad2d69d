package authz

import (
	_ "embed"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"go.uber.org/zap"

	"github.com/noah-isme/mute-meter-api/internal/models"
)

//go:embed model.conf
var modelText string

// Page actions.
const (
	ActionView     = "view"
	ActionDownload = "download"
	ActionManage   = "manage"
)

// PageAuthorizer answers which pages and page actions a role may use.
type PageAuthorizer struct {
	enforcer *casbin.SyncedEnforcer
	logger   *zap.Logger
}

// NewEnforcer builds an in-memory enforcer seeded with the dashboard policy.
func NewEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

// NewPageAuthorizer wraps an enforcer.
func NewPageAuthorizer(enforcer *casbin.SyncedEnforcer, logger *zap.Logger) *PageAuthorizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageAuthorizer{enforcer: enforcer, logger: logger}
}

// Can reports whether role may perform action on page.
func (a *PageAuthorizer) Can(role models.UserRole, page models.Page, action string) bool {
	if !role.Valid() || !page.Valid() {
		return false
	}
	allowed, err := a.enforcer.Enforce(subject(role), string(page), action)
	if err != nil {
		a.logger.Error("policy evaluation failed", zap.String("role", string(role)), zap.String("page", string(page)), zap.Error(err))
		return false
	}
	return allowed
}

// Pages returns the pages role may view in menu order.
func (a *PageAuthorizer) Pages(role models.UserRole) []models.Page {
	pages := make([]models.Page, 0, len(models.AllPages))
	for _, page := range models.AllPages {
		if a.Can(role, page, ActionView) {
			pages = append(pages, page)
		}
	}
	return pages
}

func subject(role models.UserRole) string {
	return fmt.Sprintf("role:%s", role)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	user := subject(models.RoleUser)
	admin := subject(models.RoleAdmin)

	policies := [][]string{
		{user, string(models.PageWelcome), ActionView},
		{user, string(models.PageCustomerSearch), ActionView},
		{user, string(models.PageMuteAnalytics), ActionView},
		{user, string(models.PageTrafficInsights), ActionView},
		{user, string(models.PageDataExport), ActionView},
		{user, string(models.PageDataExport), ActionDownload},
		{admin, string(models.PageAdminDashboard), ActionView},
		{admin, string(models.PageAdminDashboard), ActionManage},
	}
	for _, p := range policies {
		if _, err := enforcer.AddPolicy(p[0], p[1], p[2]); err != nil {
			return err
		}
	}
	if _, err := enforcer.AddGroupingPolicy(admin, user); err != nil {
		return err
	}
	return nil
}
