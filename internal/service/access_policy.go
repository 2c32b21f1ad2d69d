package service

import "github.com/noah-isme/mute-meter-api/internal/models"

// Actor is the identity a service call runs on behalf of.
type Actor struct {
	UserID    string
	Email     string
	Role      models.UserRole
	Scope     models.AccessScope
	IP        string
	UserAgent string
}

// ActorFromSession builds an actor from a logged-in session.
func ActorFromSession(state *models.SessionState, ip, userAgent string) Actor {
	return Actor{
		UserID:    state.UserID,
		Email:     state.UserEmail,
		Role:      state.UserRole,
		Scope:     state.Scope(),
		IP:        ip,
		UserAgent: userAgent,
	}
}

// IsAdmin reports whether the actor bypasses scope filtering.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// CanSee reports whether a single record is visible to the actor.
func (a Actor) CanSee(record models.MeterRecord) bool {
	return a.IsAdmin() || a.Scope.Matches(record)
}

// FilterByScope keeps the records matching every set dimension of scope.
// When bypass is true the input is returned unchanged.
func FilterByScope(records []models.MeterRecord, scope models.AccessScope, bypass bool) []models.MeterRecord {
	if bypass {
		return records
	}
	scope = scope.Normalize()
	if scope.Unrestricted() {
		return records
	}
	visible := make([]models.MeterRecord, 0, len(records))
	for _, record := range records {
		if scope.Matches(record) {
			visible = append(visible, record)
		}
	}
	return visible
}

// VisibleRecords applies the actor's access scope and then the view's drill-down selection.
func VisibleRecords(records []models.MeterRecord, actor Actor, filter models.MeterFilter) []models.MeterRecord {
	scoped := FilterByScope(records, actor.Scope, actor.IsAdmin())
	return FilterByScope(scoped, filter.AsScope(), false)
}
