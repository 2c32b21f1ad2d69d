package models

import (
	"strings"
	"time"
)

// UserRole is either a field user or an administrator.
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// Valid reports whether the role is one of the known roles.
func (r UserRole) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// scopeAll is the UI value meaning "no restriction".
const scopeAll = "all"

// AccessScope restricts which meters a non-admin account may see.
// A nil dimension imposes no restriction.
type AccessScope struct {
	Circle      *string `db:"circle" json:"circle"`
	Division    *string `db:"division" json:"division"`
	SubDivision *string `db:"sub_division" json:"sub_division"`
	Feeder      *string `db:"feeder" json:"feeder"`
}

// Normalize trims every dimension and turns blank or "All" into nil.
func (s AccessScope) Normalize() AccessScope {
	return AccessScope{
		Circle:      scopeValue(deref(s.Circle)),
		Division:    scopeValue(deref(s.Division)),
		SubDivision: scopeValue(deref(s.SubDivision)),
		Feeder:      scopeValue(deref(s.Feeder)),
	}
}

// Unrestricted reports whether no dimension is set.
func (s AccessScope) Unrestricted() bool {
	n := s.Normalize()
	return n.Circle == nil && n.Division == nil && n.SubDivision == nil && n.Feeder == nil
}

// Matches applies every set dimension as an exact equality test.
func (s AccessScope) Matches(r MeterRecord) bool {
	n := s.Normalize()
	if n.Circle != nil && r.Circle != *n.Circle {
		return false
	}
	if n.Division != nil && r.Division != *n.Division {
		return false
	}
	if n.SubDivision != nil && r.SubDivision != *n.SubDivision {
		return false
	}
	if n.Feeder != nil && r.Feeder != *n.Feeder {
		return false
	}
	return true
}

func scopeValue(raw string) *string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, scopeAll) {
		return nil
	}
	return &trimmed
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// UserAccount represents a login identity stored in the users table.
type UserAccount struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         UserRole  `db:"role" json:"role"`
	AccessScope  `json:"scope"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// IsAdmin reports whether the account bypasses scope filtering.
func (u UserAccount) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
