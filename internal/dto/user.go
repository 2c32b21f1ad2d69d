package dto

import "github.com/noah-isme/mute-meter-api/internal/models"

// ScopePayload carries optional access restrictions; blank or "All" means unrestricted.
type ScopePayload struct {
	Circle      string `json:"circle"`
	Division    string `json:"division"`
	SubDivision string `json:"sub_division"`
	Feeder      string `json:"feeder"`
}

// ToModel converts the payload into a normalized scope.
func (p ScopePayload) ToModel() models.AccessScope {
	return models.AccessScope{
		Circle:      &p.Circle,
		Division:    &p.Division,
		SubDivision: &p.SubDivision,
		Feeder:      &p.Feeder,
	}.Normalize()
}

// CreateUserRequest creates an account.
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,orgemail"`
	Password string          `json:"password" validate:"required,min=6"`
	Role     models.UserRole `json:"role" validate:"required,oneof=user admin"`
	Scope    ScopePayload    `json:"scope"`
}

// UpdateUserRequest changes an account; an empty password keeps the stored hash.
type UpdateUserRequest struct {
	Email    string          `json:"email" validate:"required,orgemail"`
	Password string          `json:"password" validate:"omitempty,min=6"`
	Role     models.UserRole `json:"role" validate:"required,oneof=user admin"`
	Scope    ScopePayload    `json:"scope"`
}
