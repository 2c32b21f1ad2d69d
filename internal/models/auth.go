package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials and the requested role.
type LoginRequest struct {
	Email     string   `json:"email" validate:"required,orgemail"`
	Password  string   `json:"password" validate:"required"`
	Role      UserRole `json:"role" validate:"required,oneof=user admin"`
	IP        string   `json:"-"`
	UserAgent string   `json:"-"`
}

// LoginResponse returns the session token and the authenticated identity.
type LoginResponse struct {
	SessionToken string    `json:"session_token"`
	ExpiresIn    int64     `json:"expires_in"`
	User         UserInfo  `json:"user"`
	IssuedAt     time.Time `json:"issued_at"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID    string       `json:"id"`
	Email string       `json:"email"`
	Role  UserRole     `json:"role"`
	Scope *AccessScope `json:"scope,omitempty"`
}

// SessionClaims is the signed payload binding a client to its server-held session.
type SessionClaims struct {
	SessionID string   `json:"sid"`
	Email     string   `json:"email"`
	Role      UserRole `json:"role"`
	jwt.RegisteredClaims
}
