package service

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var emailLocalPart = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+$`)

// NewValidator returns a validator with the "orgemail" tag bound to domain.
// An empty domain accepts any syntactically valid address.
func NewValidator(domain string) *validator.Validate {
	v := validator.New()
	domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "@")
	_ = v.RegisterValidation("orgemail", func(fl validator.FieldLevel) bool {
		return isOrgEmail(fl.Field().String(), domain)
	})
	return v
}

func isOrgEmail(raw, domain string) bool {
	email := strings.ToLower(strings.TrimSpace(raw))
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	local, host := email[:at], email[at+1:]
	if !emailLocalPart.MatchString(local) {
		return false
	}
	if domain == "" {
		return strings.Contains(host, ".")
	}
	return host == domain
}

func normalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
