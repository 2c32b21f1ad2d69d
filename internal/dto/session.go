package dto

import "github.com/noah-isme/mute-meter-api/internal/models"

// NavItem is one entry of the navigation menu.
type NavItem struct {
	Page   models.Page `json:"page"`
	Title  string      `json:"title"`
	Active bool        `json:"active"`
}

// Navigation describes what the session holder may open and do right now.
type Navigation struct {
	User        models.UserInfo `json:"user"`
	CurrentPage models.Page     `json:"current_page"`
	Pages       []NavItem       `json:"pages"`
	Actions     []string        `json:"actions"`
}
