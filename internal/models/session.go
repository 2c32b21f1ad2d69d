package models

import "time"

// Page identifies a navigable dashboard view.
type Page string

const (
	PageWelcome         Page = "welcome"
	PageCustomerSearch  Page = "customer_search"
	PageMuteAnalytics   Page = "mute_analytics"
	PageTrafficInsights Page = "traffic_insights"
	PageDataExport      Page = "data_export"
	PageAdminDashboard  Page = "admin_dashboard"
)

var pageTitles = map[Page]string{
	PageWelcome:         "Welcome",
	PageCustomerSearch:  "Customer Search",
	PageMuteAnalytics:   "Mute Analytics",
	PageTrafficInsights: "Traffic Insights",
	PageDataExport:      "Data Export",
	PageAdminDashboard:  "Admin Dashboard",
}

// AllPages lists pages in navigation order.
var AllPages = []Page{
	PageWelcome,
	PageCustomerSearch,
	PageMuteAnalytics,
	PageTrafficInsights,
	PageDataExport,
	PageAdminDashboard,
}

// Title returns the navigation label.
func (p Page) Title() string {
	if title, ok := pageTitles[p]; ok {
		return title
	}
	return string(p)
}

// Valid reports whether p is a known page.
func (p Page) Valid() bool {
	_, ok := pageTitles[p]
	return ok
}

// SearchPhase is the step of the customer search view.
type SearchPhase string

const (
	SearchIdle            SearchPhase = "IDLE"
	SearchSearched        SearchPhase = "SEARCHED"
	SearchReasonPending   SearchPhase = "REASON_PENDING"
	SearchReasonSubmitted SearchPhase = "REASON_SUBMITTED"
)

// SearchViewState holds the transient customer search inputs of one session.
type SearchViewState struct {
	Phase          SearchPhase `json:"phase"`
	ReferenceNo    string      `json:"reference_no,omitempty"`
	SelectedReason string      `json:"selected_reason,omitempty"`
	Submitted      bool        `json:"submitted"`
}

// DeleteReview is a pending two-step delete awaiting confirmation.
type DeleteReview struct {
	ID           string    `json:"id"`
	ReferenceNos []string  `json:"reference_nos"`
	CreatedAt    time.Time `json:"created_at"`
}

// SessionState is the server-held state of one logged-in client.
type SessionState struct {
	ID            string          `json:"id"`
	LoggedIn      bool            `json:"logged_in"`
	UserID        string          `json:"user_id"`
	UserEmail     string          `json:"user_email"`
	UserRole      UserRole        `json:"user_role"`
	AccessScope   *AccessScope    `json:"access_scope,omitempty"`
	CurrentPage   Page            `json:"current_page"`
	Search        SearchViewState `json:"search"`
	PendingDelete *DeleteReview   `json:"pending_delete,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

// IsAdmin reports whether the session holder is an administrator.
func (s *SessionState) IsAdmin() bool {
	return s != nil && s.UserRole == RoleAdmin
}

// Reset clears every key, leaving a logged-out session.
func (s *SessionState) Reset() {
	*s = SessionState{}
}

// Scope returns the session's access scope, or an unrestricted one.
func (s *SessionState) Scope() AccessScope {
	if s == nil || s.AccessScope == nil {
		return AccessScope{}
	}
	return *s.AccessScope
}
