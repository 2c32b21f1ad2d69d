package dto

import "github.com/noah-isme/mute-meter-api/internal/models"

// SearchRequest starts or refreshes a customer search.
type SearchRequest struct {
	ReferenceNo string `json:"reference_no" binding:"required,max=64"`
}

// SelectReasonRequest picks a reason before submitting it.
type SelectReasonRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}

// SearchResult is the rendered state of the customer search view.
type SearchResult struct {
	State    models.SearchViewState `json:"state"`
	Record   *models.MeterRecord    `json:"record,omitempty"`
	Editable bool                   `json:"editable"`
	Message  string                 `json:"message,omitempty"`
}

// MuteReasonRequest is an administrator override; a blank reason clears the annotation.
type MuteReasonRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}
