package dto

import "github.com/noah-isme/mute-meter-api/internal/models"

// ImportReport summarises a bulk import.
type ImportReport struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// ExportPreview shows the first rows of what a download would contain.
type ExportPreview struct {
	Total   int                  `json:"total"`
	Records []models.MeterRecord `json:"records"`
	Formats []string             `json:"formats"`
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// DeleteReviewRequest selects the records an administrator intends to delete, either
// as explicit references or as the drill-down filter of an export.
type DeleteReviewRequest struct {
	ReferenceNos []string            `json:"reference_nos" binding:"omitempty,max=10000,dive,max=64"`
	Filter       *models.MeterFilter `json:"filter,omitempty"`
}

// DeleteReviewResponse counts the records a confirmation would remove and lists the first of them.
type DeleteReviewResponse struct {
	ReviewID string               `json:"review_id"`
	Count    int                  `json:"count"`
	Records  []models.MeterRecord `json:"records"`
}

// DeleteConfirmRequest finalises a reviewed delete.
type DeleteConfirmRequest struct {
	ReviewID string `json:"review_id" binding:"required,max=64"`
	Confirm  bool   `json:"confirm"`
}

// DeleteResult reports how many records were removed.
type DeleteResult struct {
	Deleted int `json:"deleted"`
}
