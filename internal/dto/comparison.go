package dto

import "time"

// CompareRequest selects the two periods of a patient to compare.
type CompareRequest struct {
	PatientID string `json:"patient_id" validate:"required"`
	Baseline  string `json:"baseline" form:"baseline" validate:"required"`
	FollowUp  string `json:"follow_up" form:"followUp" validate:"required"`
}

// ExportFormat is the rendering of an exported comparison.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportRequest captures POST /comparisons/exports payload.
type ExportRequest struct {
	CompareRequest
	Format ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportResponse points at a rendered export.
type ExportResponse struct {
	Token     string       `json:"token"`
	URL       string       `json:"url"`
	FileName  string       `json:"file_name"`
	Format    ExportFormat `json:"format"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// ClassificationResponse is returned by GET /classify/:delta.
type ClassificationResponse struct {
	Delta          int    `json:"delta"`
	Classification string `json:"classification"`
	CatalogVersion string `json:"catalog_version"`
}
