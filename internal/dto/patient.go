package dto

// PatientQuery captures GET /patients filters.
type PatientQuery struct {
	Search string `form:"search" validate:"omitempty,max=120"`
	Page   int    `form:"page" validate:"omitempty,min=1"`
	Limit  int    `form:"limit" validate:"omitempty,min=1,max=200"`
}

// PeriodsResponse lists the assessment periods of a patient.
type PeriodsResponse struct {
	PatientID   string   `json:"patient_id"`
	PatientName string   `json:"patient_name"`
	Periods     []string `json:"periods"`
}
