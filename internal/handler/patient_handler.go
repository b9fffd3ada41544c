package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/patient-progress-api/internal/dto"
	"github.com/noah-isme/patient-progress-api/internal/middleware"
	"github.com/noah-isme/patient-progress-api/internal/models"
	appErrors "github.com/noah-isme/patient-progress-api/pkg/errors"
	"github.com/noah-isme/patient-progress-api/pkg/response"
)

type patientService interface {
	List(ctx context.Context, query dto.PatientQuery) ([]models.PatientSummary, *models.Pagination, bool, error)
	Periods(ctx context.Context, patientID string) (*dto.PeriodsResponse, error)
	Record(ctx context.Context, patientID, period string) (*models.AssessmentRecord, error)
}

// PatientHandler exposes patient and period lookups.
type PatientHandler struct {
	service patientService
}

// NewPatientHandler constructs a PatientHandler.
func NewPatientHandler(svc patientService) *PatientHandler {
	return &PatientHandler{service: svc}
}

// List godoc
// @Summary List patients
// @Tags Patients
// @Produce json
// @Param search query string false "Case-insensitive id or name filter"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /patients [get]
func (h *PatientHandler) List(c *gin.Context) {
	var query dto.PatientQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	patients, pagination, cached, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, patients, pagination, middleware.ResponseMeta(c))
}

// Periods godoc
// @Summary List assessment periods of a patient
// @Tags Patients
// @Produce json
// @Param id path string true "Patient ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /patients/{id}/periods [get]
func (h *PatientHandler) Periods(c *gin.Context) {
	periods, err := h.service.Periods(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, periods)
}

// Record godoc
// @Summary Get one assessment record
// @Tags Patients
// @Produce json
// @Param id path string true "Patient ID"
// @Param period path string true "Period label"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /patients/{id}/records/{period} [get]
func (h *PatientHandler) Record(c *gin.Context) {
	record, err := h.service.Record(c.Request.Context(), c.Param("id"), c.Param("period"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, record)
}
