package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/patient-progress-api/internal/dto"
	"github.com/noah-isme/patient-progress-api/internal/models"
	"github.com/noah-isme/patient-progress-api/internal/store"
	appErrors "github.com/noah-isme/patient-progress-api/pkg/errors"
)

const (
	defaultPatientPageSize = 50
)

type datasetProvider interface {
	Dataset(ctx context.Context) (*store.Dataset, bool, error)
}

// PatientService answers patient and period lookups against the dataset.
type PatientService struct {
	datasets  datasetProvider
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPatientService constructs a PatientService.
func NewPatientService(datasets datasetProvider, validate *validator.Validate, logger *zap.Logger) *PatientService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatientService{datasets: datasets, validator: validate, logger: logger}
}

// List returns one page of patients, optionally filtered by search. cached
// reports whether the dataset was served without a source load.
func (s *PatientService) List(ctx context.Context, query dto.PatientQuery) ([]models.PatientSummary, *models.Pagination, bool, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid patient query")
	}
	ds, cached, err := s.datasets.Dataset(ctx)
	if err != nil {
		return nil, nil, false, err
	}

	patients := ds.SearchPatients(query.Search)
	page := query.Page
	if page < 1 {
		page = 1
	}
	size := query.Limit
	if size <= 0 {
		size = defaultPatientPageSize
	}

	start := (page - 1) * size
	if start > len(patients) {
		start = len(patients)
	}
	end := start + size
	if end > len(patients) {
		end = len(patients)
	}
	return patients[start:end], &models.Pagination{Page: page, PageSize: size, TotalCount: len(patients)}, cached, nil
}

// Periods lists the assessment periods of a patient. Unknown patients are
// reported as not found.
func (s *PatientService) Periods(ctx context.Context, patientID string) (*dto.PeriodsResponse, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "patient id is required")
	}
	ds, _, err := s.datasets.Dataset(ctx)
	if err != nil {
		return nil, err
	}
	records := ds.RecordsFor(patientID)
	if len(records) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("patient %s not found", patientID))
	}
	return &dto.PeriodsResponse{
		PatientID:   patientID,
		PatientName: records[0].PatientName,
		Periods:     ds.Periods(patientID),
	}, nil
}

// Record returns one assessment record.
func (s *PatientService) Record(ctx context.Context, patientID, period string) (*models.AssessmentRecord, error) {
	ds, _, err := s.datasets.Dataset(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := ds.RecordFor(patientID, period)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
