package service

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/patient-progress-api/internal/catalog"
	"github.com/noah-isme/patient-progress-api/internal/diff"
	"github.com/noah-isme/patient-progress-api/internal/dto"
	"github.com/noah-isme/patient-progress-api/internal/models"
	appErrors "github.com/noah-isme/patient-progress-api/pkg/errors"
)

// ComparisonService resolves the two requested records and runs the diff
// engine on them.
type ComparisonService struct {
	datasets  datasetProvider
	engine    atomic.Pointer[diff.Engine]
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewComparisonService constructs a ComparisonService bound to cat.
func NewComparisonService(datasets datasetProvider, cat *catalog.Catalog, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *ComparisonService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ComparisonService{datasets: datasets, validator: validate, metrics: metrics, logger: logger}
	s.UseCatalog(cat)
	return s
}

// UseCatalog swaps in a new engine. Comparisons already running keep the
// engine they started with.
func (s *ComparisonService) UseCatalog(cat *catalog.Catalog) {
	s.engine.Store(diff.New(cat))
}

// Catalog returns the active catalog.
func (s *ComparisonService) Catalog() *catalog.Catalog {
	return s.engine.Load().Catalog()
}

// Classify classifies a single delta with the active catalog.
func (s *ComparisonService) Classify(delta int) dto.ClassificationResponse {
	engine := s.engine.Load()
	return dto.ClassificationResponse{
		Delta:          delta,
		Classification: engine.ClassifyValue(delta),
		CatalogVersion: engine.Catalog().Version,
	}
}

// Compare validates req, rejects a period compared with itself before any
// lookup and diffs the two records.
func (s *ComparisonService) Compare(ctx context.Context, req dto.CompareRequest) (*models.DiffReport, error) {
	report, err := s.compare(ctx, req)
	if err != nil {
		s.metrics.RecordComparison(appErrors.FromError(err).Code, nil)
		return nil, err
	}
	s.metrics.RecordComparison("ok", &report.Summary)
	s.logger.Debug("comparison computed",
		zap.String("patient_id", report.PatientID),
		zap.String("baseline", report.BaselinePeriod),
		zap.String("follow_up", report.FollowUpPeriod),
		zap.Int("improved", report.Summary.Improved),
		zap.Int("regressed", report.Summary.Regressed),
	)
	return report, nil
}

func (s *ComparisonService) compare(ctx context.Context, req dto.CompareRequest) (*models.DiffReport, error) {
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.Baseline = strings.TrimSpace(req.Baseline)
	req.FollowUp = strings.TrimSpace(req.FollowUp)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "baseline and follow-up periods are required")
	}
	if req.Baseline == req.FollowUp {
		return nil, appErrors.Clone(appErrors.ErrIdenticalPeriods, "baseline and follow-up must be different periods")
	}

	ds, _, err := s.datasets.Dataset(ctx)
	if err != nil {
		return nil, err
	}
	baseline, err := ds.RecordFor(req.PatientID, req.Baseline)
	if err != nil {
		return nil, err
	}
	followUp, err := ds.RecordFor(req.PatientID, req.FollowUp)
	if err != nil {
		return nil, err
	}
	return s.engine.Load().Compare(baseline, followUp)
}
