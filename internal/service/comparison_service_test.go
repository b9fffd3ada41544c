package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/patient-progress-api/internal/catalog"
	"github.com/noah-isme/patient-progress-api/internal/dto"
	appErrors "github.com/noah-isme/patient-progress-api/pkg/errors"
)

func TestComparisonServiceCompare(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewComparisonService(newStubDatasets(t), catalog.Default(), nil, metrics, nil)

	report, err := svc.Compare(context.Background(), dto.CompareRequest{PatientID: "100", Baseline: "2024-01", FollowUp: "2024-06"})
	require.NoError(t, err)
	assert.Equal(t, "Ana Gómez", report.PatientName)
	assert.Len(t, report.Entries, len(catalog.Default().Items))

	for _, e := range report.Entries {
		switch e.Label {
		case "Sitting balance":
			assert.Equal(t, 22, e.Delta.Value)
			assert.Equal(t, "Established but still moderate improvement.", e.Classification)
		case "Kneeling":
			assert.Equal(t, -60, e.Delta.Value)
			assert.Equal(t, catalog.Default().Messages.Regression, e.Classification)
		case "Crawling":
			assert.Equal(t, catalog.Default().Messages.NoChange, e.Classification)
		}
	}
	assert.Equal(t, 1, report.Summary.Improved)
	assert.Equal(t, 1, report.Summary.Regressed)
	assert.Equal(t, uint64(1), metrics.Snapshot().Comparisons)
}

func TestComparisonServiceRejectsIdenticalPeriodsBeforeLookup(t *testing.T) {
	datasets := newStubDatasets(t)
	svc := NewComparisonService(datasets, catalog.Default(), nil, nil, nil)

	_, err := svc.Compare(context.Background(), dto.CompareRequest{PatientID: "100", Baseline: "2024-01", FollowUp: " 2024-01 "})
	assert.ErrorIs(t, err, appErrors.ErrIdenticalPeriods)
	assert.Equal(t, 0, datasets.calls)
}

func TestComparisonServiceValidation(t *testing.T) {
	svc := NewComparisonService(newStubDatasets(t), catalog.Default(), nil, nil, nil)
	_, err := svc.Compare(context.Background(), dto.CompareRequest{PatientID: "100", Baseline: "2024-01"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestComparisonServiceUnknownPeriod(t *testing.T) {
	svc := NewComparisonService(newStubDatasets(t), catalog.Default(), nil, nil, nil)

	_, err := svc.Compare(context.Background(), dto.CompareRequest{PatientID: "100", Baseline: "2024-01", FollowUp: "2025-01"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	// Records are always looked up under one patient id.
	_, err = svc.Compare(context.Background(), dto.CompareRequest{PatientID: "200", Baseline: "2024-01", FollowUp: "2024-02"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.NotErrorIs(t, err, appErrors.ErrInvalidComparison)
}

func TestComparisonServiceUseCatalog(t *testing.T) {
	svc := NewComparisonService(newStubDatasets(t), catalog.Default(), nil, nil, nil)
	assert.Equal(t, "Established but still moderate improvement.", svc.Classify(22).Classification)

	next, err := catalog.Parse([]byte(`
version: "test"
items: ["Sitting balance"]
messages:
  not_evaluated: "n/a"
  error: "err"
  regression: "down"
  no_change: "flat"
  unclassified: "other"
buckets:
  - {lower: 0, upper: 100, description: "better"}
`))
	require.NoError(t, err)
	svc.UseCatalog(next)

	resp := svc.Classify(22)
	assert.Equal(t, "better", resp.Classification)
	assert.Equal(t, "test", resp.CatalogVersion)
	assert.Equal(t, "down", svc.Classify(-1).Classification)
	assert.Equal(t, "other", svc.Classify(150).Classification)
	assert.Same(t, next, svc.Catalog())
}
