// Package diff compares two assessment periods of one patient and classifies
// every per-item change against the catalog's bucket table.
package diff

import (
	"fmt"

	"github.com/noah-isme/patient-progress-api/internal/catalog"
	"github.com/noah-isme/patient-progress-api/internal/models"
	appErrors "github.com/noah-isme/patient-progress-api/pkg/errors"
)

// Engine is a stateless comparer bound to one catalog. It is safe for
// concurrent use.
type Engine struct {
	catalog *catalog.Catalog
}

// New binds an engine to cat.
func New(cat *catalog.Catalog) *Engine {
	return &Engine{catalog: cat}
}

// Catalog returns the catalog the engine classifies with.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Compare builds the report for baseline and followUp. It fails with
// ErrInvalidComparison when the records belong to different patients and with
// ErrIdenticalPeriods when both records share a period.
func (e *Engine) Compare(baseline, followUp models.AssessmentRecord) (*models.DiffReport, error) {
	if baseline.PatientID != followUp.PatientID {
		return nil, appErrors.Clone(appErrors.ErrInvalidComparison,
			fmt.Sprintf("records belong to different patients (%s, %s)", baseline.PatientID, followUp.PatientID))
	}
	if baseline.Period == followUp.Period {
		return nil, appErrors.Clone(appErrors.ErrIdenticalPeriods,
			fmt.Sprintf("baseline and follow-up are both %q", baseline.Period))
	}

	report := &models.DiffReport{
		PatientID:         baseline.PatientID,
		PatientName:       baseline.PatientName,
		BaselinePeriod:    baseline.Period,
		FollowUpPeriod:    followUp.Period,
		BaselineSourceURL: copyString(baseline.SourceURL),
		FollowUpSourceURL: copyString(followUp.SourceURL),
		CatalogVersion:    e.catalog.Version,
		Entries:           make([]models.DiffEntry, 0, len(e.catalog.Items)),
	}
	if report.PatientName == "" {
		report.PatientName = followUp.PatientName
	}

	for _, label := range e.catalog.Items {
		before := baseline.Score(label)
		after := followUp.Score(label)
		delta := Subtract(before, after)
		report.Entries = append(report.Entries, models.DiffEntry{
			Label:          label,
			BaselineValue:  before,
			FollowUpValue:  after,
			Delta:          delta,
			Classification: e.Classify(delta),
		})
		report.Summary.Add(delta)
	}
	return report, nil
}

// Subtract computes after minus before. Invalid cells win over unscored ones.
func Subtract(before, after models.Score) models.Delta {
	switch {
	case before.IsInvalid() || after.IsInvalid():
		return models.ErrorDelta()
	case !before.IsEvaluated() || !after.IsEvaluated():
		return models.NotEvaluatedDelta()
	default:
		return models.ValueDelta(after.Value - before.Value)
	}
}

// Classify maps a delta to its description. It is total: every delta yields
// exactly one message.
func (e *Engine) Classify(d models.Delta) string {
	msgs := e.catalog.Messages
	switch d.Kind {
	case models.DeltaError:
		return msgs.Error
	case models.DeltaNotEvaluated:
		return msgs.NotEvaluated
	}
	return e.ClassifyValue(d.Value)
}

// ClassifyValue classifies an integer delta.
func (e *Engine) ClassifyValue(delta int) string {
	msgs := e.catalog.Messages
	switch {
	case delta < 0:
		return msgs.Regression
	case delta == 0:
		return msgs.NoChange
	}
	if b, ok := e.catalog.Bucket(delta); ok {
		return b.Description
	}
	return msgs.Unclassified
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
