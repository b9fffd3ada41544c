// Package store holds an immutable, validated snapshot of assessment records
// and answers the lookups the comparison flow needs.
package store

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/patient-progress-api/internal/models"
	appErrors "github.com/noah-isme/patient-progress-api/pkg/errors"
)

type recordKey struct {
	patientID string
	period    string
}

// Dataset is safe for concurrent reads. Records are copied in and out.
type Dataset struct {
	id        string
	loadedAt  time.Time
	records   []models.AssessmentRecord
	byKey     map[recordKey]int
	byPatient map[string][]int
	patients  []models.PatientSummary
}

// New validates records and builds a dataset. Blank identifiers and repeated
// (patient, period) pairs are rejected.
func New(id string, records []models.AssessmentRecord) (*Dataset, error) {
	ds := &Dataset{
		id:        id,
		loadedAt:  time.Now().UTC(),
		records:   make([]models.AssessmentRecord, 0, len(records)),
		byKey:     make(map[recordKey]int, len(records)),
		byPatient: make(map[string][]int),
	}

	var duplicates []string
	names := make(map[string]string)
	order := make([]string, 0)
	for i, rec := range records {
		rec = rec.Clone()
		rec.PatientID = strings.TrimSpace(rec.PatientID)
		rec.Period = strings.TrimSpace(rec.Period)
		if rec.PatientID == "" || rec.Period == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("record %d has a blank patient id or period", i+1))
		}

		key := recordKey{patientID: rec.PatientID, period: rec.Period}
		if _, exists := ds.byKey[key]; exists {
			duplicates = append(duplicates, rec.PatientID+"@"+rec.Period)
			continue
		}
		idx := len(ds.records)
		ds.records = append(ds.records, rec)
		ds.byKey[key] = idx
		ds.byPatient[rec.PatientID] = append(ds.byPatient[rec.PatientID], idx)

		if _, seen := names[rec.PatientID]; !seen {
			names[rec.PatientID] = rec.PatientName
			order = append(order, rec.PatientID)
		}
	}
	if len(duplicates) > 0 {
		return nil, appErrors.Clone(appErrors.ErrDuplicateRecord,
			fmt.Sprintf("duplicate patient periods: %s", strings.Join(duplicates, ", ")))
	}

	ds.patients = make([]models.PatientSummary, 0, len(order))
	for _, pid := range order {
		ds.patients = append(ds.patients, models.PatientSummary{ID: pid, Name: names[pid]})
	}
	sort.SliceStable(ds.patients, func(i, j int) bool {
		a, b := ds.patients[i], ds.patients[j]
		if a.Label() != b.Label() {
			return a.Label() < b.Label()
		}
		return a.ID < b.ID
	})
	return ds, nil
}

// ID is the dataset identifier, e.g. the spreadsheet name.
func (d *Dataset) ID() string { return d.id }

// LoadedAt is when the snapshot was built.
func (d *Dataset) LoadedAt() time.Time { return d.loadedAt }

// Len is the number of records.
func (d *Dataset) Len() int { return len(d.records) }

// FindPatients lists every patient once, sorted by display label.
func (d *Dataset) FindPatients() []models.PatientSummary {
	out := make([]models.PatientSummary, len(d.patients))
	copy(out, d.patients)
	return out
}

// SearchPatients filters FindPatients by a case-insensitive substring of the
// id or name. An empty query returns every patient.
func (d *Dataset) SearchPatients(query string) []models.PatientSummary {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return d.FindPatients()
	}
	out := make([]models.PatientSummary, 0)
	for _, p := range d.patients {
		if strings.Contains(strings.ToLower(p.ID), q) || strings.Contains(strings.ToLower(p.Name), q) {
			out = append(out, p)
		}
	}
	return out
}

// RecordsFor returns all periods recorded for the patient in source order.
func (d *Dataset) RecordsFor(patientID string) []models.AssessmentRecord {
	idxs := d.byPatient[strings.TrimSpace(patientID)]
	out := make([]models.AssessmentRecord, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, d.records[i].Clone())
	}
	return out
}

// Periods returns the period labels of the patient in source order.
func (d *Dataset) Periods(patientID string) []string {
	idxs := d.byPatient[strings.TrimSpace(patientID)]
	out := make([]string, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, d.records[i].Period)
	}
	return out
}

// RecordFor returns the record for one patient period or ErrNotFound.
func (d *Dataset) RecordFor(patientID, period string) (models.AssessmentRecord, error) {
	idx, ok := d.byKey[recordKey{patientID: strings.TrimSpace(patientID), period: strings.TrimSpace(period)}]
	if !ok {
		return models.AssessmentRecord{}, appErrors.Clone(appErrors.ErrNotFound,
			fmt.Sprintf("no record for patient %s in period %s", patientID, period))
	}
	return d.records[idx].Clone(), nil
}

// Records returns a copy of every record in source order.
func (d *Dataset) Records() []models.AssessmentRecord {
	out := make([]models.AssessmentRecord, len(d.records))
	for i, rec := range d.records {
		out[i] = rec.Clone()
	}
	return out
}
