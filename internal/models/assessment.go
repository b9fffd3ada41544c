package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ScoreState tells whether an item carries a usable value.
type ScoreState string

const (
	// ScoreEvaluated marks an item scored with an integer value.
	ScoreEvaluated ScoreState = "evaluated"
	// ScoreNotEvaluated marks an item that was not assessed in the period.
	ScoreNotEvaluated ScoreState = "not_evaluated"
	// ScoreInvalid marks a cell that was filled with something non-numeric.
	ScoreInvalid ScoreState = "invalid"
)

// NotAvailable is the display marker for values that were not evaluated.
const NotAvailable = "N/A"

// Score is an optional integer item score.
type Score struct {
	Value int
	State ScoreState
	Raw   string
}

// Evaluated builds a scored item.
func Evaluated(v int) Score { return Score{Value: v, State: ScoreEvaluated} }

// NotEvaluated builds an unscored item.
func NotEvaluated() Score { return Score{State: ScoreNotEvaluated} }

// Invalid keeps the raw text of a non-numeric cell.
func Invalid(raw string) Score { return Score{State: ScoreInvalid, Raw: raw} }

// IsEvaluated reports whether the score holds a value.
func (s Score) IsEvaluated() bool { return s.State == ScoreEvaluated }

// IsInvalid reports whether the source value could not be read as a number.
func (s Score) IsInvalid() bool { return s.State == ScoreInvalid }

func (s Score) String() string {
	switch s.State {
	case ScoreEvaluated:
		return strconv.Itoa(s.Value)
	case ScoreInvalid:
		return s.Raw
	default:
		return NotAvailable
	}
}

// MarshalJSON encodes evaluated scores as numbers, missing ones as null and
// invalid ones as their raw text.
func (s Score) MarshalJSON() ([]byte, error) {
	switch s.State {
	case ScoreEvaluated:
		return []byte(strconv.Itoa(s.Value)), nil
	case ScoreInvalid:
		return json.Marshal(s.Raw)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON reverses MarshalJSON.
func (s *Score) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = NotEvaluated()
		return nil
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*s = Invalid(raw)
		return nil
	}
	v, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("score %s is not an integer: %w", data, err)
	}
	*s = Evaluated(v)
	return nil
}

// AssessmentRecord is one assessment session of a patient.
type AssessmentRecord struct {
	PatientID   string           `json:"patient_id"`
	PatientName string           `json:"patient_name"`
	Period      string           `json:"period"`
	SourceURL   *string          `json:"source_url,omitempty"`
	Scores      map[string]Score `json:"scores"`
}

// Score returns the score for label, treating absent labels as not evaluated.
func (r AssessmentRecord) Score(label string) Score {
	if s, ok := r.Scores[label]; ok {
		return s
	}
	return NotEvaluated()
}

// Clone returns a deep copy of the record.
func (r AssessmentRecord) Clone() AssessmentRecord {
	out := r
	if r.SourceURL != nil {
		url := *r.SourceURL
		out.SourceURL = &url
	}
	out.Scores = make(map[string]Score, len(r.Scores))
	for k, v := range r.Scores {
		out.Scores[k] = v
	}
	return out
}

// PatientSummary is the searchable identity of a patient.
type PatientSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Label is the display label used to sort patient lists.
func (p PatientSummary) Label() string {
	if p.Name == "" {
		return p.ID
	}
	return p.Name
}
