package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// DeltaKind discriminates comparable and non-comparable deltas.
type DeltaKind string

const (
	DeltaValue        DeltaKind = "value"
	DeltaNotEvaluated DeltaKind = "not_evaluated"
	DeltaError        DeltaKind = "error"
)

// DeltaErrorMarker is the display marker for a delta that could not be computed.
const DeltaErrorMarker = "Error"

// Delta is the signed difference follow-up minus baseline for one item.
type Delta struct {
	Kind  DeltaKind
	Value int
}

// ValueDelta builds a comparable delta.
func ValueDelta(v int) Delta { return Delta{Kind: DeltaValue, Value: v} }

// NotEvaluatedDelta builds the marker used when either side is unscored.
func NotEvaluatedDelta() Delta { return Delta{Kind: DeltaNotEvaluated} }

// ErrorDelta builds the marker used when a side holds a non-numeric value.
func ErrorDelta() Delta { return Delta{Kind: DeltaError} }

// Comparable reports whether the delta holds a value.
func (d Delta) Comparable() bool { return d.Kind == DeltaValue }

func (d Delta) String() string {
	switch d.Kind {
	case DeltaValue:
		return strconv.Itoa(d.Value)
	case DeltaError:
		return DeltaErrorMarker
	default:
		return NotAvailable
	}
}

// MarshalJSON writes a number, "N/A" or "Error".
func (d Delta) MarshalJSON() ([]byte, error) {
	if d.Kind == DeltaValue {
		return []byte(strconv.Itoa(d.Value)), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON reverses MarshalJSON.
func (d *Delta) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var marker string
		if err := json.Unmarshal(data, &marker); err != nil {
			return err
		}
		if marker == DeltaErrorMarker {
			*d = ErrorDelta()
		} else {
			*d = NotEvaluatedDelta()
		}
		return nil
	}
	v, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("delta %s is not an integer: %w", data, err)
	}
	*d = ValueDelta(v)
	return nil
}

// DiffEntry is one row of a comparison.
type DiffEntry struct {
	Label          string `json:"label"`
	BaselineValue  Score  `json:"baseline_value"`
	FollowUpValue  Score  `json:"follow_up_value"`
	Delta          Delta  `json:"delta"`
	Classification string `json:"classification"`
}

// DiffSummary counts entries by outcome.
type DiffSummary struct {
	Improved     int `json:"improved"`
	Unchanged    int `json:"unchanged"`
	Regressed    int `json:"regressed"`
	NotEvaluated int `json:"not_evaluated"`
	Errors       int `json:"errors"`
}

// Add counts one delta.
func (s *DiffSummary) Add(d Delta) {
	switch {
	case d.Kind == DeltaNotEvaluated:
		s.NotEvaluated++
	case d.Kind == DeltaError:
		s.Errors++
	case d.Value > 0:
		s.Improved++
	case d.Value < 0:
		s.Regressed++
	default:
		s.Unchanged++
	}
}

// DiffReport is the ephemeral result of comparing two periods of a patient.
type DiffReport struct {
	PatientID         string      `json:"patient_id"`
	PatientName       string      `json:"patient_name"`
	BaselinePeriod    string      `json:"baseline_period"`
	FollowUpPeriod    string      `json:"follow_up_period"`
	BaselineSourceURL *string     `json:"baseline_source_url,omitempty"`
	FollowUpSourceURL *string     `json:"follow_up_source_url,omitempty"`
	CatalogVersion    string      `json:"catalog_version"`
	Entries           []DiffEntry `json:"entries"`
	Summary           DiffSummary `json:"summary"`
}
