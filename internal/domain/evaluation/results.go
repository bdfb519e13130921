// Package evaluation implements the session-scoped test administration workflow:
// the result store, the cognitive profile projection and the controller
// that coordinates them with the assistant backend.
package evaluation

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/gestor-t/neuroeval/internal/catalog"
)

// TestAdministration is one recorded instance of a patient taking an instrument
type TestAdministration struct {
	ID            string    `json:"id"`
	PatientID     string    `json:"patient_id"`
	InstrumentID  string    `json:"instrument_id"`
	RawScore      float64   `json:"raw_score"`
	StandardScore float64   `json:"standard_score"`
	Percentile    float64   `json:"percentile"`
	Observations  string    `json:"observations"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// ScoreInput carries the score form. Nil means the field was left blank.
type ScoreInput struct {
	RawScore      *float64 `json:"raw_score"`
	StandardScore *float64 `json:"standard_score"`
	Percentile    *float64 `json:"percentile"`
	Observations  string   `json:"observations"`
}

// Complete reports whether the required fields are filled in, so callers
// can disable saving instead of waiting for a ValidationError.
func (in ScoreInput) Complete() bool {
	return in.RawScore != nil && in.StandardScore != nil
}

// ResultStore is the ordered set of administrations for one active patient.
// Not safe for concurrent use; the Controller serializes access.
type ResultStore struct {
	catalog   *catalog.Catalog
	patientID string
	results   []TestAdministration
	now       func() time.Time
	newID     func() string
}

// NewResultStore creates a store scoped to patientID
func NewResultStore(c *catalog.Catalog, patientID string) *ResultStore {
	s := &ResultStore{
		catalog: c,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.New().String() },
	}
	s.Reset(patientID)
	return s
}

// Reset discards every administration and rescopes the store to patientID.
// It is the only way to change the active patient.
func (s *ResultStore) Reset(patientID string) {
	s.patientID = patientID
	s.results = nil
}

// PatientID returns the active patient
func (s *ResultStore) PatientID() string { return s.patientID }

// Record validates the input and appends a new administration for the active patient
func (s *ResultStore) Record(instrumentID string, in ScoreInput) (TestAdministration, error) {
	if _, ok := s.catalog.Lookup(instrumentID); !ok {
		return TestAdministration{}, &ValidationError{Field: "instrument_id", Reason: "unknown instrument " + instrumentID}
	}
	if err := requireScore("raw_score", in.RawScore); err != nil {
		return TestAdministration{}, err
	}
	if err := requireScore("standard_score", in.StandardScore); err != nil {
		return TestAdministration{}, err
	}
	var percentile float64
	if in.Percentile != nil {
		if !finite(*in.Percentile) {
			return TestAdministration{}, &ValidationError{Field: "percentile", Reason: "must be a finite number"}
		}
		percentile = *in.Percentile
	}

	admin := TestAdministration{
		ID:            s.newID(),
		PatientID:     s.patientID,
		InstrumentID:  instrumentID,
		RawScore:      *in.RawScore,
		StandardScore: *in.StandardScore,
		Percentile:    percentile,
		Observations:  in.Observations,
		RecordedAt:    s.now(),
	}
	s.results = append(s.results, admin)
	return admin, nil
}

// Remove deletes one administration. Unknown ids are ignored.
func (s *ResultStore) Remove(id string) bool {
	for i, r := range s.results {
		if r.ID == id {
			s.results = append(s.results[:i:i], s.results[i+1:]...)
			return true
		}
	}
	return false
}

// List returns a snapshot in insertion order
func (s *ResultStore) List() []TestAdministration {
	out := make([]TestAdministration, len(s.results))
	copy(out, s.results)
	return out
}

// Len returns the number of administrations
func (s *ResultStore) Len() int { return len(s.results) }

// IsInstrumentApplied reports whether the instrument was administered this session
func (s *ResultStore) IsInstrumentApplied(instrumentID string) bool {
	for _, r := range s.results {
		if r.InstrumentID == instrumentID {
			return true
		}
	}
	return false
}

func requireScore(field string, v *float64) error {
	if v == nil {
		return &ValidationError{Field: field, Reason: "required"}
	}
	if !finite(*v) {
		return &ValidationError{Field: field, Reason: "must be a finite number"}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
