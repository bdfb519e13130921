// Package feedback collects patient feedback about the clinic and asks the
// assistant for an executive summary of it.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AnonymousName replaces the patient name of anonymous entries
const AnonymousName = "Anônimo"

const dateLayout = "2006-01-02"

var (
	// ErrInvalidRating is returned for ratings outside 1..5
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	// ErrMissingPatient is returned when a named entry has no patient name
	ErrMissingPatient = errors.New("patient name is required unless anonymous")
	// ErrEmpty is returned when there is nothing to summarize
	ErrEmpty = errors.New("no feedback to summarize")
)

// Entry is one submitted feedback form
type Entry struct {
	ID             string `json:"id"`
	Date           string `json:"date"`
	PatientName    string `json:"patient_name"`
	Rating         int    `json:"rating"`
	ProcessComment string `json:"process_comment"`
	ProfComment    string `json:"prof_comment"`
	SystemComment  string `json:"system_comment"`
	Anonymous      bool   `json:"anonymous"`
}

// Submission is the feedback form as filled in by the patient
type Submission struct {
	PatientName    string `json:"patient_name"`
	Rating         int    `json:"rating"`
	ProcessComment string `json:"process_comment"`
	ProfComment    string `json:"prof_comment"`
	SystemComment  string `json:"system_comment"`
	Anonymous      bool   `json:"anonymous"`
}

// Stats aggregates the stored ratings
type Stats struct {
	Count         int     `json:"count"`
	AverageRating float64 `json:"average_rating"`
}

// Summarizer turns formatted feedback into an executive summary
type Summarizer interface {
	SummarizeFeedback(ctx context.Context, feedbackText string) (string, error)
}

// Store keeps feedback entries in submission order
type Store struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

// NewStore creates a store holding the given entries
func NewStore(seed []Entry) *Store {
	entries := make([]Entry, len(seed))
	copy(entries, seed)
	return &Store{entries: entries, now: time.Now}
}

// Submit validates and stores a new entry
func (s *Store) Submit(sub Submission) (Entry, error) {
	if sub.Rating < 1 || sub.Rating > 5 {
		return Entry{}, ErrInvalidRating
	}
	name := strings.TrimSpace(sub.PatientName)
	if sub.Anonymous {
		name = AnonymousName
	} else if name == "" {
		return Entry{}, ErrMissingPatient
	}

	e := Entry{
		ID:             uuid.New().String(),
		Date:           s.now().Format(dateLayout),
		PatientName:    name,
		Rating:         sub.Rating,
		ProcessComment: sub.ProcessComment,
		ProfComment:    sub.ProfComment,
		SystemComment:  sub.SystemComment,
		Anonymous:      sub.Anonymous,
	}

	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	return e, nil
}

// List returns all entries, oldest first
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Stats returns the entry count and average rating
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return Stats{}
	}
	total := 0
	for _, e := range s.entries {
		total += e.Rating
	}
	return Stats{Count: len(s.entries), AverageRating: float64(total) / float64(len(s.entries))}
}

// Format renders entries the way the summarizer expects them
func Format(entries []Entry) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("Date: %s, Rating: %d/5, Process: %s, Professional: %s, System: %s",
			e.Date, e.Rating, e.ProcessComment, e.ProfComment, e.SystemComment)
	}
	return strings.Join(parts, "\n---\n")
}

// Summarize asks the summarizer for an executive summary of every entry
func (s *Store) Summarize(ctx context.Context, summarizer Summarizer) (string, error) {
	entries := s.List()
	if len(entries) == 0 {
		return "", ErrEmpty
	}
	return summarizer.SummarizeFeedback(ctx, Format(entries))
}

// SeedEntries returns the demo feedback shown before anything is submitted
func SeedEntries() []Entry {
	return []Entry{
		{
			ID:             "f1",
			Date:           "2024-05-18",
			PatientName:    "João Silva",
			Rating:         5,
			ProcessComment: "Processo muito claro e acolhedor.",
			ProfComment:    "Dra. Silva foi extremamente profissional.",
			SystemComment:  "Fácil de usar e agendar.",
		},
		{
			ID:             "f2",
			Date:           "2024-05-19",
			PatientName:    AnonymousName,
			Rating:         3,
			ProcessComment: "Achei o tempo de espera um pouco longo.",
			ProfComment:    "Atendimento bom.",
			SystemComment:  "O sistema de upload de documentos demorou a carregar.",
			Anonymous:      true,
		},
	}
}
