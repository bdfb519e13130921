// Package patient provides read-only access to patient records.
package patient

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Status represents the patient's place in the clinic pipeline
type Status string

const (
	StatusActive    Status = "Active"
	StatusCompleted Status = "Completed"
	StatusWaiting   Status = "Waiting List"
	StatusInactive  Status = "Inactive"
)

// Patient is a clinic patient record
type Patient struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	BirthDate      string `json:"birth_date,omitempty"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Status         Status `json:"status,omitempty"`
	ReferralSource string `json:"referral_source,omitempty"`
	Anamnesis      string `json:"anamnesis"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// ErrNotFound is returned when no patient has the requested id
var ErrNotFound = errors.New("patient not found")

// Directory looks patients up by id or name
type Directory interface {
	Get(ctx context.Context, id string) (Patient, error)
	// List returns patients whose name contains query, ignoring case.
	// An empty query matches everyone.
	List(ctx context.Context, query string) ([]Patient, error)
	// First returns the default active patient of a new session
	First(ctx context.Context) (Patient, error)
}

func nameMatches(name, query string) bool {
	return query == "" || strings.Contains(strings.ToLower(name), strings.ToLower(query))
}

// MemoryDirectory is an in-process directory seeded at startup
type MemoryDirectory struct {
	mu       sync.RWMutex
	patients []Patient
}

// NewMemoryDirectory creates a directory holding the given patients in order
func NewMemoryDirectory(patients []Patient) *MemoryDirectory {
	cp := make([]Patient, len(patients))
	copy(cp, patients)
	return &MemoryDirectory{patients: cp}
}

// Get returns the patient with the given id
func (d *MemoryDirectory) Get(_ context.Context, id string) (Patient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.patients {
		if p.ID == id {
			return p, nil
		}
	}
	return Patient{}, ErrNotFound
}

// List returns matching patients in seed order
func (d *MemoryDirectory) List(_ context.Context, query string) ([]Patient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Patient, 0, len(d.patients))
	for _, p := range d.patients {
		if nameMatches(p.Name, query) {
			out = append(out, p)
		}
	}
	return out, nil
}

// First returns the first seeded patient
func (d *MemoryDirectory) First(_ context.Context) (Patient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.patients) == 0 {
		return Patient{}, ErrNotFound
	}
	return d.patients[0], nil
}

// SeedPatients returns the demo patients used when no database is configured
func SeedPatients() []Patient {
	return []Patient{
		{
			ID:             "1",
			Name:           "João Silva",
			BirthDate:      "1995-05-15",
			Email:          "joao.silva@email.com",
			Phone:          "(11) 98765-4321",
			Status:         StatusActive,
			ReferralSource: "Neurologist Dr. Smith",
			Anamnesis:      "Paciente relata dificuldade de concentração e lapsos de memória frequentes nos últimos 6 meses. Histórico de ansiedade leve.",
			CreatedAt:      "2023-10-01",
		},
		{
			ID:             "2",
			Name:           "Maria Oliveira",
			BirthDate:      "2010-08-22",
			Email:          "maria.parents@email.com",
			Phone:          "(11) 91234-5678",
			Status:         StatusWaiting,
			ReferralSource: "School Teacher",
			Anamnesis:      "Dificuldades de leitura e ansiedade social no ambiente escolar. Suspeita de TDAH.",
			CreatedAt:      "2023-11-15",
		},
	}
}
