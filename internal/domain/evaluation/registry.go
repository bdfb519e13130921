package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gestor-t/neuroeval/internal/locale"
	"github.com/gestor-t/neuroeval/internal/patient"
)

// Registry holds one controller per clinician session
type Registry struct {
	deps        Deps
	defaultLang locale.Language

	mu       sync.RWMutex
	sessions map[string]*Controller
}

// NewRegistry creates an empty registry. Sessions get defaultLang unless
// they ask for another language.
func NewRegistry(deps Deps, defaultLang locale.Language) *Registry {
	if defaultLang == "" {
		defaultLang = locale.Default
	}
	return &Registry{
		deps:        deps.withDefaults(),
		defaultLang: defaultLang,
		sessions:    make(map[string]*Controller),
	}
}

// Create starts a new session for patientID, or for the directory's first
// patient when patientID is empty.
func (r *Registry) Create(ctx context.Context, patientID string, lang locale.Language) (*Controller, error) {
	var (
		p   patient.Patient
		err error
	)
	if patientID == "" {
		p, err = r.deps.Patients.First(ctx)
	} else {
		p, err = r.deps.Patients.Get(ctx, patientID)
	}
	if err != nil {
		if errors.Is(err, patient.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPatientNotFound, patientID)
		}
		return nil, fmt.Errorf("failed to load patient: %w", err)
	}
	if lang == "" {
		lang = r.defaultLang
	}

	c := NewController(uuid.New().String(), r.deps, p, lang)

	r.mu.Lock()
	r.sessions[c.ID()] = c
	r.mu.Unlock()
	r.deps.Observer.SessionOpened()

	r.deps.Logger.Info("evaluation session created",
		zap.String("session_id", c.ID()),
		zap.String("patient_id", p.ID))
	return c, nil
}

// Get returns the session with the given id
func (r *Registry) Get(id string) (*Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return c, nil
}

// Delete ends a session and cancels its synthesis in flight
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	c, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	c.Close()
	r.deps.Observer.SessionClosed()
	r.deps.Logger.Info("evaluation session ended", zap.String("session_id", id))
	return nil
}

// Len returns the number of open sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll ends every session, used on shutdown
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Controller)
	r.mu.Unlock()

	for _, c := range sessions {
		c.Close()
		r.deps.Observer.SessionClosed()
	}
}
