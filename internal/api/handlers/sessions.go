package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/gestor-t/neuroeval/internal/api/middleware"
	"github.com/gestor-t/neuroeval/internal/domain/evaluation"
	"github.com/gestor-t/neuroeval/internal/locale"
)

var tracer = otel.Tracer("evaluation-handler")

// SessionHandler exposes the evaluation workflow of each session
type SessionHandler struct {
	registry *evaluation.Registry
	logger   *zap.Logger
}

// NewSessionHandler creates a new handler
func NewSessionHandler(registry *evaluation.Registry, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{registry: registry, logger: logger}
}

// Routes returns the handler routes
func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Delete)
		r.Put("/patient", h.SelectPatient)
		r.Put("/language", h.SetLanguage)
		r.Get("/catalog", h.Catalog)
		r.Post("/instrument", h.SelectInstrument)
		r.Delete("/instrument", h.CancelEntry)
		r.Get("/administrations", h.ListAdministrations)
		r.Post("/administrations", h.SaveScores)
		r.Delete("/administrations/{adminID}", h.RemoveAdministration)
		r.Post("/review", h.Review)
		r.Post("/browse", h.Browse)
		r.Get("/profile", h.Profile)
		r.Post("/synthesis", h.RequestSynthesis)
		r.Delete("/synthesis", h.CancelSynthesis)
	})
	return r
}

// CreateSessionRequest opens a session
type CreateSessionRequest struct {
	PatientID string `json:"patient_id"`
	Language  string `json:"language"`
}

// Create handles POST /sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "create_session")
	defer span.End()

	var req CreateSessionRequest
	if err := decode(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	lang := middleware.GetLanguage(ctx)
	if req.Language != "" {
		parsed, err := locale.Parse(req.Language)
		if err != nil {
			jsonError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		lang = parsed
	}

	c, err := h.registry.Create(ctx, req.PatientID, lang)
	if err != nil {
		fail(w, r, h.logger, "create session", err)
		return
	}
	span.SetAttributes(attribute.String("session_id", c.ID()))
	writeJSON(w, http.StatusCreated, c.Snapshot())
}

// session resolves the {id} parameter, answering 404 itself when unknown
func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*evaluation.Controller, bool) {
	c, err := h.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, h.logger, "load session", err)
		return nil, false
	}
	return c, true
}

// Get handles GET /sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

// Delete handles DELETE /sessions/{id}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(chi.URLParam(r, "id")); err != nil {
		fail(w, r, h.logger, "delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SelectPatientRequest switches the active patient
type SelectPatientRequest struct {
	PatientID string `json:"patient_id"`
}

// SelectPatient handles PUT /sessions/{id}/patient
func (h *SessionHandler) SelectPatient(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "select_patient")
	defer span.End()

	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var req SelectPatientRequest
	if err := decode(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.PatientID == "" {
		jsonError(w, "patient_id is required", http.StatusUnprocessableEntity)
		return
	}
	span.SetAttributes(attribute.String("session_id", c.ID()))

	if err := c.SelectPatient(ctx, req.PatientID); err != nil {
		fail(w, r, h.logger, "select patient", err)
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

// SetLanguageRequest changes the session language
type SetLanguageRequest struct {
	Language string `json:"language"`
}

// SetLanguage handles PUT /sessions/{id}/language
func (h *SessionHandler) SetLanguage(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var req SetLanguageRequest
	if err := decode(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	lang, err := locale.Parse(req.Language)
	if err != nil {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	c.SetLanguage(lang)
	writeJSON(w, http.StatusOK, c.Snapshot())
}

// Catalog handles GET /sessions/{id}/catalog
func (h *SessionHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.Catalog())
}

// SelectInstrumentRequest opens the score form
type SelectInstrumentRequest struct {
	InstrumentID string `json:"instrument_id"`
}

// SelectInstrument handles POST /sessions/{id}/instrument
func (h *SessionHandler) SelectInstrument(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var req SelectInstrumentRequest
	if err := decode(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := c.SelectInstrument(req.InstrumentID); err != nil {
		fail(w, r, h.logger, "select instrument", err)
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

// CancelEntry handles DELETE /sessions/{id}/instrument
func (h *SessionHandler) CancelEntry(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := c.CancelEntry(); err != nil {
		fail(w, r, h.logger, "cancel entry", err)
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

// ListAdministrations handles GET /sessions/{id}/administrations
func (h *SessionHandler) ListAdministrations(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.Results())
}

// SaveScores handles POST /sessions/{id}/administrations
func (h *SessionHandler) SaveScores(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "save_scores")
	defer span.End()

	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var in evaluation.ScoreInput
	if err := decode(w, r, &in); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	admin, err := c.SaveScores(in)
	if err != nil {
		fail(w, r, h.logger, "save scores", err)
		return
	}
	span.SetAttributes(
		attribute.String("session_id", c.ID()),
		attribute.String("instrument_id", admin.InstrumentID))
	writeJSON(w, http.StatusCreated, admin)
}

// RemoveAdministration handles DELETE /sessions/{id}/administrations/{adminID}
func (h *SessionHandler) RemoveAdministration(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	adminID := chi.URLParam(r, "adminID")
	removed, err := c.RemoveResult(adminID)
	if err != nil {
		fail(w, r, h.logger, "remove administration", err)
		return
	}
	if !removed {
		h.logger.Debug("administration already absent", zap.String("session_id", c.ID()), zap.String("administration_id", adminID))
	}
	w.WriteHeader(http.StatusNoContent)
}

// Review handles POST /sessions/{id}/review
func (h *SessionHandler) Review(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := c.ReviewResults(); err != nil {
		fail(w, r, h.logger, "review results", err)
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

// Browse handles POST /sessions/{id}/browse
func (h *SessionHandler) Browse(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := c.BrowseCatalog(); err != nil {
		fail(w, r, h.logger, "browse catalog", err)
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

// Profile handles GET /sessions/{id}/profile
func (h *SessionHandler) Profile(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.Profile())
}

// SynthesisResponse reports whether a new synthesis was started
type SynthesisResponse struct {
	Started bool                `json:"started"`
	Session evaluation.Snapshot `json:"session"`
}

// RequestSynthesis handles POST /sessions/{id}/synthesis. A request made
// while one is in flight is answered 200 with started=false.
func (h *SessionHandler) RequestSynthesis(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "request_synthesis")
	defer span.End()

	c, ok := h.session(w, r)
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("session_id", c.ID()))

	started, err := c.RequestSynthesis(ctx)
	if err != nil {
		fail(w, r, h.logger, "request synthesis", err)
		return
	}
	span.SetAttributes(attribute.Bool("started", started))

	code := http.StatusOK
	if started {
		code = http.StatusAccepted
	}
	writeJSON(w, code, SynthesisResponse{Started: started, Session: c.Snapshot()})
}

// CancelSynthesis handles DELETE /sessions/{id}/synthesis
func (h *SessionHandler) CancelSynthesis(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := c.CancelSynthesis(); err != nil {
		fail(w, r, h.logger, "cancel synthesis", err)
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}
