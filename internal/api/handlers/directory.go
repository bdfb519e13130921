package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gestor-t/neuroeval/internal/catalog"
	"github.com/gestor-t/neuroeval/internal/patient"
)

// DirectoryHandler serves the read-only instrument catalog and patient list
type DirectoryHandler struct {
	catalog  *catalog.Catalog
	patients patient.Directory
	logger   *zap.Logger
}

// NewDirectoryHandler creates a new handler
func NewDirectoryHandler(c *catalog.Catalog, patients patient.Directory, logger *zap.Logger) *DirectoryHandler {
	return &DirectoryHandler{catalog: c, patients: patients, logger: logger}
}

// CatalogRoutes returns the /catalog routes
func (h *DirectoryHandler) CatalogRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListInstruments)
	return r
}

// PatientRoutes returns the /patients routes
func (h *DirectoryHandler) PatientRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListPatients)
	r.Get("/{id}", h.GetPatient)
	return r
}

// ListInstruments handles GET /catalog
func (h *DirectoryHandler) ListInstruments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Instruments())
}

// ListPatients handles GET /patients. ?q= filters by name.
func (h *DirectoryHandler) ListPatients(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "list_patients")
	defer span.End()

	patients, err := h.patients.List(ctx, strings.TrimSpace(r.URL.Query().Get("q")))
	if err != nil {
		span.RecordError(err)
		fail(w, r, h.logger, "list patients", err)
		return
	}
	writeJSON(w, http.StatusOK, patients)
}

// GetPatient handles GET /patients/{id}
func (h *DirectoryHandler) GetPatient(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "get_patient")
	defer span.End()

	p, err := h.patients.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, h.logger, "get patient", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
