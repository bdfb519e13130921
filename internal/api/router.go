// Package api assembles the HTTP surface of the evaluation service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/gestor-t/neuroeval/internal/api/handlers"
	"github.com/gestor-t/neuroeval/internal/api/middleware"
	"github.com/gestor-t/neuroeval/internal/assistant"
	"github.com/gestor-t/neuroeval/internal/catalog"
	"github.com/gestor-t/neuroeval/internal/domain/evaluation"
	"github.com/gestor-t/neuroeval/internal/feedback"
	"github.com/gestor-t/neuroeval/internal/locale"
	"github.com/gestor-t/neuroeval/internal/patient"
)

// ReadyCheck reports whether one dependency can serve traffic
type ReadyCheck func(ctx context.Context) error

// Options wires the router to its collaborators
type Options struct {
	ServiceName     string
	Version         string
	Logger          *zap.Logger
	Registry        *evaluation.Registry
	Catalog         *catalog.Catalog
	Patients        patient.Directory
	Gateway         assistant.Gateway
	Feedback        *feedback.Store
	APIKeys         map[string]string
	CORSOrigins     []string
	DefaultLanguage locale.Language
	ReadyChecks     map[string]ReadyCheck
	Metrics         http.Handler
}

// NewRouter builds the chi router. /health, /ready and /metrics are public;
// everything under /api/v1 goes through API key auth.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sessions := handlers.NewSessionHandler(opts.Registry, logger)
	directory := handlers.NewDirectoryHandler(opts.Catalog, opts.Patients, logger)
	assist := handlers.NewAssistantHandler(opts.Gateway, opts.Patients, opts.Registry, logger)
	fb := handlers.NewFeedbackHandler(opts.Feedback, opts.Gateway, logger)

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(opts.CORSOrigins))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing(opts.ServiceName))
	r.Use(middleware.Language(opts.DefaultLanguage))

	r.Get("/health", healthHandler(opts.ServiceName, opts.Version))
	r.Get("/ready", readyHandler(opts.ReadyChecks))
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(opts.APIKeys))
		r.Mount("/catalog", directory.CatalogRoutes())
		r.Mount("/patients", directory.PatientRoutes())
		r.Mount("/sessions", sessions.Routes())
		r.Mount("/reports", assist.ReportRoutes())
		r.Mount("/assistant", assist.ChatRoutes())
		r.Mount("/feedback", fb.Routes())
	})

	return r
}

func healthHandler(service, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": service,
			"version": version,
		})
	}
}

func readyHandler(checks map[string]ReadyCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		state := "ready"
		if status != http.StatusOK {
			state = "not ready"
		}
		writeJSON(w, status, map[string]interface{}{"status": state, "checks": results})
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
