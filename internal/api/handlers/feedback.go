package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gestor-t/neuroeval/internal/feedback"
)

// FeedbackHandler collects patient feedback and summarizes it
type FeedbackHandler struct {
	store      *feedback.Store
	summarizer feedback.Summarizer
	logger     *zap.Logger
}

// NewFeedbackHandler creates a new handler
func NewFeedbackHandler(store *feedback.Store, summarizer feedback.Summarizer, logger *zap.Logger) *FeedbackHandler {
	return &FeedbackHandler{store: store, summarizer: summarizer, logger: logger}
}

// Routes returns the handler routes
func (h *FeedbackHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Submit)
	r.Get("/stats", h.Stats)
	r.Post("/summary", h.Summarize)
	return r
}

// List handles GET /feedback
func (h *FeedbackHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.List())
}

// Submit handles POST /feedback
func (h *FeedbackHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var sub feedback.Submission
	if err := decode(w, r, &sub); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	entry, err := h.store.Submit(sub)
	if err != nil {
		fail(w, r, h.logger, "submit feedback", err)
		return
	}
	h.logger.Info("feedback submitted", zap.String("id", entry.ID), zap.Int("rating", entry.Rating))
	writeJSON(w, http.StatusCreated, entry)
}

// Stats handles GET /feedback/stats
func (h *FeedbackHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Stats())
}

// Summarize handles POST /feedback/summary
func (h *FeedbackHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "summarize_feedback")
	defer span.End()

	text, err := h.store.Summarize(ctx, h.summarizer)
	if err != nil {
		span.RecordError(err)
		fail(w, r, h.logger, "summarize feedback", err)
		return
	}
	writeJSON(w, http.StatusOK, TextResponse{Text: text})
}
