package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/gestor-t/neuroeval/internal/assistant"
	"github.com/gestor-t/neuroeval/internal/domain/evaluation"
	"github.com/gestor-t/neuroeval/internal/patient"
)

// AssistantHandler relays report drafting and chat to the gateway
type AssistantHandler struct {
	gateway  assistant.Gateway
	patients patient.Directory
	registry *evaluation.Registry
	logger   *zap.Logger
}

// NewAssistantHandler creates a new handler
func NewAssistantHandler(gateway assistant.Gateway, patients patient.Directory, registry *evaluation.Registry, logger *zap.Logger) *AssistantHandler {
	return &AssistantHandler{gateway: gateway, patients: patients, registry: registry, logger: logger}
}

// ReportRoutes returns the /reports routes
func (h *AssistantHandler) ReportRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/draft", h.DraftReport)
	return r
}

// ChatRoutes returns the /assistant routes
func (h *AssistantHandler) ChatRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/chat", h.Chat)
	return r
}

// DraftReportRequest asks for a report draft. Test results come from
// TestResults, or from the session's recorded results when SessionID is set.
type DraftReportRequest struct {
	PatientID   string `json:"patient_id"`
	SessionID   string `json:"session_id"`
	TestResults string `json:"test_results"`
}

// TextResponse carries generated text
type TextResponse struct {
	Text string `json:"text"`
}

// DraftReport handles POST /reports/draft
func (h *AssistantHandler) DraftReport(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "draft_report")
	defer span.End()

	var req DraftReportRequest
	if err := decode(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var (
		p       patient.Patient
		results = strings.TrimSpace(req.TestResults)
	)
	if req.SessionID != "" {
		c, err := h.registry.Get(req.SessionID)
		if err != nil {
			fail(w, r, h.logger, "draft report", err)
			return
		}
		p = c.Patient()
		if results == "" {
			results = c.ResultsSummary()
		}
		span.SetAttributes(attribute.String("session_id", req.SessionID))
	}
	if req.PatientID != "" && req.PatientID != p.ID {
		var err error
		if p, err = h.patients.Get(ctx, req.PatientID); err != nil {
			fail(w, r, h.logger, "draft report", err)
			return
		}
	}
	if p.ID == "" {
		jsonError(w, "patient_id or session_id is required", http.StatusUnprocessableEntity)
		return
	}
	if results == "" {
		jsonError(w, "test_results is required", http.StatusUnprocessableEntity)
		return
	}
	span.SetAttributes(attribute.String("patient_id", p.ID))

	text, err := h.gateway.DraftReport(ctx, p.Anamnesis, results)
	if err != nil {
		span.RecordError(err)
		fail(w, r, h.logger, "draft report", err)
		return
	}
	h.logger.Info("report drafted", zap.String("patient_id", p.ID), zap.Int("chars", len(text)))
	writeJSON(w, http.StatusOK, TextResponse{Text: text})
}

// ChatRequest is one chat turn with the history held by the caller
type ChatRequest struct {
	Message string              `json:"message"`
	History []assistant.Message `json:"history"`
}

// Chat handles POST /assistant/chat
func (h *AssistantHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "chat_turn")
	defer span.End()

	var req ChatRequest
	if err := decode(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.Int("history_length", len(req.History)))

	text, err := h.gateway.ChatTurn(ctx, req.Message, req.History)
	if err != nil {
		span.RecordError(err)
		fail(w, r, h.logger, "chat", err)
		return
	}
	writeJSON(w, http.StatusOK, TextResponse{Text: text})
}
