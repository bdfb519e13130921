// Package handlers provides HTTP handlers for the evaluation API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/gestor-t/neuroeval/internal/api/middleware"
	"github.com/gestor-t/neuroeval/internal/assistant"
	"github.com/gestor-t/neuroeval/internal/domain/evaluation"
	"github.com/gestor-t/neuroeval/internal/feedback"
	"github.com/gestor-t/neuroeval/internal/locale"
	"github.com/gestor-t/neuroeval/internal/patient"
	"github.com/gestor-t/neuroeval/pkg/workerpool"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// decode reads a JSON body. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusFor maps domain and gateway errors to an HTTP status and the message
// shown to the caller
func statusFor(r *http.Request, err error) (int, string) {
	var (
		validation   *evaluation.ValidationError
		precondition *evaluation.PreconditionError
		gateway      *assistant.GatewayError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity, validation.Error()
	case errors.As(err, &precondition):
		return http.StatusConflict, precondition.Message
	case errors.Is(err, evaluation.ErrInvalidTransition):
		return http.StatusConflict, err.Error()
	case errors.Is(err, evaluation.ErrSessionNotFound), errors.Is(err, patient.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, assistant.ErrInvalidMessage),
		errors.Is(err, feedback.ErrInvalidRating),
		errors.Is(err, feedback.ErrMissingPatient):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, feedback.ErrEmpty):
		return http.StatusConflict, locale.Message(middleware.GetLanguage(r.Context()), locale.MsgNoFeedback)
	case errors.Is(err, workerpool.ErrQueueFull), errors.Is(err, workerpool.ErrStopped):
		return http.StatusServiceUnavailable, err.Error()
	case errors.As(err, &gateway):
		if gateway.Timeout() {
			return http.StatusGatewayTimeout, gateway.Error()
		}
		return http.StatusBadGateway, gateway.Error()
	}
	return http.StatusInternalServerError, "internal server error"
}

// fail answers with the mapped status. Server-side failures are logged.
func fail(w http.ResponseWriter, r *http.Request, logger *zap.Logger, op string, err error) {
	code, msg := statusFor(r, err)
	if code >= http.StatusInternalServerError {
		logger.Error(op+" failed",
			zap.Error(err),
			zap.Int("status", code),
			zap.String("request_id", middleware.GetRequestID(r.Context())))
	}
	jsonError(w, msg, code)
}
