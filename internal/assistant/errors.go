package assistant

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Task names one of the gateway operations
type Task string

const (
	TaskDraftReport         Task = "draft_report"
	TaskDiagnosticSynthesis Task = "diagnostic_synthesis"
	TaskChat                Task = "chat"
	TaskSummarizeFeedback   Task = "summarize_feedback"
)

// ErrEmptyResponse is returned when the backend answers without any text
var ErrEmptyResponse = errors.New("assistant returned no text")

// GatewayError reports a failed call to the generative-language backend.
// StatusCode is zero when no HTTP response was received.
type GatewayError struct {
	Task       Task
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("assistant %s: status %d: %v", e.Task, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("assistant %s: %v", e.Task, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Timeout reports whether the call ran out of time
func (e *GatewayError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// AsGatewayError wraps err as a GatewayError for task unless it already is one
func AsGatewayError(task Task, err error) *GatewayError {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return &GatewayError{Task: task, Err: err}
}
