package evaluation

import (
	"errors"
	"fmt"

	"github.com/gestor-t/neuroeval/internal/patient"
)

// ValidationError reports a rejected score entry. The store is left untouched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PreconditionError reports an operation refused because the session is not
// ready for it. No state transition happens.
type PreconditionError struct {
	Operation string
	Message   string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}

// ErrInvalidTransition matches every TransitionError
var ErrInvalidTransition = errors.New("invalid workflow transition")

// ErrPatientNotFound is returned when selecting a patient the directory does not know
var ErrPatientNotFound = patient.ErrNotFound

// ErrSessionNotFound is returned by the registry for unknown session ids
var ErrSessionNotFound = errors.New("evaluation session not found")

// TransitionError reports an action the current state does not accept
type TransitionError struct {
	From   State
	Action string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s not allowed while %s", e.Action, e.From)
}

// Is lets errors.Is(err, ErrInvalidTransition) match
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
