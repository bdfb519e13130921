package evaluation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of workflow event
type EventType string

const (
	EventSessionStarted        EventType = "SessionStarted"
	EventPatientSelected       EventType = "PatientSelected"
	EventScoresRecorded        EventType = "ScoresRecorded"
	EventAdministrationRemoved EventType = "AdministrationRemoved"
	EventSynthesisRequested    EventType = "SynthesisRequested"
	EventSynthesisCompleted    EventType = "SynthesisCompleted"
	EventSynthesisFailed       EventType = "SynthesisFailed"
	EventSynthesisCancelled    EventType = "SynthesisCancelled"
	EventSynthesisDiscarded    EventType = "SynthesisDiscarded"
	EventSessionEnded          EventType = "SessionEnded"
)

// Event is an audit record of a workflow step
type Event struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"session_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     EventType       `json:"event_type"`
	EventData     json.RawMessage `json:"event_data,omitempty"`
	PatientID     string          `json:"patient_id,omitempty"`
	Generation    uint64          `json:"generation,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewEvent creates a new event
func NewEvent(sessionID string, eventType EventType, data interface{}) (*Event, error) {
	var eventData json.RawMessage
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		eventData = raw
	}
	return &Event{
		ID:            uuid.New().String(),
		SessionID:     sessionID,
		AggregateType: "EvaluationSession",
		EventType:     eventType,
		EventData:     eventData,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// ScoresRecordedData describes a new administration
type ScoresRecordedData struct {
	AdministrationID string  `json:"administration_id"`
	InstrumentID     string  `json:"instrument_id"`
	StandardScore    float64 `json:"standard_score"`
}

// SynthesisOutcomeData describes how a synthesis request ended
type SynthesisOutcomeData struct {
	Elapsed string `json:"elapsed,omitempty"`
	Error   string `json:"error,omitempty"`
}

// EventPublisher ships workflow events. Publish is called with the
// controller lock held and must not block.
type EventPublisher interface {
	Publish(ctx context.Context, event *Event)
}

// NopPublisher drops every event
type NopPublisher struct{}

// Publish implements EventPublisher
func (NopPublisher) Publish(context.Context, *Event) {}
