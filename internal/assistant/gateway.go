// Package assistant is the gateway to the generative-language backend used
// for report drafting, diagnostic synthesis, clinician chat and feedback summaries.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gestor-t/neuroeval/internal/locale"
)

// Gateway is the set of assistant calls. Calls are stateless and never retried.
type Gateway interface {
	DraftReport(ctx context.Context, anamnesis, testResults string) (string, error)
	DiagnosticSynthesis(ctx context.Context, anamnesis, resultsSummary string, lang locale.Language) (string, error)
	ChatTurn(ctx context.Context, message string, history []Message) (string, error)
	SummarizeFeedback(ctx context.Context, feedbackText string) (string, error)
}

// Role is the author of a chat message
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one prior turn of a chat conversation
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ErrInvalidMessage is returned for chat input the backend would reject
var ErrInvalidMessage = errors.New("invalid chat message")

func validateChat(message string, history []Message) error {
	if message == "" {
		return fmt.Errorf("%w: message is empty", ErrInvalidMessage)
	}
	for i, m := range history {
		if m.Role != RoleUser && m.Role != RoleModel {
			return fmt.Errorf("%w: history[%d] has role %q", ErrInvalidMessage, i, m.Role)
		}
	}
	return nil
}

// Observer receives per-call measurements
type Observer interface {
	ObserveGatewayCall(task, outcome string, elapsed time.Duration)
}

// Config holds gateway configuration
type Config struct {
	BaseURL        string
	APIVersion     string
	APIKey         string
	FastModel      string
	ReasoningModel string
	Temperature    float64
	ThinkingBudget int
	RequestTimeout time.Duration
}

// DefaultConfig returns the public endpoint and model defaults. APIKey is left empty.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://generativelanguage.googleapis.com/",
		APIVersion:     "v1beta",
		FastModel:      "gemini-3-flash-preview",
		ReasoningModel: "gemini-3-pro-preview",
		Temperature:    0.7,
		ThinkingBudget: 32768,
		RequestTimeout: 3 * time.Minute,
	}
}

// Validate checks the configuration needed to reach the backend
func (c Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("assistant api key is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid assistant base url %q", c.BaseURL)
	}
	if c.FastModel == "" || c.ReasoningModel == "" {
		return errors.New("assistant model names are required")
	}
	return nil
}
