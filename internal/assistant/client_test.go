package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestor-t/neuroeval/internal/locale"
	"github.com/gestor-t/neuroeval/pkg/circuitbreaker"
)

// wire shapes of the generateContent request body
type part struct {
	Text    string `json:"text"`
	Thought bool   `json:"thought,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature    *float64 `json:"temperature,omitempty"`
	ThinkingConfig *struct {
		ThinkingBudget int `json:"thinkingBudget"`
	} `json:"thinkingConfig,omitempty"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type capturedRequest struct {
	Path   string
	APIKey string
	Body   generateRequest
}

type backend struct {
	mu       sync.Mutex
	requests []capturedRequest
	status   int
	response string
}

func (b *backend) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var body generateRequest
		assert.NoError(t, json.Unmarshal(raw, &body))

		b.mu.Lock()
		b.requests = append(b.requests, capturedRequest{Path: r.URL.Path, APIKey: r.Header.Get("x-goog-api-key"), Body: body})
		status, response := b.status, b.response
		b.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}
}

func (b *backend) last() capturedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[len(b.requests)-1]
}

func (b *backend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

const okResponse = `{"candidates":[{"content":{"role":"model","parts":[{"text":"thinking...","thought":true},{"text":"Olá, "},{"text":"doutor."}]},"finishReason":"STOP"}]}`

type callRecord struct {
	task, outcome string
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []callRecord
}

func (o *recordingObserver) ObserveGatewayCall(task, outcome string, _ time.Duration) {
	o.mu.Lock()
	o.calls = append(o.calls, callRecord{task, outcome})
	o.mu.Unlock()
}

func newTestClient(t *testing.T, b *backend, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(b.handler(t))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL + "/"
	cfg.APIKey = "test-key"
	cfg.RequestTimeout = 5 * time.Second

	c, err := NewClient(cfg, circuitbreaker.NewManager(nil), nil, opts...)
	require.NoError(t, err)
	return c
}

func TestDiagnosticSynthesisRequest(t *testing.T) {
	b := &backend{status: http.StatusOK, response: okResponse}
	obs := &recordingObserver{}
	c := newTestClient(t, b, WithObserver(obs))

	text, err := c.DiagnosticSynthesis(context.Background(), "Histórico", "WASI: raw=30, standard=98, percentile=45. Notes: ", locale.EnglishUS)
	require.NoError(t, err)
	assert.Equal(t, "Olá, doutor.", text)

	req := b.last()
	assert.Equal(t, "/v1beta/models/gemini-3-pro-preview:generateContent", req.Path)
	assert.Equal(t, "test-key", req.APIKey)
	require.Len(t, req.Body.Contents, 1)
	prompt := req.Body.Contents[0].Parts[0].Text
	assert.Contains(t, prompt, "Anamnese/Histórico: Histórico")
	assert.Contains(t, prompt, "Resultados Quantitativos: WASI: raw=30")
	assert.Contains(t, prompt, "Idioma da resposta: English.")
	require.NotNil(t, req.Body.GenerationConfig)
	require.NotNil(t, req.Body.GenerationConfig.ThinkingConfig)
	assert.Equal(t, 32768, req.Body.GenerationConfig.ThinkingConfig.ThinkingBudget)
	assert.Nil(t, req.Body.SystemInstruction)

	assert.Equal(t, []callRecord{{"diagnostic_synthesis", "success"}}, obs.calls)
}

func TestDraftReportUsesFastModelAndTemperature(t *testing.T) {
	b := &backend{status: http.StatusOK, response: okResponse}
	c := newTestClient(t, b)

	_, err := c.DraftReport(context.Background(), "Anamnese X", "Stroop: ok")
	require.NoError(t, err)

	req := b.last()
	assert.True(t, strings.HasSuffix(req.Path, "/models/gemini-3-flash-preview:generateContent"))
	require.NotNil(t, req.Body.GenerationConfig.Temperature)
	assert.Equal(t, 0.7, *req.Body.GenerationConfig.Temperature)
	assert.Nil(t, req.Body.GenerationConfig.ThinkingConfig)
	assert.Contains(t, req.Body.Contents[0].Parts[0].Text, "Resultados de Testes: Stroop: ok")
}

func TestChatTurnSendsHistoryAndSystemInstruction(t *testing.T) {
	b := &backend{status: http.StatusOK, response: okResponse}
	c := newTestClient(t, b)

	history := []Message{
		{Role: RoleUser, Text: "Oi"},
		{Role: RoleModel, Text: "Olá! Como posso ajudar?"},
	}
	_, err := c.ChatTurn(context.Background(), "Interprete o WAIS", history)
	require.NoError(t, err)

	req := b.last()
	require.Len(t, req.Body.Contents, 3)
	assert.Equal(t, "user", req.Body.Contents[0].Role)
	assert.Equal(t, "model", req.Body.Contents[1].Role)
	assert.Equal(t, "Interprete o WAIS", req.Body.Contents[2].Parts[0].Text)
	require.NotNil(t, req.Body.SystemInstruction)
	assert.Contains(t, req.Body.SystemInstruction.Parts[0].Text, "Assistente Gestor T")
}

func TestChatTurnRejectsUnknownRole(t *testing.T) {
	b := &backend{status: http.StatusOK, response: okResponse}
	c := newTestClient(t, b)

	_, err := c.ChatTurn(context.Background(), "hi", []Message{{Role: "system", Text: "x"}})
	assert.ErrorIs(t, err, ErrInvalidMessage)
	assert.Zero(t, b.count())
}

func TestSummarizeFeedbackPrompt(t *testing.T) {
	b := &backend{status: http.StatusOK, response: okResponse}
	c := newTestClient(t, b)

	_, err := c.SummarizeFeedback(context.Background(), "Date: 2024-01-10, Rating: 5/5")
	require.NoError(t, err)
	req := b.last()
	assert.Contains(t, req.Body.Contents[0].Parts[0].Text, "Feedbacks:\nDate: 2024-01-10, Rating: 5/5")
	assert.Equal(t, "/v1beta/models/gemini-3-flash-preview:generateContent", req.Path)
	if req.Body.GenerationConfig != nil {
		assert.Nil(t, req.Body.GenerationConfig.ThinkingConfig)
	}
}

func TestNon2xxBecomesGatewayError(t *testing.T) {
	b := &backend{status: http.StatusForbidden, response: `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`}
	obs := &recordingObserver{}
	c := newTestClient(t, b, WithObserver(obs))

	_, err := c.DraftReport(context.Background(), "a", "b")
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, TaskDraftReport, gwErr.Task)
	assert.Equal(t, http.StatusForbidden, gwErr.StatusCode)
	assert.Contains(t, gwErr.Error(), "API key not valid")
	assert.Equal(t, "error", obs.calls[0].outcome)
}

func TestEmptyCandidatesBecomeGatewayError(t *testing.T) {
	b := &backend{status: http.StatusOK, response: `{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`}
	c := newTestClient(t, b)

	_, err := c.SummarizeFeedback(context.Background(), "x")
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	b := &backend{status: http.StatusServiceUnavailable, response: `{}`}
	obs := &recordingObserver{}
	c := newTestClient(t, b, WithObserver(obs))

	threshold := int(circuitbreaker.DefaultConfig("").FailureThreshold)
	for i := 0; i < threshold; i++ {
		_, err := c.ChatTurn(context.Background(), "oi", nil)
		require.Error(t, err)
	}
	require.Equal(t, threshold, b.count())

	_, err := c.ChatTurn(context.Background(), "oi", nil)
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.ErrorIs(t, err, circuitbreaker.ErrRejected)
	assert.Equal(t, threshold, b.count(), "open breaker must not reach the backend")
	assert.Equal(t, "rejected", obs.calls[len(obs.calls)-1].outcome)

	// other tasks have their own breaker
	b.mu.Lock()
	b.status, b.response = http.StatusOK, okResponse
	b.mu.Unlock()
	_, err = c.DraftReport(context.Background(), "a", "b")
	assert.NoError(t, err)
}

func TestDeadlineIsReportedAsTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.APIKey = "k"
	c, err := NewClient(cfg, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.DiagnosticSynthesis(ctx, "a", "b", locale.PortugueseBR)

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.True(t, gwErr.Timeout())
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.Validate(), "missing key")

	cfg.APIKey = "k"
	assert.NoError(t, cfg.Validate())

	cfg.BaseURL = "not a url"
	assert.Error(t, cfg.Validate())
}
