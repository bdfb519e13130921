package assistant

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/gestor-t/neuroeval/internal/locale"
	"github.com/gestor-t/neuroeval/pkg/circuitbreaker"
)

// Client calls generateContent through the genai SDK
type Client struct {
	cfg      Config
	http     *http.Client
	models   *genai.Models
	breakers *circuitbreaker.Manager
	logger   *zap.Logger
	tracer   trace.Tracer
	observer Observer
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the default transport
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithObserver reports every call's outcome and latency
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient creates a gateway client. One breaker per task is taken from breakers.
func NewClient(cfg Config, breakers *circuitbreaker.Manager, logger *zap.Logger, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if breakers == nil {
		breakers = circuitbreaker.NewManager(logger)
	}

	c := &Client{
		cfg:      cfg,
		http:     newHTTPClient(cfg.RequestTimeout),
		breakers: breakers,
		logger:   logger,
		tracer:   otel.Tracer("assistant-gateway"),
	}
	for _, opt := range opts {
		opt(c)
	}

	gc, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.http,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    cfg.BaseURL,
			APIVersion: cfg.APIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	c.models = gc.Models
	return c, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// DraftReport writes a structured report draft on the fast model
func (c *Client) DraftReport(ctx context.Context, anamnesis, testResults string) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(reportDraftPrompt(anamnesis, testResults), genai.RoleUser)}
	config := &genai.GenerateContentConfig{Temperature: genai.Ptr(float32(c.cfg.Temperature))}
	return c.generate(ctx, TaskDraftReport, c.cfg.FastModel, contents, config)
}

// DiagnosticSynthesis runs the deep differential analysis on the reasoning model
func (c *Client) DiagnosticSynthesis(ctx context.Context, anamnesis, resultsSummary string, lang locale.Language) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(diagnosticSynthesisPrompt(anamnesis, resultsSummary, lang), genai.RoleUser)}
	config := &genai.GenerateContentConfig{ThinkingConfig: c.thinking()}
	return c.generate(ctx, TaskDiagnosticSynthesis, c.cfg.ReasoningModel, contents, config)
}

// ChatTurn answers one clinician message given the prior conversation
func (c *Client) ChatTurn(ctx context.Context, message string, history []Message) (string, error) {
	if err := validateChat(message, history); err != nil {
		return "", err
	}
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		contents = append(contents, genai.NewContentFromText(m.Text, genai.Role(m.Role)))
	}
	contents = append(contents, genai.NewContentFromText(message, genai.RoleUser))

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(chatSystemInstruction)}},
		ThinkingConfig:    c.thinking(),
	}
	return c.generate(ctx, TaskChat, c.cfg.ReasoningModel, contents, config)
}

// SummarizeFeedback produces an executive summary of patient feedback
func (c *Client) SummarizeFeedback(ctx context.Context, feedbackText string) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(feedbackSummaryPrompt(feedbackText), genai.RoleUser)}
	return c.generate(ctx, TaskSummarizeFeedback, c.cfg.FastModel, contents, nil)
}

func (c *Client) thinking() *genai.ThinkingConfig {
	if c.cfg.ThinkingBudget <= 0 {
		return nil
	}
	return &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(int32(c.cfg.ThinkingBudget))}
}

func (c *Client) generate(ctx context.Context, task Task, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	ctx, span := c.tracer.Start(ctx, "assistant."+string(task),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("assistant.task", string(task)),
			attribute.String("assistant.model", model),
		))
	defer span.End()

	start := time.Now()
	text, err := c.execute(ctx, task, model, contents, config)
	elapsed := time.Since(start)

	if err != nil {
		gwErr := AsGatewayError(task, err)
		span.RecordError(gwErr)
		span.SetStatus(codes.Error, gwErr.Error())
		if gwErr.StatusCode != 0 {
			span.SetAttributes(attribute.Int("http.status_code", gwErr.StatusCode))
		}
		c.observe(task, outcomeOf(gwErr), elapsed)
		c.logger.Warn("assistant call failed",
			zap.String("task", string(task)),
			zap.String("model", model),
			zap.Int("status", gwErr.StatusCode),
			zap.Duration("elapsed", elapsed),
			zap.Error(gwErr.Err))
		return "", gwErr
	}

	c.observe(task, "success", elapsed)
	c.logger.Debug("assistant call completed",
		zap.String("task", string(task)),
		zap.String("model", model),
		zap.Duration("elapsed", elapsed),
		zap.Int("chars", len(text)))
	return text, nil
}

func (c *Client) execute(ctx context.Context, task Task, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	cb, err := c.breakers.GetOrCreate(string(task), circuitbreaker.DefaultConfig(string(task)))
	if err != nil {
		return "", err
	}
	out, err := cb.Execute(ctx, func() (interface{}, error) {
		return c.do(ctx, task, model, contents, config)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (c *Client) do(ctx context.Context, task Task, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	resp, err := c.models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", &GatewayError{Task: task, Err: ctxErr}
		}
		return "", &GatewayError{Task: task, StatusCode: statusCode(err), Err: err}
	}

	text := resp.Text()
	if text == "" {
		err := ErrEmptyResponse
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			err = fmt.Errorf("%w: prompt blocked (%s)", ErrEmptyResponse, resp.PromptFeedback.BlockReason)
		}
		return "", &GatewayError{Task: task, StatusCode: http.StatusOK, Err: err}
	}
	return text, nil
}

// statusCode extracts the HTTP status of a backend error response
func statusCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code
	}
	return 0
}

func outcomeOf(err *GatewayError) string {
	switch {
	case errors.Is(err, circuitbreaker.ErrRejected):
		return "rejected"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case err.Timeout():
		return "timeout"
	default:
		return "error"
	}
}

func (c *Client) observe(task Task, outcome string, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveGatewayCall(string(task), outcome, elapsed)
	}
}
