package assistant

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gestor-t/neuroeval/internal/locale"
)

// Stub is an offline gateway returning deterministic placeholder text.
// It is used when no API key is configured.
type Stub struct {
	logger *zap.Logger
}

// NewStub creates an offline gateway
func NewStub(logger *zap.Logger) *Stub {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Warn("assistant api key not configured, using offline stub responses")
	return &Stub{logger: logger}
}

// DraftReport implements Gateway
func (s *Stub) DraftReport(ctx context.Context, anamnesis, testResults string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &GatewayError{Task: TaskDraftReport, Err: err}
	}
	return fmt.Sprintf("[rascunho offline]\nIdentificação\nMotivo do Exame: %s\nResultados:\n%s\nAnálise e Conclusão: pendente.",
		anamnesis, testResults), nil
}

// DiagnosticSynthesis implements Gateway
func (s *Stub) DiagnosticSynthesis(ctx context.Context, _, resultsSummary string, lang locale.Language) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &GatewayError{Task: TaskDiagnosticSynthesis, Err: err}
	}
	n := 0
	if resultsSummary != "" {
		n = strings.Count(resultsSummary, "\n") + 1
	}
	if lang == locale.EnglishUS {
		return fmt.Sprintf("[offline analysis] %d test result(s) received. Configure an API key for the full diagnostic synthesis.", n), nil
	}
	return fmt.Sprintf("[análise offline] %d resultado(s) de teste recebido(s). Configure uma chave API para a síntese diagnóstica completa.", n), nil
}

// ChatTurn implements Gateway
func (s *Stub) ChatTurn(ctx context.Context, message string, history []Message) (string, error) {
	if err := validateChat(message, history); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", &GatewayError{Task: TaskChat, Err: err}
	}
	return fmt.Sprintf("[assistente offline] Mensagem recebida (%d turno(s) anteriores): %s", len(history), message), nil
}

// SummarizeFeedback implements Gateway
func (s *Stub) SummarizeFeedback(ctx context.Context, feedbackText string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &GatewayError{Task: TaskSummarizeFeedback, Err: err}
	}
	entries := 0
	if feedbackText != "" {
		entries = strings.Count(feedbackText, "\n---\n") + 1
	}
	return fmt.Sprintf("[resumo offline] %d feedback(s) analisado(s).", entries), nil
}
