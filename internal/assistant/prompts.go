package assistant

import (
	"fmt"

	"github.com/gestor-t/neuroeval/internal/locale"
)

const chatSystemInstruction = "Você é o Assistente Gestor T, especialista em neuropsicologia. " +
	"Você ajuda profissionais a interpretar resultados de testes (WAIS, WASI, Stroop, Rey, etc) " +
	"e a redigir laudos complexos seguindo o DSM-5 e CID-11. Seja ético e clínico."

func reportDraftPrompt(anamnesis, testResults string) string {
	return fmt.Sprintf(`Você é um assistente de neuropsicologia clínica.
Gere um rascunho de laudo profissional baseado nos seguintes dados.

Anamnese: %s
Resultados de Testes: %s

Estruture em: Identificação, Motivo do Exame, Metodologia, Resultados (quantitativos e qualitativos), Análise e Conclusão com Recomendações.`,
		anamnesis, testResults)
}

func diagnosticSynthesisPrompt(anamnesis, results string, lang locale.Language) string {
	return fmt.Sprintf(`Realize uma análise neuropsicológica profunda e exaustiva para formulação de hipóteses diagnósticas.

DADOS DO PACIENTE:
Anamnese/Histórico: %s
Resultados Quantitativos: %s

REQUISITOS DA ANÁLISE:
1. JUSTIFICATIVA PROFUNDA: Relacione os déficits encontrados nos testes (ex: Stroop, FDT, Figuras de Rey) com os critérios diagnósticos do DSM-5 e CID-11.
2. DIAGNÓSTICO DIFERENCIAL: Analise e DESCARTE outras possibilidades (ex: por que é TDAH e não um Transtorno de Ansiedade ou Depressão?). Explique a exclusão baseada nas evidências.
3. CRITÉRIOS ESPECÍFICOS: Liste os códigos CID-11 e os critérios DSM-5 preenchidos.
4. IMPLICAÇÕES FUNCIONAIS: Como esses achados impactam a vida diária do paciente.

Idioma da resposta: %s.
TOM: Clínico, técnico e rigoroso.`,
		anamnesis, results, locale.LanguageName(lang))
}

func feedbackSummaryPrompt(feedbackText string) string {
	return fmt.Sprintf(`Analise os seguintes feedbacks de pacientes de uma clínica de neuropsicologia e gere um resumo executivo de sentimento e pontos de melhoria técnica/operacional.

Feedbacks:
%s`, feedbackText)
}
