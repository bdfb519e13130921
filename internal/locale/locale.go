// Package locale holds the supported interface languages and a small message table.
package locale

import (
	"fmt"
	"strings"
	"sync"
)

// Language is a BCP 47 tag supported by the clinic UI
type Language string

const (
	PortugueseBR Language = "pt-BR"
	EnglishUS    Language = "en-US"
)

// Default is the language used when nothing else is configured
const Default = PortugueseBR

// Parse accepts a language tag case-insensitively
func Parse(tag string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "pt-br", "pt_br", "pt":
		return PortugueseBR, nil
	case "en-us", "en_us", "en":
		return EnglishUS, nil
	}
	return "", fmt.Errorf("unsupported language %q", tag)
}

// Setting is a mutable per-session language
type Setting struct {
	mu   sync.RWMutex
	lang Language
}

// NewSetting creates a setting with an initial language
func NewSetting(lang Language) *Setting {
	if lang == "" {
		lang = Default
	}
	return &Setting{lang: lang}
}

// Language returns the current language
func (s *Setting) Language() Language {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lang
}

// Set changes the language
func (s *Setting) Set(lang Language) {
	s.mu.Lock()
	s.lang = lang
	s.mu.Unlock()
}

// Message keys
const (
	MsgNoResultsForSynthesis = "no_results_for_synthesis"
	MsgSynthesisFailed       = "synthesis_failed"
	MsgNoFeedback            = "no_feedback"
)

var messages = map[string]map[Language]string{
	MsgNoResultsForSynthesis: {
		PortugueseBR: "Por favor, registre pelo menos um resultado de teste antes da análise.",
		EnglishUS:    "Please record at least one test result before requesting the analysis.",
	},
	MsgSynthesisFailed: {
		PortugueseBR: "Erro na análise profunda. Verifique sua conexão e chave API.",
		EnglishUS:    "Deep analysis failed. Check your connection and API key.",
	},
	MsgNoFeedback: {
		PortugueseBR: "Nenhum feedback registrado para resumir.",
		EnglishUS:    "There is no feedback to summarize.",
	},
}

// Message looks up a localized message, falling back to the default language
// and finally to the key itself.
func Message(lang Language, key string) string {
	byLang, ok := messages[key]
	if !ok {
		return key
	}
	if msg, ok := byLang[lang]; ok {
		return msg
	}
	return byLang[Default]
}

// LanguageName is the name the assistant is asked to answer in
func LanguageName(lang Language) string {
	if lang == PortugueseBR {
		return "Português Brasileiro"
	}
	return "English"
}
