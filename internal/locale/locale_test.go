package locale

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Language
	}{
		{"pt-BR", PortugueseBR},
		{"PT-br", PortugueseBR},
		{"en-US", EnglishUS},
		{" en ", EnglishUS},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := Parse("fr-FR")
	assert.Error(t, err)
}

func TestSetting(t *testing.T) {
	s := NewSetting("")
	assert.Equal(t, Default, s.Language())

	s.Set(EnglishUS)
	assert.Equal(t, EnglishUS, s.Language())
}

func TestMessageFallback(t *testing.T) {
	assert.Contains(t, Message(EnglishUS, MsgNoResultsForSynthesis), "at least one")
	assert.Contains(t, Message(Language("es-ES"), MsgNoResultsForSynthesis), "pelo menos um")
	assert.Equal(t, "unknown_key", Message(EnglishUS, "unknown_key"))
}

func TestLanguageName(t *testing.T) {
	assert.Equal(t, "Português Brasileiro", LanguageName(PortugueseBR))
	assert.Equal(t, "English", LanguageName(EnglishUS))
}
