package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	t.Run("ollama defaults", func(t *testing.T) {
		p, err := New(Config{Type: TypeOllama})
		require.NoError(t, err)
		assert.Equal(t, "ollama", p.Name())
	})

	t.Run("openai requires key", func(t *testing.T) {
		_, err := New(Config{Type: TypeOpenAI})
		assert.Error(t, err)
	})

	t.Run("anthropic requires key", func(t *testing.T) {
		_, err := New(Config{Type: TypeAnthropic})
		assert.Error(t, err)
	})

	t.Run("openai with key", func(t *testing.T) {
		p, err := New(Config{Type: TypeOpenAI, APIKey: "sk-test"})
		require.NoError(t, err)
		assert.Equal(t, "openai", p.Name())
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := New(Config{Type: "mystery"})
		assert.Error(t, err)
	})
}

func TestNewSessionIsPureConstruction(t *testing.T) {
	// Creating a session must not contact the runtime, so it works even
	// when nothing is listening on the base URL.
	p, err := NewOllama("http://127.0.0.1:1", "llama3.1")
	require.NoError(t, err)
	s := p.NewSession(SessionConfig{Instructions: "x"})
	assert.NotNil(t, s)
}
