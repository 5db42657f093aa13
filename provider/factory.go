package provider

import (
	"github.com/pkg/errors"
)

// Type identifies the provider implementation.
type Type string

const (
	TypeOllama    Type = "ollama"
	TypeOpenAI    Type = "openai"
	TypeAnthropic Type = "anthropic"
)

// Config holds provider-specific construction settings.
type Config struct {
	Type    Type
	BaseURL string
	Model   string
	APIKey  string // unused for Ollama
}

// New constructs the provider named by the config.
func New(cfg Config) (Provider, error) {
	switch cfg.Type {
	case TypeOllama:
		return NewOllama(cfg.BaseURL, cfg.Model)
	case TypeOpenAI:
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case TypeAnthropic:
		return NewAnthropic(cfg.BaseURL, cfg.APIKey, cfg.Model)
	default:
		return nil, errors.Errorf("unknown provider type: %s", cfg.Type)
	}
}
