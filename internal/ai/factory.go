package ai

import (
	"fmt"
	"strings"
)

// FactoryConfig carries the provider selector and variant settings. The
// selector is resolved exactly once at startup; an unknown value is a fatal
// configuration error for the process.
type FactoryConfig struct {
	Provider      string
	MockBaseURL   string
	OllamaBaseURL string
	OllamaModel   string
}

func New(cfg FactoryConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "mock":
		return NewMockProvider(cfg.MockBaseURL), nil
	case "ollama":
		return NewOllamaProvider(cfg.OllamaBaseURL, cfg.OllamaModel), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}
