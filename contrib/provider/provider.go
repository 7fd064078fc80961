// Package provider builds an llm.Client from a provider name so that
// configuration files can select the backing model service.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/sweetpotato0/askflow/contrib/provider/claude"
	"github.com/sweetpotato0/askflow/contrib/provider/gemini"
	"github.com/sweetpotato0/askflow/contrib/provider/openai"
	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/llm"
)

// Supported provider names.
const (
	OpenAI = "openai"
	Groq   = "groq"
	Ollama = "ollama"
	Claude = "claude"
	Gemini = "gemini"
)

// Settings is the provider-neutral subset of model configuration. Zero values
// keep each provider's defaults.
type Settings struct {
	Name        string
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// New returns the client named by s.Name. The returned close function releases
// provider resources and is never nil.
func New(ctx context.Context, s Settings) (llm.Client, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(strings.TrimSpace(s.Name)) {
	case OpenAI, "":
		return openai.New(openAIConfig(openai.DefaultConfig(), s)), noop, nil
	case Groq:
		return openai.New(openAIConfig(openai.GroqConfig(s.APIKey), s)), noop, nil
	case Ollama:
		return openai.New(openAIConfig(openai.OllamaConfig(s.Model), s)), noop, nil
	case Claude:
		cfg := claude.DefaultConfig(s.APIKey, s.BaseURL)
		if s.Model != "" {
			cfg.Model = s.Model
		}
		if s.MaxTokens > 0 {
			cfg.MaxTokens = int64(s.MaxTokens)
		}
		if s.Temperature > 0 {
			cfg.Temperature = s.Temperature
		}
		return claude.New(cfg), noop, nil
	case Gemini:
		cfg := gemini.DefaultConfig(s.APIKey)
		if s.Model != "" {
			cfg.Model = s.Model
		}
		if s.MaxTokens > 0 {
			cfg.MaxTokens = int32(s.MaxTokens)
		}
		if s.Temperature > 0 {
			cfg.Temperature = float32(s.Temperature)
		}
		p, err := gemini.New(ctx, cfg)
		if err != nil {
			return nil, noop, err
		}
		return p, p.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown provider %q: %w", s.Name, askerrors.ErrInvalidInput)
	}
}

func openAIConfig(cfg *openai.Config, s Settings) *openai.Config {
	if s.APIKey != "" {
		cfg.WithAPIKey(s.APIKey)
	}
	if s.BaseURL != "" {
		cfg.WithBaseURL(s.BaseURL)
	}
	if s.Model != "" {
		cfg.WithModel(s.Model)
	}
	if s.MaxTokens > 0 {
		cfg.MaxTokens = int64(s.MaxTokens)
	}
	if s.Temperature > 0 {
		cfg.Temperature = s.Temperature
	}
	return cfg
}
