package openai

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/llm"
	"github.com/sweetpotato0/askflow/message"
)

// Base URLs of OpenAI-compatible services.
const (
	GroqBaseURL   = "https://api.groq.com/openai/v1/"
	OllamaBaseURL = "http://localhost:11434/v1/"
)

// Config holds OpenAI provider configuration
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
	MaxRetries  int // -1 keeps the SDK default
}

// WithBaseURL set BaseURL.
func (cfg *Config) WithBaseURL(url string) *Config {
	cfg.BaseURL = url
	return cfg
}

// WithAPIKey set api key.
func (cfg *Config) WithAPIKey(apiKey string) *Config {
	cfg.APIKey = apiKey
	return cfg
}

// WithModel set model.
func (cfg *Config) WithModel(model string) *Config {
	cfg.Model = model
	return cfg
}

// DefaultConfig returns default OpenAI configuration
func DefaultConfig() *Config {
	return &Config{
		Model:       "gpt-4o-mini",
		MaxTokens:   2000,
		Temperature: 0.7,
		MaxRetries:  -1,
	}
}

// GroqConfig targets Groq's OpenAI-compatible endpoint.
func GroqConfig(apiKey string) *Config {
	cfg := DefaultConfig().WithAPIKey(apiKey).WithBaseURL(GroqBaseURL)
	cfg.Model = "llama-3.3-70b-versatile"
	return cfg
}

// OllamaConfig targets a local Ollama server. Ollama ignores the API key but
// the SDK requires one.
func OllamaConfig(model string) *Config {
	cfg := DefaultConfig().WithAPIKey("ollama").WithBaseURL(OllamaBaseURL)
	cfg.Model = model
	return cfg
}

var _ llm.Client = (*Provider)(nil)

// Provider implements llm.Client on the chat completions API.
type Provider struct {
	config *Config
	client openai.Client
}

// New creates a new OpenAI provider using official SDK
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Model == "" {
		config.Model = string(openai.ChatModelGPT4oMini)
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}
	if config.MaxRetries >= 0 {
		options = append(options, option.WithMaxRetries(config.MaxRetries))
	}

	return &Provider{
		config: config,
		client: openai.NewClient(options...),
	}
}

// Complete implements llm.Client.
func (p *Provider) Complete(ctx context.Context, req *llm.Request) (string, error) {
	params, err := p.params(req)
	if err != nil {
		return "", err
	}
	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from OpenAI: %w", askerrors.ErrEmptyResponse)
	}
	return completion.Choices[0].Message.Content, nil
}

// Stream implements llm.Client.
func (p *Provider) Stream(ctx context.Context, req *llm.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		params, err := p.params(req)
		if err != nil {
			yield("", err)
			return
		}

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			if len(event.Choices) == 0 {
				continue
			}
			if delta := event.Choices[0].Delta.Content; delta != "" {
				if !yield(delta, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield("", fmt.Errorf("OpenAI streaming error: %w", err))
		}
	}
}

func (p *Provider) params(req *llm.Request) (openai.ChatCompletionNewParams, error) {
	if req == nil || len(req.Messages) == 0 {
		return openai.ChatCompletionNewParams{}, fmt.Errorf("request has no messages: %w", askerrors.ErrInvalidInput)
	}
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case message.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(msg.Text()))
		case message.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(msg.Text()))
		default:
			msgs = append(msgs, openai.UserMessage(msg.Text()))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    openai.ChatModel(strings.TrimSpace(p.config.Model)),
	}
	if p.config.Temperature > 0 {
		params.Temperature = openai.Float(p.config.Temperature)
	}
	if p.config.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(p.config.MaxTokens)
	}
	return params, nil
}
