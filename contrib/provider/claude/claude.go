package claude

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/llm"
	"github.com/sweetpotato0/askflow/message"
)

// Config holds Claude provider configuration
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int64
	Temperature float64
	MaxRetries  int // -1 keeps the SDK default
}

// DefaultConfig returns default Claude configuration
func DefaultConfig(apiKey, baseURL string) *Config {
	return &Config{
		APIKey:      apiKey,
		BaseURL:     baseURL,
		Model:       "claude-sonnet-4-5-20250929",
		MaxTokens:   4096,
		Temperature: 0.7,
		MaxRetries:  -1,
	}
}

var _ llm.Client = (*Provider)(nil)

// Provider implements llm.Client on the Messages API.
type Provider struct {
	config *Config
	client anthropic.Client
}

// New creates a new Claude provider using official SDK
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig("", "")
	}
	if config.Model == "" {
		config.Model = "claude-sonnet-4-5-20250929"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4096
	}

	options := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithAuthToken(""),
	}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}
	if config.MaxRetries >= 0 {
		options = append(options, option.WithMaxRetries(config.MaxRetries))
	}

	return &Provider{
		config: config,
		client: anthropic.NewClient(options...),
	}
}

// Complete implements llm.Client.
func (p *Provider) Complete(ctx context.Context, req *llm.Request) (string, error) {
	params, err := p.params(req)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("Claude API error: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("Claude returned no text: %w", askerrors.ErrEmptyResponse)
	}
	return b.String(), nil
}

// Stream implements llm.Client.
func (p *Provider) Stream(ctx context.Context, req *llm.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		params, err := p.params(req)
		if err != nil {
			yield("", err)
			return
		}

		stream := p.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			if event.Type != "content_block_delta" {
				continue
			}
			delta := event.AsContentBlockDelta()
			if delta.Delta.Type == "text_delta" && delta.Delta.Text != "" {
				if !yield(delta.Delta.Text, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield("", fmt.Errorf("Claude streaming error: %w", err))
		}
	}
}

// params splits system prompts into the dedicated field; the Messages API
// rejects them inside the conversation.
func (p *Provider) params(req *llm.Request) (anthropic.MessageNewParams, error) {
	if req == nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("request is nil: %w", askerrors.ErrInvalidInput)
	}
	system, turns := message.SplitSystem(req.Messages)
	if len(turns) == 0 {
		return anthropic.MessageNewParams{}, fmt.Errorf("request has no user turn: %w", askerrors.ErrInvalidInput)
	}

	msgs := make([]anthropic.MessageParam, 0, len(turns))
	for _, msg := range turns {
		block := anthropic.NewTextBlock(msg.Text())
		if msg.Role == message.RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
			continue
		}
		msgs = append(msgs, anthropic.NewUserMessage(block))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		Messages:  msgs,
		MaxTokens: p.config.MaxTokens,
	}
	if strings.TrimSpace(system) != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if p.config.Temperature > 0 {
		params.Temperature = param.NewOpt(p.config.Temperature)
	}
	return params, nil
}
