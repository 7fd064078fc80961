package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/llm"
	"github.com/sweetpotato0/askflow/message"
)

// Config holds Gemini provider configuration
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int32
	Temperature float32
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "gemini-1.5-flash",
		MaxTokens:   2048,
		Temperature: 0.7,
	}
}

var _ llm.Client = (*Provider)(nil)

// Provider implements llm.Client for Google Gemini.
type Provider struct {
	config *Config
	client *genai.Client
}

// New creates a new Gemini provider. Close releases the underlying connection.
func New(ctx context.Context, config *Config, opts ...option.ClientOption) (*Provider, error) {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}
	if config.APIKey != "" {
		opts = append([]option.ClientOption{option.WithAPIKey(config.APIKey)}, opts...)
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Provider{config: config, client: client}, nil
}

// Close releases the client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Complete implements llm.Client.
func (p *Provider) Complete(ctx context.Context, req *llm.Request) (string, error) {
	session, last, err := p.session(req)
	if err != nil {
		return "", err
	}
	resp, err := session.SendMessage(ctx, last)
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}
	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("gemini returned no text: %w", askerrors.ErrEmptyResponse)
	}
	return text, nil
}

// Stream implements llm.Client.
func (p *Provider) Stream(ctx context.Context, req *llm.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		session, last, err := p.session(req)
		if err != nil {
			yield("", err)
			return
		}
		it := session.SendMessageStream(ctx, last)
		for {
			resp, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("gemini streaming error: %w", err))
				return
			}
			if text := responseText(resp); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}

func (p *Provider) session(req *llm.Request) (*genai.ChatSession, genai.Part, error) {
	if req == nil {
		return nil, nil, fmt.Errorf("request is nil: %w", askerrors.ErrInvalidInput)
	}
	system, history, last, err := toContents(req.Messages)
	if err != nil {
		return nil, nil, err
	}

	model := p.client.GenerativeModel(p.config.Model)
	if p.config.Temperature > 0 {
		model.SetTemperature(p.config.Temperature)
	}
	if p.config.MaxTokens > 0 {
		model.SetMaxOutputTokens(p.config.MaxTokens)
	}
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	session := model.StartChat()
	session.History = history
	return session, last, nil
}

// toContents maps messages onto Gemini's chat model: the system prompt moves
// to the model instruction, the final user turn is sent and the rest becomes
// history. Gemini names the assistant role "model".
func toContents(msgs []*message.Message) (string, []*genai.Content, genai.Part, error) {
	system, turns := message.SplitSystem(msgs)
	if len(turns) == 0 || turns[len(turns)-1].Role != message.RoleUser {
		return "", nil, nil, fmt.Errorf("conversation must end with a user turn: %w", askerrors.ErrInvalidInput)
	}

	history := make([]*genai.Content, 0, len(turns)-1)
	for _, msg := range turns[:len(turns)-1] {
		role := "user"
		if msg.Role == message.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return strings.TrimSpace(system), history, genai.Text(turns[len(turns)-1].Content), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}
