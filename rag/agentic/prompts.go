package agentic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/pkg/logging"
	"github.com/sweetpotato0/askflow/prompt"
)

// promptData is the data every prompt template renders against.
type promptData struct {
	Role     string
	Language string

	Query          string
	Context        string
	ContextExcerpt string
	Facts          string
	Rewritten      string
	Docs           string
	DocCount       int
	RAG            string
	Web            string
	Answer         string
	Reasoning      string
}

type prompts struct {
	manager *prompt.Manager
	persona Persona
}

// newPrompts parses every template and renders each once against empty data
// so a broken template fails construction instead of a run.
func newPrompts(cfg *Config) (*prompts, error) {
	m := prompt.NewManager()
	if err := m.RegisterAll(cfg.prompts()); err != nil {
		return nil, err
	}
	p := &prompts{manager: m, persona: cfg.Persona}
	for _, name := range m.List() {
		if _, err := p.render(name, promptData{}); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *prompts) render(name string, data promptData) (string, error) {
	data.Role = p.persona.Role
	data.Language = p.persona.LanguageName()
	return p.manager.Render(name, data)
}

// fallbackReason classifies why a stage fell back to its default.
func fallbackReason(err error) string {
	switch {
	case err == nil:
		return "empty"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, askerrors.ErrInvalidInput):
		return "malformed"
	}
	return "error"
}

// fallback logs and counts a stage falling back to its default value.
func (cfg *Config) fallback(logger *slog.Logger, stage string, err error, attrs ...any) {
	reason := fallbackReason(err)
	cfg.metrics.Fallback(stage, reason)
	args := append([]any{"stage", stage, "reason", reason}, attrs...)
	if err != nil {
		args = append(args, "error", err)
	}
	logger.Warn("stage fell back to default", args...)
}

func (cfg *Config) componentLogger(component string) *slog.Logger {
	if cfg.logger != nil {
		return cfg.logger.With("component", component)
	}
	return logging.WithComponent(component).With("engine", cfg.Name)
}

func errNoClient(component string) error {
	return fmt.Errorf("%s: language model: %w", component, askerrors.ErrNotConfigured)
}
