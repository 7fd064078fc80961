package agentic

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sweetpotato0/askflow/llm"
	"github.com/sweetpotato0/askflow/rag/tokenizer"
)

type synthesizer struct {
	llm     llm.Client
	prompts *prompts
	cfg     *Config
	logger  *slog.Logger
}

func newSynthesizer(client llm.Client, p *prompts, cfg *Config) *synthesizer {
	return &synthesizer{
		llm:     client,
		prompts: p,
		cfg:     cfg,
		logger:  cfg.componentLogger("response_synthesizer"),
	}
}

// Combine writes the final answer. The result is never empty: partial output
// is kept with a truncation marker and no output at all becomes an apology.
func (s *synthesizer) Combine(ctx context.Context, query, ragResult, webResult, convCtx string) string {
	persona := s.cfg.Persona
	convCtx = tokenizer.TrimContext(s.cfg.tokenizer, convCtx, s.cfg.MaxContextTokens)

	text, err := s.prompts.render(PromptSynthesis, promptData{
		Query:   query,
		Context: convCtx,
		RAG:     ragResult,
		Web:     webResult,
	})
	if err != nil {
		s.cfg.fallback(s.logger, "synthesis", err)
		return persona.ApologyMessage
	}

	every := s.cfg.ProgressLogEvery
	response, err := llm.StreamWithin(ctx, s.llm, llm.Prompt(text), s.cfg.SynthesisTimeout, func(n int, sofar string) {
		if every > 0 && n%every == 0 {
			s.logger.Debug("still generating response", "chars", len(sofar))
		}
	})
	hasText := strings.TrimSpace(response) != ""
	switch {
	case err != nil && hasText:
		s.cfg.fallback(s.logger, "synthesis", err, "partial_chars", len(response))
		if fallbackReason(err) == "timeout" {
			return response + persona.TruncationMarker
		}
		return response + persona.InterruptedMarker
	case !hasText:
		s.cfg.fallback(s.logger, "synthesis", err)
		return persona.ApologyMessage
	}
	s.logger.Info("response generated", "chars", len(response))
	return response
}
