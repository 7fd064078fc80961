package agentic

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sweetpotato0/askflow/llm"
)

// router decides which knowledge sources a query needs. It fails open: any
// doubt selects every source.
type router struct {
	llm     llm.Client
	prompts *prompts
	cfg     *Config
	logger  *slog.Logger
}

func newRouter(client llm.Client, p *prompts, cfg *Config) *router {
	return &router{
		llm:     client,
		prompts: p,
		cfg:     cfg,
		logger:  cfg.componentLogger("source_router"),
	}
}

// Route returns the selected sources for query.
func (r *router) Route(ctx context.Context, query string) SourceSet {
	if r.isGreeting(query) {
		r.logger.Info("fast-routed short greeting", "query", trimForLog(query, 40))
		r.cfg.metrics.Route(NoSources.String())
		return NoSources
	}

	data := promptData{Query: query}
	system, err := r.prompts.render(PromptRouteSystem, data)
	if err != nil {
		return r.failOpen(err)
	}
	user, err := r.prompts.render(PromptRoute, data)
	if err != nil {
		return r.failOpen(err)
	}
	raw, err := llm.CompleteWithin(ctx, r.llm, llm.Chat(system, user), r.cfg.RouteTimeout)
	if err != nil {
		return r.failOpen(err)
	}

	flow := parseSources(raw)
	if flow == NoSources {
		r.logger.Warn("routing answer named no source", "raw", trimForLog(raw, 200))
		return r.failOpen(nil)
	}
	r.logger.Info("sources selected", "sources", flow.String())
	r.cfg.metrics.Route(flow.String())
	return flow
}

func (r *router) failOpen(err error) SourceSet {
	r.cfg.fallback(r.logger, "routing", err)
	r.cfg.metrics.Route(AllSources.String())
	return AllSources
}

func parseSources(raw string) SourceSet {
	upper := strings.ToUpper(raw)
	flow := NoSources
	if strings.Contains(upper, "RAG") {
		flow |= SourceRAG
	}
	if strings.Contains(upper, "WEBSEARCH") {
		flow |= SourceWebSearch
	}
	return flow
}

// isGreeting matches greeting tokens against whole words of a short query.
// Greetings outside ASCII also match as word prefixes so inflected Hangul
// forms such as "안녕하십니까" are recognised.
func (r *router) isGreeting(query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" || utf8.RuneCountInString(query) >= r.cfg.GreetingMaxRunes {
		return false
	}
	words := strings.FieldsFunc(query, func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c)
	})
	for _, word := range words {
		for _, greet := range r.cfg.GreetingTokens {
			if word == greet || (!isASCII(greet) && strings.HasPrefix(word, greet)) {
				return true
			}
		}
	}
	return false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
