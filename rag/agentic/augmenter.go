package agentic

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sweetpotato0/askflow/llm"
	"github.com/sweetpotato0/askflow/rag/retriever"
)

// augmenter turns a raw user question into a self-contained query and scores
// how well the rewrite captured the user's intent.
type augmenter struct {
	llm       llm.Client
	retriever retriever.Retriever
	prompts   *prompts
	cfg       *Config
	logger    *slog.Logger
}

func newAugmenter(client llm.Client, r retriever.Retriever, p *prompts, cfg *Config) *augmenter {
	return &augmenter{
		llm:       client,
		retriever: r,
		prompts:   p,
		cfg:       cfg,
		logger:    cfg.componentLogger("query_augmenter"),
	}
}

// Augment never fails: every step recovers to a documented default.
func (a *augmenter) Augment(ctx context.Context, query, convCtx string) Augmentation {
	facts := a.extractFacts(ctx, convCtx)
	rewritten := a.rewrite(ctx, query, convCtx, facts)
	docs := a.contextDocs(ctx, rewritten)
	analyzed := a.clarify(ctx, query, rewritten, convCtx, docs)
	quality := a.judge(ctx, query, rewritten, convCtx, len(docs))

	a.logger.Info("query augmented",
		"analyzed_query", trimForLog(analyzed, 120),
		"context_docs", len(docs),
		"quality", quality.Score,
	)
	return Augmentation{
		AnalyzedQuery: analyzed,
		ContextDocs:   docs,
		Quality:       quality,
	}
}

func (a *augmenter) extractFacts(ctx context.Context, convCtx string) string {
	convCtx = strings.TrimSpace(convCtx)
	if convCtx == "" || convCtx == NoPreviousContext {
		return ""
	}
	text, err := a.stream(ctx, PromptFact, promptData{Context: convCtx}, a.cfg.FactTimeout)
	if err != nil {
		a.cfg.fallback(a.logger, "fact_extraction", err)
		return ""
	}
	return text
}

func (a *augmenter) rewrite(ctx context.Context, query, convCtx, facts string) string {
	text, err := a.stream(ctx, PromptRewrite, promptData{Query: query, Context: convCtx, Facts: facts}, a.cfg.RewriteTimeout)
	if err != nil || text == "" {
		a.cfg.fallback(a.logger, "query_rewrite", err)
		return query
	}
	a.logger.Debug("query rewritten", "rewritten", trimForLog(text, 120))
	return text
}

func (a *augmenter) contextDocs(ctx context.Context, rewritten string) []retriever.Passage {
	if a.retriever == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.RetrievalTimeout)
	defer cancel()
	docs, err := a.retriever.Retrieve(ctx, rewritten, a.cfg.ContextTopK)
	if err != nil {
		a.cfg.fallback(a.logger, "context_retrieval", err)
		return nil
	}
	if len(docs) > a.cfg.ContextTopK {
		docs = docs[:a.cfg.ContextTopK]
	}
	return docs
}

// clarify disambiguates the rewritten query against the context docs. The
// original query is the fallback.
func (a *augmenter) clarify(ctx context.Context, query, rewritten, convCtx string, docs []retriever.Passage) string {
	excerpts := make([]string, 0, len(docs))
	for _, doc := range docs {
		if text := retriever.Truncate(doc.Content, a.cfg.ContextDocChars); text != "" {
			excerpts = append(excerpts, text)
		}
	}
	data := promptData{Query: query, Rewritten: rewritten, Context: convCtx, Docs: strings.Join(excerpts, "\n")}
	text, err := a.stream(ctx, PromptClarify, data, a.cfg.ClarifyTimeout)
	if err != nil || text == "" {
		a.cfg.fallback(a.logger, "query_clarify", err)
		return query
	}
	return text
}

func (a *augmenter) judge(ctx context.Context, query, rewritten, convCtx string, docCount int) Quality {
	fallback := Quality{Score: a.cfg.DefaultQuality}
	data := promptData{
		Query:          query,
		Rewritten:      rewritten,
		ContextExcerpt: trimForLog(convCtx, 200),
		DocCount:       docCount,
	}
	system, err := a.prompts.render(PromptQualitySystem, data)
	if err != nil {
		fallback.Reasoning = "Error fallback"
		a.cfg.fallback(a.logger, "quality_judgment", err)
		return fallback
	}
	user, err := a.prompts.render(PromptQuality, data)
	if err != nil {
		fallback.Reasoning = "Error fallback"
		a.cfg.fallback(a.logger, "quality_judgment", err)
		return fallback
	}

	raw, err := llm.CompleteWithin(ctx, a.llm, llm.Chat(system, user), a.cfg.QualityTimeout)
	if err != nil {
		fallback.Reasoning = "Timeout fallback"
		if fallbackReason(err) != "timeout" {
			fallback.Reasoning = "Error fallback"
		}
		a.cfg.fallback(a.logger, "quality_judgment", err)
		return fallback
	}
	score, reasoning, err := parseJudgment(raw)
	if err != nil {
		fallback.Reasoning = "Default fallback"
		a.cfg.fallback(a.logger, "quality_judgment", err, "raw", trimForLog(raw, 300))
		return fallback
	}
	return Quality{Score: score, Reasoning: reasoning}
}

// stream renders a prompt and drains a bounded streamed completion. Partial
// output after a timeout is discarded.
func (a *augmenter) stream(ctx context.Context, name string, data promptData, timeout time.Duration) (string, error) {
	text, err := a.prompts.render(name, data)
	if err != nil {
		return "", err
	}
	out, err := llm.StreamWithin(ctx, a.llm, llm.Prompt(text), timeout, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
