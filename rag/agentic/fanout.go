package agentic

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sweetpotato0/askflow/rag/retriever"
	"github.com/sweetpotato0/askflow/rag/websearch"
	"golang.org/x/sync/errgroup"
)

// fanout queries the selected sources concurrently and renders each result
// set as a prompt section.
type fanout struct {
	retriever retriever.Retriever
	searcher  websearch.Searcher
	cfg       *Config
	logger    *slog.Logger
}

func newFanout(r retriever.Retriever, s websearch.Searcher, cfg *Config) *fanout {
	return &fanout{
		retriever: r,
		searcher:  s,
		cfg:       cfg,
		logger:    cfg.componentLogger("parallel_retriever"),
	}
}

// Retrieve returns the RAG and web sections. A source outside flow yields
// NotApplicable; a failing source yields its "no results" rendering.
func (f *fanout) Retrieve(ctx context.Context, query string, flow SourceSet) (string, string) {
	var (
		g         errgroup.Group
		ragResult = NotApplicable
		webResult = NotApplicable
	)
	g.Go(func() error {
		if flow.Has(SourceRAG) {
			ragResult = f.rag(ctx, query)
		}
		return nil
	})
	g.Go(func() error {
		if flow.Has(SourceWebSearch) {
			webResult = f.web(ctx, query)
		}
		return nil
	})
	_ = g.Wait()
	return ragResult, webResult
}

func (f *fanout) rag(ctx context.Context, query string) string {
	if f.retriever == nil {
		f.logger.Warn("RAG selected without a retriever")
		return f.cfg.Persona.RAGNoResults
	}
	ctx, cancel := context.WithTimeout(ctx, f.cfg.RetrievalTimeout)
	defer cancel()
	passages, err := f.retriever.Retrieve(ctx, query, f.cfg.RAGTopK)
	if err != nil {
		f.cfg.fallback(f.logger, "rag_retrieval", err)
		return f.cfg.Persona.RAGNoResults
	}
	f.logger.Info("documents retrieved", "count", len(passages))
	return formatPassages(f.cfg.Persona, passages, f.cfg.PassageCharBudget)
}

func (f *fanout) web(ctx context.Context, query string) string {
	if f.searcher == nil {
		f.logger.Warn("web search selected without a searcher")
		return formatResults(f.cfg.Persona, nil, f.cfg.SnippetCharBudget)
	}
	ctx, cancel := context.WithTimeout(ctx, f.cfg.SearchTimeout)
	defer cancel()
	results, err := f.searcher.Search(ctx, query, f.cfg.WebTopK)
	if err != nil {
		f.cfg.fallback(f.logger, "web_search", err)
		return formatResults(f.cfg.Persona, nil, f.cfg.SnippetCharBudget)
	}
	f.logger.Info("web results retrieved", "count", len(results))
	return formatResults(f.cfg.Persona, results, f.cfg.SnippetCharBudget)
}

// formatPassages numbers passages from 1, each cut to budget runes.
func formatPassages(p Persona, passages []retriever.Passage, budget int) string {
	var b strings.Builder
	n := 0
	for _, passage := range passages {
		content := retriever.Truncate(passage.Content, budget)
		if content == "" {
			continue
		}
		if n == 0 {
			b.WriteString(p.RAGHeader)
			b.WriteString("\n")
		}
		n++
		fmt.Fprintf(&b, "\n%d. %s\n", n, content)
	}
	if n == 0 {
		return p.RAGNoResults
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatResults renders web results as a numbered markdown link list.
func formatResults(p Persona, results []websearch.Result, budget int) string {
	lines := []string{p.WebSearchHeader}
	if len(results) == 0 {
		return strings.Join(append(lines, p.WebSearchNoResults), "\n")
	}
	for i, r := range results {
		title := strings.TrimSpace(r.Title)
		if title == "" {
			title = "Untitled"
		}
		url := strings.TrimSpace(r.URL)
		if url == "" {
			url = "Unknown URL"
		}
		lines = append(lines, fmt.Sprintf("\n%d. [%s](%s)", i+1, title, url))
		lines = append(lines, "   "+snippet(r.Snippet, budget))
	}
	return strings.Join(lines, "\n")
}

func snippet(text string, budget int) string {
	text = strings.TrimSpace(text)
	cut := retriever.Truncate(text, budget)
	if cut != text {
		return cut + "..."
	}
	return cut
}
