// Package mcp adapts a web search tool served over MCP (for example the
// Brave or Tavily MCP servers) to websearch.Searcher.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/rag/preprocess"
	"github.com/sweetpotato0/askflow/rag/websearch"
)

// ToolCaller is satisfied by *askflow/mcp.Client.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Config names the remote tool and its argument keys.
type Config struct {
	Tool     string
	QueryArg string // default "query"
	LimitArg string // default "count"; "-" omits the limit
}

var _ websearch.Searcher = (*Searcher)(nil)

// Searcher calls the configured tool and parses its reply.
type Searcher struct {
	caller ToolCaller
	cfg    Config
}

// New creates a searcher over caller.
func New(caller ToolCaller, cfg Config) (*Searcher, error) {
	if caller == nil || strings.TrimSpace(cfg.Tool) == "" {
		return nil, fmt.Errorf("mcp search needs a client and a tool name: %w", askerrors.ErrNotConfigured)
	}
	if cfg.QueryArg == "" {
		cfg.QueryArg = "query"
	}
	if cfg.LimitArg == "" {
		cfg.LimitArg = "count"
	}
	return &Searcher{caller: caller, cfg: cfg}, nil
}

// Search implements websearch.Searcher.
func (s *Searcher) Search(ctx context.Context, query string, topK int) ([]websearch.Result, error) {
	args := map[string]any{s.cfg.QueryArg: query}
	if s.cfg.LimitArg != "-" && topK > 0 {
		args[s.cfg.LimitArg] = topK
	}
	text, err := s.caller.CallTool(ctx, s.cfg.Tool, args)
	if err != nil {
		return nil, fmt.Errorf("mcp search tool %s: %w", s.cfg.Tool, err)
	}

	results := parseJSON(text)
	if results == nil {
		results = parseBlocks(text)
	}
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

type item struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Link        string `json:"link"`
	Content     string `json:"content"`
	Snippet     string `json:"snippet"`
	Description string `json:"description"`
}

func (it item) result() websearch.Result {
	return websearch.Result{
		Title:   strings.TrimSpace(it.Title),
		URL:     firstNonEmpty(it.URL, it.Link),
		Snippet: preprocess.Snippet(firstNonEmpty(it.Content, it.Snippet, it.Description)),
	}
}

// parseJSON accepts a bare list of hits or an object with a "results" list.
// It returns nil when text is not JSON of either shape.
func parseJSON(text string) []websearch.Result {
	text = strings.TrimSpace(text)
	var items []item
	switch {
	case strings.HasPrefix(text, "["):
		if err := json.Unmarshal([]byte(text), &items); err != nil {
			return nil
		}
	case strings.HasPrefix(text, "{"):
		var wrapped struct {
			Results []item `json:"results"`
		}
		if err := json.Unmarshal([]byte(text), &wrapped); err != nil || wrapped.Results == nil {
			return nil
		}
		items = wrapped.Results
	default:
		return nil
	}

	results := make([]websearch.Result, 0, len(items))
	for _, it := range items {
		results = append(results, it.result())
	}
	return results
}

// parseBlocks reads the "Title: / Description: / URL:" text blocks several
// search servers emit, one hit per blank-line separated block.
func parseBlocks(text string) []websearch.Result {
	var results []websearch.Result
	for _, block := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		var it item
		for _, line := range strings.Split(block, "\n") {
			key, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			value = strings.TrimSpace(value)
			switch strings.ToLower(strings.TrimSpace(key)) {
			case "title":
				it.Title = value
			case "url", "link":
				it.URL = value
			case "description", "snippet", "content":
				it.Description = value
			}
		}
		if it.Title != "" || it.URL != "" {
			results = append(results, it.result())
		}
	}
	return results
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
