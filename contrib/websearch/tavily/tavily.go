// Package tavily implements websearch.Searcher on the Tavily Search API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/pkg/logging"
	"github.com/sweetpotato0/askflow/rag/preprocess"
	"github.com/sweetpotato0/askflow/rag/websearch"
)

const defaultURL = "https://api.tavily.com/search"

// Config holds Tavily settings.
type Config struct {
	APIKey      string
	URL         string
	SearchDepth string // basic or advanced
	Timeout     time.Duration
}

var _ websearch.Searcher = (*Searcher)(nil)

// Searcher calls the Tavily API.
type Searcher struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New creates a Tavily searcher.
func New(cfg Config) (*Searcher, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("tavily api key is required: %w", askerrors.ErrNotConfigured)
	}
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = defaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Searcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logging.WithComponent("tavily"),
	}, nil
}

type request struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth,omitempty"`
	MaxResults  int    `json:"max_results,omitempty"`
}

type response struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search implements websearch.Searcher.
func (s *Searcher) Search(ctx context.Context, query string, topK int) ([]websearch.Result, error) {
	payload, err := json.Marshal(request{
		APIKey:      s.cfg.APIKey,
		Query:       query,
		SearchDepth: s.cfg.SearchDepth,
		MaxResults:  topK,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tavily request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create tavily request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("tavily request failed with status %d", resp.StatusCode)
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode tavily response: %w", err)
	}

	results := make([]websearch.Result, 0, len(decoded.Results))
	for _, item := range decoded.Results {
		if topK > 0 && len(results) == topK {
			break
		}
		results = append(results, websearch.Result{
			Title:   strings.TrimSpace(item.Title),
			URL:     item.URL,
			Snippet: preprocess.Snippet(item.Content),
		})
	}
	s.logger.Info("tavily search finished", "query", query, "results", len(results))
	for i, r := range results {
		s.logger.Debug("tavily result", "rank", i+1, "title", r.Title, "url", r.URL)
	}
	return results, nil
}
