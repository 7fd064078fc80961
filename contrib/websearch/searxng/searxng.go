// Package searxng implements websearch.Searcher against a SearXNG instance.
package searxng

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/rag/preprocess"
	"github.com/sweetpotato0/askflow/rag/websearch"
)

var _ websearch.Searcher = (*Searcher)(nil)

// Searcher queries the SearXNG JSON API.
type Searcher struct {
	apiURL   string
	language string
	client   *http.Client
}

// New creates a SearXNG searcher. language is passed through as the search
// language (for example "ko" or "en"); empty lets the instance decide.
func New(apiURL, language string) (*Searcher, error) {
	if strings.TrimSpace(apiURL) == "" {
		return nil, fmt.Errorf("searxng api url is required: %w", askerrors.ErrNotConfigured)
	}
	return &Searcher{
		apiURL:   strings.TrimRight(apiURL, "/"),
		language: language,
		client:   &http.Client{Timeout: 15 * time.Second},
	}, nil
}

type response struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search implements websearch.Searcher.
func (s *Searcher) Search(ctx context.Context, query string, topK int) ([]websearch.Result, error) {
	endpoint, err := url.Parse(s.apiURL + "/search")
	if err != nil {
		return nil, fmt.Errorf("parse searxng url: %w", err)
	}
	q := endpoint.Query()
	q.Set("q", query)
	q.Set("format", "json")
	if s.language != "" {
		q.Set("language", s.language)
	}
	if topK > 0 {
		q.Set("count", strconv.Itoa(topK))
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create searxng request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searxng request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("searxng request failed with status %d", resp.StatusCode)
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode searxng response: %w", err)
	}

	// count is advisory for most engines
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
	return results, nil
}
