// Package google implements websearch.Searcher on the Programmable Search
// Engine (Custom Search JSON API).
package google

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/rag/preprocess"
	"github.com/sweetpotato0/askflow/rag/websearch"
)

// maxNum is the API's per-request result ceiling.
const maxNum = 10

// Config holds Custom Search settings.
type Config struct {
	APIKey   string
	EngineID string // the "cx" parameter
	Language string // lr restriction such as "lang_ko"; optional
}

var _ websearch.Searcher = (*Searcher)(nil)

// Searcher wraps the customsearch service.
type Searcher struct {
	cfg     Config
	service *customsearch.Service
}

// New creates a searcher. Extra options are passed to the service, e.g.
// option.WithEndpoint.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Searcher, error) {
	if strings.TrimSpace(cfg.EngineID) == "" {
		return nil, fmt.Errorf("custom search engine id is required: %w", askerrors.ErrNotConfigured)
	}
	if cfg.APIKey != "" {
		opts = append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	}
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create customsearch service: %w", err)
	}
	return &Searcher{cfg: cfg, service: svc}, nil
}

// Search implements websearch.Searcher.
func (s *Searcher) Search(ctx context.Context, query string, topK int) ([]websearch.Result, error) {
	call := s.service.Cse.List().Cx(s.cfg.EngineID).Q(query).Context(ctx)
	if topK > 0 {
		call = call.Num(int64(min(topK, maxNum)))
	}
	if s.cfg.Language != "" {
		call = call.Lr(s.cfg.Language)
	}

	res, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("custom search request failed: %w", err)
	}

	results := make([]websearch.Result, 0, len(res.Items))
	for _, item := range res.Items {
		if item == nil {
			continue
		}
		if topK > 0 && len(results) == topK {
			break
		}
		snippet := item.Snippet
		if snippet == "" {
			snippet = item.HtmlSnippet
		}
		results = append(results, websearch.Result{
			Title:   strings.TrimSpace(item.Title),
			URL:     item.Link,
			Snippet: preprocess.Snippet(snippet),
		})
	}
	return results, nil
}
