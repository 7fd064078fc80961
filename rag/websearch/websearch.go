// Package websearch defines the web search port.
package websearch

import "context"

// Result is one ranked web hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher returns up to topK web results for query, best first.
// Implementations must be safe for concurrent use.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]Result, error)
}

// Func adapts a function to the Searcher interface.
type Func func(ctx context.Context, query string, topK int) ([]Result, error)

// Search implements Searcher.
func (f Func) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	return f(ctx, query, topK)
}
