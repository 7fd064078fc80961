// Package retriever defines the knowledge retriever port: a black box that
// returns passages from an internal document index.
package retriever

import (
	"context"
	"strings"
)

// Passage is one ranked hit from the document index.
type Passage struct {
	Content  string   `json:"content"`
	SourceID string   `json:"source_id"`
	Score    *float64 `json:"score,omitempty"`
}

// Retriever returns up to topK passages relevant to query, best first.
// Implementations must be safe for concurrent use.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Passage, error)
}

// Func adapts a function to the Retriever interface.
type Func func(ctx context.Context, query string, topK int) ([]Passage, error)

// Retrieve implements Retriever.
func (f Func) Retrieve(ctx context.Context, query string, topK int) ([]Passage, error) {
	return f(ctx, query, topK)
}

// ScoreOf returns a pointer suitable for Passage.Score.
func ScoreOf(v float64) *float64 {
	return &v
}

// Truncate shortens text to at most limit runes; limit <= 0 disables truncation.
func Truncate(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
