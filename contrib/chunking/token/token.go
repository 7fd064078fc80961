// Package token splits documents into windows measured in model tokens, so
// chunks fit an embedding model's input limit.
package token

import (
	"context"
	"regexp"

	"github.com/sweetpotato0/askflow/rag/chunking"
	"github.com/sweetpotato0/askflow/rag/document"
	"github.com/sweetpotato0/askflow/rag/tokenizer"
)

// words keep their trailing whitespace so joined windows read naturally.
var wordPattern = regexp.MustCompile(`\S+\s*`)

// Chunker packs whole words into windows of at most maxTokens tokens,
// repeating up to overlapTokens tokens of the previous window.
type Chunker struct {
	tok           tokenizer.Tokenizer
	maxTokens     int
	overlapTokens int
}

// Option customises the token chunker.
type Option func(*Chunker)

// WithMaxTokens sets the maximum allowed tokens per chunk (default 256).
func WithMaxTokens(tokens int) Option {
	return func(c *Chunker) {
		if tokens > 0 {
			c.maxTokens = tokens
		}
	}
}

// WithOverlapTokens sets how many tokens are shared between consecutive chunks.
func WithOverlapTokens(tokens int) Option {
	return func(c *Chunker) {
		if tokens >= 0 {
			c.overlapTokens = tokens
		}
	}
}

var _ chunking.Chunker = (*Chunker)(nil)

// New creates a chunker measuring with tok; nil falls back to the rune
// approximation.
func New(tok tokenizer.Tokenizer, opts ...Option) *Chunker {
	if tok == nil {
		tok = tokenizer.RuneTokenizer{}
	}
	ch := &Chunker{tok: tok, maxTokens: 256, overlapTokens: 32}
	for _, opt := range opts {
		opt(ch)
	}
	if ch.overlapTokens >= ch.maxTokens {
		ch.overlapTokens = ch.maxTokens / 4
	}
	return ch
}

// Chunk implements chunking.Chunker. A single word longer than the window
// becomes its own chunk.
func (c *Chunker) Chunk(_ context.Context, doc document.Document) ([]document.Chunk, error) {
	document.EnsureID(&doc)

	words := wordPattern.FindAllString(doc.Content, -1)
	costs := make([]int, len(words))
	for i, w := range words {
		costs[i] = max(c.tok.CountTokens(w), 1)
	}

	var pieces []string
	start := 0
	for start < len(words) {
		end, used := start, 0
		for end < len(words) && (end == start || used+costs[end] <= c.maxTokens) {
			used += costs[end]
			end++
		}
		pieces = append(pieces, join(words[start:end]))
		if end == len(words) {
			break
		}
		// Step back over at most overlapTokens tokens, always moving forward.
		next, carried := end, 0
		for next-1 > start && carried+costs[next-1] <= c.overlapTokens {
			next--
			carried += costs[next]
		}
		start = next
	}
	return chunking.Build(doc, pieces), nil
}

func join(words []string) string {
	n := 0
	for _, w := range words {
		n += len(w)
	}
	buf := make([]byte, 0, n)
	for _, w := range words {
		buf = append(buf, w...)
	}
	return string(buf)
}
