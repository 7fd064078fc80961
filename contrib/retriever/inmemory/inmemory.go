// Package inmemory is a process-local knowledge index. With an embedder it
// ranks chunks by cosine similarity; without one it falls back to weighted
// term overlap so small corpora work without an embedding service.
package inmemory

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"unicode"

	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/rag/document"
	"github.com/sweetpotato0/askflow/rag/reranker"
	"github.com/sweetpotato0/askflow/rag/retriever"
	"github.com/sweetpotato0/askflow/vector"
)

// Option customises the index.
type Option func(*Index)

// WithEmbedder enables vector search; queries are embedded with e.
func WithEmbedder(e vector.Embedder) Option {
	return func(i *Index) {
		i.embedder = e
	}
}

// WithReranker reorders the candidate pool, for example with MMR.
func WithReranker(r reranker.Reranker) Option {
	return func(i *Index) {
		if r != nil {
			i.reranker = r
		}
	}
}

// WithPoolFactor sets how many candidates per requested passage reach the
// reranker (default 3).
func WithPoolFactor(n int) Option {
	return func(i *Index) {
		if n > 0 {
			i.poolFactor = n
		}
	}
}

type entry struct {
	chunk  document.Chunk
	vector []float32
	terms  map[string]int
}

var _ retriever.Retriever = (*Index)(nil)

// Index stores chunks keyed by ID; re-indexing a chunk ID replaces it.
type Index struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	docFreq    map[string]int
	embedder   vector.Embedder
	reranker   reranker.Reranker
	poolFactor int
}

// New creates an empty index.
func New(opts ...Option) *Index {
	idx := &Index{
		entries:    make(map[string]*entry),
		docFreq:    make(map[string]int),
		reranker:   reranker.ByScore{},
		poolFactor: 3,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Index stores items. Vectors are required when an embedder is configured.
func (i *Index) Index(_ context.Context, items []document.Embedded) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, item := range items {
		if item.Chunk.ID == "" {
			return fmt.Errorf("chunk id cannot be empty: %w", askerrors.ErrInvalidInput)
		}
		if i.embedder != nil && len(item.Vector) != i.embedder.Dimension() {
			return fmt.Errorf("chunk %s: vector dimension %d, want %d: %w",
				item.Chunk.ID, len(item.Vector), i.embedder.Dimension(), askerrors.ErrInvalidInput)
		}
		if old, ok := i.entries[item.Chunk.ID]; ok {
			i.forget(old)
		}
		e := &entry{chunk: item.Chunk.Clone(), vector: item.Vector, terms: termCounts(item.Chunk.Content)}
		for term := range e.terms {
			i.docFreq[term]++
		}
		i.entries[item.Chunk.ID] = e
	}
	return nil
}

func (i *Index) forget(e *entry) {
	for term := range e.terms {
		if i.docFreq[term]--; i.docFreq[term] <= 0 {
			delete(i.docFreq, term)
		}
	}
}

// Len reports the number of indexed chunks.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// Retrieve implements retriever.Retriever.
func (i *Index) Retrieve(ctx context.Context, query string, topK int) ([]retriever.Passage, error) {
	if topK <= 0 {
		return nil, nil
	}

	var queryVec []float32
	if i.embedder != nil {
		vec, err := i.embedder.Embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		queryVec = vec
	}

	pool := i.candidates(query, queryVec, topK*i.poolFactor)
	ranked, err := i.reranker.Rank(ctx, queryVec, pool, topK)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}

	passages := make([]retriever.Passage, 0, len(ranked))
	for _, c := range ranked {
		passages = append(passages, retriever.Passage{
			Content:  c.Chunk.Content,
			SourceID: c.Chunk.ID,
			Score:    retriever.ScoreOf(float64(c.Score)),
		})
	}
	return passages, nil
}

func (i *Index) candidates(query string, queryVec []float32, limit int) []reranker.Candidate {
	i.mu.RLock()
	defer i.mu.RUnlock()

	queryTerms := termCounts(query)
	n := float64(len(i.entries))
	out := make([]reranker.Candidate, 0, len(i.entries))
	for _, e := range i.entries {
		var score float32
		if queryVec != nil {
			score = vector.CosineSimilarity(queryVec, e.vector)
		} else {
			score = lexicalScore(queryTerms, e.terms, i.docFreq, n)
			if score == 0 {
				continue
			}
		}
		out = append(out, reranker.Candidate{Chunk: e.chunk.Clone(), Vector: e.vector, Score: score})
	}

	top, _ := reranker.ByScore{}.Rank(context.Background(), nil, out, limit)
	return top
}

// lexicalScore is the idf-weighted share of query terms found in the chunk.
func lexicalScore(query, doc map[string]int, df map[string]int, n float64) float32 {
	var hit, total float64
	for term := range query {
		idf := math.Log(1 + n/float64(max(df[term], 1)))
		total += idf
		if doc[term] > 0 {
			hit += idf
		}
	}
	if total == 0 {
		return 0
	}
	return float32(hit / total)
}

func termCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		counts[word]++
	}
	return counts
}
