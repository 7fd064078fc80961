// Package reranker reorders vector search candidates before they become
// passages.
package reranker

import (
	"context"
	"sort"

	"github.com/sweetpotato0/askflow/rag/document"
)

// Candidate is a retrieved chunk with its stored vector and first-stage score.
type Candidate struct {
	Chunk  document.Chunk
	Vector []float32
	Score  float32
}

// Reranker picks at most limit candidates in final order.
type Reranker interface {
	Rank(ctx context.Context, queryVector []float32, candidates []Candidate, limit int) ([]Candidate, error)
}

// ByScore keeps the first-stage order: highest score first.
type ByScore struct{}

// Rank implements Reranker.
func (ByScore) Rank(_ context.Context, _ []float32, candidates []Candidate, limit int) ([]Candidate, error) {
	out := append([]Candidate(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
