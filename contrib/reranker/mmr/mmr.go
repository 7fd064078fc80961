// Package mmr implements Maximal Marginal Relevance reranking.
package mmr

import (
	"context"
	"math"

	"github.com/sweetpotato0/askflow/rag/reranker"
	"github.com/sweetpotato0/askflow/vector"
)

var _ reranker.Reranker = (*Reranker)(nil)

// Reranker trades relevance against redundancy: Lambda 1 ranks purely by
// relevance, lower values penalise candidates similar to ones already picked.
type Reranker struct {
	Lambda float32
}

// New returns an MMR reranker.
func New(lambda float32) *Reranker {
	if lambda <= 0 || lambda > 1 {
		lambda = 0.7
	}
	return &Reranker{Lambda: lambda}
}

// Rank implements reranker.Reranker. Relevance is the cosine similarity to the
// query when vectors are comparable, the first-stage score otherwise.
func (m *Reranker) Rank(_ context.Context, queryVec []float32, candidates []reranker.Candidate, limit int) ([]reranker.Candidate, error) {
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	remaining := make([]reranker.Candidate, len(candidates))
	copy(remaining, candidates)
	for i := range remaining {
		if len(queryVec) > 0 && len(remaining[i].Vector) == len(queryVec) {
			remaining[i].Score = vector.CosineSimilarity(queryVec, remaining[i].Vector)
		}
	}

	selected := make([]reranker.Candidate, 0, limit)
	for len(selected) < limit && len(remaining) > 0 {
		bestIdx := -1
		bestScore := float32(math.Inf(-1))
		for idx, cand := range remaining {
			var penalty float32
			for _, picked := range selected {
				if len(cand.Vector) == 0 || len(picked.Vector) != len(cand.Vector) {
					continue
				}
				penalty = max(penalty, vector.CosineSimilarity(cand.Vector, picked.Vector))
			}
			score := m.Lambda*cand.Score - (1-m.Lambda)*penalty
			if score > bestScore {
				bestScore = score
				bestIdx = idx
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected, nil
}
