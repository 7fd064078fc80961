package mmr

import (
	"context"
	"testing"

	"github.com/sweetpotato0/askflow/rag/document"
	"github.com/sweetpotato0/askflow/rag/reranker"
)

func candidate(id string, vec ...float32) reranker.Candidate {
	return reranker.Candidate{Chunk: document.Chunk{ID: id}, Vector: vec}
}

func TestRankPrefersDiverseResults(t *testing.T) {
	query := []float32{0.8, 0.6}
	cands := []reranker.Candidate{
		candidate("a", 1, 0),
		candidate("a-dup", 1, 0.01),
		candidate("b", 0, 1),
	}
	got, err := New(0.5).Rank(context.Background(), query, cands, 2)
	if err != nil {
		t.Fatalf("rank error: %v", err)
	}
	if len(got) != 2 || got[0].Chunk.ID != "a-dup" || got[1].Chunk.ID != "b" {
		t.Fatalf("expected a-dup then b, got %+v", got)
	}
}

func TestRankPureRelevance(t *testing.T) {
	query := []float32{1, 0}
	cands := []reranker.Candidate{candidate("b", 0.7, 0.7), candidate("a", 1, 0)}
	got, _ := New(1).Rank(context.Background(), query, cands, 0)
	if len(got) != 2 || got[0].Chunk.ID != "a" {
		t.Fatalf("expected relevance order, got %+v", got)
	}
}

func TestByScoreLimits(t *testing.T) {
	cands := []reranker.Candidate{{Score: 0.1}, {Score: 0.9, Chunk: document.Chunk{ID: "top"}}}
	got, _ := reranker.ByScore{}.Rank(context.Background(), nil, cands, 1)
	if len(got) != 1 || got[0].Chunk.ID != "top" {
		t.Fatalf("unexpected %+v", got)
	}
}
