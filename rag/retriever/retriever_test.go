package retriever

import (
	"context"
	"testing"
)

func TestTruncateCountsRunes(t *testing.T) {
	if got := Truncate("  임대차 계약  ", 3); got != "임대차" {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := Truncate("short", 0); got != "short" {
		t.Fatalf("limit 0 should disable truncation, got %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestFuncAdapter(t *testing.T) {
	var r Retriever = Func(func(_ context.Context, q string, k int) ([]Passage, error) {
		return []Passage{{Content: q, SourceID: "s", Score: ScoreOf(float64(k))}}, nil
	})
	got, err := r.Retrieve(context.Background(), "lease", 3)
	if err != nil || len(got) != 1 || *got[0].Score != 3 {
		t.Fatalf("unexpected result %#v, %v", got, err)
	}
}
