package token

import (
	"context"
	"strings"
	"testing"

	"github.com/sweetpotato0/askflow/rag/document"
)

// wordTokenizer counts every whitespace-separated word as one token.
type wordTokenizer struct{}

func (wordTokenizer) CountTokens(text string) int { return len(strings.Fields(text)) }

func (wordTokenizer) TailTokens(text string, max int) string {
	f := strings.Fields(text)
	if len(f) > max {
		f = f[len(f)-max:]
	}
	return strings.Join(f, " ")
}

func TestTokenChunkerRespectsOverlap(t *testing.T) {
	ch := New(wordTokenizer{}, WithMaxTokens(4), WithOverlapTokens(1))
	doc := document.Document{ID: "tok-1", Content: "one two three four five six seven"}

	chunks, err := ch.Chunk(context.Background(), doc)
	if err != nil {
		t.Fatalf("chunk error: %v", err)
	}
	want := []string{"one two three four", "four five six seven"}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %+v", len(want), len(chunks), chunks)
	}
	for i, c := range chunks {
		if c.Content != want[i] {
			t.Fatalf("chunk %d = %q, want %q", i, c.Content, want[i])
		}
		if c.ID != document.ChunkID("tok-1", i+1) {
			t.Fatalf("unexpected chunk id %q", c.ID)
		}
	}
}

func TestTokenChunkerDefaultsToRuneTokenizer(t *testing.T) {
	ch := New(nil, WithMaxTokens(5), WithOverlapTokens(2))
	chunks, err := ch.Chunk(context.Background(), document.Document{
		Content: "보증금 반환 시기는 계약 종료 후 한 달 이내 입니다 .",
	})
	if err != nil {
		t.Fatalf("chunk error: %v", err)
	}
	if len(chunks) < 2 || chunks[0].Content == chunks[1].Content {
		t.Fatalf("expected overlapping but distinct chunks, got %+v", chunks)
	}
}

func TestOverlapClampedBelowWindow(t *testing.T) {
	ch := New(wordTokenizer{}, WithMaxTokens(4), WithOverlapTokens(10))
	if ch.overlapTokens != 1 {
		t.Fatalf("expected overlap clamped to 1, got %d", ch.overlapTokens)
	}
}
