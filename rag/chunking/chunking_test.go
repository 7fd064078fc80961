package chunking

import (
	"context"
	"strings"
	"testing"

	"github.com/sweetpotato0/askflow/rag/document"
)

func TestSimpleChunkerPacksParagraphs(t *testing.T) {
	ch := NewSimpleChunker(WithChunkSize(20), WithOverlap(0))
	doc := document.Document{
		ID:      "doc",
		Title:   "Lease",
		Content: "first para\n\nsecond\n\nthird paragraph here",
	}
	chunks, err := ch.Chunk(context.Background(), doc)
	if err != nil {
		t.Fatalf("chunk error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %+v", len(chunks), chunks)
	}
	if chunks[0].Content != "first para\n\nsecond" || chunks[1].Content != "third paragraph here" {
		t.Fatalf("unexpected packing %q / %q", chunks[0].Content, chunks[1].Content)
	}
	if chunks[1].ID != "doc#0002" || chunks[1].Ordinal != 2 || chunks[1].Metadata["title"] != "Lease" {
		t.Fatalf("unexpected chunk metadata %+v", chunks[1])
	}
}

func TestSimpleChunkerWindowsLongParagraphsByRune(t *testing.T) {
	ch := NewSimpleChunker(WithChunkSize(4), WithOverlap(1))
	chunks, err := ch.Chunk(context.Background(), document.Document{ID: "k", Content: "임대차계약해지"})
	if err != nil {
		t.Fatalf("chunk error: %v", err)
	}
	var got []string
	for _, c := range chunks {
		got = append(got, c.Content)
	}
	if strings.Join(got, "|") != "임대차계|계약해지" {
		t.Fatalf("unexpected windows %v", got)
	}
}

func TestBuildSkipsBlankPieces(t *testing.T) {
	chunks := Build(document.Document{ID: "d"}, []string{" ", "a", ""})
	if len(chunks) != 1 || chunks[0].Ordinal != 1 || chunks[0].Metadata != nil {
		t.Fatalf("unexpected chunks %+v", chunks)
	}
}
