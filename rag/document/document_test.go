package document

import "testing"

func TestEnsureIDIsStable(t *testing.T) {
	a := Document{Source: "laws/civil.txt", Content: "one"}
	b := Document{Source: "laws/civil.txt", Content: "changed"}
	EnsureID(&a)
	EnsureID(&b)
	if a.ID == "" || a.ID != b.ID {
		t.Fatalf("expected identical ids for the same source, got %q and %q", a.ID, b.ID)
	}
	c := Document{ID: "fixed"}
	EnsureID(&c)
	if c.ID != "fixed" {
		t.Fatalf("explicit id overwritten: %q", c.ID)
	}
}

func TestChunkCloneAndLabel(t *testing.T) {
	chunk := Chunk{ID: ChunkID("doc_1", 3), DocumentID: "doc_1", Metadata: map[string]any{"title": "Civil Act"}}
	if chunk.ID != "doc_1#0003" {
		t.Fatalf("unexpected chunk id %q", chunk.ID)
	}
	clone := chunk.Clone()
	clone.Metadata["title"] = "changed"
	if chunk.Label() != "Civil Act" {
		t.Fatalf("clone shares metadata")
	}
	if (Chunk{DocumentID: "doc_2"}).Label() != "doc_2" {
		t.Fatalf("expected document id fallback")
	}
}
