package inmemory

import (
	"context"
	"errors"
	"testing"

	"github.com/sweetpotato0/askflow/contrib/reranker/mmr"
	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/rag/document"
)

func chunk(id, content string) document.Chunk {
	return document.Chunk{ID: id, DocumentID: "doc", Content: content}
}

type fixedEmbedder struct {
	vectors map[string][]float32
}

func (f fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v, ok := f.vectors[text]
	if !ok {
		return nil, errors.New("unknown text")
	}
	return v, nil
}

func (f fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (fixedEmbedder) Dimension() int { return 2 }

func TestLexicalRetrieval(t *testing.T) {
	ctx := context.Background()
	idx := New()
	err := idx.Index(ctx, []document.Embedded{
		{Chunk: chunk("c1", "VAT returns are filed quarterly.")},
		{Chunk: chunk("c2", "Corporate tax is filed yearly.")},
		{Chunk: chunk("c3", "Parking rules for downtown.")},
	})
	if err != nil {
		t.Fatalf("index: %v", err)
	}

	got, err := idx.Retrieve(ctx, "when are VAT returns filed", 2)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 2 || got[0].SourceID != "c1" || got[1].SourceID != "c2" {
		t.Fatalf("unexpected ranking %+v", got)
	}
	if *got[0].Score <= *got[1].Score {
		t.Fatalf("scores not descending: %v %v", *got[0].Score, *got[1].Score)
	}
}

func TestReindexReplacesChunk(t *testing.T) {
	ctx := context.Background()
	idx := New()
	_ = idx.Index(ctx, []document.Embedded{{Chunk: chunk("c1", "old lease text")}})
	_ = idx.Index(ctx, []document.Embedded{{Chunk: chunk("c1", "new deposit text")}})
	if idx.Len() != 1 {
		t.Fatalf("expected one chunk, got %d", idx.Len())
	}
	if got, _ := idx.Retrieve(ctx, "lease", 3); len(got) != 0 {
		t.Fatalf("stale terms still indexed: %+v", got)
	}
	if got, _ := idx.Retrieve(ctx, "deposit", 3); len(got) != 1 {
		t.Fatalf("new content not indexed: %+v", got)
	}
}

func TestVectorRetrievalWithMMR(t *testing.T) {
	ctx := context.Background()
	emb := fixedEmbedder{vectors: map[string][]float32{"q": {0.8, 0.6}}}
	idx := New(WithEmbedder(emb), WithReranker(mmr.New(0.5)))
	err := idx.Index(ctx, []document.Embedded{
		{Chunk: chunk("a", "a"), Vector: []float32{1, 0}},
		{Chunk: chunk("a-dup", "a dup"), Vector: []float32{1, 0.01}},
		{Chunk: chunk("b", "b"), Vector: []float32{0, 1}},
	})
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	got, err := idx.Retrieve(ctx, "q", 2)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 2 || got[0].SourceID != "a-dup" || got[1].SourceID != "b" {
		t.Fatalf("unexpected ranking %+v", got)
	}

	if _, err := idx.Retrieve(ctx, "unknown", 1); err == nil {
		t.Fatalf("expected embedder error to surface")
	}
}

func TestIndexValidates(t *testing.T) {
	idx := New(WithEmbedder(fixedEmbedder{}))
	err := idx.Index(context.Background(), []document.Embedded{{Chunk: chunk("x", "x"), Vector: []float32{1}}})
	if !errors.Is(err, askerrors.ErrInvalidInput) {
		t.Fatalf("expected dimension error, got %v", err)
	}
	if err := New().Index(context.Background(), []document.Embedded{{}}); !errors.Is(err, askerrors.ErrInvalidInput) {
		t.Fatalf("expected id error, got %v", err)
	}
}
