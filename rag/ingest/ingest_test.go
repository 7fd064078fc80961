package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sweetpotato0/askflow/contrib/chunking/markdown"
	"github.com/sweetpotato0/askflow/contrib/retriever/inmemory"
	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/pkg/logging"
	"github.com/sweetpotato0/askflow/rag/document"
)

type recordingIndexer struct {
	items []document.Embedded
}

func (r *recordingIndexer) Index(_ context.Context, items []document.Embedded) error {
	r.items = append(r.items, items...)
	return nil
}

type lengthEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (l *lengthEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, nil
}

func (l *lengthEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	if l.fail {
		return nil, errors.New("quota exceeded")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = l.Embed(ctx, t)
	}
	return out, nil
}

func (l *lengthEmbedder) Dimension() int { return 2 }

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDirSupportedFormats(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "guide.md", "# Lease Guide\n\nDeposits are refunded within 30 days.")
	writeFile(t, dir, "notes.txt", "Plain notes.\n\nPlain notes.")
	writeFile(t, dir, "page.html", "<html><body><nav>menu</nav><h1>Tax</h1><p>VAT is 10%.</p></body></html>")
	writeFile(t, dir, "image.png", "binary")
	writeFile(t, dir, ".git/HEAD.txt", "ignored")

	docs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}
	bySource := make(map[string]document.Document)
	for _, d := range docs {
		bySource[d.Source] = d
		if d.ID == "" {
			t.Fatalf("document %s has no id", d.Source)
		}
	}
	if bySource["guide.md"].Title != "Lease Guide" || bySource["guide.md"].Metadata["format"] != FormatMarkdown {
		t.Fatalf("unexpected markdown doc %+v", bySource["guide.md"])
	}
	if bySource["notes.txt"].Content != "Plain notes." {
		t.Fatalf("duplicate paragraph not removed: %q", bySource["notes.txt"].Content)
	}
	page := bySource["page.html"]
	if strings.Contains(page.Content, "menu") || !strings.Contains(page.Content, "# Tax") {
		t.Fatalf("unexpected html text %q", page.Content)
	}
}

func TestLoadDirMissingRoot(t *testing.T) {
	docs, err := LoadDir(filepath.Join(t.TempDir(), "missing"))
	if err != nil || len(docs) != 0 {
		t.Fatalf("expected no documents and no error, got %v %v", docs, err)
	}
}

func TestIngestEmbedsInBatches(t *testing.T) {
	idx := &recordingIndexer{}
	emb := &lengthEmbedder{}
	p, err := New(idx, WithEmbedder(emb), WithBatchSize(2), WithLogger(logging.Discard()))
	if err != nil {
		t.Fatal(err)
	}
	docs := make([]document.Document, 0, 5)
	for _, text := range []string{"one", "two", "three", "four", "five"} {
		docs = append(docs, document.Document{Source: text, Content: text})
	}
	docs = append(docs, document.Document{Source: "blank", Content: "  "})

	stats, err := p.Ingest(context.Background(), docs...)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if stats.Documents != 5 || stats.Chunks != 5 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if emb.calls != 3 {
		t.Fatalf("expected 3 batches, got %d", emb.calls)
	}
	for _, item := range idx.items {
		if item.Vector == nil || int(item.Vector[0]) != len(item.Chunk.Content) {
			t.Fatalf("vector not aligned with chunk %+v", item)
		}
	}
}

func TestIngestSurfacesEmbedError(t *testing.T) {
	p, _ := New(&recordingIndexer{}, WithEmbedder(&lengthEmbedder{fail: true}), WithLogger(logging.Discard()))
	if _, err := p.Ingest(context.Background(), document.Document{Content: "x"}); err == nil {
		t.Fatalf("expected embed error")
	}
}

func TestNewRequiresIndexer(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, askerrors.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestIngestDirIntoLexicalIndex(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lease.md", "# Lease\n\n## Deposit\n\nThe deposit is returned when the lease ends.\n\n## Repairs\n\nTenants report repairs in writing.")
	idx := inmemory.New()
	p, _ := New(idx, WithMarkdownChunker(markdown.New(markdown.WithMinRunes(1))), WithLogger(logging.Discard()))

	stats, err := p.IngestDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if stats.Documents != 1 || stats.Chunks < 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	got, err := idx.Retrieve(context.Background(), "deposit returned", 1)
	if err != nil || len(got) != 1 || !strings.Contains(got[0].Content, "deposit is returned") {
		t.Fatalf("unexpected retrieval %+v %v", got, err)
	}
}
