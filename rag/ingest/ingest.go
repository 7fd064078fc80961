// Package ingest turns files into indexed knowledge chunks: load, clean,
// chunk, embed in batches and hand the result to an index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/pkg/logging"
	"github.com/sweetpotato0/askflow/rag/chunking"
	"github.com/sweetpotato0/askflow/rag/document"
	"github.com/sweetpotato0/askflow/rag/preprocess"
	"github.com/sweetpotato0/askflow/vector"
)

// Indexer persists embedded chunks. Re-indexing a chunk ID replaces it.
type Indexer interface {
	Index(ctx context.Context, items []document.Embedded) error
}

// Format selects the chunker used for a document.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// Stats summarises one ingestion run.
type Stats struct {
	Documents int
	Chunks    int
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithChunker sets the chunker for plain text and HTML.
func WithChunker(c chunking.Chunker) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.chunker = c
		}
	}
}

// WithMarkdownChunker sets the chunker for markdown documents.
func WithMarkdownChunker(c chunking.Chunker) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.markdown = c
		}
	}
}

// WithEmbedder enables embedding; without it chunks are indexed without vectors.
func WithEmbedder(e vector.Embedder) Option {
	return func(p *Pipeline) {
		p.embedder = e
	}
}

// WithBatchSize sets how many chunks go to one EmbedBatch call (default 32).
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithConcurrency bounds parallel embedding batches (default 4).
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// Pipeline ingests documents into an Indexer.
type Pipeline struct {
	indexer     Indexer
	chunker     chunking.Chunker
	markdown    chunking.Chunker
	embedder    vector.Embedder
	batchSize   int
	concurrency int
	logger      *slog.Logger
}

// New builds a pipeline writing to indexer.
func New(indexer Indexer, opts ...Option) (*Pipeline, error) {
	if indexer == nil {
		return nil, fmt.Errorf("ingest requires an indexer: %w", askerrors.ErrNotConfigured)
	}
	p := &Pipeline{
		indexer:     indexer,
		chunker:     chunking.NewSimpleChunker(),
		batchSize:   32,
		concurrency: 4,
		logger:      logging.WithComponent("ingest"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.markdown == nil {
		p.markdown = p.chunker
	}
	return p, nil
}

// IngestDir loads every supported file under root and ingests it.
func (p *Pipeline) IngestDir(ctx context.Context, root string) (Stats, error) {
	docs, err := LoadDir(root)
	if err != nil {
		return Stats{}, err
	}
	return p.Ingest(ctx, docs...)
}

// Ingest chunks, embeds and indexes docs.
func (p *Pipeline) Ingest(ctx context.Context, docs ...document.Document) (Stats, error) {
	var (
		stats  Stats
		chunks []document.Chunk
	)
	for _, doc := range docs {
		if strings.TrimSpace(doc.Content) == "" {
			continue
		}
		document.EnsureID(&doc)
		chunker := p.chunker
		if doc.Metadata["format"] == FormatMarkdown {
			chunker = p.markdown
		}
		parts, err := chunker.Chunk(ctx, doc)
		if err != nil {
			return stats, fmt.Errorf("chunk %s: %w", doc.ID, err)
		}
		stats.Documents++
		chunks = append(chunks, parts...)
	}
	if len(chunks) == 0 {
		return stats, nil
	}

	items, err := p.embed(ctx, chunks)
	if err != nil {
		return stats, err
	}
	if err := p.indexer.Index(ctx, items); err != nil {
		return stats, fmt.Errorf("index: %w", err)
	}
	stats.Chunks = len(items)
	p.logger.Info("ingested documents", "documents", stats.Documents, "chunks", stats.Chunks)
	return stats, nil
}

func (p *Pipeline) embed(ctx context.Context, chunks []document.Chunk) ([]document.Embedded, error) {
	items := make([]document.Embedded, len(chunks))
	for i, c := range chunks {
		items[i].Chunk = c
	}
	if p.embedder == nil {
		return items, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for start := 0; start < len(chunks); start += p.batchSize {
		end := min(start+p.batchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				texts = append(texts, c.Content)
			}
			vecs, err := p.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("embed chunks %d-%d: got %d vectors: %w", start, end-1, len(vecs), askerrors.ErrEmptyResponse)
			}
			for i, v := range vecs {
				items[start+i].Vector = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

// LoadDir walks root, skipping hidden directories, and loads .txt, .md and
// .html files. A missing root yields no documents.
func LoadDir(root string) ([]document.Document, error) {
	var docs []document.Document
	walkRoot := filepath.Clean(root)
	err := filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != walkRoot && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if formatOf(d.Name()) == "" {
			return nil
		}
		doc, err := LoadFile(path, walkRoot)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return docs, nil
}

// LoadFile reads one file and cleans it for chunking. The document source is
// the slash path relative to base.
func LoadFile(path, base string) (document.Document, error) {
	format := formatOf(path)
	if format == "" {
		return document.Document{}, fmt.Errorf("unsupported file %s: %w", path, askerrors.ErrInvalidInput)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return document.Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	content := strings.ToValidUTF8(string(data), "")
	if format == FormatHTML {
		if content, err = preprocess.HTMLToText(content); err != nil {
			return document.Document{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	content = preprocess.Passage(content)

	source := filepath.ToSlash(path)
	if base != "" {
		if rel, err := filepath.Rel(base, path); err == nil {
			source = filepath.ToSlash(rel)
		}
	}
	doc := document.Document{
		Title:    extractTitle(content, filepath.Base(path)),
		Source:   source,
		Content:  content,
		Metadata: map[string]any{"path": path, "format": format},
	}
	if format == FormatHTML {
		doc.Metadata["format"] = FormatMarkdown
	}
	document.EnsureID(&doc)
	return doc, nil
}

func formatOf(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		return FormatText
	case ".md", ".mdx", ".markdown":
		return FormatMarkdown
	case ".html", ".htm":
		return FormatHTML
	}
	return ""
}

func extractTitle(content, fallback string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
		break
	}
	return strings.TrimSuffix(fallback, filepath.Ext(fallback))
}
