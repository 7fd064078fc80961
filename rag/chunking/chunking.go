// Package chunking splits documents into passages sized for retrieval.
package chunking

import (
	"context"
	"maps"
	"strings"

	"github.com/sweetpotato0/askflow/rag/document"
)

// Chunker splits documents into chunks that can be embedded and indexed.
type Chunker interface {
	Chunk(ctx context.Context, doc document.Document) ([]document.Chunk, error)
}

// Option customizes the simple chunker.
type Option func(*SimpleChunker)

// WithChunkSize overrides the default chunk size (runes).
func WithChunkSize(size int) Option {
	return func(c *SimpleChunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap configures overlap (runes) between windows cut from one
// oversized paragraph.
func WithOverlap(overlap int) Option {
	return func(c *SimpleChunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// WithSeparator sets the paragraph separator.
func WithSeparator(sep string) Option {
	return func(c *SimpleChunker) {
		if sep != "" {
			c.sep = sep
		}
	}
}

// SimpleChunker packs consecutive paragraphs into chunks of at most size
// runes and windows paragraphs that are longer than that on their own.
type SimpleChunker struct {
	size    int
	overlap int
	sep     string
}

// NewSimpleChunker constructs a chunker with defaults suited to prose.
func NewSimpleChunker(opts ...Option) *SimpleChunker {
	c := &SimpleChunker{size: 800, overlap: 120, sep: "\n\n"}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

// Chunk implements Chunker.
func (c *SimpleChunker) Chunk(_ context.Context, doc document.Document) ([]document.Chunk, error) {
	document.EnsureID(&doc)

	var (
		pieces []string
		buf    strings.Builder
		bufLen int
	)
	flush := func() {
		if bufLen > 0 {
			pieces = append(pieces, buf.String())
			buf.Reset()
			bufLen = 0
		}
	}

	for _, para := range strings.Split(doc.Content, c.sep) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		runes := []rune(para)
		if len(runes) > c.size {
			flush()
			pieces = append(pieces, c.windows(runes)...)
			continue
		}
		extra := len(runes)
		if bufLen > 0 {
			extra += len([]rune(c.sep))
		}
		if bufLen+extra > c.size {
			flush()
			extra = len(runes)
		}
		if bufLen > 0 {
			buf.WriteString(c.sep)
		}
		buf.WriteString(para)
		bufLen += extra
	}
	flush()

	return Build(doc, pieces), nil
}

func (c *SimpleChunker) windows(runes []rune) []string {
	step := c.size - c.overlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := min(start+c.size, len(runes))
		out = append(out, strings.TrimSpace(string(runes[start:end])))
		if end == len(runes) {
			break
		}
	}
	return out
}

// Build numbers pieces as chunks of doc, copying the document metadata and
// title into each chunk.
func Build(doc document.Document, pieces []string) []document.Chunk {
	chunks := make([]document.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		ordinal := len(chunks) + 1
		meta := maps.Clone(doc.Metadata)
		if doc.Title != "" {
			if meta == nil {
				meta = make(map[string]any, 1)
			}
			meta["title"] = doc.Title
		}
		chunks = append(chunks, document.Chunk{
			ID:         document.ChunkID(doc.ID, ordinal),
			DocumentID: doc.ID,
			Content:    piece,
			Ordinal:    ordinal,
			Metadata:   meta,
		})
	}
	return chunks
}
