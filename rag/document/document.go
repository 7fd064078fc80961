// Package document models the knowledge base content that ingestion splits
// and indexes for the retrievers.
package document

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"maps"
)

// Document represents a knowledge source that can be chunked and indexed.
type Document struct {
	ID       string         `json:"id"`
	Title    string         `json:"title,omitempty"`
	Source   string         `json:"source,omitempty"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Chunk represents a slice of a document that is indexed.
type Chunk struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Content    string         `json:"content"`
	Ordinal    int            `json:"ordinal"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Embedded pairs a chunk with its vector. Vector is nil for lexical indexes.
type Embedded struct {
	Chunk  Chunk
	Vector []float32
}

// EnsureID derives a stable identifier from the source (or the content when
// there is no source) so re-ingesting a file replaces its previous chunks.
func EnsureID(doc *Document) {
	if doc == nil || doc.ID != "" {
		return
	}
	key := doc.Source
	if key == "" {
		key = doc.Content
	}
	sum := sha1.Sum([]byte(key))
	doc.ID = "doc_" + hex.EncodeToString(sum[:6])
}

// ChunkID is deterministic in the document ID and ordinal.
func ChunkID(docID string, ordinal int) string {
	return fmt.Sprintf("%s#%04d", docID, ordinal)
}

// Clone returns a deep copy of the chunk.
func (c Chunk) Clone() Chunk {
	out := c
	out.Metadata = maps.Clone(c.Metadata)
	return out
}

// Label names the chunk for prompts and logs: the document title when known,
// the document ID otherwise.
func (c Chunk) Label() string {
	if title, ok := c.Metadata["title"].(string); ok && title != "" {
		return title
	}
	return c.DocumentID
}
