// Package pg stores knowledge chunks in PostgreSQL with the pgvector
// extension and serves them as a retriever.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	_ "github.com/lib/pq"

	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/rag/document"
	"github.com/sweetpotato0/askflow/rag/retriever"
	"github.com/sweetpotato0/askflow/vector"
)

// Config holds pgvector configuration
type Config struct {
	DSN       string
	Dimension int    // Embedding dimension (default: 1536 for OpenAI)
	TableName string // Table name (default: askflow_chunks)
}

// DefaultConfig returns default pgvector configuration
func DefaultConfig() *Config {
	return &Config{
		DSN:       "host=127.0.0.1 port=5432 user=postgres dbname=askflow sslmode=disable",
		Dimension: 1536,
		TableName: "askflow_chunks",
	}
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var _ retriever.Retriever = (*Store)(nil)

// Store is a pgvector-backed chunk index.
type Store struct {
	db        *sql.DB
	embedder  vector.Embedder
	dimension int
	tableName string
}

// New opens the database, enables pgvector and creates the chunk table.
func New(ctx context.Context, config *Config, embedder vector.Embedder) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if embedder == nil {
		return nil, fmt.Errorf("pgvector retriever requires an embedder: %w", askerrors.ErrNotConfigured)
	}
	if !tableNamePattern.MatchString(config.TableName) {
		return nil, fmt.Errorf("table name %q: %w", config.TableName, askerrors.ErrInvalidInput)
	}
	if config.Dimension != embedder.Dimension() {
		return nil, fmt.Errorf("dimension %d does not match embedder dimension %d: %w",
			config.Dimension, embedder.Dimension(), askerrors.ErrInvalidInput)
	}

	db, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &Store{db: db, embedder: embedder, dimension: config.Dimension, tableName: config.TableName}
	if err := store.setup(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup pgvector: %w", err)
	}
	return store, nil
}

func (s *Store) setup(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTableSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(255) PRIMARY KEY,
		document_id VARCHAR(255) NOT NULL,
		content TEXT NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}',
		embedding vector(%d) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`, s.tableName, s.dimension)
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	indexSQL := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`,
		s.tableName, s.tableName)
	if _, err := s.db.ExecContext(ctx, indexSQL); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// Index upserts chunks in a single transaction.
func (s *Store) Index(ctx context.Context, items []document.Embedded) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`
	INSERT INTO %s (id, document_id, content, metadata, embedding)
	VALUES ($1, $2, $3, $4, $5::vector)
	ON CONFLICT (id) DO UPDATE SET
		document_id = EXCLUDED.document_id,
		content = EXCLUDED.content,
		metadata = EXCLUDED.metadata,
		embedding = EXCLUDED.embedding,
		created_at = CURRENT_TIMESTAMP
	`, s.tableName)

	for _, item := range items {
		if item.Chunk.ID == "" {
			return fmt.Errorf("chunk id cannot be empty: %w", askerrors.ErrInvalidInput)
		}
		if len(item.Vector) != s.dimension {
			return fmt.Errorf("chunk %s: embedding dimension mismatch: expected %d, got %d: %w",
				item.Chunk.ID, s.dimension, len(item.Vector), askerrors.ErrInvalidInput)
		}
		meta, err := json.Marshal(metadataOrEmpty(item.Chunk.Metadata))
		if err != nil {
			return fmt.Errorf("chunk %s metadata: %w", item.Chunk.ID, err)
		}
		if _, err := tx.ExecContext(ctx, query,
			item.Chunk.ID, item.Chunk.DocumentID, item.Chunk.Content, meta, vectorToString(item.Vector)); err != nil {
			return fmt.Errorf("failed to upsert chunk %s: %w", item.Chunk.ID, err)
		}
	}
	return tx.Commit()
}

// Retrieve embeds query and returns the nearest chunks by cosine distance.
func (s *Store) Retrieve(ctx context.Context, query string, topK int) ([]retriever.Passage, error) {
	if topK <= 0 {
		return nil, nil
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	sqlQuery := fmt.Sprintf(`
	SELECT id, content, 1 - (embedding <=> $1::vector) AS similarity
	FROM %s
	ORDER BY embedding <=> $1::vector
	LIMIT $2
	`, s.tableName)

	rows, err := s.db.QueryContext(ctx, sqlQuery, vectorToString(vec), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	passages := make([]retriever.Passage, 0, topK)
	for rows.Next() {
		var (
			id, content string
			similarity  float64
		)
		if err := rows.Scan(&id, &content, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		passages = append(passages, retriever.Passage{Content: content, SourceID: id, Score: retriever.ScoreOf(similarity)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunks: %w", err)
	}
	return passages, nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.tableName)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func metadataOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func vectorToString(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
