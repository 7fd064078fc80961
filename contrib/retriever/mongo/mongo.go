// Package mongo serves knowledge chunks from a MongoDB collection using the
// server's text index. It needs no embedding service.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/rag/document"
	"github.com/sweetpotato0/askflow/rag/retriever"
)

// Config holds MongoDB connection configuration
type Config struct {
	URI        string
	Database   string
	Collection string
	// Language is the text index default_language; "none" disables stemming.
	Language string
}

// DefaultConfig returns default MongoDB configuration
func DefaultConfig() *Config {
	return &Config{
		URI:        "mongodb://localhost:27017",
		Database:   "askflow",
		Collection: "chunks",
		Language:   "none",
	}
}

type chunkDoc struct {
	ID         string         `bson:"_id"`
	DocumentID string         `bson:"document_id"`
	Content    string         `bson:"content"`
	Metadata   map[string]any `bson:"metadata,omitempty"`
	UpdatedAt  time.Time      `bson:"updated_at"`
	Score      float64        `bson:"score,omitempty"`
}

var _ retriever.Retriever = (*Store)(nil)

// Store is a text-search chunk index.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// New connects, pings and ensures the text index.
func New(ctx context.Context, config *Config) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := &Store{client: client, collection: client.Database(config.Database).Collection(config.Collection)}
	lang := config.Language
	if lang == "" {
		lang = "none"
	}
	if _, err := store.collection.Indexes().CreateOne(cctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "content", Value: "text"}},
		Options: options.Index().SetDefaultLanguage(lang),
	}); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return store, nil
}

// Index upserts chunks with a single bulk write. Vectors are ignored.
func (s *Store) Index(ctx context.Context, items []document.Embedded) error {
	models, err := upserts(items, time.Now().UTC())
	if err != nil {
		return err
	}
	if len(models) == 0 {
		return nil
	}
	if _, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("failed to index chunks: %w", err)
	}
	return nil
}

// Retrieve runs a $text query ordered by textScore.
func (s *Store) Retrieve(ctx context.Context, query string, topK int) ([]retriever.Passage, error) {
	if topK <= 0 {
		return nil, nil
	}
	filter := bson.M{"$text": bson.M{"$search": query}}
	opts := options.Find().
		SetProjection(bson.M{"score": bson.M{"$meta": "textScore"}, "content": 1}).
		SetSort(bson.D{{Key: "score", Value: bson.M{"$meta": "textScore"}}}).
		SetLimit(int64(topK))

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []chunkDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode chunks: %w", err)
	}
	return toPassages(docs), nil
}

// Close closes the MongoDB connection
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func upserts(items []document.Embedded, now time.Time) ([]mongo.WriteModel, error) {
	models := make([]mongo.WriteModel, 0, len(items))
	for _, item := range items {
		if item.Chunk.ID == "" {
			return nil, fmt.Errorf("chunk id cannot be empty: %w", askerrors.ErrInvalidInput)
		}
		doc := chunkDoc{
			ID:         item.Chunk.ID,
			DocumentID: item.Chunk.DocumentID,
			Content:    item.Chunk.Content,
			Metadata:   item.Chunk.Metadata,
			UpdatedAt:  now,
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.ID}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	return models, nil
}

func toPassages(docs []chunkDoc) []retriever.Passage {
	passages := make([]retriever.Passage, 0, len(docs))
	for _, d := range docs {
		passages = append(passages, retriever.Passage{Content: d.Content, SourceID: d.ID, Score: retriever.ScoreOf(d.Score)})
	}
	return passages
}
