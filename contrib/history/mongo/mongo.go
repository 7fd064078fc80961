// Package mongo stores conversation history in a MongoDB collection, one
// document per turn.
package mongo

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/history"
	"github.com/sweetpotato0/askflow/message"
)

// Config holds MongoDB connection configuration
type Config struct {
	URI        string
	Database   string
	Collection string
}

// DefaultConfig returns default MongoDB configuration
func DefaultConfig() *Config {
	return &Config{
		URI:        "mongodb://localhost:27017",
		Database:   "chat_history",
		Collection: "askflow",
	}
}

// turn is the stored document. Ordering relies on the monotonic ObjectID.
type turn struct {
	SessionID string       `bson:"session_id"`
	Role      message.Role `bson:"role"`
	Content   string       `bson:"content"`
	CreatedAt time.Time    `bson:"created_at"`
}

var _ history.Store = (*Store)(nil)

// Store implements history.Store on MongoDB.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// New connects, pings and ensures the session index.
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

	store := &Store{
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
	}
	if _, err := store.collection.Indexes().CreateOne(cctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "_id", Value: -1}},
	}); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return store, nil
}

// Append implements history.Store.
func (s *Store) Append(ctx context.Context, sessionID string, msgs ...*message.Message) error {
	docs := toDocuments(sessionID, time.Now().UTC(), msgs)
	if sessionID == "" {
		return fmt.Errorf("session id is required: %w", askerrors.ErrInvalidInput)
	}
	if len(docs) == 0 {
		return nil
	}
	if _, err := s.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// Messages implements history.Store.
func (s *Store) Messages(ctx context.Context, sessionID string, limit int) ([]*message.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.collection.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer cursor.Close(ctx)

	var turns []turn
	if err := cursor.All(ctx, &turns); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return toMessages(turns), nil
}

// Clear implements history.Store.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.collection.DeleteMany(ctx, bson.M{"session_id": sessionID}); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func toDocuments(sessionID string, at time.Time, msgs []*message.Message) []any {
	docs := make([]any, 0, len(msgs))
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		docs = append(docs, turn{SessionID: sessionID, Role: msg.Role, Content: msg.Content, CreatedAt: at})
	}
	return docs
}

// toMessages converts newest-first documents to oldest-first messages.
func toMessages(turns []turn) []*message.Message {
	msgs := make([]*message.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, message.NewMessage(t.Role, t.Content))
	}
	slices.Reverse(msgs)
	return msgs
}
