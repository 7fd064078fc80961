// Package redis stores conversation history in Redis lists.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/history"
	"github.com/sweetpotato0/askflow/message"
)

// Config holds Redis configuration for history.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration // idle sessions expire; 0 keeps them forever
}

// DefaultConfig returns a local Redis configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:   "localhost:6379",
		Prefix: "askflow:history:",
		TTL:    7 * 24 * time.Hour,
	}
}

var _ history.Store = (*Store)(nil)

// Store keeps one list per session, newest turn at the tail.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New creates a Store with its own client.
func New(config *Config) *Store {
	if config == nil {
		config = DefaultConfig()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return NewWithClient(client, config.Prefix, config.TTL)
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "askflow:history:"
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

type entry struct {
	Role    message.Role `json:"role"`
	Content string       `json:"content"`
	At      time.Time    `json:"at"`
}

// Append implements history.Store.
func (s *Store) Append(ctx context.Context, sessionID string, msgs ...*message.Message) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required: %w", askerrors.ErrInvalidInput)
	}
	values := make([]any, 0, len(msgs))
	now := time.Now().UTC()
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		raw, err := json.Marshal(entry{Role: msg.Role, Content: msg.Content, At: now})
		if err != nil {
			return fmt.Errorf("failed to marshal history entry: %w", err)
		}
		values = append(values, raw)
	}
	if len(values) == 0 {
		return nil
	}

	key := s.key(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// Messages implements history.Store.
func (s *Store) Messages(ctx context.Context, sessionID string, limit int) ([]*message.Message, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raws, err := s.client.LRange(ctx, s.key(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	msgs := make([]*message.Message, 0, len(raws))
	for _, raw := range raws {
		var e entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("failed to decode history entry: %w", err)
		}
		msgs = append(msgs, message.NewMessage(e.Role, e.Content))
	}
	return msgs, nil
}

// Clear implements history.Store.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(sessionID string) string {
	return s.prefix + sessionID
}
