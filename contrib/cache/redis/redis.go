// Package redis implements the llm response cache store on Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sweetpotato0/askflow/llm/cache"
)

var _ cache.Store = (*Store)(nil)

// Store keeps completions as plain string keys with a TTL.
type Store struct {
	client *redis.Client
	prefix string
}

// New wraps client; prefix is prepended to every key.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "askflow:llm:"
	}
	return &Store{client: client, prefix: prefix}
}

// Get implements cache.Store.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	text, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read cached completion: %w", err)
	}
	return text, true, nil
}

// Set implements cache.Store.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache completion: %w", err)
	}
	return nil
}
