// Package cache provides a response cache decorator for llm.Client.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"iter"
	"log/slog"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sweetpotato0/askflow/llm"
	"github.com/sweetpotato0/askflow/pkg/logging"
	"github.com/sweetpotato0/askflow/pkg/metrics"
)

// Store persists cached completions.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Option customises the caching client.
type Option func(*Client)

// WithTTL sets how long entries live.
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithNamespace prefixes every key, letting several models share one store.
func WithNamespace(ns string) Option {
	return func(c *Client) {
		c.namespace = strings.TrimSpace(ns)
	}
}

// WithMetrics counts hits and misses.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client wraps another llm.Client and serves identical requests from Store.
// Store failures degrade to a cache miss.
type Client struct {
	next      llm.Client
	store     Store
	ttl       time.Duration
	namespace string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

var _ llm.Client = (*Client)(nil)

// New decorates next with store.
func New(next llm.Client, store Store, opts ...Option) *Client {
	c := &Client{
		next:   next,
		store:  store,
		ttl:    time.Hour,
		logger: logging.WithComponent("llm_cache"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req *llm.Request) (string, error) {
	key := c.key(req)
	if text, ok := c.lookup(ctx, key); ok {
		return text, nil
	}
	text, err := c.next.Complete(ctx, req)
	if err != nil {
		return text, err
	}
	c.save(ctx, key, text)
	return text, nil
}

// Stream implements llm.Client. A hit is replayed as a single fragment; a miss
// is passed through and stored only when the stream finished cleanly.
func (c *Client) Stream(ctx context.Context, req *llm.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		key := c.key(req)
		if text, ok := c.lookup(ctx, key); ok {
			yield(text, nil)
			return
		}
		var b strings.Builder
		for chunk, err := range c.next.Stream(ctx, req) {
			if err != nil {
				yield("", err)
				return
			}
			b.WriteString(chunk)
			if !yield(chunk, nil) {
				return
			}
		}
		c.save(ctx, key, b.String())
	}
}

func (c *Client) lookup(ctx context.Context, key string) (string, bool) {
	if c.store == nil {
		return "", false
	}
	text, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache lookup failed", "error", err)
		return "", false
	}
	if ok {
		c.logger.Debug("cache hit", "key", key)
	}
	c.metrics.CacheLookup(ok)
	return text, ok
}

func (c *Client) save(ctx context.Context, key, text string) {
	if c.store == nil || strings.TrimSpace(text) == "" {
		return
	}
	if err := c.store.Set(ctx, key, text, c.ttl); err != nil {
		c.logger.Warn("cache store failed", "error", err)
	}
}

func (c *Client) key(req *llm.Request) string {
	return Key(c.namespace, req)
}

// Key derives a stable cache key from the request messages.
func Key(namespace string, req *llm.Request) string {
	h := sha256.New()
	if req != nil {
		for _, msg := range req.Messages {
			if msg == nil {
				continue
			}
			h.Write([]byte(msg.Role))
			h.Write([]byte{0})
			h.Write([]byte(msg.Content))
			h.Write([]byte{0})
		}
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if namespace == "" {
		return sum
	}
	return namespace + ":" + sum
}

// MemoryStore is an in-process Store backed by go-cache.
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore creates a store whose expired entries are swept every cleanup interval.
func NewMemoryStore(cleanup time.Duration) *MemoryStore {
	if cleanup <= 0 {
		cleanup = 10 * time.Minute
	}
	return &MemoryStore{cache: gocache.New(time.Hour, cleanup)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	raw, ok := s.cache.Get(key)
	if !ok {
		return "", false, nil
	}
	text, ok := raw.(string)
	return text, ok, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.cache.Set(key, value, ttl)
	return nil
}

// Len reports the number of cached entries, expired ones included until swept.
func (s *MemoryStore) Len() int {
	return s.cache.ItemCount()
}
