// Package resilience guards the retrieval ports with circuit breakers so a
// failing backend is skipped quickly instead of timing out on every question.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/pkg/logging"
	"github.com/sweetpotato0/askflow/rag/retriever"
	"github.com/sweetpotato0/askflow/rag/websearch"
)

// Config configures a circuit breaker.
type Config struct {
	// Name identifies the breaker in logs.
	Name string

	// FailureThreshold failures within the last Window calls open the circuit.
	FailureThreshold uint
	Window           uint

	// Delay is how long the circuit stays open before a half-open probe.
	Delay time.Duration

	// SuccessThreshold half-open successes close the circuit again.
	SuccessThreshold uint

	Logger *slog.Logger
}

// DefaultConfig opens after 5 failures in 10 calls and probes after 30s.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		Window:           10,
		Delay:            30 * time.Second,
		SuccessThreshold: 1,
	}
}

func normalize(cfg Config) Config {
	if cfg.Name == "" {
		cfg.Name = "circuit-breaker"
	}
	if cfg.Window == 0 {
		cfg.Window = 10
	}
	if cfg.FailureThreshold == 0 || cfg.FailureThreshold > cfg.Window {
		cfg.FailureThreshold = max(cfg.Window/2, 1)
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 30 * time.Second
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.WithComponent("resilience")
	}
	return cfg
}

// Breaker runs calls returning T through a failsafe-go circuit breaker.
// Cancellation by the caller is not counted as a backend failure.
type Breaker[T any] struct {
	name string
	cb   circuitbreaker.CircuitBreaker[T]
}

// NewBreaker builds a breaker from cfg.
func NewBreaker[T any](cfg Config) *Breaker[T] {
	cfg = normalize(cfg)
	logger := cfg.Logger.With("circuit_breaker", cfg.Name)
	cb := circuitbreaker.NewBuilder[T]().
		WithFailureThresholdRatio(cfg.FailureThreshold, cfg.Window).
		WithDelay(cfg.Delay).
		WithSuccessThreshold(cfg.SuccessThreshold).
		HandleIf(func(_ T, err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			logger.Warn("circuit breaker state change",
				"from_state", stateName(event.OldState), "to_state", stateName(event.NewState))
		}).
		Build()
	return &Breaker[T]{name: cfg.Name, cb: cb}
}

// Execute runs fn unless the circuit is open, in which case the returned
// error wraps errors.ErrUnavailable.
func (b *Breaker[T]) Execute(ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	out, err := failsafe.With[T](b.cb).WithContext(ctx).Get(func() (T, error) {
		return fn(ctx)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return out, fmt.Errorf("%s: %w: %w", b.name, askerrors.ErrUnavailable, err)
	}
	return out, err
}

// IsOpen reports whether calls are currently rejected.
func (b *Breaker[T]) IsOpen() bool {
	return b.cb.IsOpen()
}

// Retriever decorates r with a circuit breaker.
func Retriever(r retriever.Retriever, cfg Config) retriever.Retriever {
	b := NewBreaker[[]retriever.Passage](cfg)
	return retriever.Func(func(ctx context.Context, query string, topK int) ([]retriever.Passage, error) {
		return b.Execute(ctx, func(ctx context.Context) ([]retriever.Passage, error) {
			return r.Retrieve(ctx, query, topK)
		})
	})
}

// Searcher decorates s with a circuit breaker.
func Searcher(s websearch.Searcher, cfg Config) websearch.Searcher {
	b := NewBreaker[[]websearch.Result](cfg)
	return websearch.Func(func(ctx context.Context, query string, topK int) ([]websearch.Result, error) {
		return b.Execute(ctx, func(ctx context.Context) ([]websearch.Result, error) {
			return s.Search(ctx, query, topK)
		})
	})
}

func stateName(state circuitbreaker.State) string {
	switch state {
	case circuitbreaker.ClosedState:
		return "closed"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	case circuitbreaker.OpenState:
		return "open"
	default:
		return "unknown"
	}
}
