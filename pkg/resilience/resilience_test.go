package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/pkg/logging"
	"github.com/sweetpotato0/askflow/rag/retriever"
	"github.com/sweetpotato0/askflow/rag/websearch"
)

func testConfig() Config {
	return Config{
		Name:             "test",
		FailureThreshold: 2,
		Window:           2,
		Delay:            50 * time.Millisecond,
		Logger:           logging.Discard(),
	}
}

func TestRetrieverOpensAfterFailures(t *testing.T) {
	calls := 0
	failing := retriever.Func(func(context.Context, string, int) ([]retriever.Passage, error) {
		calls++
		return nil, errors.New("connection refused")
	})
	r := Retriever(failing, testConfig())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := r.Retrieve(ctx, "q", 1); err == nil || errors.Is(err, askerrors.ErrUnavailable) {
			t.Fatalf("call %d: expected backend error, got %v", i, err)
		}
	}
	_, err := r.Retrieve(ctx, "q", 1)
	if !errors.Is(err, askerrors.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable once open, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("open circuit should not reach backend, calls=%d", calls)
	}
}

func TestBreakerRecoversAfterDelay(t *testing.T) {
	healthy := false
	s := Searcher(websearch.Func(func(context.Context, string, int) ([]websearch.Result, error) {
		if healthy {
			return []websearch.Result{{Title: "ok"}}, nil
		}
		return nil, errors.New("503")
	}), testConfig())
	ctx := context.Background()

	_, _ = s.Search(ctx, "q", 1)
	_, _ = s.Search(ctx, "q", 1)
	if _, err := s.Search(ctx, "q", 1); !errors.Is(err, askerrors.ErrUnavailable) {
		t.Fatalf("expected open circuit, got %v", err)
	}

	healthy = true
	time.Sleep(80 * time.Millisecond)
	got, err := s.Search(ctx, "q", 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("expected half-open probe to succeed, got %v %v", got, err)
	}
}

func TestCancellationDoesNotTrip(t *testing.T) {
	b := NewBreaker[int](testConfig())
	for i := 0; i < 3; i++ {
		_, _ = b.Execute(context.Background(), func(context.Context) (int, error) {
			return 0, context.Canceled
		})
	}
	if b.IsOpen() {
		t.Fatalf("cancellation should not open the circuit")
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := normalize(Config{Window: 4, FailureThreshold: 9})
	if cfg.Name == "" || cfg.FailureThreshold != 2 || cfg.SuccessThreshold != 1 || cfg.Delay <= 0 || cfg.Logger == nil {
		t.Fatalf("unexpected normalized config %+v", cfg)
	}
}
