// Package llm defines the language model port used by the orchestration engine
// together with helpers that bound every call by a deadline.
package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/sweetpotato0/askflow/message"
)

// Request bundles the messages submitted to a language model.
type Request struct {
	Messages []*message.Message
}

// Prompt builds a single-turn request from a bare user prompt.
func Prompt(text string) *Request {
	return &Request{Messages: []*message.Message{message.User(text)}}
}

// Chat builds a system + user request.
func Chat(system, user string) *Request {
	msgs := make([]*message.Message, 0, 2)
	if strings.TrimSpace(system) != "" {
		msgs = append(msgs, message.System(system))
	}
	msgs = append(msgs, message.User(user))
	return &Request{Messages: msgs}
}

// Client is implemented by every language model provider.
//
// Stream yields incremental text fragments; concatenating them yields the same
// text Complete would have returned. Implementations must honour ctx and be safe
// for concurrent use.
type Client interface {
	Complete(ctx context.Context, req *Request) (string, error)
	Stream(ctx context.Context, req *Request) iter.Seq2[string, error]
}

// ChunkFunc observes stream progress: n is the number of fragments received so
// far and text the accumulated output.
type ChunkFunc func(n int, text string)

// CompleteWithin runs Complete bounded by timeout. When the deadline expires the
// returned error wraps context.DeadlineExceeded even if the provider ignores ctx.
func CompleteWithin(ctx context.Context, client Client, req *Request, timeout time.Duration) (string, error) {
	if client == nil {
		return "", fmt.Errorf("llm client is not configured")
	}
	tctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := client.Complete(tctx, req)
		done <- result{text: text, err: err}
	}()

	select {
	case res := <-done:
		return res.text, res.err
	case <-tctx.Done():
		select {
		case res := <-done:
			return res.text, res.err
		default:
		}
		return "", fmt.Errorf("llm completion: %w", tctx.Err())
	}
}

// StreamWithin drains Stream bounded by timeout and returns the accumulated
// text. On expiry or a stream error the partial text produced so far is returned
// alongside the error so callers can decide whether it is usable.
func StreamWithin(ctx context.Context, client Client, req *Request, timeout time.Duration, onChunk ChunkFunc) (string, error) {
	if client == nil {
		return "", fmt.Errorf("llm client is not configured")
	}
	tctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	var (
		mu  sync.Mutex
		buf strings.Builder
	)
	snapshot := func() string {
		mu.Lock()
		defer mu.Unlock()
		return buf.String()
	}

	done := make(chan error, 1)
	go func() {
		count := 0
		for chunk, err := range client.Stream(tctx, req) {
			if err != nil {
				done <- err
				return
			}
			mu.Lock()
			buf.WriteString(chunk)
			text := buf.String()
			mu.Unlock()
			count++
			if onChunk != nil {
				onChunk(count, text)
			}
			if err := tctx.Err(); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			return snapshot(), fmt.Errorf("llm stream: %w", err)
		}
		return snapshot(), nil
	case <-tctx.Done():
		select {
		case err := <-done:
			if err == nil {
				return snapshot(), nil
			}
		default:
		}
		return snapshot(), fmt.Errorf("llm stream: %w", tctx.Err())
	}
}

// Collect drains a stream without a deadline of its own.
func Collect(seq iter.Seq2[string, error]) (string, error) {
	var b strings.Builder
	for chunk, err := range seq {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(chunk)
	}
	return b.String(), nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
