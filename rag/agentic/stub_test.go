package agentic

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/sweetpotato0/askflow/llm"
	"github.com/sweetpotato0/askflow/message"
	"github.com/sweetpotato0/askflow/pkg/logging"
	"github.com/sweetpotato0/askflow/rag/retriever"
	"github.com/sweetpotato0/askflow/rag/websearch"
)

// Substrings identifying each default prompt.
const (
	markFact       = "Extract the context needed"
	markRewrite    = "search-friendly query"
	markClarify    = "clarify or rephrase"
	markQuality    = "Evaluate the following query augmentation"
	markRoute      = "Sources needed?"
	markSynthesis  = "User's Current Question"
	markAssess     = "Rate confidence 0-100"
	markSupplement = "follow-up questions in"
)

var errStub = errors.New("stub failure")

type reply struct {
	text   string
	chunks []string
	err    error
	delay  time.Duration // before the reply, or between chunks when streaming
}

// scriptLLM answers each prompt with the reply registered for the first
// marker it contains and records every prompt it sees.
type scriptLLM struct {
	mu      sync.Mutex
	replies map[string]reply
	order   []string
	prompts []string
}

func newScriptLLM() *scriptLLM {
	s := &scriptLLM{replies: make(map[string]reply)}
	s.on(markFact, reply{text: "- the user runs a small bakery"})
	s.on(markRewrite, reply{text: "VAT filing deadline for a small bakery"})
	s.on(markClarify, reply{text: "When is the quarterly VAT filing deadline for a small bakery?"})
	s.on(markQuality, reply{text: `{"score": 85, "reasoning": "clear intent"}`})
	s.on(markRoute, reply{text: `["RAG", "WebSearch"]`})
	s.on(markSynthesis, reply{chunks: []string{"### Deadline\n", "File by the ", "25th."}})
	s.on(markAssess, reply{text: `{"score": 90, "reason": "grounded in sources"}`})
	s.on(markSupplement, reply{text: `["Which tax year?", "Which region?", "Anything else?"]`})
	return s
}

func (s *scriptLLM) on(marker string, r reply) *scriptLLM {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.replies[marker]; !ok {
		s.order = append(s.order, marker)
	}
	s.replies[marker] = r
	return s
}

func (s *scriptLLM) lookup(req *llm.Request) reply {
	var prompt string
	for _, msg := range req.Messages {
		if msg.Role == message.RoleUser {
			prompt = msg.Content
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	for _, marker := range s.order {
		if strings.Contains(prompt, marker) {
			return s.replies[marker]
		}
	}
	return reply{err: errors.New("unscripted prompt")}
}

// calls counts recorded prompts containing marker.
func (s *scriptLLM) calls(marker string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.prompts {
		if strings.Contains(p, marker) {
			n++
		}
	}
	return n
}

func (s *scriptLLM) prompt(marker string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.prompts {
		if strings.Contains(p, marker) {
			return p
		}
	}
	return ""
}

func (s *scriptLLM) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func (s *scriptLLM) Complete(ctx context.Context, req *llm.Request) (string, error) {
	r := s.lookup(req)
	if err := sleep(ctx, r.delay); err != nil {
		return "", err
	}
	if r.err != nil {
		return "", r.err
	}
	if r.text == "" {
		return strings.Join(r.chunks, ""), nil
	}
	return r.text, nil
}

func (s *scriptLLM) Stream(ctx context.Context, req *llm.Request) iter.Seq2[string, error] {
	r := s.lookup(req)
	return func(yield func(string, error) bool) {
		chunks := r.chunks
		if len(chunks) == 0 && r.text != "" {
			chunks = []string{r.text}
		}
		for _, chunk := range chunks {
			if err := sleep(ctx, r.delay); err != nil {
				yield("", err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
		if r.err != nil {
			if err := sleep(ctx, r.delay); err != nil {
				yield("", err)
				return
			}
			yield("", r.err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type retrieveCall struct {
	query string
	topK  int
}

// spyRetriever records calls and serves fixed passages.
type spyRetriever struct {
	mu       sync.Mutex
	calls    []retrieveCall
	passages []retriever.Passage
	err      error
	delay    time.Duration
}

func (r *spyRetriever) Retrieve(ctx context.Context, query string, topK int) ([]retriever.Passage, error) {
	r.mu.Lock()
	r.calls = append(r.calls, retrieveCall{query: query, topK: topK})
	r.mu.Unlock()
	if err := sleep(ctx, r.delay); err != nil {
		return nil, err
	}
	if r.err != nil {
		return nil, r.err
	}
	if len(r.passages) > topK {
		return r.passages[:topK], nil
	}
	return r.passages, nil
}

func (r *spyRetriever) callsWithTopK(k int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.topK == k {
			n++
		}
	}
	return n
}

type spySearcher struct {
	mu      sync.Mutex
	calls   int
	results []websearch.Result
	err     error
	delay   time.Duration
}

func (s *spySearcher) Search(ctx context.Context, query string, topK int) ([]websearch.Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if err := sleep(ctx, s.delay); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func (s *spySearcher) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func samplePassages() []retriever.Passage {
	return []retriever.Passage{
		{Content: "VAT returns are due on the 25th day after the quarter ends.", SourceID: "vat-guide", Score: retriever.ScoreOf(0.91)},
		{Content: "Small businesses may opt into annual filing.", SourceID: "vat-annual", Score: retriever.ScoreOf(0.72)},
	}
}

func sampleResults() []websearch.Result {
	return []websearch.Result{
		{Title: "VAT deadlines 2025", URL: "https://example.org/vat", Snippet: "Quarterly VAT returns are due on the 25th."},
	}
}

func testOptions(extra ...Option) []Option {
	return append([]Option{WithLogger(logging.Discard())}, extra...)
}

func newTestEngine(t interface{ Fatalf(string, ...any) }, client llm.Client, r retriever.Retriever, s websearch.Searcher, opts ...Option) *Engine {
	e, err := NewEngine(Ports{LLM: client, Retriever: r, Search: s}, testOptions(opts...)...)
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}
	return e
}
