package agentic

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/pkg/metrics"
	"github.com/sweetpotato0/askflow/rag/retriever"
)

func TestRunAnswersThroughEveryStage(t *testing.T) {
	client := newScriptLLM()
	docs := &spyRetriever{passages: samplePassages()}
	web := &spySearcher{results: sampleResults()}
	engine := newTestEngine(t, client, docs, web)

	state, err := engine.Run(context.Background(), "when is vat due?", "user: I run a bakery")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	wantTrace := []NodeID{NodeAnalyze, NodeJudgeAugmentation, NodeJudge, NodeRetrieval, NodeCombine}
	if !reflect.DeepEqual(state.Trace, wantTrace) {
		t.Fatalf("unexpected trace %v", state.Trace)
	}
	if state.RunID == "" {
		t.Fatalf("expected run id")
	}
	if state.AnalyzedQuery != "When is the quarterly VAT filing deadline for a small bakery?" {
		t.Fatalf("unexpected analyzed query %q", state.AnalyzedQuery)
	}
	if state.QualityLow || state.AugmentationQuality.Score != 85 {
		t.Fatalf("unexpected quality %+v low=%v", state.AugmentationQuality, state.QualityLow)
	}
	if state.AgentFlow != AllSources || !state.FlowDecided() {
		t.Fatalf("expected both sources, got %v", state.AgentFlow)
	}
	if !strings.HasPrefix(state.RAGResult, "### Related Documents:") {
		t.Fatalf("unexpected RAG section %q", state.RAGResult)
	}
	if !strings.Contains(state.WebResult, "1. [VAT deadlines 2025](https://example.org/vat)") {
		t.Fatalf("unexpected web section %q", state.WebResult)
	}
	if state.FinalResponse != "### Deadline\nFile by the 25th." {
		t.Fatalf("unexpected final response %q", state.FinalResponse)
	}
	if docs.callsWithTopK(3) != 1 || docs.callsWithTopK(4) != 1 {
		t.Fatalf("expected one context and one answer retrieval, got %+v", docs.calls)
	}
}

func TestRunAsksForDetailsOnBlankQuery(t *testing.T) {
	client := newScriptLLM()
	docs := &spyRetriever{passages: samplePassages()}
	engine := newTestEngine(t, client, docs, nil)

	state, err := engine.Run(context.Background(), "   ", "")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if !state.QualityLow || state.FinalResponse != "" || state.AugmentationQuality.Score != 0 {
		t.Fatalf("expected clarification, got %+v", state)
	}
	want := engine.Persona().FallbackQuestions
	if !reflect.DeepEqual(state.SupplementQuestions, []string{want[0], want[1]}) {
		t.Fatalf("expected fallback questions, got %v", state.SupplementQuestions)
	}
	if client.total() != 0 || len(docs.calls) != 0 {
		t.Fatalf("blank query should not reach any port, llm=%d retriever=%d", client.total(), len(docs.calls))
	}
}

func TestNewEngineRequiresLLM(t *testing.T) {
	if _, err := NewEngine(Ports{}); !errors.Is(err, askerrors.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestNewEngineRejectsBrokenPrompt(t *testing.T) {
	_, err := NewEngine(Ports{LLM: newScriptLLM()}, testOptions(WithPrompts(map[string]string{
		PromptRoute: "Query: {{.Missing}}",
	}))...)
	if err == nil {
		t.Fatalf("expected error for template referencing unknown field")
	}
}

func TestLowQualityShortCircuitsRetrievalAndSynthesis(t *testing.T) {
	client := newScriptLLM().on(markQuality, reply{text: `{"score": 35, "reasoning": "pronoun without referent"}`})
	docs := &spyRetriever{passages: samplePassages()}
	web := &spySearcher{results: sampleResults()}
	engine := newTestEngine(t, client, docs, web)

	state, err := engine.Run(context.Background(), "what about it?", NoPreviousContext)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if !state.QualityLow {
		t.Fatalf("expected low quality")
	}
	if state.FinalResponse != "" {
		t.Fatalf("expected empty response on clarify path, got %q", state.FinalResponse)
	}
	if want := []string{"Which tax year?", "Which region?"}; !reflect.DeepEqual(state.SupplementQuestions, want) {
		t.Fatalf("unexpected questions %v", state.SupplementQuestions)
	}
	if last := state.Trace[len(state.Trace)-1]; last != NodeClarify {
		t.Fatalf("expected clarify to be terminal, trace %v", state.Trace)
	}
	if docs.callsWithTopK(4) != 0 || web.count() != 0 {
		t.Fatalf("answer retrieval ran on clarify path")
	}
	if client.calls(markRoute) != 0 || client.calls(markSynthesis) != 0 {
		t.Fatalf("routing or synthesis ran on clarify path")
	}
	if client.calls(markFact) != 0 {
		t.Fatalf("fact extraction should be skipped without history")
	}
	if state.FlowDecided() {
		t.Fatalf("flow must not be decided on clarify path")
	}
}

func TestRunIsTotalWhenEveryPortFails(t *testing.T) {
	client := newScriptLLM()
	for _, marker := range []string{markFact, markRewrite, markClarify, markQuality, markRoute, markSynthesis, markAssess, markSupplement} {
		client.on(marker, reply{err: errStub})
	}
	docs := &spyRetriever{err: errStub}
	web := &spySearcher{err: errStub}

	t.Run("clarify", func(t *testing.T) {
		engine := newTestEngine(t, client, docs, web)
		state, err := engine.Run(context.Background(), "what is the deadline", "user: hello")
		if err != nil {
			t.Fatalf("Run error: %v", err)
		}
		if state.AnalyzedQuery != "what is the deadline" {
			t.Fatalf("expected analyzed query to fall back to the query, got %q", state.AnalyzedQuery)
		}
		if state.AugmentationQuality.Score != 50 {
			t.Fatalf("expected default quality, got %d", state.AugmentationQuality.Score)
		}
		pair := EnglishPersona().FallbackQuestions
		if !state.QualityLow || !reflect.DeepEqual(state.SupplementQuestions, []string{pair[0], pair[1]}) {
			t.Fatalf("expected fallback questions, got %v", state.SupplementQuestions)
		}
	})

	t.Run("answer", func(t *testing.T) {
		engine := newTestEngine(t, client, docs, web, WithQualityThreshold(40))
		state, err := engine.Run(context.Background(), "what is the deadline", "")
		if err != nil {
			t.Fatalf("Run error: %v", err)
		}
		if state.AgentFlow != AllSources {
			t.Fatalf("routing must fail open, got %v", state.AgentFlow)
		}
		persona := EnglishPersona()
		if state.RAGResult != persona.RAGNoResults {
			t.Fatalf("unexpected RAG section %q", state.RAGResult)
		}
		if state.WebResult != persona.WebSearchHeader+"\n"+persona.WebSearchNoResults {
			t.Fatalf("unexpected web section %q", state.WebResult)
		}
		if state.FinalResponse != persona.ApologyMessage {
			t.Fatalf("expected apology, got %q", state.FinalResponse)
		}
	})
}

func TestSynthesisPromptCarriesRetrievedPassage(t *testing.T) {
	client := newScriptLLM()
	docs := &spyRetriever{passages: []retriever.Passage{{Content: "Rule MARKER-7731 applies to sourdough.", SourceID: "rules"}}}
	web := &spySearcher{results: sampleResults()}
	engine := newTestEngine(t, client, docs, web)

	state, err := engine.Run(context.Background(), "which rule covers sourdough?", "user: earlier question")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if state.FinalResponse == "" {
		t.Fatalf("expected an answer")
	}
	prompt := client.prompt(markSynthesis)
	order := []string{"earlier question", "MARKER-7731", "VAT deadlines 2025", state.AnalyzedQuery, "FORMAT YOUR RESPONSE"}
	last := -1
	for _, want := range order {
		idx := strings.Index(prompt, want)
		if idx < 0 {
			t.Fatalf("synthesis prompt missing %q:\n%s", want, prompt)
		}
		if idx < last {
			t.Fatalf("synthesis prompt section %q out of order", want)
		}
		last = idx
	}
}

func TestRunHonoursCallerCancellation(t *testing.T) {
	client := newScriptLLM().on(markRewrite, reply{text: "slow", delay: time.Second})
	engine := newTestEngine(t, client, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := engine.Run(ctx, "question", "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("cancellation took too long: %v", elapsed)
	}
}

func TestStreamEndsWithRunState(t *testing.T) {
	engine := newTestEngine(t, newScriptLLM(), &spyRetriever{passages: samplePassages()}, &spySearcher{results: sampleResults()})

	var events []Event
	for evt := range engine.Stream(context.Background(), "when is vat due?", "") {
		events = append(events, evt)
	}
	if len(events) != 10 {
		t.Fatalf("expected 10 events, got %d", len(events))
	}
	for i := 0; i < len(events); i += 2 {
		if events[i].Phase != PhaseEntered || events[i].State != nil {
			t.Fatalf("event %d should be an entry without state: %+v", i, events[i])
		}
		if events[i+1].Phase != PhaseExited || events[i+1].Node != events[i].Node || events[i+1].State == nil {
			t.Fatalf("event %d should exit %s with state", i+1, events[i].Node)
		}
	}
	last := events[len(events)-1]
	if !last.Terminal() || last.Node != NodeCombine {
		t.Fatalf("expected terminal combine event, got %+v", last)
	}

	state, err := engine.Run(context.Background(), "when is vat due?", "")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if last.State.FinalResponse != state.FinalResponse || !reflect.DeepEqual(last.State.Trace, state.Trace) {
		t.Fatalf("stream and run disagree: %+v vs %+v", last.State, state)
	}
}

func TestStreamStopsWhenConsumerBreaks(t *testing.T) {
	client := newScriptLLM().on(markSynthesis, reply{chunks: []string{"a", "b"}, delay: time.Second})
	engine := newTestEngine(t, client, nil, nil)

	start := time.Now()
	seen := 0
	for range engine.Stream(context.Background(), "when is vat due?", "") {
		seen++
		break
	}
	if seen != 1 {
		t.Fatalf("expected one event, got %d", seen)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("breaking out of the stream did not cancel the run: %v", elapsed)
	}
}

func TestStreamEndsInClarifyForBlankQuery(t *testing.T) {
	engine := newTestEngine(t, newScriptLLM(), nil, nil)
	var last Event
	for evt := range engine.Stream(context.Background(), "", "") {
		last = evt
	}
	if !last.Terminal() || last.Node != NodeClarify || last.State == nil || len(last.State.SupplementQuestions) != 2 {
		t.Fatalf("unexpected final event %+v", last)
	}
}

type panickingObserver struct{}

func (panickingObserver) NodeEntered(context.Context, NodeID)        { panic("observer bug") }
func (panickingObserver) NodeExited(context.Context, NodeID, *State) { panic("observer bug") }

type recordingObserver struct {
	mu     sync.Mutex
	exited []NodeID
	states []*State
}

func (o *recordingObserver) NodeEntered(context.Context, NodeID) {}

func (o *recordingObserver) NodeExited(_ context.Context, node NodeID, state *State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.exited = append(o.exited, node)
	o.states = append(o.states, state)
}

func TestObserversCannotAffectTheRun(t *testing.T) {
	rec := &recordingObserver{}
	engine := newTestEngine(t, newScriptLLM(), nil, nil,
		WithObserver(panickingObserver{}),
		WithObserver(rec),
	)
	state, err := engine.Run(context.Background(), "when is vat due?", "")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if state.FinalResponse == "" {
		t.Fatalf("expected an answer despite the panicking observer")
	}
	if len(rec.exited) != 5 {
		t.Fatalf("expected 5 exit notifications, got %v", rec.exited)
	}
	// Snapshots are independent of the live state.
	rec.states[0].Trace[0] = "tampered"
	if state.Trace[0] != NodeAnalyze {
		t.Fatalf("observer snapshot aliases run state")
	}
}

func TestEngineRecordsMetrics(t *testing.T) {
	m := metrics.New(nil)
	client := newScriptLLM().on(markRoute, reply{err: errStub})
	engine := newTestEngine(t, client, nil, nil, WithMetrics(m))

	if _, err := engine.Run(context.Background(), "when is vat due?", ""); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if got := testutil.ToFloat64(m.Fallbacks.WithLabelValues("routing", "error")); got != 1 {
		t.Fatalf("expected one routing fallback, got %v", got)
	}
	if got := testutil.ToFloat64(m.Routes.WithLabelValues("RAG+WebSearch")); got != 1 {
		t.Fatalf("expected fail-open route to be counted, got %v", got)
	}
	if got := testutil.ToFloat64(m.Runs.WithLabelValues("combine")); got != 1 {
		t.Fatalf("expected one completed run, got %v", got)
	}
}

func TestTransitionFollowsQualityFlag(t *testing.T) {
	engine := newTestEngine(t, newScriptLLM(), nil, nil)
	ctx := context.Background()

	next, ok, err := engine.Transition(ctx, NodeJudgeAugmentation, &State{QualityLow: true})
	if err != nil || !ok || next != NodeClarify {
		t.Fatalf("expected clarify, got %s %v %v", next, ok, err)
	}
	next, _, _ = engine.Transition(ctx, NodeJudgeAugmentation, &State{})
	if next != NodeJudge {
		t.Fatalf("expected judge, got %s", next)
	}
	if _, ok, _ := engine.Transition(ctx, NodeCombine, &State{}); ok {
		t.Fatalf("combine must be terminal")
	}
}
