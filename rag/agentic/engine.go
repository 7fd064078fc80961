package agentic

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sweetpotato0/askflow/graph"
	"github.com/sweetpotato0/askflow/llm"
	"github.com/sweetpotato0/askflow/pkg/telemetry"
	"github.com/sweetpotato0/askflow/rag/retriever"
	"github.com/sweetpotato0/askflow/rag/websearch"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Ports groups the external collaborators of the engine. Retriever and
// Search may be nil; a selected source without a port renders as empty.
type Ports struct {
	LLM       llm.Client
	Retriever retriever.Retriever
	Search    websearch.Searcher
}

// Observer is notified at node boundaries. NodeExited receives a snapshot
// the observer may keep. Observers cannot influence the run and a panicking
// observer is logged and ignored.
type Observer interface {
	NodeEntered(ctx context.Context, node NodeID)
	NodeExited(ctx context.Context, node NodeID, state *State)
}

// Engine runs the query workflow:
//
//	analyze -> judge_augmentation -> clarify
//	                              -> judge -> retrieval -> combine
//
// An Engine holds no per-run state and is safe for concurrent use.
type Engine struct {
	cfg       *Config
	augmenter *augmenter
	router    *router
	fanout    *fanout
	writer    *synthesizer
	assessor  *Assessor
	graph     *graph.Graph[*State]
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewEngine wires the workflow over the given ports.
func NewEngine(ports Ports, opts ...Option) (*Engine, error) {
	if ports.LLM == nil {
		return nil, errNoClient("engine")
	}
	cfg := applyOptions(nil, opts)
	p, err := newPrompts(cfg)
	if err != nil {
		return nil, fmt.Errorf("engine prompts: %w", err)
	}

	e := &Engine{
		cfg:       cfg,
		augmenter: newAugmenter(ports.LLM, ports.Retriever, p, cfg),
		router:    newRouter(ports.LLM, p, cfg),
		fanout:    newFanout(ports.Retriever, ports.Search, cfg),
		writer:    newSynthesizer(ports.LLM, p, cfg),
		assessor:  newAssessor(ports.LLM, p, cfg),
		tracer:    cfg.tracer,
		logger:    cfg.componentLogger("workflow_engine"),
	}
	if e.tracer == nil {
		e.tracer = telemetry.Tracer()
	}

	g, err := graph.NewBuilder[*State]().
		AddNode(NodeAnalyze, graph.NodeTypeLLM, e.traced(NodeAnalyze, e.analyzeNode)).
		AddNode(NodeJudgeAugmentation, graph.NodeTypeCondition, e.traced(NodeJudgeAugmentation, e.judgeAugmentationNode)).
		AddNode(NodeClarify, graph.NodeTypeCustom, e.traced(NodeClarify, e.clarifyNode)).
		AddNode(NodeJudge, graph.NodeTypeLLM, e.traced(NodeJudge, e.judgeNode)).
		AddNode(NodeRetrieval, graph.NodeTypeTool, e.traced(NodeRetrieval, e.retrievalNode)).
		AddNode(NodeCombine, graph.NodeTypeLLM, e.traced(NodeCombine, e.combineNode)).
		AddEdge(NodeAnalyze, NodeJudgeAugmentation).
		AddConditionalEdges(NodeJudgeAugmentation, e.decideClarify, NodeClarify, NodeJudge).
		AddEdge(NodeJudge, NodeRetrieval).
		AddEdge(NodeRetrieval, NodeCombine).
		SetStart(NodeAnalyze).
		SetTerminal(NodeClarify, NodeCombine).
		SetMaxVisits(cfg.GraphMaxVisits).
		Build()
	if err != nil {
		return nil, fmt.Errorf("engine graph: %w", err)
	}
	g.OnObserverPanic(func(id graph.NodeID, recovered any) {
		e.logger.Error("observer panicked", "node", id, "panic", recovered)
	})
	e.graph = g

	if ports.Retriever == nil {
		e.logger.Warn("no retriever configured, RAG sections will be empty")
	}
	if ports.Search == nil {
		e.logger.Warn("no web searcher configured, web sections will be empty")
	}
	e.logger.Info("workflow engine initialised",
		"persona", cfg.Persona.Name,
		"language", cfg.Persona.Language,
		"quality_threshold", cfg.QualityThreshold,
		"confidence_threshold", cfg.ConfidenceThreshold,
	)
	return e, nil
}

// Persona returns the persona the engine answers as.
func (e *Engine) Persona() Persona {
	return e.cfg.Persona
}

// Assessor returns the confidence assessor sharing the engine's ports.
func (e *Engine) Assessor() *Assessor {
	return e.assessor
}

// Transition returns the node following current for state; ok is false when
// current is terminal.
func (e *Engine) Transition(ctx context.Context, current NodeID, state *State) (next NodeID, ok bool, err error) {
	return e.graph.Transition(ctx, current, state)
}

// Run executes the workflow to completion. It fails only when ctx is
// cancelled; stage failures are absorbed into fallbacks and a blank query
// ends in clarification.
func (e *Engine) Run(ctx context.Context, query, convCtx string) (*State, error) {
	state, _, err := e.run(ctx, query, convCtx, nil)
	return state, err
}

// Stream executes the workflow and yields an event on entry to and exit from
// every node. The final exited event of the terminal node carries the state
// Run would have returned. Breaking out of the loop cancels the run.
func (e *Engine) Stream(ctx context.Context, query, convCtx string) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		events := make(chan Event)
		go func() {
			defer close(events)
			sink := &eventSink{ctx: ctx, events: events}
			state, aborted, err := e.run(ctx, query, convCtx, sink)
			if err != nil || !aborted {
				return
			}
			// The graph stopped early; close the stream with the repaired state.
			sink.send(Event{Node: terminalNode(state), Phase: PhaseExited, State: state.Clone()})
		}()

		for evt := range events {
			if !yield(evt) {
				cancel()
				for range events {
				}
				return
			}
		}
	}
}

// Review applies the confidence policy to a finished run.
func (e *Engine) Review(ctx context.Context, state *State) Review {
	return e.assessor.Review(ctx, state)
}

// run reports aborted when the graph stopped early and the state had to be
// repaired.
func (e *Engine) run(ctx context.Context, query, convCtx string, extra Observer) (*State, bool, error) {
	query = strings.TrimSpace(query)
	state := &State{
		RunID:   uuid.NewString(),
		Query:   query,
		Context: convCtx,
	}

	ctx, span := e.tracer.Start(ctx, "askflow.run", trace.WithAttributes(
		attribute.String("askflow.run_id", state.RunID),
		attribute.String("askflow.engine", e.cfg.Name),
	))
	logger := e.logger.With("run_id", state.RunID)
	logger.Info("workflow run started", "query", trimForLog(query, 120))

	observers := make([]graph.Observer[*State], 0, len(e.cfg.observers)+1)
	for _, obs := range e.cfg.observers {
		observers = append(observers, observerAdapter{obs})
	}
	if extra != nil {
		observers = append(observers, observerAdapter{extra})
	}

	err := e.graph.Execute(ctx, state, observers...)
	if err != nil && ctx.Err() != nil {
		logger.Warn("workflow run cancelled", "error", err)
		e.cfg.metrics.RunFinished("cancelled")
		telemetry.End(span, err)
		return state, true, fmt.Errorf("workflow cancelled: %w", ctx.Err())
	}
	if err != nil {
		logger.Error("workflow aborted, repairing state", "error", err)
	}
	e.repair(state)

	outcome := string(terminalNode(state))
	span.SetAttributes(
		attribute.String("askflow.outcome", outcome),
		attribute.String("askflow.sources", state.AgentFlow.String()),
	)
	e.cfg.metrics.RunFinished(outcome)
	logger.Info("workflow run completed",
		"outcome", outcome,
		"trace", state.Trace,
		"quality", state.AugmentationQuality.Score,
		"response_chars", len(state.FinalResponse),
	)
	telemetry.End(span, nil)
	return state, err != nil, nil
}

// repair restores the run invariants after an aborted graph so callers
// always receive either an answer or clarification questions.
func (e *Engine) repair(state *State) {
	if state.AnalyzedQuery == "" {
		state.AnalyzedQuery = state.Query
	}
	if state.QualityLow {
		state.FinalResponse = ""
		if len(state.SupplementQuestions) == 0 {
			pair := e.cfg.Persona.FallbackQuestions
			state.SupplementQuestions = []string{pair[0], pair[1]}
		}
		return
	}
	if strings.TrimSpace(state.FinalResponse) == "" {
		state.FinalResponse = e.cfg.Persona.ApologyMessage
	}
}

func terminalNode(state *State) NodeID {
	if state != nil && state.QualityLow {
		return NodeClarify
	}
	return NodeCombine
}

// traced wraps a node with a span, a latency observation and trace recording.
func (e *Engine) traced(id NodeID, fn graph.NodeFunc[*State]) graph.NodeFunc[*State] {
	return func(ctx context.Context, state *State) (err error) {
		ctx, span := e.tracer.Start(ctx, "askflow.node."+string(id), trace.WithAttributes(
			attribute.String("askflow.node", string(id)),
		))
		start := time.Now()
		state.Trace = append(state.Trace, id)
		defer func() {
			e.cfg.metrics.ObserveNode(string(id), time.Since(start))
			telemetry.End(span, err)
		}()
		e.logger.Debug("node started", "node", id, "run_id", state.RunID)
		return fn(ctx, state)
	}
}

func (e *Engine) analyzeNode(ctx context.Context, state *State) error {
	if state.Query == "" {
		state.AugmentationQuality = Quality{Score: 0, Reasoning: "empty query"}
		return nil
	}
	aug := e.augmenter.Augment(ctx, state.Query, state.Context)
	state.AnalyzedQuery = aug.AnalyzedQuery
	state.ContextDocs = aug.ContextDocs
	state.AugmentationQuality = aug.Quality
	return nil
}

func (e *Engine) judgeAugmentationNode(ctx context.Context, state *State) error {
	score := state.AugmentationQuality.Score
	if state.Query == "" {
		e.logger.Info("empty query, asking for details", "run_id", state.RunID)
		state.QualityLow = true
		state.SupplementQuestions = e.assessor.fallbackQuestions()
		return nil
	}
	if score >= e.cfg.QualityThreshold {
		e.logger.Info("augmentation quality acceptable", "score", score, "run_id", state.RunID)
		return nil
	}
	e.logger.Info("augmentation quality low, preparing clarification", "score", score, "run_id", state.RunID)
	state.QualityLow = true
	state.SupplementQuestions = e.assessor.SupplementQuestions(ctx, state.Query, "", Assessment{
		Score:     score,
		Reasoning: "Low quality augmentation",
	})
	return nil
}

func (e *Engine) decideClarify(_ context.Context, state *State) (NodeID, error) {
	if state.QualityLow {
		return NodeClarify, nil
	}
	return NodeJudge, nil
}

func (e *Engine) clarifyNode(_ context.Context, state *State) error {
	state.FinalResponse = ""
	return nil
}

func (e *Engine) judgeNode(ctx context.Context, state *State) error {
	if state.flowDecided {
		return fmt.Errorf("source flow already decided for run %s", state.RunID)
	}
	state.AgentFlow = e.router.Route(ctx, state.AnalyzedQuery)
	state.flowDecided = true
	return nil
}

func (e *Engine) retrievalNode(ctx context.Context, state *State) error {
	state.RAGResult, state.WebResult = e.fanout.Retrieve(ctx, state.AnalyzedQuery, state.AgentFlow)
	return nil
}

func (e *Engine) combineNode(ctx context.Context, state *State) error {
	state.FinalResponse = e.writer.Combine(ctx, state.AnalyzedQuery, state.RAGResult, state.WebResult, state.Context)
	return nil
}

type observerAdapter struct {
	obs Observer
}

func (a observerAdapter) NodeEntered(ctx context.Context, id graph.NodeID) {
	a.obs.NodeEntered(ctx, id)
}

func (a observerAdapter) NodeExited(ctx context.Context, id graph.NodeID, state *State, _ error) {
	a.obs.NodeExited(ctx, id, state.Clone())
}

// eventSink forwards observer callbacks to a Stream consumer.
type eventSink struct {
	ctx    context.Context
	events chan<- Event
}

func (s *eventSink) NodeEntered(_ context.Context, node NodeID) {
	s.send(Event{Node: node, Phase: PhaseEntered})
}

func (s *eventSink) NodeExited(_ context.Context, node NodeID, state *State) {
	s.send(Event{Node: node, Phase: PhaseExited, State: state})
}

func (s *eventSink) send(evt Event) {
	select {
	case s.events <- evt:
	case <-s.ctx.Done():
	}
}
