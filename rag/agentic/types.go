package agentic

import (
	"encoding/json"
	"strings"

	"github.com/sweetpotato0/askflow/graph"
	"github.com/sweetpotato0/askflow/rag/retriever"
)

// NodeID identifies a workflow node.
type NodeID = graph.NodeID

// Workflow nodes in execution order. Clarify and Combine are terminal.
const (
	NodeAnalyze           NodeID = "analyze"
	NodeJudgeAugmentation NodeID = "judge_augmentation"
	NodeClarify           NodeID = "clarify"
	NodeJudge             NodeID = "judge"
	NodeRetrieval         NodeID = "retrieval"
	NodeCombine           NodeID = "combine"
)

// NotApplicable marks a retrieval section whose source was not selected.
const NotApplicable = "N/A"

// NoPreviousContext is the conversation rendering callers pass for a first turn.
const NoPreviousContext = "No previous context"

// SourceSet is the set of retrieval capabilities selected for a query.
type SourceSet uint8

const (
	SourceRAG SourceSet = 1 << iota
	SourceWebSearch

	NoSources  SourceSet = 0
	AllSources           = SourceRAG | SourceWebSearch
)

// Has reports whether every source in s is selected.
func (f SourceSet) Has(s SourceSet) bool {
	return s != 0 && f&s == s
}

// Names lists the selected sources in canonical order.
func (f SourceSet) Names() []string {
	names := make([]string, 0, 2)
	if f.Has(SourceRAG) {
		names = append(names, "RAG")
	}
	if f.Has(SourceWebSearch) {
		names = append(names, "WebSearch")
	}
	return names
}

func (f SourceSet) String() string {
	if f == NoSources {
		return "none"
	}
	return strings.Join(f.Names(), "+")
}

// MarshalJSON renders the set as a list of source names.
func (f SourceSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Names())
}

// Quality scores how well the rewritten query captures the user's intent.
type Quality struct {
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning"`
}

// Augmentation is the output of the query augmenter.
type Augmentation struct {
	AnalyzedQuery string
	ContextDocs   []retriever.Passage
	Quality       Quality
}

// Assessment is a post-hoc confidence estimate for a finished answer.
type Assessment struct {
	Score     int    `json:"confidence_score"`
	Reasoning string `json:"reasoning"`
}

// Review is the caller-side confidence decision for a completed run.
type Review struct {
	Assessment
	Questions          []string `json:"supplement_questions,omitempty"`
	NeedsClarification bool     `json:"needs_clarification"`
}

// State is threaded through every node of a single run. Each node only writes
// its own fields; a State is never shared between runs.
type State struct {
	RunID               string              `json:"run_id"`
	Query               string              `json:"query"`
	Context             string              `json:"context"`
	AnalyzedQuery       string              `json:"analyzed_query"`
	ContextDocs         []retriever.Passage `json:"context_docs,omitempty"`
	AugmentationQuality Quality             `json:"augmentation_quality"`
	QualityLow          bool                `json:"quality_low"`
	SupplementQuestions []string            `json:"supplement_questions,omitempty"`
	AgentFlow           SourceSet           `json:"agent_flow"`
	RAGResult           string              `json:"rag_result,omitempty"`
	WebResult           string              `json:"web_result,omitempty"`
	FinalResponse       string              `json:"final_response"`
	Trace               []NodeID            `json:"trace"`

	flowDecided bool
}

// FlowDecided reports whether the routing node ran.
func (s *State) FlowDecided() bool {
	return s != nil && s.flowDecided
}

// Clone returns a deep copy safe to hand to observers.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	if s.ContextDocs != nil {
		out.ContextDocs = append([]retriever.Passage(nil), s.ContextDocs...)
	}
	if s.SupplementQuestions != nil {
		out.SupplementQuestions = append([]string(nil), s.SupplementQuestions...)
	}
	if s.Trace != nil {
		out.Trace = append([]NodeID(nil), s.Trace...)
	}
	return &out
}

// Phase tells whether an event marks entry to or exit from a node.
type Phase string

const (
	PhaseEntered Phase = "entered"
	PhaseExited  Phase = "exited"
)

// Event is a progress notification emitted at node boundaries. State is a
// snapshot taken on exit and nil on entry.
type Event struct {
	Node  NodeID `json:"node"`
	Phase Phase  `json:"phase"`
	State *State `json:"state,omitempty"`
}

// Terminal reports whether the event closes a terminal node.
func (e Event) Terminal() bool {
	return e.Phase == PhaseExited && (e.Node == NodeClarify || e.Node == NodeCombine)
}
