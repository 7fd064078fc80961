package agentic

import (
	"log/slog"
	"strings"
	"time"

	"github.com/sweetpotato0/askflow/pkg/metrics"
	"github.com/sweetpotato0/askflow/rag/tokenizer"
	"go.opentelemetry.io/otel/trace"
)

// Config controls the behaviour of every stage of the query workflow. The
// zero value is not usable; start from defaultConfig via NewEngine.
type Config struct {
	Name    string  // Logical name for tracing/logging
	Persona Persona // Role, response language and user-facing strings

	FactTimeout       time.Duration // History fact extraction
	RewriteTimeout    time.Duration // Search-friendly query rewrite
	ClarifyTimeout    time.Duration // Context-grounded clarification rewrite
	QualityTimeout    time.Duration // Augmentation quality judgment
	RouteTimeout      time.Duration // Source selection
	SynthesisTimeout  time.Duration // Final answer generation
	AssessTimeout     time.Duration // Post-hoc confidence
	SupplementTimeout time.Duration // Follow-up question generation
	RetrievalTimeout  time.Duration // Knowledge retriever calls
	SearchTimeout     time.Duration // Web search calls

	QualityThreshold    int // Augmentations scoring below this ask for clarification
	DefaultQuality      int // Score used when the quality judgment fails
	ConfidenceThreshold int // Answers scoring below this ask for more detail

	ContextTopK       int // Passages retrieved to ground the clarification rewrite
	ContextDocChars   int // Per-passage rune budget inside the clarification prompt
	RAGTopK           int // Passages retrieved for the answer
	WebTopK           int // Web results retrieved for the answer
	PassageCharBudget int // Per-passage rune budget in the RAG section
	SnippetCharBudget int // Per-snippet rune budget in the web section
	MaxContextTokens  int // Conversation context budget for synthesis; 0 disables trimming

	GreetingTokens   []string // Tokens that short-circuit routing for short messages
	GreetingMaxRunes int      // Messages at least this long never take the greeting path
	ProgressLogEvery int      // Log synthesis progress every N stream fragments
	GraphMaxVisits   int      // Safety guard for graph execution

	FactPrompt       string
	RewritePrompt    string
	ClarifyPrompt    string
	QualitySystem    string
	QualityPrompt    string
	RouteSystem      string
	RoutePrompt      string
	SynthesisPrompt  string
	AssessSystem     string
	AssessPrompt     string
	SupplementSystem string
	SupplementPrompt string

	tokenizer tokenizer.Tokenizer
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
	observers []Observer
}

// Option customises the engine configuration.
type Option func(*Config)

// WithName sets the name used in logs and spans.
func WithName(name string) Option {
	return func(cfg *Config) {
		if strings.TrimSpace(name) != "" {
			cfg.Name = name
		}
	}
}

// WithPersona replaces the persona. Empty fields are filled from the built-in
// persona for the same language.
func WithPersona(p Persona) Option {
	return func(cfg *Config) {
		cfg.Persona = mergePersona(p, basePersonaFor(p.Language))
	}
}

// WithLanguage switches to the built-in persona strings for language while
// keeping the configured role.
func WithLanguage(language string) Option {
	return func(cfg *Config) {
		if strings.TrimSpace(language) == "" {
			return
		}
		base := basePersonaFor(language)
		base.Role = cfg.Persona.Role
		base.Language = language
		cfg.Persona = base
	}
}

// WithRole sets the domain role the model is asked to play.
func WithRole(role string) Option {
	return func(cfg *Config) {
		if strings.TrimSpace(role) != "" {
			cfg.Persona.Role = role
		}
	}
}

// Timeouts groups every per-call deadline. Zero fields keep their defaults.
type Timeouts struct {
	Fact, Rewrite, Clarify, Quality, Route, Synthesis, Assess, Supplement time.Duration
	Retrieval, Search                                                     time.Duration
}

// WithTimeouts overrides per-call deadlines.
func WithTimeouts(t Timeouts) Option {
	return func(cfg *Config) {
		set := func(dst *time.Duration, v time.Duration) {
			if v > 0 {
				*dst = v
			}
		}
		set(&cfg.FactTimeout, t.Fact)
		set(&cfg.RewriteTimeout, t.Rewrite)
		set(&cfg.ClarifyTimeout, t.Clarify)
		set(&cfg.QualityTimeout, t.Quality)
		set(&cfg.RouteTimeout, t.Route)
		set(&cfg.SynthesisTimeout, t.Synthesis)
		set(&cfg.AssessTimeout, t.Assess)
		set(&cfg.SupplementTimeout, t.Supplement)
		set(&cfg.RetrievalTimeout, t.Retrieval)
		set(&cfg.SearchTimeout, t.Search)
	}
}

// WithQualityThreshold sets the score below which the workflow asks for clarification.
func WithQualityThreshold(score int) Option {
	return func(cfg *Config) {
		if score >= 0 && score <= 100 {
			cfg.QualityThreshold = score
		}
	}
}

// WithConfidenceThreshold sets the score below which a finished answer is
// followed by supplement questions.
func WithConfidenceThreshold(score int) Option {
	return func(cfg *Config) {
		if score >= 0 && score <= 100 {
			cfg.ConfidenceThreshold = score
		}
	}
}

// WithTopK overrides how many passages and web results feed the answer.
func WithTopK(rag, web int) Option {
	return func(cfg *Config) {
		if rag > 0 {
			cfg.RAGTopK = rag
		}
		if web > 0 {
			cfg.WebTopK = web
		}
	}
}

// WithContextTopK overrides how many passages ground the clarification rewrite.
func WithContextTopK(k int) Option {
	return func(cfg *Config) {
		if k > 0 {
			cfg.ContextTopK = k
		}
	}
}

// WithCharBudgets overrides per-passage and per-snippet rune budgets.
func WithCharBudgets(passage, snippet int) Option {
	return func(cfg *Config) {
		if passage > 0 {
			cfg.PassageCharBudget = passage
		}
		if snippet > 0 {
			cfg.SnippetCharBudget = snippet
		}
	}
}

// WithMaxContextTokens bounds the conversation context handed to synthesis.
func WithMaxContextTokens(max int) Option {
	return func(cfg *Config) {
		if max >= 0 {
			cfg.MaxContextTokens = max
		}
	}
}

// WithTokenizer plugs in the tokenizer used for context budgeting.
func WithTokenizer(tok tokenizer.Tokenizer) Option {
	return func(cfg *Config) {
		if tok != nil {
			cfg.tokenizer = tok
		}
	}
}

// WithGreetingTokens replaces the greeting vocabulary of the routing fast path.
func WithGreetingTokens(tokens ...string) Option {
	return func(cfg *Config) {
		cleaned := make([]string, 0, len(tokens))
		for _, t := range tokens {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				cleaned = append(cleaned, t)
			}
		}
		if len(cleaned) > 0 {
			cfg.GreetingTokens = cleaned
		}
	}
}

// WithGraphMaxVisits tweaks the safety guard for graph traversal.
func WithGraphMaxVisits(max int) Option {
	return func(cfg *Config) {
		if max > 0 {
			cfg.GraphMaxVisits = max
		}
	}
}

// WithMetrics records stage fallbacks, routing decisions and node latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(cfg *Config) {
		cfg.metrics = m
	}
}

// WithTracer overrides the tracer used for run and node spans.
func WithTracer(t trace.Tracer) Option {
	return func(cfg *Config) {
		if t != nil {
			cfg.tracer = t
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *Config) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithObserver registers an observer notified on every run.
func WithObserver(obs Observer) Option {
	return func(cfg *Config) {
		if obs != nil {
			cfg.observers = append(cfg.observers, obs)
		}
	}
}

// WithPrompts overrides prompt templates by name. Unknown names are ignored.
// Templates use text/template syntax over promptData.
func WithPrompts(prompts map[string]string) Option {
	return func(cfg *Config) {
		for name, content := range prompts {
			if strings.TrimSpace(content) == "" {
				continue
			}
			if dst := cfg.promptField(name); dst != nil {
				*dst = content
			}
		}
	}
}

// Prompt template names accepted by WithPrompts.
const (
	PromptFact             = "fact"
	PromptRewrite          = "rewrite"
	PromptClarify          = "clarify"
	PromptQualitySystem    = "quality_system"
	PromptQuality          = "quality"
	PromptRouteSystem      = "route_system"
	PromptRoute            = "route"
	PromptSynthesis        = "synthesis"
	PromptAssessSystem     = "assess_system"
	PromptAssess           = "assess"
	PromptSupplementSystem = "supplement_system"
	PromptSupplement       = "supplement"
)

func (cfg *Config) promptField(name string) *string {
	switch name {
	case PromptFact:
		return &cfg.FactPrompt
	case PromptRewrite:
		return &cfg.RewritePrompt
	case PromptClarify:
		return &cfg.ClarifyPrompt
	case PromptQualitySystem:
		return &cfg.QualitySystem
	case PromptQuality:
		return &cfg.QualityPrompt
	case PromptRouteSystem:
		return &cfg.RouteSystem
	case PromptRoute:
		return &cfg.RoutePrompt
	case PromptSynthesis:
		return &cfg.SynthesisPrompt
	case PromptAssessSystem:
		return &cfg.AssessSystem
	case PromptAssess:
		return &cfg.AssessPrompt
	case PromptSupplementSystem:
		return &cfg.SupplementSystem
	case PromptSupplement:
		return &cfg.SupplementPrompt
	}
	return nil
}

func (cfg *Config) prompts() map[string]string {
	names := []string{
		PromptFact, PromptRewrite, PromptClarify, PromptQualitySystem, PromptQuality,
		PromptRouteSystem, PromptRoute, PromptSynthesis, PromptAssessSystem,
		PromptAssess, PromptSupplementSystem, PromptSupplement,
	}
	out := make(map[string]string, len(names))
	for _, name := range names {
		out[name] = *cfg.promptField(name)
	}
	return out
}

func defaultConfig() *Config {
	return &Config{
		Name:    "askflow",
		Persona: EnglishPersona(),

		FactTimeout:       60 * time.Second,
		RewriteTimeout:    90 * time.Second,
		ClarifyTimeout:    90 * time.Second,
		QualityTimeout:    30 * time.Second,
		RouteTimeout:      30 * time.Second,
		SynthesisTimeout:  90 * time.Second,
		AssessTimeout:     15 * time.Second,
		SupplementTimeout: 90 * time.Second,
		RetrievalTimeout:  20 * time.Second,
		SearchTimeout:     20 * time.Second,

		QualityThreshold:    60,
		DefaultQuality:      50,
		ConfidenceThreshold: 70,

		ContextTopK:       3,
		ContextDocChars:   500,
		RAGTopK:           4,
		WebTopK:           3,
		PassageCharBudget: 800,
		SnippetCharBudget: 200,
		MaxContextTokens:  2000,

		GreetingTokens:   []string{"hello", "hi", "greetings", "안녕", "안녕하세요"},
		GreetingMaxRunes: 20,
		ProgressLogEvery: 50,
		GraphMaxVisits:   2,

		FactPrompt: `Analyze the following conversation history between a user and a {{.Role}}.
Extract the context needed to understand future questions accurately:
1. Key entities (people, places, forms, laws)
2. Dates and years
3. The user's situation or goal
4. Constraints or preferences the user stated

[Conversation History]
{{.Context}}

Output ONLY a concise bulleted list of these facts in {{.Language}}.
If nothing important is found, output "No significant context found."`,
		RewritePrompt: `As a {{.Role}}, rewrite the user's question into a descriptive, search-friendly query for a domain knowledge base.

[Relevant Facts from History]
{{if .Facts}}{{.Facts}}{{else}}No specific context extracted.{{end}}

[Conversation History]
{{if .Context}}{{.Context}}{{else}}No previous context{{end}}

[User Question]
{{.Query}}

Use the facts to resolve pronouns and ambiguities so the query is self-contained.
Output ONLY the rewritten query in {{.Language}} as one natural-language sentence, with no headers or introduction.`,
		ClarifyPrompt: `As a {{.Role}}, analyze the user question, its search rewrite and the conversation history below.
Use the reference material to clarify or rephrase the rewritten question when it is ambiguous or uses specialist terminology.

[Reference Material]
{{.Docs}}

[Conversation History]
{{.Context}}

[User Question]
{{.Query}}

[Rewritten Question]
{{.Rewritten}}

Output ONLY the clarified question in {{.Language}}. No introductions, apologies or filler such as "The user is asking about".`,
		QualitySystem: "You are a quality judge for query augmentation. Be strict but fair.",
		QualityPrompt: `Evaluate the following query augmentation for a {{.Role}} assistant.

Original Query: "{{.Query}}"
Augmented Query: "{{.Rewritten}}"
Conversation context: "{{.ContextExcerpt}}"
Context documents retrieved: {{.DocCount}}

Rate the augmentation from 0 to 100:
- 0-30: vague, missing key information, no retrieval improvement
- 31-60: somewhat improved but still unclear
- 61-80: clearly improved and captures the intent
- 81-100: excellent, will retrieve highly relevant material

Respond with JSON only: {"score": N, "reasoning": "why"}`,
		RouteSystem: `You are an orchestration assistant for a {{.Role}} bot.
Assign sources: ["RAG"] for the specialised knowledge base, ["WebSearch"] for current news or general information, or both.`,
		RoutePrompt: "Query: {{.Query}}\nSources needed?",
		SynthesisPrompt: `You are a {{.Role}}. Using the information below, give an accurate and professional answer to the user's latest question in {{.Language}}.

### [Conversation Context]
{{.Context}}

### [Reference Documents]
{{.RAG}}

### [Web Search Results]
{{.Web}}

---
### [User's Current Question]
{{.Query}}

Base your advice on the relevant regulations or standards and cite them where possible. If the material does not cover the question, answer from professional knowledge and state the limitations clearly.
FORMAT YOUR RESPONSE USING MARKDOWN:
- Use ### headers for sections
- Use **bold** for important terms
- Use *italic* for technical terms and definitions
- Use - bullet points for lists
- Use ` + "`code`" + ` for regulations and specific references
- Use [links](url) for references when available`,
		AssessSystem: "You are a quality judge. Be strict.",
		AssessPrompt: `Query: {{.Query}}
Answer: {{.Answer}}
Rate confidence 0-100. Return only JSON: {"score": N, "reason": "str"}`,
		SupplementSystem: "You are a helpful {{.Role}}. Provide specific follow-up questions as a JSON list.",
		SupplementPrompt: `The user asked: "{{.Query}}"
The current answer is: "{{.Answer}}"
The confidence assessment for this answer is: {{.Reasoning}}

As a {{.Role}}, suggest 2 specific, short follow-up questions in {{.Language}} that would help you answer more precisely if the user provides more details.
Do NOT use placeholders. Return only a JSON list of strings.
Example: ["Could you clarify a specific detail?", "Are you asking about a particular standard?"]`,
	}
}

func applyOptions(cfg *Config, opts []Option) *Config {
	if cfg == nil {
		cfg = defaultConfig()
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.tokenizer == nil {
		cfg.tokenizer = tokenizer.RuneTokenizer{}
	}
	return cfg
}
