package agentic

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/llm"
)

// lowQualityReasoning explains a review that reused the augmentation score.
const lowQualityReasoning = "Query quality low (augmentation check)"

// Assessor estimates confidence in finished answers and proposes follow-up
// questions when confidence is low. It is safe for concurrent use.
type Assessor struct {
	llm     llm.Client
	prompts *prompts
	cfg     *Config
	logger  *slog.Logger
}

// NewAssessor builds a standalone assessor with the same options as the engine.
func NewAssessor(client llm.Client, opts ...Option) (*Assessor, error) {
	if client == nil {
		return nil, errNoClient("assessor")
	}
	cfg := applyOptions(nil, opts)
	p, err := newPrompts(cfg)
	if err != nil {
		return nil, err
	}
	return newAssessor(client, p, cfg), nil
}

func newAssessor(client llm.Client, p *prompts, cfg *Config) *Assessor {
	return &Assessor{
		llm:     client,
		prompts: p,
		cfg:     cfg,
		logger:  cfg.componentLogger("confidence_assessor"),
	}
}

// Assess scores answer against query. Any failure yields the confidence
// threshold so a broken judge neither passes nor fails answers on its own.
func (a *Assessor) Assess(ctx context.Context, query, answer, convCtx string) Assessment {
	data := promptData{Query: query, Answer: answer, Context: convCtx}
	raw, err := a.complete(ctx, PromptAssessSystem, PromptAssess, data, a.cfg.AssessTimeout)
	if err != nil {
		reasoning := "Error fallback"
		if fallbackReason(err) == "timeout" {
			reasoning = "Timeout fallback"
		}
		a.cfg.fallback(a.logger, "confidence", err)
		return Assessment{Score: a.cfg.ConfidenceThreshold, Reasoning: reasoning}
	}
	score, reasoning, err := parseJudgment(raw)
	if err != nil {
		a.cfg.fallback(a.logger, "confidence", err, "raw", trimForLog(raw, 300))
		return Assessment{Score: a.cfg.ConfidenceThreshold, Reasoning: "Default fallback"}
	}
	return Assessment{Score: score, Reasoning: reasoning}
}

func (a *Assessor) complete(ctx context.Context, systemName, userName string, data promptData, timeout time.Duration) (string, error) {
	system, err := a.prompts.render(systemName, data)
	if err != nil {
		return "", err
	}
	user, err := a.prompts.render(userName, data)
	if err != nil {
		return "", err
	}
	return llm.CompleteWithin(ctx, a.llm, llm.Chat(system, user), timeout)
}

// SupplementQuestions returns exactly two follow-up questions. A short model
// list is topped up from the persona's fixed pair, which is also the answer
// on any failure.
func (a *Assessor) SupplementQuestions(ctx context.Context, query, answer string, assessment Assessment) []string {
	data := promptData{
		Query:     query,
		Answer:    snippet(answer, 500),
		Reasoning: assessment.Reasoning,
	}
	if data.Reasoning == "" {
		data.Reasoning = NotApplicable
	}
	questions, err := a.questions(ctx, data)
	if err != nil {
		a.cfg.fallback(a.logger, "supplement_questions", err)
		return a.fallbackQuestions()
	}
	return questions
}

func (a *Assessor) questions(ctx context.Context, data promptData) ([]string, error) {
	raw, err := a.complete(ctx, PromptSupplementSystem, PromptSupplement, data, a.cfg.SupplementTimeout)
	if err != nil {
		return nil, err
	}
	questions, err := decodeList(raw)
	if err != nil {
		a.logger.Warn("supplement questions malformed", "raw", trimForLog(raw, 300))
		return nil, err
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("supplement questions: empty list: %w", askerrors.ErrInvalidInput)
	}
	if len(questions) > supplementCount {
		questions = questions[:supplementCount]
	}
	for _, q := range a.fallbackQuestions() {
		if len(questions) == supplementCount {
			break
		}
		if !slices.Contains(questions, q) {
			questions = append(questions, q)
		}
	}
	return questions, nil
}

// supplementCount is how many follow-up questions a clarification carries.
const supplementCount = 2

func (a *Assessor) fallbackQuestions() []string {
	pair := a.cfg.Persona.FallbackQuestions
	return []string{pair[0], pair[1]}
}

// Review applies the post-run confidence policy to a finished state. A run
// that already asked for clarification reuses its augmentation score and
// questions without another model call.
func (a *Assessor) Review(ctx context.Context, state *State) Review {
	if state == nil {
		return Review{Assessment: Assessment{Score: a.cfg.ConfidenceThreshold, Reasoning: NotApplicable}}
	}

	var review Review
	if state.QualityLow {
		review.Assessment = Assessment{
			Score:     state.AugmentationQuality.Score,
			Reasoning: lowQualityReasoning,
		}
		review.Questions = append([]string(nil), state.SupplementQuestions...)
	} else {
		review.Assessment = a.Assess(ctx, state.Query, state.FinalResponse, state.Context)
	}

	low := review.Score < a.cfg.ConfidenceThreshold
	if low && len(review.Questions) == 0 {
		review.Questions = a.SupplementQuestions(ctx, state.Query, state.FinalResponse, review.Assessment)
	}
	review.NeedsClarification = low || len(review.Questions) > 0
	a.logger.Info("answer reviewed",
		"score", review.Score,
		"needs_clarification", review.NeedsClarification,
		"questions", len(review.Questions),
	)
	return review
}
