package agentic

import "strings"

// Persona carries the domain role, response language and user-facing strings
// of a deployment.
type Persona struct {
	Name     string `yaml:"name"`
	Role     string `yaml:"role"`
	Language string `yaml:"language"` // ISO 639-1 code, e.g. "en" or "ko"

	RAGHeader            string            `yaml:"rag_header"`
	RAGNoResults         string            `yaml:"rag_no_results"`
	WebSearchHeader      string            `yaml:"web_search_header"`
	WebSearchNoResults   string            `yaml:"web_search_no_results"`
	LowConfidenceWarning string            `yaml:"low_confidence_warning"`
	SupportMessage       string            `yaml:"support_message"`
	ApologyMessage       string            `yaml:"apology_message"`
	TruncationMarker     string            `yaml:"truncation_marker"`
	InterruptedMarker    string            `yaml:"interrupted_marker"`
	FallbackQuestions    [2]string         `yaml:"fallback_questions"`
	Progress             map[NodeID]string `yaml:"progress"`
}

// LanguageName spells out the response language for prompts.
func (p Persona) LanguageName() string {
	switch strings.ToLower(p.Language) {
	case "ko":
		return "Korean"
	case "en", "":
		return "English"
	default:
		return p.Language
	}
}

// ProgressLabel returns the user-facing label for a node, or "" if none is set.
func (p Persona) ProgressLabel(node NodeID) string {
	return p.Progress[node]
}

// EnglishPersona is the default persona.
func EnglishPersona() Persona {
	return Persona{
		Name:                 "general",
		Role:                 "Knowledgeable Research Assistant",
		Language:             "en",
		RAGHeader:            "### Related Documents:",
		RAGNoResults:         "No relevant documents found.",
		WebSearchHeader:      "### Web Search Results",
		WebSearchNoResults:   "- No relevant web search results found.",
		LowConfidenceWarning: "⚠️ *Note: The confidence score for this answer is low*",
		SupportMessage:       "Providing more details could help me give you a more accurate answer:",
		ApologyMessage:       "I'm sorry, I encountered a timeout while generating your response. Please try again or rephrase your question.",
		TruncationMarker:     "\n\n[Response truncated due to timeout]",
		InterruptedMarker:    "\n\n[Response interrupted before it was complete]",
		FallbackQuestions: [2]string{
			"Could you please elaborate on your question?",
			"Is there any specific data I should consider?",
		},
		Progress: map[NodeID]string{
			NodeAnalyze:           "🔎 Understanding your question...",
			NodeJudgeAugmentation: "🧐 Checking the question is clear enough...",
			NodeClarify:           "❓ Preparing clarification questions...",
			NodeJudge:             "🧭 Choosing knowledge sources...",
			NodeRetrieval:         "💭 Searching for relevant information...",
			NodeCombine:           "🤔 Reasoning...",
		},
	}
}

// KoreanPersona mirrors EnglishPersona for Korean deployments.
func KoreanPersona() Persona {
	return Persona{
		Name:                 "legal",
		Role:                 "Korean Law Expert",
		Language:             "ko",
		RAGHeader:            "### 관련 법령 문서:",
		RAGNoResults:         "관련 문서를 찾지 못했습니다.",
		WebSearchHeader:      "### 웹 검색 결과",
		WebSearchNoResults:   "- 관련 웹 검색 결과가 없습니다.",
		LowConfidenceWarning: "⚠️ *참고: 이 답변의 신뢰 점수가 낮습니다*",
		SupportMessage:       "더 자세한 정보를 제공해주시면 더 정확한 답변을 드릴 수 있습니다:",
		ApologyMessage:       "죄송합니다. 답변을 생성하는 중 시간이 초과되었습니다. 다시 시도하시거나 질문을 바꿔 주세요.",
		TruncationMarker:     "\n\n[시간 초과로 답변이 잘렸습니다]",
		InterruptedMarker:    "\n\n[답변 생성이 중단되었습니다]",
		FallbackQuestions: [2]string{
			"질문에 대해 좀 더 자세히 설명해 주시겠습니까?",
			"제가 고려해야 할 구체적인 데이터가 있습니까?",
		},
		Progress: map[NodeID]string{
			NodeAnalyze:           "🔎 질문을 분석하고 있습니다...",
			NodeJudgeAugmentation: "🧐 질문의 명확성을 확인하고 있습니다...",
			NodeClarify:           "❓ 추가 질문을 준비하고 있습니다...",
			NodeJudge:             "🧭 검색할 자료를 고르고 있습니다...",
			NodeRetrieval:         "💭 관련 정보를 검색하고 있습니다...",
			NodeCombine:           "🤔 추론 중...",
		},
	}
}

// mergePersona fills empty fields of p from base.
func mergePersona(p, base Persona) Persona {
	fill := func(dst *string, src string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = src
		}
	}
	fill(&p.Name, base.Name)
	fill(&p.Role, base.Role)
	fill(&p.Language, base.Language)
	fill(&p.RAGHeader, base.RAGHeader)
	fill(&p.RAGNoResults, base.RAGNoResults)
	fill(&p.WebSearchHeader, base.WebSearchHeader)
	fill(&p.WebSearchNoResults, base.WebSearchNoResults)
	fill(&p.LowConfidenceWarning, base.LowConfidenceWarning)
	fill(&p.SupportMessage, base.SupportMessage)
	fill(&p.ApologyMessage, base.ApologyMessage)
	fill(&p.TruncationMarker, base.TruncationMarker)
	fill(&p.InterruptedMarker, base.InterruptedMarker)
	fill(&p.FallbackQuestions[0], base.FallbackQuestions[0])
	fill(&p.FallbackQuestions[1], base.FallbackQuestions[1])
	if len(p.Progress) == 0 {
		p.Progress = base.Progress
	}
	return p
}

// basePersonaFor picks the built-in persona matching a language code.
func basePersonaFor(language string) Persona {
	if strings.EqualFold(language, "ko") {
		return KoreanPersona()
	}
	return EnglishPersona()
}
