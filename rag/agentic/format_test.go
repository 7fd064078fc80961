package agentic

import (
	"testing"
)

func TestFormatClarification(t *testing.T) {
	p := EnglishPersona()
	review := Review{
		Assessment:         Assessment{Score: 42},
		Questions:          []string{"Which year?", "Which region?"},
		NeedsClarification: true,
	}
	want := p.LowConfidenceWarning + " (42%).\n\n" + p.SupportMessage + "\n\n1. Which year?\n\n2. Which region?"
	if got := FormatClarification(p, review); got != want {
		t.Fatalf("unexpected clarification:\n%s", got)
	}
}

func TestFormatReply(t *testing.T) {
	p := EnglishPersona()
	if got := FormatReply(p, " answer ", Review{}); got != "answer" {
		t.Fatalf("confident reply should be the bare answer, got %q", got)
	}

	review := Review{Assessment: Assessment{Score: 30}, Questions: []string{"Q?"}, NeedsClarification: true}
	if got := FormatReply(p, "", review); got != FormatClarification(p, review) {
		t.Fatalf("clarify reply should be the clarification block, got %q", got)
	}
	if got := FormatReply(p, "answer", review); got != "answer\n\n"+FormatClarification(p, review) {
		t.Fatalf("unexpected combined reply %q", got)
	}
}

func TestProgressLabelOnlyOnEntry(t *testing.T) {
	p := KoreanPersona()
	if got := ProgressLabel(p, Event{Node: NodeCombine, Phase: PhaseEntered}); got != "🤔 추론 중..." {
		t.Fatalf("unexpected label %q", got)
	}
	if got := ProgressLabel(p, Event{Node: NodeCombine, Phase: PhaseExited}); got != "" {
		t.Fatalf("exit events carry no label, got %q", got)
	}
}

func TestSourceSet(t *testing.T) {
	if AllSources.String() != "RAG+WebSearch" || NoSources.String() != "none" || SourceWebSearch.String() != "WebSearch" {
		t.Fatalf("unexpected source names")
	}
	if NoSources.Has(SourceRAG) || !AllSources.Has(SourceWebSearch) || SourceRAG.Has(NoSources) {
		t.Fatalf("unexpected membership")
	}
	data, err := AllSources.MarshalJSON()
	if err != nil || string(data) != `["RAG","WebSearch"]` {
		t.Fatalf("unexpected JSON %s %v", data, err)
	}
}

func TestWithPersonaFillsMissingStrings(t *testing.T) {
	cfg := applyOptions(nil, []Option{WithPersona(Persona{Role: "Tax Advisor", Language: "ko"})})
	if cfg.Persona.Role != "Tax Advisor" {
		t.Fatalf("role not applied")
	}
	if cfg.Persona.ApologyMessage != KoreanPersona().ApologyMessage {
		t.Fatalf("expected Korean defaults, got %q", cfg.Persona.ApologyMessage)
	}
	if cfg.Persona.LanguageName() != "Korean" {
		t.Fatalf("unexpected language %q", cfg.Persona.LanguageName())
	}
}

func TestWithLanguageKeepsRole(t *testing.T) {
	cfg := applyOptions(nil, []Option{WithRole("Accountant"), WithLanguage("ko")})
	if cfg.Persona.Role != "Accountant" || cfg.Persona.Language != "ko" {
		t.Fatalf("unexpected persona %+v", cfg.Persona)
	}
}
