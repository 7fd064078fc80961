package tokenizer

import "testing"

func TestRuneTokenizerCounts(t *testing.T) {
	tok := RuneTokenizer{}
	if got := tok.CountTokens("hello, world 2024"); got != 4 {
		t.Fatalf("expected 4 tokens, got %d", got)
	}
	if got := tok.CountTokens("임대차"); got != 3 {
		t.Fatalf("expected one token per Hangul rune, got %d", got)
	}
}

func TestTrimContextKeepsMostRecentTurns(t *testing.T) {
	text := "user: old question\nassistant: old answer\nuser: latest question"
	got := TrimContext(RuneTokenizer{}, text, 3)
	if got != ": latest question" {
		t.Fatalf("expected the most recent tokens, got %q", got)
	}
}

func TestTrimContextNoopWithinBudget(t *testing.T) {
	text := "short context"
	if got := TrimContext(RuneTokenizer{}, text, 10); got != text {
		t.Fatalf("expected untouched text, got %q", got)
	}
	if got := TrimContext(nil, text, 1); got != text {
		t.Fatalf("nil tokenizer should be a no-op, got %q", got)
	}
}
