package tokenizer

import (
	"strings"
	"unicode"
)

// Tokenizer measures and trims text in model tokens.
type Tokenizer interface {
	CountTokens(text string) int
	// TailTokens returns the suffix of text holding at most max tokens.
	TailTokens(text string, max int) string
}

// TrimContext keeps the trailing max tokens of a rendered conversation. The
// rendering is oldest first, so the tail holds the most recent turns.
func TrimContext(tok Tokenizer, text string, max int) string {
	if tok == nil || max <= 0 {
		return text
	}
	if tok.CountTokens(text) <= max {
		return text
	}
	return strings.TrimSpace(tok.TailTokens(text, max))
}

var _ Tokenizer = RuneTokenizer{}

// RuneTokenizer is a dependency-free approximation: letters and digits form
// words, Han and Hangul runes count individually, punctuation stands alone and
// whitespace is free.
type RuneTokenizer struct{}

func (RuneTokenizer) split(s string) []string {
	var toks []string
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			toks = append(toks, buf.String())
			buf.Reset()
		}
	}

	for _, r := range s {
		switch {
		case unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hangul, r):
			flush()
			toks = append(toks, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			buf.WriteRune(r)
		default:
			flush()
			toks = append(toks, string(r))
		}
	}
	flush()
	return toks
}

// CountTokens implements Tokenizer.
func (t RuneTokenizer) CountTokens(text string) int {
	count := 0
	for _, tok := range t.split(text) {
		if strings.TrimSpace(tok) != "" {
			count++
		}
	}
	return count
}

// TailTokens implements Tokenizer.
func (t RuneTokenizer) TailTokens(text string, max int) string {
	if max <= 0 {
		return ""
	}
	toks := t.split(text)
	count := 0
	start := len(toks)
	for i := len(toks) - 1; i >= 0; i-- {
		if strings.TrimSpace(toks[i]) == "" {
			start = i
			continue
		}
		if count == max {
			break
		}
		count++
		start = i
	}
	return strings.Join(toks[start:], "")
}
