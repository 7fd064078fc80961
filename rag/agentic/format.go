package agentic

import (
	"fmt"
	"strings"
)

// FormatClarification renders the low-confidence warning, the support
// message and the numbered follow-up questions of a review.
func FormatClarification(p Persona, review Review) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d%%).", p.LowConfidenceWarning, review.Score)
	if p.SupportMessage != "" {
		b.WriteString("\n\n")
		b.WriteString(p.SupportMessage)
	}
	for i, q := range review.Questions {
		fmt.Fprintf(&b, "\n\n%d. %s", i+1, q)
	}
	return b.String()
}

// FormatReply returns the text shown to the user for a finished run: the
// answer, followed by the clarification block when the review asks for one.
func FormatReply(p Persona, answer string, review Review) string {
	answer = strings.TrimSpace(answer)
	if !review.NeedsClarification {
		return answer
	}
	clarification := FormatClarification(p, review)
	if answer == "" {
		return clarification
	}
	return answer + "\n\n" + clarification
}

// ProgressLabel returns the persona's label for an event, or "" for events
// that should not update a progress display.
func ProgressLabel(p Persona, evt Event) string {
	if evt.Phase != PhaseEntered {
		return ""
	}
	return p.ProgressLabel(evt.Node)
}

func trimForLog(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 || len([]rune(text)) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "..."
}
