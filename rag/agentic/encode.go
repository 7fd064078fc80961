package agentic

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	askerrors "github.com/sweetpotato0/askflow/errors"
)

// decodeJSON tries to unmarshal the raw model output into T after stripping
// fences and any prose around the first JSON object.
func decodeJSON[T any](raw string) (*T, error) {
	clean, ok := extractSpan(sanitizeJSON(raw), '{', '}')
	if !ok {
		return nil, fmt.Errorf("decode JSON: no object in output: %w", askerrors.ErrInvalidInput)
	}
	var out T
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	return &out, nil
}

// decodeList extracts the first JSON list of strings from raw.
func decodeList(raw string) ([]string, error) {
	clean, ok := extractSpan(sanitizeJSON(raw), '[', ']')
	if !ok {
		return nil, fmt.Errorf("decode list: no list in output: %w", askerrors.ErrInvalidInput)
	}
	var items []any
	if err := json.Unmarshal([]byte(clean), &items); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func sanitizeJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = trimmed[3:]
		trimmed = strings.TrimPrefix(trimmed, "json")
		trimmed = strings.TrimPrefix(trimmed, "JSON")
		if idx := strings.Index(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
	}
	return strings.TrimSpace(trimmed)
}

// extractSpan returns the text from the first open delimiter to the last
// close delimiter.
func extractSpan(text string, open, close byte) (string, bool) {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// flexScore accepts integers, floats and numeric strings.
type flexScore struct {
	value int
	set   bool
}

func (s *flexScore) UnmarshalJSON(data []byte) error {
	text := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if text == "" || text == "null" {
		return nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("score %q: %w", text, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("score %q is not finite", text)
	}
	s.value = clampScore(int(math.Round(f)))
	s.set = true
	return nil
}

type judgment struct {
	Score           flexScore `json:"score"`
	ConfidenceScore flexScore `json:"confidence_score"`
	Reason          string    `json:"reason"`
	Reasoning       string    `json:"reasoning"`
}

func (j *judgment) score() (int, bool) {
	if j.Score.set {
		return j.Score.value, true
	}
	if j.ConfidenceScore.set {
		return j.ConfidenceScore.value, true
	}
	return 0, false
}

func (j *judgment) reasoning() string {
	if r := strings.TrimSpace(j.Reasoning); r != "" {
		return r
	}
	if r := strings.TrimSpace(j.Reason); r != "" {
		return r
	}
	return NotApplicable
}

// parseJudgment decodes a {"score", "reasoning"} object. It fails when the
// output holds no object or the object carries no score.
func parseJudgment(raw string) (int, string, error) {
	j, err := decodeJSON[judgment](raw)
	if err != nil {
		return 0, "", err
	}
	value, ok := j.score()
	if !ok {
		return 0, "", fmt.Errorf("decode JSON: score missing: %w", askerrors.ErrInvalidInput)
	}
	return value, j.reasoning(), nil
}

func clampScore(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
