// Package tiktoken counts tokens with the encodings OpenAI models use.
package tiktoken

import (
	"github.com/pkoukk/tiktoken-go"
	"github.com/sweetpotato0/askflow/rag/tokenizer"
)

var _ tokenizer.Tokenizer = (*Tokenizer)(nil)

// Tokenizer measures text with an OpenAI BPE encoding.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer accepts a model name ("gpt-4o") or an encoding name ("cl100k_base").
func NewTiktokenTokenizer(name string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, err
		}
	}
	return &Tokenizer{enc: enc}, nil
}

// CountTokens implements tokenizer.Tokenizer.
func (t *Tokenizer) CountTokens(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// TailTokens implements tokenizer.Tokenizer.
func (t *Tokenizer) TailTokens(text string, max int) string {
	if max <= 0 {
		return ""
	}
	ids := t.enc.Encode(text, nil, nil)
	if len(ids) <= max {
		return text
	}
	return t.enc.Decode(ids[len(ids)-max:])
}
