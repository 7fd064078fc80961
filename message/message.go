package message

import (
	"strings"

	"github.com/google/uuid"
)

// Role represents the role of the message sender
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message represents a single turn sent to or received from a language model.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewMessage creates a new message with the given role and content
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:      uuid.NewString(),
		Role:    role,
		Content: content,
	}
}

// System is shorthand for NewMessage(RoleSystem, content).
func System(content string) *Message {
	return NewMessage(RoleSystem, content)
}

// User is shorthand for NewMessage(RoleUser, content).
func User(content string) *Message {
	return NewMessage(RoleUser, content)
}

// Text returns the trimmed message content; nil messages yield "".
func (m *Message) Text() string {
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m.Content)
}

// Clone creates a copy of the message.
func Clone(msg *Message) *Message {
	if msg == nil {
		return nil
	}
	cloned := *msg
	return &cloned
}

// CloneMessages copies a slice of messages.
func CloneMessages(msgs []*Message) []*Message {
	if len(msgs) == 0 {
		return nil
	}
	clones := make([]*Message, 0, len(msgs))
	for _, msg := range msgs {
		clones = append(clones, Clone(msg))
	}
	return clones
}

// SplitSystem separates system prompts from the conversational turns. Several
// providers take the system prompt as a dedicated request field.
func SplitSystem(msgs []*Message) (string, []*Message) {
	var (
		system []string
		rest   = make([]*Message, 0, len(msgs))
	)
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		if msg.Role == RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(system, "\n"), rest
}
