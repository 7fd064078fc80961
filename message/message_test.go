package message

import (
	"testing"
)

func TestNewMessage(t *testing.T) {
	msg := NewMessage(RoleUser, "Hello, world!")

	if msg.Role != RoleUser {
		t.Errorf("Expected role %s, got %s", RoleUser, msg.Role)
	}

	if msg.Content != "Hello, world!" {
		t.Errorf("Expected content 'Hello, world!', got '%s'", msg.Content)
	}

	if msg.ID == "" {
		t.Error("Expected non-empty ID")
	}
}

func TestTextTrimsAndHandlesNil(t *testing.T) {
	var nilMsg *Message
	if nilMsg.Text() != "" {
		t.Fatalf("expected empty text for nil message")
	}
	if got := User("  spaced  ").Text(); got != "spaced" {
		t.Fatalf("expected trimmed text, got %q", got)
	}
}

func TestCloneMessagesIsIndependent(t *testing.T) {
	original := []*Message{System("sys"), User("question")}
	clones := CloneMessages(original)
	clones[1].Content = "changed"
	if original[1].Content != "question" {
		t.Fatalf("clone mutated original: %q", original[1].Content)
	}
	if CloneMessages(nil) != nil {
		t.Fatalf("expected nil clone for nil input")
	}
}

func TestSplitSystem(t *testing.T) {
	system, rest := SplitSystem([]*Message{
		System("first"),
		User("hello"),
		nil,
		System("second"),
	})
	if system != "first\nsecond" {
		t.Fatalf("unexpected system prompt %q", system)
	}
	if len(rest) != 1 || rest[0].Content != "hello" {
		t.Fatalf("unexpected conversational turns %#v", rest)
	}
}
