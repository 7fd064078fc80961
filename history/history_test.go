package history

import (
	"context"
	"testing"

	"github.com/sweetpotato0/askflow/message"
)

func TestRenderKeepsWindow(t *testing.T) {
	msgs := []*message.Message{
		message.User("old"),
		message.NewMessage(message.RoleAssistant, "older answer"),
		message.User("When is VAT due?"),
		message.NewMessage(message.RoleAssistant, "The 25th."),
		message.NewMessage("tool", "lookup"),
	}
	got := Render(msgs, 3)
	want := "--- User: When is VAT due?\n--- AI: The 25th.\n--- Tool: lookup"
	if got != want {
		t.Fatalf("unexpected render %q", got)
	}
	if Render(nil, 10) != "" {
		t.Fatalf("empty history should render as empty string")
	}
}

func TestInMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	if err := Record(ctx, store, "s1", "q1", "a1"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := Record(ctx, store, "s1", "q2", "a2"); err != nil {
		t.Fatalf("record: %v", err)
	}
	msgs, err := store.Messages(ctx, "s1", 3)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 3 || msgs[0].Content != "a1" || msgs[2].Content != "a2" {
		t.Fatalf("unexpected tail %+v", msgs)
	}

	msgs[0].Content = "mutated"
	again, _ := store.Messages(ctx, "s1", 0)
	if again[1].Content != "a1" {
		t.Fatalf("store leaked internal state")
	}

	text, err := Load(ctx, store, "s1", DefaultWindow)
	if err != nil || text != "--- User: q1\n--- AI: a1\n--- User: q2\n--- AI: a2" {
		t.Fatalf("unexpected load %q (%v)", text, err)
	}

	if err := store.Clear(ctx, "s1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if text, _ := Load(ctx, store, "s1", DefaultWindow); text != "" {
		t.Fatalf("expected empty history after clear, got %q", text)
	}
}

func TestAppendRequiresSession(t *testing.T) {
	if err := NewInMemoryStore().Append(context.Background(), "", message.User("x")); err == nil {
		t.Fatalf("expected error for empty session id")
	}
}
