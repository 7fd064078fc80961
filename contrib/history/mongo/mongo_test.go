package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/sweetpotato0/askflow/history"
	"github.com/sweetpotato0/askflow/message"
)

func TestToMessagesRestoresChronologicalOrder(t *testing.T) {
	msgs := toMessages([]turn{
		{Role: message.RoleAssistant, Content: "newest"},
		{Role: message.RoleUser, Content: "oldest"},
	})
	if len(msgs) != 2 || msgs[0].Content != "oldest" || msgs[1].Role != message.RoleAssistant {
		t.Fatalf("unexpected order %+v", msgs)
	}
}

func TestToDocumentsSkipsNil(t *testing.T) {
	at := time.Unix(0, 0)
	docs := toDocuments("s", at, []*message.Message{nil, message.User("q")})
	if len(docs) != 1 {
		t.Fatalf("expected one document, got %d", len(docs))
	}
	if doc := docs[0].(turn); doc.SessionID != "s" || doc.Content != "q" || !doc.CreatedAt.Equal(at) {
		t.Fatalf("unexpected document %+v", doc)
	}
}

// TestStore requires a running MongoDB; set MONGODB_URI to enable it.
func TestStore(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set, skipping MongoDB history tests")
	}
	ctx := context.Background()
	store, err := New(ctx, &Config{URI: uri, Database: "askflow_test", Collection: "history_test"})
	if err != nil {
		t.Skipf("Failed to connect to MongoDB: %v", err)
	}
	defer store.Close(ctx)
	_ = store.Clear(ctx, "t1")

	if err := history.Record(ctx, store, "t1", "q1", "a1"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := history.Record(ctx, store, "t1", "q2", "a2"); err != nil {
		t.Fatalf("record: %v", err)
	}
	msgs, err := store.Messages(ctx, "t1", 2)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "q2" || msgs[1].Content != "a2" {
		t.Fatalf("unexpected tail %+v", msgs)
	}
}
