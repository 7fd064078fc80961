package pg

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/history"
	"github.com/sweetpotato0/askflow/message"
)

func TestCompactDropsNil(t *testing.T) {
	got := compact([]*message.Message{nil, message.User("q"), nil})
	if len(got) != 1 || got[0].Content != "q" {
		t.Fatalf("unexpected rows %+v", got)
	}
}

func TestSchemaUsesTableName(t *testing.T) {
	s := &Store{table: "turns"}
	schema := s.schema()
	if !strings.Contains(schema, "CREATE TABLE IF NOT EXISTS turns") || !strings.Contains(schema, "idx_turns_session") {
		t.Fatalf("unexpected schema %s", schema)
	}
}

func TestNewRejectsBadTableName(t *testing.T) {
	_, err := New(context.Background(), &Config{DSN: "postgres://unused", TableName: "bad;name"})
	if !errors.Is(err, askerrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

// TestStore requires a running PostgreSQL; set POSTGRES_DSN to enable it.
func TestStore(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set, skipping PostgreSQL history tests")
	}
	ctx := context.Background()
	store, err := New(ctx, &Config{DSN: dsn, TableName: "askflow_history_test"})
	if err != nil {
		t.Skipf("Failed to connect to PostgreSQL: %v", err)
	}
	defer store.Close()
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
	if err := store.Clear(ctx, "t1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if msgs, _ := store.Messages(ctx, "t1", 0); len(msgs) != 0 {
		t.Fatalf("expected empty history after clear, got %d", len(msgs))
	}
}
