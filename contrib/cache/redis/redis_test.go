package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestStoreGetSet(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := New(client, "")
	if _, ok, err := store.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "k", "cached answer", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("askflow:llm:k") {
		t.Fatalf("expected prefixed key in redis")
	}
	text, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || text != "cached answer" {
		t.Fatalf("unexpected get %q %v %v", text, ok, err)
	}

	mr.FastForward(2 * time.Minute)
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestStoreReportsConnectionErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	if _, _, err := New(client, "p:").Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}
