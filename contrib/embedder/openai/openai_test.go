package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEmbedBatchSplitsAndOrders(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		requests++
		var req struct {
			Input      []string `json:"input"`
			Dimensions int      `json:"dimensions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Dimensions != 3 {
			t.Errorf("expected dimensions 3, got %d", req.Dimensions)
		}
		// answer in reverse order to exercise index mapping
		var data []string
		for i := len(req.Input) - 1; i >= 0; i-- {
			v := float64(len(req.Input[i]))
			data = append(data, fmt.Sprintf(`{"object":"embedding","index":%d,"embedding":[%v,0,1,9]}`, i, v))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"object":"list","model":"m","data":[%s],"usage":{"prompt_tokens":1,"total_tokens":1}}`, strings.Join(data, ","))
	}))
	defer srv.Close()

	e := New(Config{APIKey: "k", BaseURL: srv.URL + "/v1/", Model: "text-embedding-3-small", Dimension: 3, BatchSize: 2})
	vectors, err := e.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if requests != 2 {
		t.Fatalf("expected 2 batched requests, got %d", requests)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	for i, want := range []float32{1, 2, 3} {
		if len(vectors[i]) != 3 || vectors[i][0] != want {
			t.Fatalf("vector %d = %v", i, vectors[i])
		}
	}
}

func TestEmbedBatchRejectsEmptyInput(t *testing.T) {
	if _, err := New(DefaultConfig("k")).EmbedBatch(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty input")
	}
}
