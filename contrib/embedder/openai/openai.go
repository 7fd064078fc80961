// Package openai implements vector.Embedder on the OpenAI embeddings API and
// compatible servers.
package openai

import (
	"context"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/vector"
)

// Config holds embedder settings. Dimension is requested from the API when
// the model supports shortened embeddings and always bounds the output.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     openaisdk.EmbeddingModel
	Dimension int
	BatchSize int
}

// DefaultConfig targets text-embedding-3-small.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:    apiKey,
		Model:     openaisdk.EmbeddingModelTextEmbedding3Small,
		Dimension: 1536,
		BatchSize: 64,
	}
}

var _ vector.Embedder = (*Embedder)(nil)

// Embedder implements vector.Embedder by using openai.
type Embedder struct {
	client openaisdk.Client
	cfg    Config
}

// New creates an Embedder.
func New(cfg Config) *Embedder {
	if cfg.Model == "" {
		cfg.Model = openaisdk.EmbeddingModelTextEmbedding3Small
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 1536
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Embedder{client: openaisdk.NewClient(opts...), cfg: cfg}
}

// Dimension implements vector.Embedder.
func (e *Embedder) Dimension() int {
	return e.cfg.Dimension
}

// Embed implements vector.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch implements vector.Embedder, splitting large inputs into
// BatchSize requests.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts to embed: %w", askerrors.ErrInvalidInput)
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(texts))
		vectors, err := e.request(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *Embedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	params := openaisdk.EmbeddingNewParams{
		Model: e.cfg.Model,
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}
	if e.cfg.Model != openaisdk.EmbeddingModelTextEmbeddingAda002 {
		params.Dimensions = openaisdk.Int(int64(e.cfg.Dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d: %w", len(texts), len(resp.Data), askerrors.ErrEmptyResponse)
	}

	out := make([][]float32, len(texts))
	for _, emb := range resp.Data {
		if emb.Index < 0 || int(emb.Index) >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", emb.Index)
		}
		out[emb.Index] = convertVector(emb.Embedding, e.cfg.Dimension)
	}
	return out, nil
}

func convertVector(input []float64, dim int) []float32 {
	vec := make([]float32, dim)
	for i := 0; i < len(input) && i < dim; i++ {
		vec[i] = float32(input[i])
	}
	return vec
}
