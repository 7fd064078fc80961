package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	rediscache "github.com/sweetpotato0/askflow/contrib/cache/redis"
	"github.com/sweetpotato0/askflow/contrib/chunking/markdown"
	"github.com/sweetpotato0/askflow/contrib/chunking/token"
	embedopenai "github.com/sweetpotato0/askflow/contrib/embedder/openai"
	mongohistory "github.com/sweetpotato0/askflow/contrib/history/mongo"
	pghistory "github.com/sweetpotato0/askflow/contrib/history/pg"
	redishistory "github.com/sweetpotato0/askflow/contrib/history/redis"
	"github.com/sweetpotato0/askflow/contrib/provider"
	"github.com/sweetpotato0/askflow/contrib/reranker/mmr"
	"github.com/sweetpotato0/askflow/contrib/retriever/inmemory"
	mongoretriever "github.com/sweetpotato0/askflow/contrib/retriever/mongo"
	pgretriever "github.com/sweetpotato0/askflow/contrib/retriever/pg"
	"github.com/sweetpotato0/askflow/contrib/tokenizer/tiktoken"
	"github.com/sweetpotato0/askflow/contrib/websearch/duckduckgo"
	"github.com/sweetpotato0/askflow/contrib/websearch/google"
	mcpsearch "github.com/sweetpotato0/askflow/contrib/websearch/mcp"
	"github.com/sweetpotato0/askflow/contrib/websearch/searxng"
	"github.com/sweetpotato0/askflow/contrib/websearch/tavily"
	"github.com/sweetpotato0/askflow/config"
	"github.com/sweetpotato0/askflow/history"
	"github.com/sweetpotato0/askflow/llm"
	"github.com/sweetpotato0/askflow/llm/cache"
	"github.com/sweetpotato0/askflow/mcp"
	"github.com/sweetpotato0/askflow/pkg/logging"
	"github.com/sweetpotato0/askflow/pkg/metrics"
	"github.com/sweetpotato0/askflow/pkg/resilience"
	"github.com/sweetpotato0/askflow/pkg/telemetry"
	"github.com/sweetpotato0/askflow/rag/agentic"
	"github.com/sweetpotato0/askflow/rag/ingest"
	"github.com/sweetpotato0/askflow/rag/retriever"
	"github.com/sweetpotato0/askflow/rag/tokenizer"
	"github.com/sweetpotato0/askflow/rag/websearch"
	"github.com/sweetpotato0/askflow/vector"
)

// app owns every long-lived collaborator built from the configuration.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	engine  *agentic.Engine
	history history.Store
	metrics *metrics.Metrics

	closers []func(context.Context) error
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse construction order.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logging.WithComponent("askflow")}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceVersion: mcp.Version,
		Exporter:       cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
	})
	if err != nil {
		return nil, err
	}
	a.onClose(shutdown)

	registry := prometheus.NewRegistry()
	a.metrics = metrics.New(registry)
	if cfg.MetricsAddr != "" {
		a.serveMetrics(registry)
	}

	client, err := a.buildLLM(ctx)
	if err != nil {
		return nil, err
	}
	embedder := buildEmbedder(cfg.Embedding)
	ret, err := a.buildRetriever(ctx, embedder)
	if err != nil {
		return nil, err
	}
	search, err := a.buildSearcher(ctx)
	if err != nil {
		return nil, err
	}
	if a.history, err = a.buildHistory(ctx); err != nil {
		return nil, err
	}

	opts := append(cfg.AgenticOptions(), agentic.WithMetrics(a.metrics))
	if tok := a.buildTokenizer(); tok != nil {
		opts = append(opts, agentic.WithTokenizer(tok))
	}
	a.engine, err = agentic.NewEngine(agentic.Ports{LLM: client, Retriever: ret, Search: search}, opts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) serveMetrics(registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", "error", err)
		}
	}()
	a.onClose(srv.Shutdown)
	a.logger.Info("serving metrics", "addr", a.cfg.MetricsAddr)
}

func (a *app) buildLLM(ctx context.Context) (llm.Client, error) {
	c := a.cfg.LLM
	client, closeFn, err := provider.New(ctx, provider.Settings{
		Name:        c.Provider,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("build llm: %w", err)
	}
	a.onClose(func(context.Context) error { return closeFn() })

	var store cache.Store
	switch a.cfg.Cache.Backend {
	case config.BackendMemory:
		store = cache.NewMemoryStore(10 * time.Minute)
	case config.BackendRedis:
		rdb := a.redisClient()
		a.onClose(func(context.Context) error { return rdb.Close() })
		store = rediscache.New(rdb, "askflow:cache:")
	default:
		return client, nil
	}
	return cache.New(client, store,
		cache.WithTTL(a.cfg.Cache.TTL),
		cache.WithNamespace(c.Provider+"/"+c.Model),
		cache.WithMetrics(a.metrics),
	), nil
}

func (a *app) redisClient() *redis.Client {
	h := a.cfg.History
	return redis.NewClient(&redis.Options{Addr: h.RedisAddr, Password: h.RedisPassword, DB: h.RedisDB})
}

func buildEmbedder(c config.EmbeddingConfig) vector.Embedder {
	if c.APIKey == "" {
		return nil
	}
	ec := embedopenai.DefaultConfig(c.APIKey)
	ec.BaseURL = c.BaseURL
	if c.Model != "" {
		ec.Model = openaisdk.EmbeddingModel(c.Model)
	}
	if c.Dimension > 0 {
		ec.Dimension = c.Dimension
	}
	return embedopenai.New(ec)
}

// indexer is a retriever that can also be written to by ingestion.
type indexer interface {
	retriever.Retriever
	ingest.Indexer
}

func (a *app) openIndex(ctx context.Context, embedder vector.Embedder) (indexer, error) {
	rc := a.cfg.Retriever
	switch rc.Backend {
	case config.BackendMemory:
		opts := []inmemory.Option{inmemory.WithEmbedder(embedder)}
		if rc.MMRLambda > 0 {
			opts = append(opts, inmemory.WithReranker(mmr.New(float32(rc.MMRLambda))))
		}
		return inmemory.New(opts...), nil
	case config.BackendPG:
		store, err := pgretriever.New(ctx, &pgretriever.Config{
			DSN:       rc.PGDSN,
			Dimension: a.cfg.Embedding.Dimension,
			TableName: rc.PGTable,
		}, embedder)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return store.Close() })
		return store, nil
	case config.BackendMongo:
		store, err := mongoretriever.New(ctx, &mongoretriever.Config{
			URI:        rc.MongoURI,
			Database:   rc.MongoDatabase,
			Collection: rc.MongoCollection,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(store.Close)
		return store, nil
	}
	return nil, nil
}

func (a *app) buildRetriever(ctx context.Context, embedder vector.Embedder) (retriever.Retriever, error) {
	idx, err := a.openIndex(ctx, embedder)
	if err != nil {
		return nil, fmt.Errorf("open %s index: %w", a.cfg.Retriever.Backend, err)
	}
	if idx == nil {
		return nil, nil
	}
	// The in-memory index only lives as long as the process.
	if mem, ok := idx.(*inmemory.Index); ok && a.cfg.Retriever.DocsDir != "" {
		pipeline, err := a.newIngestPipeline(mem, embedder)
		if err != nil {
			return nil, err
		}
		stats, err := pipeline.IngestDir(ctx, a.cfg.Retriever.DocsDir)
		if err != nil {
			return nil, fmt.Errorf("ingest %s: %w", a.cfg.Retriever.DocsDir, err)
		}
		a.logger.Info("indexed documents in memory", "documents", stats.Documents, "chunks", stats.Chunks)
	}
	return resilience.Retriever(idx, resilience.DefaultConfig("retriever")), nil
}

func (a *app) newIngestPipeline(idx ingest.Indexer, embedder vector.Embedder) (*ingest.Pipeline, error) {
	opts := []ingest.Option{
		ingest.WithEmbedder(embedder),
		ingest.WithMarkdownChunker(markdown.New()),
	}
	if a.cfg.Retriever.Chunker == config.ChunkerToken {
		var tok tokenizer.Tokenizer
		if t := a.buildTokenizer(); t != nil {
			tok = t
		}
		opts = append(opts, ingest.WithChunker(token.New(tok)))
	}
	return ingest.New(idx, opts...)
}

func (a *app) buildSearcher(ctx context.Context) (websearch.Searcher, error) {
	sc := a.cfg.Search
	var (
		s   websearch.Searcher
		err error
	)
	switch sc.Provider {
	case config.SearchTavily:
		s, err = tavily.New(tavily.Config{APIKey: sc.APIKey, URL: sc.URL})
	case config.SearchSearXNG:
		s, err = searxng.New(sc.URL, sc.Language)
	case config.SearchGoogle:
		s, err = google.New(ctx, google.Config{APIKey: sc.APIKey, EngineID: sc.EngineID, Language: sc.Language})
	case config.SearchDuckDuckGo:
		s = duckduckgo.New(sc.URL, sc.Language)
	case config.SearchMCP:
		s, err = a.mcpSearcher(ctx)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("build %s search: %w", sc.Provider, err)
	}
	return resilience.Searcher(s, resilience.DefaultConfig("websearch")), nil
}

func (a *app) mcpSearcher(ctx context.Context) (websearch.Searcher, error) {
	var (
		client *mcp.Client
		err    error
	)
	logger := mcp.WithLogger(logging.WithComponent("mcp"))
	if url := a.cfg.Search.MCPURL; url != "" {
		client, err = mcp.NewStreamableClient(ctx, url, logger)
	} else {
		fields := strings.Fields(a.cfg.Search.MCPCommand)
		if len(fields) == 0 {
			return nil, errors.New("empty mcp command")
		}
		client, err = mcp.NewStdioClient(ctx, fields[0], mcp.WithCommandArgs(fields[1:]...), logger)
	}
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return client.Close() })
	return mcpsearch.New(client, mcpsearch.Config{Tool: a.cfg.Search.MCPTool})
}

func (a *app) buildHistory(ctx context.Context) (history.Store, error) {
	hc := a.cfg.History
	switch hc.Backend {
	case config.BackendMemory:
		return history.NewInMemoryStore(), nil
	case config.BackendRedis:
		store := redishistory.NewWithClient(a.redisClient(), "askflow:history:", hc.TTL)
		a.onClose(func(context.Context) error { return store.Close() })
		return store, nil
	case config.BackendMongo:
		store, err := mongohistory.New(ctx, &mongohistory.Config{
			URI:        hc.MongoURI,
			Database:   hc.MongoDatabase,
			Collection: hc.MongoCollection,
		})
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		a.onClose(store.Close)
		return store, nil
	case config.BackendPG:
		store, err := pghistory.New(ctx, &pghistory.Config{DSN: hc.PGDSN, TableName: hc.PGTable})
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		a.onClose(func(context.Context) error { return store.Close() })
		return store, nil
	}
	return nil, nil
}

// buildTokenizer prefers the model's BPE encoding and falls back to rune
// counting when the encoding cannot be loaded, e.g. offline.
func (a *app) buildTokenizer() *tiktoken.Tokenizer {
	name := a.cfg.LLM.Model
	if name == "" {
		name = "cl100k_base"
	}
	tok, err := tiktoken.NewTiktokenTokenizer(name)
	if err != nil {
		if tok, err = tiktoken.NewTiktokenTokenizer("cl100k_base"); err != nil {
			a.logger.Warn("tiktoken unavailable, counting runes", "error", err)
			return nil
		}
	}
	return tok
}
