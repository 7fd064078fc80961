// Package config loads askflow settings from a .env file, the process
// environment and an optional YAML persona registry.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sweetpotato0/askflow/rag/agentic"
)

// Backend names.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
	BackendPG     = "pg"
)

// Chunker names for plain text and HTML documents.
const (
	ChunkerSimple = "simple"
	ChunkerToken  = "token"
)

// Search provider names.
const (
	SearchTavily     = "tavily"
	SearchSearXNG    = "searxng"
	SearchGoogle     = "google"
	SearchDuckDuckGo = "duckduckgo"
	SearchMCP        = "mcp"
)

// LLMConfig selects the chat model.
type LLMConfig struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// EmbeddingConfig selects the embedding model; an empty APIKey disables
// embeddings and the in-memory index falls back to lexical ranking.
type EmbeddingConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
}

// SearchConfig selects the web search provider.
type SearchConfig struct {
	Provider string
	APIKey   string
	URL      string
	EngineID string
	Language string
	// MCPCommand launches a stdio MCP server exposing a search tool.
	// MCPURL reaches one over streamable HTTP instead and wins when both are set.
	MCPCommand string
	MCPURL     string
	MCPTool    string
}

// RetrieverConfig selects the knowledge index.
type RetrieverConfig struct {
	Backend         string
	DocsDir         string
	Chunker         string // simple or token
	PGDSN           string
	PGTable         string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	MMRLambda       float64 // 0 keeps plain score ordering
}

// HistoryConfig selects where conversations are kept.
type HistoryConfig struct {
	Backend         string
	Window          int
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	TTL             time.Duration
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	PGDSN           string
	PGTable         string
}

// CacheConfig selects the LLM response cache.
type CacheConfig struct {
	Backend string
	TTL     time.Duration
}

// WorkflowConfig overrides engine thresholds, budgets and deadlines.
type WorkflowConfig struct {
	QualityThreshold    int
	ConfidenceThreshold int
	RAGTopK             int
	WebTopK             int
	MaxContextTokens    int
	GraphMaxVisits      int
	Timeouts            agentic.Timeouts
}

// TelemetryConfig selects the trace exporter.
type TelemetryConfig struct {
	Exporter string
	Endpoint string
}

// Config is the complete runtime configuration.
type Config struct {
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Search    SearchConfig
	Retriever RetrieverConfig
	History   HistoryConfig
	Cache     CacheConfig
	Workflow  WorkflowConfig
	Telemetry TelemetryConfig

	PersonaFile string
	PersonaName string
	Persona     agentic.Persona

	MetricsAddr string
}

// PersonaRegistry is the YAML layout of a persona file.
type PersonaRegistry struct {
	Default  string                     `yaml:"default"`
	Personas map[string]agentic.Persona `yaml:"personas"`
}

// Load reads envFile (if present) without overriding variables already set,
// then builds and validates the configuration.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds the configuration from ASKFLOW_* variables and the
// provider-specific key variables.
func FromEnv() (*Config, error) {
	cfg := &Config{
		LLM: LLMConfig{
			Provider:    getEnv("ASKFLOW_LLM_PROVIDER", "openai"),
			APIKey:      firstEnv("ASKFLOW_LLM_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "GROQ_API_KEY"),
			BaseURL:     os.Getenv("ASKFLOW_LLM_BASE_URL"),
			Model:       os.Getenv("ASKFLOW_LLM_MODEL"),
			MaxTokens:   getEnvInt("ASKFLOW_LLM_MAX_TOKENS", 0),
			Temperature: getEnvFloat("ASKFLOW_LLM_TEMPERATURE", 0),
		},
		Embedding: EmbeddingConfig{
			APIKey:    firstEnv("ASKFLOW_EMBEDDING_API_KEY", "OPENAI_API_KEY"),
			BaseURL:   os.Getenv("ASKFLOW_EMBEDDING_BASE_URL"),
			Model:     os.Getenv("ASKFLOW_EMBEDDING_MODEL"),
			Dimension: getEnvInt("ASKFLOW_EMBEDDING_DIMENSION", 1536),
		},
		Search: SearchConfig{
			Provider:   getEnv("ASKFLOW_SEARCH_PROVIDER", BackendNone),
			APIKey:     firstEnv("ASKFLOW_SEARCH_API_KEY", "TAVILY_API_KEY", "GOOGLE_API_KEY"),
			URL:        os.Getenv("ASKFLOW_SEARCH_URL"),
			EngineID:   os.Getenv("ASKFLOW_SEARCH_ENGINE_ID"),
			Language:   os.Getenv("ASKFLOW_SEARCH_LANGUAGE"),
			MCPCommand: os.Getenv("ASKFLOW_SEARCH_MCP_COMMAND"),
			MCPURL:     os.Getenv("ASKFLOW_SEARCH_MCP_URL"),
			MCPTool:    getEnv("ASKFLOW_SEARCH_MCP_TOOL", "web_search"),
		},
		Retriever: RetrieverConfig{
			Backend:         getEnv("ASKFLOW_RETRIEVER", BackendMemory),
			DocsDir:         os.Getenv("ASKFLOW_DOCS_DIR"),
			Chunker:         getEnv("ASKFLOW_CHUNKER", ChunkerSimple),
			PGDSN:           os.Getenv("ASKFLOW_PG_DSN"),
			PGTable:         getEnv("ASKFLOW_PG_TABLE", "askflow_chunks"),
			MongoURI:        getEnv("ASKFLOW_MONGO_URI", "mongodb://localhost:27017"),
			MongoDatabase:   getEnv("ASKFLOW_MONGO_DATABASE", "askflow"),
			MongoCollection: getEnv("ASKFLOW_MONGO_CHUNKS", "chunks"),
			MMRLambda:       getEnvFloat("ASKFLOW_MMR_LAMBDA", 0),
		},
		History: HistoryConfig{
			Backend:         getEnv("ASKFLOW_HISTORY", BackendMemory),
			Window:          getEnvInt("ASKFLOW_HISTORY_WINDOW", 10),
			RedisAddr:       getEnv("ASKFLOW_REDIS_ADDR", "localhost:6379"),
			RedisPassword:   os.Getenv("ASKFLOW_REDIS_PASSWORD"),
			RedisDB:         getEnvInt("ASKFLOW_REDIS_DB", 0),
			TTL:             getEnvDuration("ASKFLOW_HISTORY_TTL", 7*24*time.Hour),
			MongoURI:        getEnv("ASKFLOW_MONGO_URI", "mongodb://localhost:27017"),
			MongoDatabase:   getEnv("ASKFLOW_HISTORY_DATABASE", "chat_history"),
			MongoCollection: getEnv("ASKFLOW_HISTORY_COLLECTION", "askflow"),
			PGDSN:           os.Getenv("ASKFLOW_HISTORY_PG_DSN"),
			PGTable:         getEnv("ASKFLOW_HISTORY_PG_TABLE", "askflow_history"),
		},
		Cache: CacheConfig{
			Backend: getEnv("ASKFLOW_CACHE", BackendNone),
			TTL:     getEnvDuration("ASKFLOW_CACHE_TTL", time.Hour),
		},
		Workflow: WorkflowConfig{
			QualityThreshold:    getEnvInt("ASKFLOW_QUALITY_THRESHOLD", 60),
			ConfidenceThreshold: getEnvInt("ASKFLOW_CONFIDENCE_THRESHOLD", 70),
			RAGTopK:             getEnvInt("ASKFLOW_RAG_TOP_K", 4),
			WebTopK:             getEnvInt("ASKFLOW_WEB_TOP_K", 3),
			MaxContextTokens:    getEnvInt("ASKFLOW_MAX_CONTEXT_TOKENS", 2000),
			GraphMaxVisits:      getEnvInt("ASKFLOW_GRAPH_MAX_VISITS", 2),
			Timeouts: agentic.Timeouts{
				Fact:       getEnvDuration("ASKFLOW_TIMEOUT_FACT", 0),
				Rewrite:    getEnvDuration("ASKFLOW_TIMEOUT_REWRITE", 0),
				Clarify:    getEnvDuration("ASKFLOW_TIMEOUT_CLARIFY", 0),
				Quality:    getEnvDuration("ASKFLOW_TIMEOUT_QUALITY", 0),
				Route:      getEnvDuration("ASKFLOW_TIMEOUT_ROUTE", 0),
				Synthesis:  getEnvDuration("ASKFLOW_TIMEOUT_SYNTHESIS", 0),
				Assess:     getEnvDuration("ASKFLOW_TIMEOUT_ASSESS", 0),
				Supplement: getEnvDuration("ASKFLOW_TIMEOUT_SUPPLEMENT", 0),
				Retrieval:  getEnvDuration("ASKFLOW_TIMEOUT_RETRIEVAL", 0),
				Search:     getEnvDuration("ASKFLOW_TIMEOUT_SEARCH", 0),
			},
		},
		Telemetry: TelemetryConfig{
			Exporter: os.Getenv("ASKFLOW_TRACE_EXPORTER"),
			Endpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		},
		PersonaFile: os.Getenv("ASKFLOW_PERSONA_FILE"),
		PersonaName: os.Getenv("ASKFLOW_PERSONA"),
		MetricsAddr: os.Getenv("ASKFLOW_METRICS_ADDR"),
	}

	cfg.Persona = agentic.EnglishPersona()
	if strings.EqualFold(os.Getenv("ASKFLOW_LANGUAGE"), "ko") {
		cfg.Persona = agentic.KoreanPersona()
	}
	if cfg.PersonaFile != "" {
		p, err := LoadPersona(cfg.PersonaFile, cfg.PersonaName)
		if err != nil {
			return nil, err
		}
		cfg.Persona = p
	}
	if role := os.Getenv("ASKFLOW_ROLE"); role != "" {
		cfg.Persona.Role = role
	}
	return cfg, nil
}

// LoadPersona reads a persona registry and returns the named entry, or the
// registry default when name is empty.
func LoadPersona(path, name string) (agentic.Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return agentic.Persona{}, fmt.Errorf("read persona file: %w", err)
	}
	var reg PersonaRegistry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return agentic.Persona{}, fmt.Errorf("parse persona file %s: %w", path, err)
	}
	if name == "" {
		name = reg.Default
	}
	p, ok := reg.Personas[name]
	if !ok {
		return agentic.Persona{}, fmt.Errorf("persona %q not found in %s", name, path)
	}
	if p.Name == "" {
		p.Name = name
	}
	return p, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	v := NewValidator()
	v.ValidateOneOf("llm.provider", strings.ToLower(c.LLM.Provider), "openai", "groq", "ollama", "claude", "gemini")
	if !strings.EqualFold(c.LLM.Provider, "ollama") {
		v.RequireNonEmpty("llm.api_key", c.LLM.APIKey)
	}
	v.ValidateFloatRange("llm.temperature", c.LLM.Temperature, 0, 2)

	v.ValidateOneOf("search.provider", c.Search.Provider,
		BackendNone, SearchTavily, SearchSearXNG, SearchGoogle, SearchDuckDuckGo, SearchMCP)
	switch c.Search.Provider {
	case SearchTavily:
		v.RequireNonEmpty("search.api_key", c.Search.APIKey)
	case SearchGoogle:
		v.RequireNonEmpty("search.api_key", c.Search.APIKey)
		v.RequireNonEmpty("search.engine_id", c.Search.EngineID)
	case SearchSearXNG:
		v.RequireNonEmpty("search.url", c.Search.URL)
	case SearchMCP:
		if c.Search.MCPURL == "" {
			v.RequireNonEmpty("search.mcp_command", c.Search.MCPCommand)
		}
	}

	v.ValidateOneOf("retriever.backend", c.Retriever.Backend, BackendNone, BackendMemory, BackendPG, BackendMongo)
	if c.Retriever.Backend == BackendPG {
		v.RequireNonEmpty("retriever.pg_dsn", c.Retriever.PGDSN)
		v.RequireNonEmpty("embedding.api_key", c.Embedding.APIKey)
	}
	v.ValidateOneOf("retriever.chunker", c.Retriever.Chunker, ChunkerSimple, ChunkerToken)
	v.ValidateFloatRange("retriever.mmr_lambda", c.Retriever.MMRLambda, 0, 1)

	v.ValidateOneOf("history.backend", c.History.Backend, BackendNone, BackendMemory, BackendRedis, BackendMongo, BackendPG)
	if c.History.Backend == BackendPG {
		v.RequireNonEmpty("history.pg_dsn", c.History.PGDSN)
	}
	v.ValidateRange("history.redis_db", c.History.RedisDB, 0, 15)
	v.RequirePositive("history.window", c.History.Window)
	v.ValidateOneOf("cache.backend", c.Cache.Backend, BackendNone, BackendMemory, BackendRedis)

	v.ValidateRange("workflow.quality_threshold", c.Workflow.QualityThreshold, 0, 100)
	v.ValidateRange("workflow.confidence_threshold", c.Workflow.ConfidenceThreshold, 0, 100)
	v.RequirePositive("workflow.rag_top_k", c.Workflow.RAGTopK)
	v.RequirePositive("workflow.web_top_k", c.Workflow.WebTopK)
	v.ValidateRange("workflow.max_context_tokens", c.Workflow.MaxContextTokens, 0, 1<<20)
	v.RequirePositive("workflow.graph_max_visits", c.Workflow.GraphMaxVisits)
	return v.Error()
}

// AgenticOptions maps the workflow settings onto engine options.
func (c *Config) AgenticOptions() []agentic.Option {
	return []agentic.Option{
		agentic.WithPersona(c.Persona),
		agentic.WithQualityThreshold(c.Workflow.QualityThreshold),
		agentic.WithConfidenceThreshold(c.Workflow.ConfidenceThreshold),
		agentic.WithTopK(c.Workflow.RAGTopK, c.Workflow.WebTopK),
		agentic.WithMaxContextTokens(c.Workflow.MaxContextTokens),
		agentic.WithGraphMaxVisits(c.Workflow.GraphMaxVisits),
		agentic.WithTimeouts(c.Workflow.Timeouts),
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return fallback
}
