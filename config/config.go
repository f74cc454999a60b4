// Package config provides the configuration schema and loader for a yagokoro
// deployment. Configuration is read from a YAML file and then overridden by
// YAGOKORO_* environment variables, so containerised deployments can ship a
// base file and inject credentials at runtime.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/yagokoro-dev/yagokoro/kg"
)

// Backend names accepted by the graph and vector sections.
const (
	GraphBackendMemory = "memory"
	GraphBackendFalkor = "falkor"

	VectorBackendMemory   = "memory"
	VectorBackendPGVector = "pgvector"
)

// Config is the root configuration. Zero values fall back to the in-memory
// backends so a bare `yagokoro` invocation works without any file.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Graph     GraphConfig     `yaml:"graph"`
	Vector    VectorConfig    `yaml:"vector"`
	LLM       LLMConfig       `yaml:"llm"`
	Secrets   SecretsConfig   `yaml:"secrets"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Query     QueryConfig     `yaml:"query"`
	Lazy      LazyConfig      `yaml:"lazy"`
	Path      PathConfig      `yaml:"path"`
	Translate TranslateConfig `yaml:"translate"`
}

// GraphConfig selects and addresses the graph store.
type GraphConfig struct {
	// Backend is memory or falkor.
	Backend string `yaml:"backend"`
	// URI is the redis address of the FalkorDB instance.
	URI string `yaml:"uri"`
	// Password authenticates against the redis endpoint.
	Password string `yaml:"password"`
	// GraphName names the graph key inside FalkorDB.
	GraphName string `yaml:"graph_name"`
}

// VectorConfig selects and addresses the vector store.
type VectorConfig struct {
	// Backend is memory or pgvector.
	Backend string `yaml:"backend"`
	// URI is the postgres DSN for the pgvector backend.
	URI string `yaml:"uri"`
	// Dimension is the embedding dimension, fixed per deployment.
	Dimension int `yaml:"dimension"`
}

// LLMConfig addresses the OpenAI-compatible model endpoint.
type LLMConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// SecretsConfig configures the secret provider.
type SecretsConfig struct {
	// Prefix namespaces environment-backed secrets. Empty means YAGOKORO_.
	Prefix string `yaml:"prefix"`
	// Required lists secret names that must resolve at startup.
	Required []string `yaml:"required"`
}

// AuthConfig toggles API-key authentication for the external surfaces.
type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
}

// RateLimitConfig selects the limiter preset and optional redis backing.
type RateLimitConfig struct {
	// Preset is standard, strict, relaxed, hourly, or daily.
	Preset string `yaml:"preset"`
	// RedisURI switches the limiter from memory to redis when set.
	RedisURI string `yaml:"redis_uri"`
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	MaxConcurrentDocuments int `yaml:"max_concurrent_documents"`
	ChunkSize              int `yaml:"chunk_size"`
	ChunkOverlap           int `yaml:"chunk_overlap"`
}

// QueryConfig tunes the retrieval engines.
type QueryConfig struct {
	// CommunityLevel selects which partition level the global engine reads.
	CommunityLevel int `yaml:"community_level"`
}

// LazyConfig selects the lazy retrieval preset.
type LazyConfig struct {
	// Preset is Z100_LITE, Z500, or Z1500.
	Preset string `yaml:"preset"`
}

// PathConfig tunes the path reasoner.
type PathConfig struct {
	// Locale selects the explanation language, en or ja.
	Locale string `yaml:"locale"`
	// CacheTTLSeconds and CacheSize bound the path cache.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
	CacheSize       int `yaml:"cache_size"`
}

// TranslateConfig configures the translation service.
type TranslateConfig struct {
	// CachePath is the SQLite file backing the translation cache. Empty
	// disables caching.
	CachePath string `yaml:"cache_path"`
}

// Default returns the configuration a bare deployment runs with.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Graph:    GraphConfig{Backend: GraphBackendMemory, GraphName: "yagokoro"},
		Vector:   VectorConfig{Backend: VectorBackendMemory, Dimension: 1536},
		Secrets:  SecretsConfig{Prefix: "YAGOKORO_"},
		Ingest:   IngestConfig{MaxConcurrentDocuments: 5},
		Lazy:     LazyConfig{Preset: "Z100_LITE"},
		Path:     PathConfig{Locale: "en"},
	}
}

// Load reads the YAML file at path, applies environment overrides, and
// validates the result. An empty path loads defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, kg.Wrap(err, "open config "+path)
		}
		defer f.Close()
		if err := decode(f, cfg); err != nil {
			return nil, kg.Wrap(err, "parse config "+path)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes and validates a config without touching the
// environment. Useful in tests where configs are string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decode(r, cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return kg.NewValidation("config", "decode yaml: "+err.Error())
	}
	return nil
}

// ApplyEnv overrides fields from YAGOKORO_* variables. lookup is os.LookupEnv
// in production and a map lookup in tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup("YAGOKORO_" + key); ok {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := lookup("YAGOKORO_" + key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	set("LOG_LEVEL", &c.LogLevel)
	set("GRAPH_BACKEND", &c.Graph.Backend)
	set("GRAPH_URI", &c.Graph.URI)
	set("GRAPH_PASSWORD", &c.Graph.Password)
	set("GRAPH_NAME", &c.Graph.GraphName)
	set("VECTOR_BACKEND", &c.Vector.Backend)
	set("VECTOR_URI", &c.Vector.URI)
	setInt("VECTOR_DIMENSION", &c.Vector.Dimension)
	set("LLM_BASE_URL", &c.LLM.BaseURL)
	set("LLM_API_KEY", &c.LLM.APIKey)
	set("LLM_MODEL", &c.LLM.Model)
	set("LLM_EMBEDDING_MODEL", &c.LLM.EmbeddingModel)
	set("SECRET_PREFIX", &c.Secrets.Prefix)
	set("RATE_LIMIT_PRESET", &c.RateLimit.Preset)
	set("RATE_LIMIT_REDIS_URI", &c.RateLimit.RedisURI)
	set("LAZY_PRESET", &c.Lazy.Preset)
	set("PATH_LOCALE", &c.Path.Locale)
	set("TRANSLATE_CACHE_PATH", &c.Translate.CachePath)
	if v, ok := lookup("YAGOKORO_AUTH_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Auth.Enabled = b
		}
	}
}

// Validate checks cross-field coherence and returns every failure joined.
func Validate(cfg *Config) error {
	var errs []error

	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	switch cfg.Graph.Backend {
	case "", GraphBackendMemory:
	case GraphBackendFalkor:
		if cfg.Graph.URI == "" {
			errs = append(errs, errors.New("graph.uri is required when graph.backend is falkor"))
		}
	default:
		errs = append(errs, fmt.Errorf("graph.backend %q is invalid; valid values: memory, falkor", cfg.Graph.Backend))
	}

	switch cfg.Vector.Backend {
	case "", VectorBackendMemory:
	case VectorBackendPGVector:
		if cfg.Vector.URI == "" {
			errs = append(errs, errors.New("vector.uri is required when vector.backend is pgvector"))
		}
	default:
		errs = append(errs, fmt.Errorf("vector.backend %q is invalid; valid values: memory, pgvector", cfg.Vector.Backend))
	}
	if cfg.Vector.Dimension < 0 {
		errs = append(errs, fmt.Errorf("vector.dimension %d is negative", cfg.Vector.Dimension))
	}

	if cfg.Ingest.MaxConcurrentDocuments < 0 {
		errs = append(errs, fmt.Errorf("ingest.max_concurrent_documents %d is negative", cfg.Ingest.MaxConcurrentDocuments))
	}
	if cfg.Ingest.ChunkOverlap > 0 && cfg.Ingest.ChunkSize > 0 && cfg.Ingest.ChunkOverlap >= cfg.Ingest.ChunkSize {
		errs = append(errs, fmt.Errorf("ingest.chunk_overlap %d must be smaller than ingest.chunk_size %d",
			cfg.Ingest.ChunkOverlap, cfg.Ingest.ChunkSize))
	}

	switch cfg.RateLimit.Preset {
	case "", "standard", "strict", "relaxed", "hourly", "daily":
	default:
		errs = append(errs, fmt.Errorf("rate_limit.preset %q is invalid; valid values: standard, strict, relaxed, hourly, daily", cfg.RateLimit.Preset))
	}

	switch cfg.Lazy.Preset {
	case "", "Z100_LITE", "Z500", "Z1500":
	default:
		errs = append(errs, fmt.Errorf("lazy.preset %q is invalid; valid values: Z100_LITE, Z500, Z1500", cfg.Lazy.Preset))
	}

	switch cfg.Path.Locale {
	case "", "en", "ja":
	default:
		errs = append(errs, fmt.Errorf("path.locale %q is invalid; valid values: en, ja", cfg.Path.Locale))
	}

	return errors.Join(errs...)
}
