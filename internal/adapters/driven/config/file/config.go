// Package file loads the corpus configuration from a TOML file.
// Configuration is stored in the corpus config directory and every
// field carries a default, so a missing file yields a working setup.
package file

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config is the full corpus configuration tree.
type Config struct {
	// DataDir is where the SQLite database lives.
	// Defaults to ~/.corpus/data.
	DataDir string `toml:"data_dir"`

	Ingest    IngestConfig    `toml:"ingest"`
	Chunking  ChunkingConfig  `toml:"chunking"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Cooccur   CooccurConfig   `toml:"cooccurrence"`
	Fetch     FetchConfig     `toml:"fetch"`
	Serve     ServeConfig     `toml:"serve"`
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	// MinContentLength is the minimum number of non-whitespace runes a
	// normalised document must contain.
	MinContentLength int `toml:"min_content_length"`
}

// ChunkingConfig controls how normalised documents are split.
type ChunkingConfig struct {
	// TargetTokens is the chunk size budget.
	TargetTokens int `toml:"target_tokens"`

	// OverlapPercent is the prose overlap between consecutive chunks.
	OverlapPercent int `toml:"overlap_percent"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	// Provider is the embedding backend ("openai" or an
	// OpenAI-compatible server).
	Provider string `toml:"provider"`

	// BaseURL overrides the provider API endpoint.
	BaseURL string `toml:"base_url"`

	// Model is the embedding model name.
	Model string `toml:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `toml:"api_key_env"`

	// Dimensions overrides the model's vector size.
	Dimensions int `toml:"dimensions"`

	// BatchSize caps texts per embedding request.
	BatchSize int `toml:"batch_size"`

	// RequestsPerSecond rate-limits embedding requests.
	RequestsPerSecond float64 `toml:"requests_per_second"`

	// Workers bounds concurrent embedding batches during ingestion.
	Workers int `toml:"workers"`
}

// RetrievalConfig tunes the ensemble retriever.
type RetrievalConfig struct {
	// VectorWeight, CooccurWeight and LexicalWeight set the fusion
	// weights. They are normalised at load, so any positive scale works.
	VectorWeight  float64 `toml:"vector_weight"`
	CooccurWeight float64 `toml:"cooccurrence_weight"`
	LexicalWeight float64 `toml:"lexical_weight"`

	// StrategyTimeoutMS bounds each retrieval strategy.
	StrategyTimeoutMS int `toml:"strategy_timeout_ms"`

	// OverfetchFactor multiplies k for per-strategy candidate pools.
	OverfetchFactor int `toml:"overfetch_factor"`

	// ContextTokenBudget caps the assembled answer context.
	ContextTokenBudget int `toml:"context_token_budget"`
}

// CooccurConfig tunes the co-occurrence graph.
type CooccurConfig struct {
	// Window is the token distance limit for term pairs.
	Window int `toml:"window"`

	// DecayBands overrides the distance decay schedule. Bands must be
	// sorted by max_distance with non-increasing weights; when empty
	// the index uses its built-in schedule.
	DecayBands []DecayBandConfig `toml:"decay_bands"`
}

// DecayBandConfig is one band of the co-occurrence decay schedule: term
// pairs at token distance up to MaxDistance contribute Weight.
type DecayBandConfig struct {
	MaxDistance int     `toml:"max_distance"`
	Weight      float64 `toml:"weight"`
}

// FetchConfig tunes the HTTP content fetcher.
type FetchConfig struct {
	// TimeoutSeconds bounds a single fetch attempt.
	TimeoutSeconds int `toml:"timeout_seconds"`

	// MaxAttempts bounds retries per fetch.
	MaxAttempts int `toml:"max_attempts"`

	// CacheTTLMinutes is the fetch cache lifetime.
	CacheTTLMinutes int `toml:"cache_ttl_minutes"`
}

// ServeConfig tunes the HTTP API server.
type ServeConfig struct {
	// Addr is the listen address.
	Addr string `toml:"addr"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Ingest: IngestConfig{
			MinContentLength: 20,
		},
		Chunking: ChunkingConfig{
			TargetTokens:   400,
			OverlapPercent: 15,
		},
		Embedding: EmbeddingConfig{
			Provider:          "openai",
			Model:             "text-embedding-3-small",
			APIKeyEnv:         "OPENAI_API_KEY",
			BatchSize:         64,
			RequestsPerSecond: 5,
			Workers:           4,
		},
		Retrieval: RetrievalConfig{
			VectorWeight:       0.40,
			CooccurWeight:      0.35,
			LexicalWeight:      0.25,
			StrategyTimeoutMS:  3000,
			OverfetchFactor:    3,
			ContextTokenBudget: 2000,
		},
		Cooccur: CooccurConfig{
			Window: 100,
		},
		Fetch: FetchConfig{
			TimeoutSeconds:  30,
			MaxAttempts:     3,
			CacheTTLMinutes: 15,
		},
		Serve: ServeConfig{
			Addr: "127.0.0.1:8480",
		},
	}
}

// Load reads the configuration from configDir/config.toml, filling any
// missing field with its default. An empty configDir selects
// ~/.corpus. A missing file returns the defaults.
func Load(configDir string) (Config, error) {
	cfg := Default()

	path, err := configPath(configDir)
	if err != nil {
		return cfg, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)
	return cfg, nil
}

// Save writes the configuration to configDir/config.toml with
// restricted permissions, creating the directory when needed.
func Save(configDir string, cfg Config) error {
	path, err := configPath(configDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

func configPath(configDir string) (string, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		configDir = filepath.Join(home, ".corpus")
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// applyDefaults replaces zero values with defaults so a sparse file
// only overrides what it names.
func applyDefaults(cfg *Config) {
	def := Default()

	if cfg.Ingest.MinContentLength <= 0 {
		cfg.Ingest.MinContentLength = def.Ingest.MinContentLength
	}
	if cfg.Chunking.TargetTokens <= 0 {
		cfg.Chunking.TargetTokens = def.Chunking.TargetTokens
	}
	if cfg.Chunking.OverlapPercent < 0 {
		cfg.Chunking.OverlapPercent = def.Chunking.OverlapPercent
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = def.Embedding.Provider
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = def.Embedding.Model
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = def.Embedding.APIKeyEnv
	}
	if cfg.Embedding.BatchSize <= 0 {
		cfg.Embedding.BatchSize = def.Embedding.BatchSize
	}
	if cfg.Embedding.RequestsPerSecond <= 0 {
		cfg.Embedding.RequestsPerSecond = def.Embedding.RequestsPerSecond
	}
	if cfg.Embedding.Workers <= 0 {
		cfg.Embedding.Workers = def.Embedding.Workers
	}
	if cfg.Retrieval.VectorWeight <= 0 && cfg.Retrieval.CooccurWeight <= 0 && cfg.Retrieval.LexicalWeight <= 0 {
		cfg.Retrieval.VectorWeight = def.Retrieval.VectorWeight
		cfg.Retrieval.CooccurWeight = def.Retrieval.CooccurWeight
		cfg.Retrieval.LexicalWeight = def.Retrieval.LexicalWeight
	}
	if cfg.Retrieval.StrategyTimeoutMS <= 0 {
		cfg.Retrieval.StrategyTimeoutMS = def.Retrieval.StrategyTimeoutMS
	}
	if cfg.Retrieval.OverfetchFactor <= 0 {
		cfg.Retrieval.OverfetchFactor = def.Retrieval.OverfetchFactor
	}
	if cfg.Retrieval.ContextTokenBudget <= 0 {
		cfg.Retrieval.ContextTokenBudget = def.Retrieval.ContextTokenBudget
	}
	if cfg.Cooccur.Window <= 0 {
		cfg.Cooccur.Window = def.Cooccur.Window
	}
	if cfg.Fetch.TimeoutSeconds <= 0 {
		cfg.Fetch.TimeoutSeconds = def.Fetch.TimeoutSeconds
	}
	if cfg.Fetch.MaxAttempts <= 0 {
		cfg.Fetch.MaxAttempts = def.Fetch.MaxAttempts
	}
	if cfg.Fetch.CacheTTLMinutes <= 0 {
		cfg.Fetch.CacheTTLMinutes = def.Fetch.CacheTTLMinutes
	}
	if cfg.Serve.Addr == "" {
		cfg.Serve.Addr = def.Serve.Addr
	}
}

// APIKey resolves the embedding API key from the configured environment
// variable.
func (c EmbeddingConfig) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}
