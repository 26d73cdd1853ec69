// Package config loads the agent configuration from YAML with hot-reload support.
// It uses fsnotify to watch for file changes and atomic pointer swaps so running loops pick
// up new thresholds without a restart.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blueberrycongee/murmur/internal/archive"
	"github.com/blueberrycongee/murmur/internal/memory"
	"github.com/blueberrycongee/murmur/internal/memory/embedcache"
	"github.com/blueberrycongee/murmur/internal/observability"
	"github.com/blueberrycongee/murmur/internal/secret/vault"
	"github.com/blueberrycongee/murmur/internal/store/postgres"
)

// Config represents the complete agent configuration.
type Config struct {
	Agent      AgentConfig                 `yaml:"agent"`
	Memory     MemoryConfig                `yaml:"memory"`
	Scoring    ScoringConfig               `yaml:"scoring"`
	Cycle      CycleConfig                 `yaml:"cycle"`
	Database   postgres.Config             `yaml:"database"`
	Hyperbolic CompletionConfig            `yaml:"hyperbolic"`
	OpenAI     EmbeddingConfig             `yaml:"openai"`
	X          XConfig                     `yaml:"x"`
	Redis      RedisConfig                 `yaml:"redis"`
	Archive    ArchiveConfig               `yaml:"archive"`
	Vault      VaultConfig                 `yaml:"vault"`
	Server     ServerConfig                `yaml:"server"`
	Logging    LoggingConfig               `yaml:"logging"`
	Metrics    MetricsConfig               `yaml:"metrics"`
	Tracing    observability.TracingConfig `yaml:"tracing"`
}

// AgentConfig identifies the agent.
type AgentConfig struct {
	Username string `yaml:"username"`
	Timezone string `yaml:"timezone"` // IANA name; empty means the host's local zone
}

// MemoryConfig covers the short-term buffer and the long-term store.
type MemoryConfig struct {
	ShortTermCapacity     int           `yaml:"short_term_capacity"`
	StoreThreshold        float64       `yaml:"store_threshold"`
	MergeDistance         float64       `yaml:"merge_distance"`
	Dimension             int           `yaml:"dimension"`
	ConsolidationInterval time.Duration `yaml:"consolidation_interval"`
	RetryAttempts         int           `yaml:"retry_attempts"`
	RetryBackoff          time.Duration `yaml:"retry_backoff"`
	CallTimeout           time.Duration `yaml:"call_timeout"`
	CacheLocalTTL         time.Duration `yaml:"cache_local_ttl"`
	CacheRedisTTL         time.Duration `yaml:"cache_redis_ttl"`
}

// ScoringConfig holds the significance blend.
type ScoringConfig struct {
	Weights            memory.ScoringWeights `yaml:"weights"`
	DefaultRelevance   float64               `yaml:"default_relevance"`
	DefaultPersistence float64               `yaml:"default_persistence"`
	EmotionalKeywords  []string              `yaml:"emotional_keywords"`
}

// CycleConfig controls the cognitive cycle cadence and gates.
type CycleConfig struct {
	Interval                  time.Duration `yaml:"interval"`
	Jitter                    float64       `yaml:"jitter"`
	PostThreshold             float64       `yaml:"post_threshold"`
	MinThoughtLength          int           `yaml:"min_thought_length"`
	RecentPostsLimit          int           `yaml:"recent_posts_limit"`
	ExternalContextLimit      int           `yaml:"external_context_limit"`
	MemoryLimit               int           `yaml:"memory_limit"`
	ActiveStartHour           int           `yaml:"active_start_hour"`
	ActiveEndHour             int           `yaml:"active_end_hour"`
	InteractionPollInterval   time.Duration `yaml:"interaction_poll_interval"`
	MaxConcurrentInteractions int           `yaml:"max_concurrent_interactions"`
	CallTimeout               time.Duration `yaml:"call_timeout"`
	ShutdownTimeout           time.Duration `yaml:"shutdown_timeout"`
}

// CompletionConfig configures the completion provider.
type CompletionConfig struct {
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	SystemPrompt      string        `yaml:"system_prompt"`
	MaxTokens         int           `yaml:"max_tokens"`
	Temperature       float64       `yaml:"temperature"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// XConfig configures the X API client.
type XConfig struct {
	BaseURL           string        `yaml:"base_url"`
	AccessToken       string        `yaml:"access_token"`
	UserID            string        `yaml:"user_id"`
	SearchQuery       string        `yaml:"search_query"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// RedisConfig enables the shared embedding cache tier.
type RedisConfig struct {
	Enabled                bool `yaml:"enabled"`
	embedcache.RedisConfig `yaml:",inline"`
}

// ArchiveConfig enables the S3 post archive.
type ArchiveConfig struct {
	Enabled        bool `yaml:"enabled"`
	archive.Config `yaml:",inline"`
}

// VaultConfig enables vault:// secret references.
type VaultConfig struct {
	Enabled      bool          `yaml:"enabled"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	vault.Config `yaml:",inline"`
}

// ServerConfig contains the metrics and health HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	scoring := memory.DefaultScoringConfig()
	cache := embedcache.DefaultConfig()
	return &Config{
		Memory: MemoryConfig{
			ShortTermCapacity:     memory.DefaultShortTermCapacity,
			StoreThreshold:        memory.DefaultStoreThreshold,
			MergeDistance:         memory.DefaultMergeDistance,
			Dimension:             memory.DefaultDimension,
			ConsolidationInterval: time.Hour,
			RetryAttempts:         3,
			RetryBackoff:          200 * time.Millisecond,
			CallTimeout:           memory.DefaultCallTimeout,
			CacheLocalTTL:         cache.LocalTTL,
			CacheRedisTTL:         cache.RedisTTL,
		},
		Scoring: ScoringConfig{
			Weights:            scoring.Weights,
			DefaultRelevance:   scoring.DefaultRelevance,
			DefaultPersistence: scoring.DefaultPersistence,
		},
		Cycle: CycleConfig{
			Interval:                  30 * time.Minute,
			Jitter:                    0.2,
			PostThreshold:             0.6,
			MinThoughtLength:          20,
			RecentPostsLimit:          10,
			ExternalContextLimit:      20,
			MemoryLimit:               5,
			ActiveStartHour:           8,
			ActiveEndHour:             3,
			InteractionPollInterval:   2 * time.Minute,
			MaxConcurrentInteractions: 4,
			CallTimeout:               30 * time.Second,
			ShutdownTimeout:           2 * time.Minute,
		},
		Database: postgres.DefaultConfig(),
		Hyperbolic: CompletionConfig{
			MaxTokens:         512,
			Temperature:       0.8,
			Timeout:           30 * time.Second,
			RequestsPerMinute: 60,
		},
		OpenAI: EmbeddingConfig{
			Model:             "text-embedding-3-small",
			Timeout:           30 * time.Second,
			RequestsPerMinute: 300,
		},
		X: XConfig{
			Timeout:           15 * time.Second,
			RequestsPerMinute: 15,
		},
		Redis: RedisConfig{
			RedisConfig: embedcache.RedisConfig{
				Addr:        "localhost:6379",
				DialTimeout: 5 * time.Second,
			},
		},
		Archive: ArchiveConfig{Config: archive.DefaultConfig()},
		Vault:   VaultConfig{CacheTTL: 10 * time.Minute},
		Server: ServerConfig{
			Port:         9090,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: observability.DefaultTracingConfig(),
	}
}

// LoadFromFile reads and parses a YAML configuration file. Environment variables are
// expanded before parsing.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of DefaultConfig and validates the result.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Location returns the agent's time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Agent.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Agent.Timezone)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Agent.Username == "" {
		return fmt.Errorf("agent.username is required")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("agent.timezone: %w", err)
	}

	if err := c.Memory.validate(); err != nil {
		return err
	}
	if err := c.Scoring.validate(); err != nil {
		return err
	}
	if err := c.Cycle.validate(); err != nil {
		return err
	}

	if c.Database.DSN == "" && c.Database.Host == "" {
		return fmt.Errorf("database: dsn or host is required")
	}
	if c.Database.MaxOpenConns < 0 || c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database: connection limits cannot be negative")
	}

	if c.Hyperbolic.MaxTokens <= 0 {
		return fmt.Errorf("hyperbolic.max_tokens must be positive")
	}
	if c.Hyperbolic.Temperature < 0 || c.Hyperbolic.Temperature > 2 {
		return fmt.Errorf("hyperbolic.temperature must be between 0 and 2, got %v", c.Hyperbolic.Temperature)
	}
	for name, d := range map[string]time.Duration{
		"hyperbolic.timeout": c.Hyperbolic.Timeout,
		"openai.timeout":     c.OpenAI.Timeout,
		"x.timeout":          c.X.Timeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s cannot be negative", name)
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" && len(c.Redis.ClusterAddrs) == 0 {
		return fmt.Errorf("redis: addr or cluster_addrs is required when enabled")
	}
	if c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required when enabled")
		}
		if c.Archive.BatchSize <= 0 {
			return fmt.Errorf("archive.batch_size must be positive")
		}
	}
	if c.Vault.Enabled && c.Vault.Address == "" {
		return fmt.Errorf("vault.address is required when enabled")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if _, err := observability.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	if c.Tracing.Enabled && (c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1) {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
	}

	return nil
}

func (m MemoryConfig) validate() error {
	if m.ShortTermCapacity <= 0 {
		return fmt.Errorf("memory.short_term_capacity must be positive")
	}
	if !unitInterval(m.StoreThreshold) {
		return fmt.Errorf("memory.store_threshold must be between 0 and 1, got %v", m.StoreThreshold)
	}
	if m.MergeDistance <= 0 || m.MergeDistance > 2 {
		return fmt.Errorf("memory.merge_distance must be in (0, 2], got %v", m.MergeDistance)
	}
	if m.Dimension <= 0 {
		return fmt.Errorf("memory.dimension must be positive")
	}
	if m.ConsolidationInterval <= 0 {
		return fmt.Errorf("memory.consolidation_interval must be positive")
	}
	if m.RetryAttempts <= 0 {
		return fmt.Errorf("memory.retry_attempts must be positive")
	}
	if m.RetryBackoff < 0 || m.CallTimeout < 0 {
		return fmt.Errorf("memory: durations cannot be negative")
	}
	return nil
}

func (s ScoringConfig) validate() error {
	w := s.Weights
	for name, v := range map[string]float64{
		"base":        w.Base,
		"novelty":     w.Novelty,
		"emotional":   w.Emotional,
		"relevance":   w.Relevance,
		"persistence": w.Persistence,
	} {
		if v < 0 {
			return fmt.Errorf("scoring.weights.%s cannot be negative", name)
		}
	}
	if w.Base+w.Novelty+w.Emotional+w.Relevance+w.Persistence == 0 {
		return fmt.Errorf("scoring.weights cannot all be zero")
	}
	if !unitInterval(s.DefaultRelevance) || !unitInterval(s.DefaultPersistence) {
		return fmt.Errorf("scoring: default relevance and persistence must be between 0 and 1")
	}
	return nil
}

func (c CycleConfig) validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("cycle.interval must be positive")
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		return fmt.Errorf("cycle.jitter must be in [0, 1), got %v", c.Jitter)
	}
	if !unitInterval(c.PostThreshold) {
		return fmt.Errorf("cycle.post_threshold must be between 0 and 1, got %v", c.PostThreshold)
	}
	if c.MinThoughtLength < 0 {
		return fmt.Errorf("cycle.min_thought_length cannot be negative")
	}
	if c.RecentPostsLimit < 0 || c.ExternalContextLimit < 0 || c.MemoryLimit < 0 {
		return fmt.Errorf("cycle: limits cannot be negative")
	}
	if !validHour(c.ActiveStartHour) || !validHour(c.ActiveEndHour) {
		return fmt.Errorf("cycle: active hours must be between 0 and 23")
	}
	if c.InteractionPollInterval <= 0 {
		return fmt.Errorf("cycle.interaction_poll_interval must be positive")
	}
	if c.MaxConcurrentInteractions <= 0 {
		return fmt.Errorf("cycle.max_concurrent_interactions must be positive")
	}
	if c.CallTimeout < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("cycle: timeouts cannot be negative")
	}
	return nil
}

func unitInterval(v float64) bool {
	return v >= 0 && v <= 1
}

func validHour(h int) bool {
	return h >= 0 && h <= 23
}
