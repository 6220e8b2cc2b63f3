package model

import "time"

// ProvenanceMode controls how strictly claims lacking quotes or source locators are treated
type ProvenanceMode string

const (
	ProvenanceOff    ProvenanceMode = "off"
	ProvenanceWarn   ProvenanceMode = "warn"
	ProvenanceStrict ProvenanceMode = "strict"
)

// ParseProvenanceMode parses a mode name. Unknown values fall back to warn.
func ParseProvenanceMode(raw string) ProvenanceMode {
	switch m := ProvenanceMode(normalizeLabel(raw)); m {
	case ProvenanceOff, ProvenanceWarn, ProvenanceStrict:
		return m
	}
	return ProvenanceWarn
}

// Config is the complete claimledger configuration
type Config struct {
	BrainsDir    string             `yaml:"brains_dir" mapstructure:"brains_dir"`
	Claims       ClaimsConfig       `yaml:"claims" mapstructure:"claims"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	MultiQuery   MultiQueryConfig   `yaml:"multi_query" mapstructure:"multi_query"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Metrics      MetricsConfig      `yaml:"metrics" mapstructure:"metrics"`
}

// ClaimsConfig holds the two global ledger enforcement switches
type ClaimsConfig struct {
	Versioning bool           `yaml:"versioning" mapstructure:"versioning"` // ledger tracking on/off
	Provenance ProvenanceMode `yaml:"provenance" mapstructure:"provenance"` // off, warn, strict
}

// LLMConfig configures the language-model provider
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // openai, openrouter, anthropic, minimax, ollama
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"-" mapstructure:"api_key"` // read from env, never written to disk
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// MultiQueryConfig bounds multi-source query fan-out
type MultiQueryConfig struct {
	MaxSources        int `yaml:"max_sources" mapstructure:"max_sources"`
	MaxFilesPerSource int `yaml:"max_files_per_source" mapstructure:"max_files_per_source"`
	Workers           int `yaml:"workers" mapstructure:"workers"` // 1 = sequential
}

// CacheConfig configures the model-response cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// RateLimitingConfig throttles calls per provider
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// MetricsConfig configures Prometheus textfile export
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty" mapstructure:"textfile"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		BrainsDir: "brains",
		Claims: ClaimsConfig{
			Versioning: true,
			Provenance: ProvenanceWarn,
		},
		LLM: LLMConfig{
			Provider:  "anthropic",
			Timeout:   120,
			MaxTokens: 4096,
		},
		MultiQuery: MultiQueryConfig{
			MaxSources:        5,
			MaxFilesPerSource: 12,
			Workers:           1,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".claimledger-cache",
			MemoryTTL: 15 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 2,
			BurstSize:         4,
		},
	}
}
