// Package config loads gateway configuration from YAML over production defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"
)

// CacheConfig controls one cache kind.
type CacheConfig struct {
	TTL                 time.Duration `yaml:"ttl"`
	MaxEntriesPerTenant int           `yaml:"max_entries_per_tenant"`
}

// CachesConfig holds the three independently tuned cache kinds.
type CachesConfig struct {
	Schema    CacheConfig `yaml:"schema"`
	Query     CacheConfig `yaml:"query"`
	Embedding CacheConfig `yaml:"embedding"`
}

// TierConfig is a rate-limit tier derived from a plan.
type TierConfig struct {
	Points int           `yaml:"points"`
	Window time.Duration `yaml:"window"`
	Block  time.Duration `yaml:"block"`
}

// RateLimitConfig maps plan names to tiers. The empty plan name is the
// default tier applied to tenants without an active plan.
type RateLimitConfig struct {
	Tiers map[string]TierConfig `yaml:"tiers"`
}

// TimeoutsConfig bounds every external call the gateway makes.
type TimeoutsConfig struct {
	Connect    time.Duration `yaml:"connect"`    // establishing a tenant DB connection
	Query      time.Duration `yaml:"query"`      // executing one read query
	Completion time.Duration `yaml:"completion"` // one text-completion call
	Embedding  time.Duration `yaml:"embedding"`  // one embedding call
}

// SynthConfig tunes the query synthesis machine.
type SynthConfig struct {
	SchemaFreshness     time.Duration `yaml:"schema_freshness"`     // snapshot age that triggers re-introspection
	SimilarityThreshold float64       `yaml:"similarity_threshold"` // semantic cache cosine cutoff
	FallbackRowLimit    int           `yaml:"fallback_row_limit"`   // LIMIT on the deterministic probe query
}

// LLMConfig points at the completion/embedding provider.
type LLMConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// Config is the root configuration for the gateway core.
type Config struct {
	Caches    CachesConfig    `yaml:"caches"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
	Synth     SynthConfig     `yaml:"synth"`
	LLM       LLMConfig       `yaml:"llm"`
}

// Default returns production-ready settings. Cache TTLs follow the documented
// defaults: schema and query snapshots live 7 days, embeddings 30 days.
func Default() *Config {
	return &Config{
		Caches: CachesConfig{
			Schema:    CacheConfig{TTL: 7 * 24 * time.Hour, MaxEntriesPerTenant: 50},
			Query:     CacheConfig{TTL: 7 * 24 * time.Hour, MaxEntriesPerTenant: 500},
			Embedding: CacheConfig{TTL: 30 * 24 * time.Hour, MaxEntriesPerTenant: 1000},
		},
		RateLimit: RateLimitConfig{
			Tiers: map[string]TierConfig{
				"":        {Points: 10, Window: time.Hour, Block: time.Hour},
				"starter": {Points: 50, Window: time.Hour, Block: 30 * time.Minute},
				"growth":  {Points: 200, Window: time.Hour, Block: 10 * time.Minute},
				"scale":   {Points: 1000, Window: time.Hour, Block: time.Minute},
			},
		},
		Timeouts: TimeoutsConfig{
			Connect:    10 * time.Second,
			Query:      30 * time.Second,
			Completion: 60 * time.Second,
			Embedding:  30 * time.Second,
		},
		Synth: SynthConfig{
			SchemaFreshness:     24 * time.Hour,
			SimilarityThreshold: 0.85,
			FallbackRowLimit:    50,
		},
		LLM: LLMConfig{
			Endpoint: "http://localhost:8081",
			Model:    "default",
		},
	}
}

// Load reads a YAML file and merges it over Default. Fields absent from the
// file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would disable safety or availability
// behavior in surprising ways.
func (c *Config) Validate() error {
	for name, cc := range map[string]CacheConfig{
		"schema":    c.Caches.Schema,
		"query":     c.Caches.Query,
		"embedding": c.Caches.Embedding,
	} {
		if cc.TTL <= 0 {
			return fmt.Errorf("caches.%s.ttl must be positive", name)
		}
		if cc.MaxEntriesPerTenant <= 0 {
			return fmt.Errorf("caches.%s.max_entries_per_tenant must be positive", name)
		}
	}

	if _, ok := c.RateLimit.Tiers[""]; !ok {
		return fmt.Errorf("rate_limit.tiers must include a default (empty-name) tier")
	}
	for name, tier := range c.RateLimit.Tiers {
		if tier.Points <= 0 || tier.Window <= 0 {
			return fmt.Errorf("rate_limit.tiers[%q]: points and window must be positive", name)
		}
	}

	if c.Synth.SimilarityThreshold <= 0 || c.Synth.SimilarityThreshold > 1 {
		return fmt.Errorf("synth.similarity_threshold must be in (0, 1]")
	}
	if c.Synth.FallbackRowLimit <= 0 {
		return fmt.Errorf("synth.fallback_row_limit must be positive")
	}
	return nil
}
