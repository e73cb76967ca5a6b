package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the agent-finder configuration
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Sources  SourcesConfig  `yaml:"sources"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Cache    CacheConfig    `yaml:"cache"`
	Google   GoogleConfig   `yaml:"google"`
	Server   ServerConfig   `yaml:"server"`
	FSBO     FSBOConfig     `yaml:"fsbo"`
}

// LoggingConfig contains log level and format settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SourceConfig contains rate limiting and concurrency settings for one source
type SourceConfig struct {
	Name              string  `yaml:"-"`
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	MaxConcurrent     int     `yaml:"max_concurrent"`
	MaxRetries        int     `yaml:"max_retries"`
	TimeoutSeconds    float64 `yaml:"timeout_seconds"`
}

// Timeout returns the per-request timeout as a duration
func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds * float64(time.Second))
}

// SourcesConfig holds the per-source settings, in waterfall priority order
type SourcesConfig struct {
	Redfin      SourceConfig `yaml:"redfin"`
	HomeHarvest SourceConfig `yaml:"homeharvest"`
	Realtor     SourceConfig `yaml:"realtor"`
	Zillow      SourceConfig `yaml:"zillow"`
	Google      SourceConfig `yaml:"google_search"`
}

// Priority returns the sources in waterfall order
func (s *SourcesConfig) Priority() []SourceConfig {
	return []SourceConfig{s.Redfin, s.HomeHarvest, s.Realtor, s.Zillow, s.Google}
}

// PipelineConfig contains global resolution settings
type PipelineConfig struct {
	MaxConcurrency int  `yaml:"max_concurrency"`
	Enrich         bool `yaml:"enrich"`
	RetryVariants  bool `yaml:"retry_variants"`
}

// CacheConfig contains the local result cache settings
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	TTLDays int    `yaml:"ttl_days"`
}

// GoogleConfig contains Google Custom Search credentials
type GoogleConfig struct {
	APIKey string `yaml:"api_key"`
	CSEID  string `yaml:"cse_id"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Addr    string `yaml:"addr"`
	DataDir string `yaml:"data_dir"`
}

// FSBOConfig contains FSBO aggregation settings
type FSBOConfig struct {
	MaxPagesPerSource int  `yaml:"max_pages_per_source"`
	DedupWithLocality bool `yaml:"dedup_with_locality"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Sources: SourcesConfig{
			Redfin: SourceConfig{
				Name:              "redfin",
				Enabled:           true,
				RequestsPerSecond: 2.0,
				MaxConcurrent:     5,
				MaxRetries:        3,
				TimeoutSeconds:    30,
			},
			HomeHarvest: SourceConfig{
				Name:              "homeharvest",
				Enabled:           true,
				RequestsPerSecond: 1.0,
				MaxConcurrent:     3,
				MaxRetries:        2,
				TimeoutSeconds:    45,
			},
			Realtor: SourceConfig{
				Name:              "realtor",
				Enabled:           true,
				RequestsPerSecond: 0.5,
				MaxConcurrent:     3,
				MaxRetries:        2,
				TimeoutSeconds:    30,
			},
			Zillow: SourceConfig{
				Name:              "zillow",
				Enabled:           true,
				RequestsPerSecond: 0.5,
				MaxConcurrent:     2,
				MaxRetries:        2,
				TimeoutSeconds:    30,
			},
			Google: SourceConfig{
				Name:              "google_search",
				Enabled:           false, // requires API credentials
				RequestsPerSecond: 0.2,
				MaxConcurrent:     2,
				MaxRetries:        1,
				TimeoutSeconds:    15,
			},
		},
		Pipeline: PipelineConfig{
			MaxConcurrency: 50,
			Enrich:         true,
			RetryVariants:  true,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    "agent_finder_cache.db",
			TTLDays: 7,
		},
		Server: ServerConfig{
			Addr:    ":8000",
			DataDir: "./data",
		},
		FSBO: FSBOConfig{
			MaxPagesPerSource: 3,
			DedupWithLocality: false,
		},
	}
}

// Load loads configuration from a YAML file. Defaults apply for any field
// the file leaves unset, environment variables in the file content are
// expanded, and the Google credentials fall back to GOOGLE_API_KEY and
// GOOGLE_CSE_ID when not configured.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = "config.yaml"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.applyEnv()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := []byte(os.ExpandEnv(string(data)))
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.restoreSourceNames()
	cfg.applyEnv()
	return cfg, nil
}

// restoreSourceNames re-applies the fixed source names, which are not
// part of the YAML schema
func (c *Config) restoreSourceNames() {
	c.Sources.Redfin.Name = "redfin"
	c.Sources.HomeHarvest.Name = "homeharvest"
	c.Sources.Realtor.Name = "realtor"
	c.Sources.Zillow.Name = "zillow"
	c.Sources.Google.Name = "google_search"
}

// applyEnv fills the Google credentials from the environment and enables
// the source when both are present
func (c *Config) applyEnv() {
	if c.Google.APIKey == "" {
		c.Google.APIKey = os.Getenv("GOOGLE_API_KEY")
	}
	if c.Google.CSEID == "" {
		c.Google.CSEID = os.Getenv("GOOGLE_CSE_ID")
	}
	if c.Google.APIKey != "" && c.Google.CSEID != "" {
		c.Sources.Google.Enabled = true
	}
}

// Save writes configuration to a YAML file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Pipeline.MaxConcurrency < 1 {
		return fmt.Errorf("pipeline.max_concurrency must be at least 1")
	}

	if c.Cache.Enabled && c.Cache.Path == "" {
		return fmt.Errorf("cache.path is required when the cache is enabled")
	}

	if c.Cache.TTLDays < 1 {
		return fmt.Errorf("cache.ttl_days must be at least 1")
	}

	if c.FSBO.MaxPagesPerSource < 1 {
		return fmt.Errorf("fsbo.max_pages_per_source must be at least 1")
	}

	for _, src := range c.Sources.Priority() {
		if !src.Enabled {
			continue
		}
		if src.RequestsPerSecond <= 0 {
			return fmt.Errorf("sources.%s.requests_per_second must be positive", src.Name)
		}
		if src.MaxConcurrent < 1 {
			return fmt.Errorf("sources.%s.max_concurrent must be at least 1", src.Name)
		}
		if src.TimeoutSeconds <= 0 {
			return fmt.Errorf("sources.%s.timeout_seconds must be positive", src.Name)
		}
	}

	if c.Sources.Google.Enabled && (c.Google.APIKey == "" || c.Google.CSEID == "") {
		return fmt.Errorf("google.api_key and google.cse_id are required when google_search is enabled")
	}

	return nil
}
