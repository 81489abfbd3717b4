// Package config centralizes all tunable values. The inference weights and
// thresholds live here rather than in the heuristics themselves: they are
// product decisions to be validated against real corpus data, not code.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Inference InferenceConfig `mapstructure:"inference" yaml:"inference"`
	Curated   CuratedConfig   `mapstructure:"curated" yaml:"curated"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher" yaml:"fetcher"`
	Bulk      BulkConfig      `mapstructure:"bulk" yaml:"bulk"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// InferenceConfig carries the numeric constants behind the signal extractors
// and the engine's confidence aggregation.
type InferenceConfig struct {
	// Sophistication weighted-sum weights. They should sum to 1.0.
	TechniqueCountWeight float64 `mapstructure:"technique_count_weight" yaml:"technique_count_weight"`
	AdvancedRatioWeight  float64 `mapstructure:"advanced_ratio_weight" yaml:"advanced_ratio_weight"`
	CustomToolingWeight  float64 `mapstructure:"custom_tooling_weight" yaml:"custom_tooling_weight"`
	// TechniqueSaturation is the technique count treated as "full evidence"
	// when normalizing the count term.
	TechniqueSaturation int `mapstructure:"technique_saturation" yaml:"technique_saturation"`

	// Stealth ratio cutoffs: >= StealthyRatio is stealthy, <= NoisyRatio is noisy.
	StealthyRatio float64 `mapstructure:"stealthy_ratio" yaml:"stealthy_ratio"`
	NoisyRatio    float64 `mapstructure:"noisy_ratio" yaml:"noisy_ratio"`

	// Speed ratio cutoffs: >= AggressiveRatio is aggressive, <= SlowRatio is slow.
	AggressiveRatio float64 `mapstructure:"aggressive_ratio" yaml:"aggressive_ratio"`
	SlowRatio       float64 `mapstructure:"slow_ratio" yaml:"slow_ratio"`

	// KeywordIncrement is added per keyword hit for industry/region matching,
	// saturating at 1.0.
	KeywordIncrement float64 `mapstructure:"keyword_increment" yaml:"keyword_increment"`

	// ConfidenceFloor is the lowest per-signal confidence; evidence-free
	// signals degrade to this, never to zero.
	ConfidenceFloor float64 `mapstructure:"confidence_floor" yaml:"confidence_floor"`
	// MinTechniques is the technique count at which evidence counts as
	// well-formed for per-signal confidence.
	MinTechniques int `mapstructure:"min_techniques" yaml:"min_techniques"`
	// MinConfidence is the documented gating default. Drafts below it are
	// still returned; acting on them is the caller's policy decision.
	MinConfidence float64 `mapstructure:"min_confidence" yaml:"min_confidence"`

	// TablesFile optionally replaces the built-in keyword tables with a YAML
	// file.
	TablesFile string `mapstructure:"tables_file" yaml:"tables_file"`
}

// CuratedConfig locates the premium override table.
type CuratedConfig struct {
	// File is an optional YAML file of partial persona overrides keyed by
	// group name or id. The built-in table is used when empty.
	File string `mapstructure:"file" yaml:"file"`
}

// FetcherConfig controls the bundle fetch-and-store collaborator.
type FetcherConfig struct {
	URL       string        `mapstructure:"url" yaml:"url"`
	CacheDir  string        `mapstructure:"cache_dir" yaml:"cache_dir"`
	MaxAge    time.Duration `mapstructure:"max_age" yaml:"max_age"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// BulkConfig controls corpus-wide persona generation.
type BulkConfig struct {
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// ServerConfig holds settings for the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// DatabaseConfig holds the optional Postgres connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "personaforge")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Inference --
	v.SetDefault("inference.technique_count_weight", 0.4)
	v.SetDefault("inference.advanced_ratio_weight", 0.35)
	v.SetDefault("inference.custom_tooling_weight", 0.25)
	v.SetDefault("inference.technique_saturation", 80)
	v.SetDefault("inference.stealthy_ratio", 0.6)
	v.SetDefault("inference.noisy_ratio", 0.4)
	v.SetDefault("inference.aggressive_ratio", 2.0/3.0)
	v.SetDefault("inference.slow_ratio", 1.0/3.0)
	v.SetDefault("inference.keyword_increment", 0.34)
	v.SetDefault("inference.confidence_floor", 0.1)
	v.SetDefault("inference.min_techniques", 5)
	v.SetDefault("inference.min_confidence", 0.1)
	v.SetDefault("inference.tables_file", "")

	// -- Fetcher --
	v.SetDefault("fetcher.url", "https://raw.githubusercontent.com/mitre-attack/attack-stix-data/master/enterprise-attack/enterprise-attack.json")
	v.SetDefault("fetcher.cache_dir", "data/intel")
	v.SetDefault("fetcher.max_age", 7*24*time.Hour)
	v.SetDefault("fetcher.timeout", 2*time.Minute)
	v.SetDefault("fetcher.rate_limit", 2.0)

	// -- Bulk --
	v.SetDefault("bulk.concurrency", 8)

	// -- Server --
	v.SetDefault("server.addr", "127.0.0.1:8471")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
}

// NewDefaultConfig returns a Config populated with default values only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults always unmarshal; this indicates a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a validated configuration from a viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// BindEnv wires the viper instance to PERSONAFORGE_* environment variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("PERSONAFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Inference.Validate(); err != nil {
		return fmt.Errorf("inference configuration invalid: %w", err)
	}
	if c.Bulk.Concurrency <= 0 {
		return fmt.Errorf("bulk.concurrency must be a positive integer")
	}
	if c.Fetcher.RateLimit <= 0 {
		return fmt.Errorf("fetcher.rate_limit must be positive")
	}
	return nil
}

// Validate checks the inference constants.
func (i *InferenceConfig) Validate() error {
	sum := i.TechniqueCountWeight + i.AdvancedRatioWeight + i.CustomToolingWeight
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("sophistication weights must sum to 1.0, got %.3f", sum)
	}
	if i.ConfidenceFloor <= 0 || i.ConfidenceFloor >= 1 {
		return fmt.Errorf("confidence_floor must be in (0,1)")
	}
	if i.StealthyRatio <= i.NoisyRatio {
		return fmt.Errorf("stealthy_ratio must be greater than noisy_ratio")
	}
	if i.KeywordIncrement <= 0 || i.KeywordIncrement > 1 {
		return fmt.Errorf("keyword_increment must be in (0,1]")
	}
	if i.TechniqueSaturation <= 0 {
		return fmt.Errorf("technique_saturation must be positive")
	}
	// Divisor in the evidence and completeness terms; zero would poison the
	// confidence math with NaN.
	if i.MinTechniques <= 0 {
		return fmt.Errorf("min_techniques must be positive")
	}
	if i.AggressiveRatio <= i.SlowRatio {
		return fmt.Errorf("aggressive_ratio must be greater than slow_ratio")
	}
	if i.MinConfidence < 0 || i.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be in [0,1]")
	}
	return nil
}
