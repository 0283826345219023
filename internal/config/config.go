// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	DB          DBConfig          `mapstructure:"db"`
	Scrape      ScrapeConfig      `mapstructure:"scrape"`
	Standardize StandardizeConfig `mapstructure:"standardize"`
	Analysis    AnalysisConfig    `mapstructure:"analysis"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the relational store.
type DBConfig struct {
	DSN        string `mapstructure:"dsn"`
	Table      string `mapstructure:"table"`
	MaxConns   int32  `mapstructure:"max_conns"`
	MinConns   int32  `mapstructure:"min_conns"`
	SchemaPath string `mapstructure:"schema_path"`
}

// ScrapeConfig governs the ingestion fetch loop.
type ScrapeConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	StartPage      int     `mapstructure:"start_page"`
	Pages          int     `mapstructure:"pages"`
	DelaySeconds   float64 `mapstructure:"delay_seconds"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	UserAgent      string  `mapstructure:"user_agent"`
}

// Delay returns the inter-request politeness delay as a duration.
func (c ScrapeConfig) Delay() time.Duration {
	return time.Duration(c.DelaySeconds * float64(time.Second))
}

// Timeout returns the per-request HTTP timeout as a duration.
func (c ScrapeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StandardizeConfig controls the optional LLM canonicalization step.
type StandardizeConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Endpoint       string `mapstructure:"endpoint"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Timeout returns the per-call standardization timeout as a duration.
func (c StandardizeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AnalysisConfig sets the locations of query definitions and card artifacts.
type AnalysisConfig struct {
	QueriesDir string `mapstructure:"queries_dir"`
	CardsDir   string `mapstructure:"cards_dir"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from an optional file plus environment overrides.
// Environment variables use the ADMIT prefix, e.g. ADMIT_DB_DSN.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ADMIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("db.table", "applicants")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.schema_path", "sql/schema.sql")

	v.SetDefault("scrape.base_url", "https://www.thegradcafe.com/survey/")
	v.SetDefault("scrape.start_page", 1)
	v.SetDefault("scrape.pages", 12)
	v.SetDefault("scrape.delay_seconds", 0.8)
	v.SetDefault("scrape.timeout_seconds", 15)
	v.SetDefault("scrape.user_agent", "admitpipe/1.0 (+https://github.com/admitlab/admitpipe)")

	v.SetDefault("standardize.enabled", false)
	v.SetDefault("standardize.timeout_seconds", 120)

	v.SetDefault("analysis.queries_dir", "sql/queries")
	v.SetDefault("analysis.cards_dir", "data/cards")

	v.SetDefault("logging.development", false)
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0, 65535], got %d", c.Server.Port)
	}
	if c.Scrape.BaseURL == "" {
		return fmt.Errorf("scrape.base_url is required")
	}
	if c.Scrape.Pages < 1 {
		return fmt.Errorf("scrape.pages must be at least 1, got %d", c.Scrape.Pages)
	}
	if c.Scrape.StartPage < 1 {
		return fmt.Errorf("scrape.start_page must be at least 1, got %d", c.Scrape.StartPage)
	}
	if c.Scrape.DelaySeconds < 0 {
		return fmt.Errorf("scrape.delay_seconds must not be negative, got %v", c.Scrape.DelaySeconds)
	}
	if c.Standardize.Enabled && c.Standardize.Endpoint == "" {
		return fmt.Errorf("standardize.endpoint is required when standardize.enabled is true")
	}
	if c.Analysis.QueriesDir == "" {
		return fmt.Errorf("analysis.queries_dir is required")
	}
	if c.Analysis.CardsDir == "" {
		return fmt.Errorf("analysis.cards_dir is required")
	}
	return nil
}
