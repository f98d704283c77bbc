package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Serp      SerpConfig      `yaml:"serp" mapstructure:"serp"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// JinaConfig holds Jina AI Reader and Search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	MaxTokens   int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// SerpConfig configures search locale and fan-out behavior. Region and
// Locations steer query generation; Country/Language/Location steer the
// search provider.
type SerpConfig struct {
	Country        string   `yaml:"country" mapstructure:"country"`
	Language       string   `yaml:"language" mapstructure:"language"`
	Location       string   `yaml:"location" mapstructure:"location"`
	Region         string   `yaml:"region" mapstructure:"region"`
	Locations      []string `yaml:"locations" mapstructure:"locations"`
	MaxConcurrency int      `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	RatePerSecond  int      `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

// ExtractConfig configures the extraction phase.
type ExtractConfig struct {
	BatchSize      int `yaml:"batch_size" mapstructure:"batch_size"`
	MaxFetchChars  int `yaml:"max_fetch_chars" mapstructure:"max_fetch_chars"`
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency"`
}

// IngestConfig configures dataset ingestion.
type IngestConfig struct {
	MaxRows              int `yaml:"max_rows" mapstructure:"max_rows"`
	DuplicateReportLimit int `yaml:"duplicate_report_limit" mapstructure:"duplicate_report_limit"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("serp.country", "US")
	v.SetDefault("serp.language", "en")
	v.SetDefault("serp.region", "Australia")
	v.SetDefault("serp.locations", []string{"Sydney", "Melbourne", "Brisbane", "Perth", "Adelaide"})
	v.SetDefault("serp.max_concurrency", 5)
	v.SetDefault("serp.rate_per_second", 2)
	v.SetDefault("extract.batch_size", 10)
	v.SetDefault("extract.max_fetch_chars", 40000)
	v.SetDefault("extract.max_concurrency", 4)
	v.SetDefault("ingest.max_rows", 100000)
	v.SetDefault("ingest.duplicate_report_limit", 10)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration required for the given mode is
// present. Modes: "pipeline" (generate/resolve/extract), "dataset"
// (ingest/merge/results), "serve" (HTTP API).
func (c *Config) Validate(mode string) error {
	var missing []string

	requireDB := func() {
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
	}

	switch mode {
	case "pipeline":
		requireDB()
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
		if c.Jina.Key == "" {
			missing = append(missing, "jina.key is required")
		}
	case "dataset":
		requireDB()
	case "serve":
		requireDB()
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
		if c.Jina.Key == "" {
			missing = append(missing, "jina.key is required")
		}
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Serp.MaxConcurrency < 1 || c.Serp.MaxConcurrency > 50 {
		missing = append(missing, "serp.max_concurrency must be between 1 and 50")
	}
	if c.Extract.BatchSize < 1 {
		missing = append(missing, "extract.batch_size must be >= 1")
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
