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
	Edgar     EdgarConfig     `yaml:"edgar" mapstructure:"edgar"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// EdgarConfig configures the SEC EDGAR source.
type EdgarConfig struct {
	// UserAgent is the SEC-required identifying header
	// ("Company Name contact@example.com"). Startup fails without it.
	UserAgent       string   `yaml:"user_agent" mapstructure:"user_agent"`
	BaseURL         string   `yaml:"base_url" mapstructure:"base_url"`
	FormTypes       []string `yaml:"form_types" mapstructure:"form_types"`
	LookbackMinutes int      `yaml:"lookback_minutes" mapstructure:"lookback_minutes"`
	TickerFile      string   `yaml:"ticker_file" mapstructure:"ticker_file"`
	SP500File       string   `yaml:"sp500_file" mapstructure:"sp500_file"`
	Nasdaq100File   string   `yaml:"nasdaq100_file" mapstructure:"nasdaq100_file"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`

	// API resilience tuning. Zero values fall back to library defaults.
	MaxRetries       int `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBackoffMs   int `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	BreakerFailures  int `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs int `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// PipelineConfig configures the download and analysis stages.
type PipelineConfig struct {
	DataDir             string `yaml:"data_dir" mapstructure:"data_dir"`
	DownloadConcurrency int    `yaml:"download_concurrency" mapstructure:"download_concurrency"`
	AnalyzeConcurrency  int    `yaml:"analyze_concurrency" mapstructure:"analyze_concurrency"`
	MinDocumentBytes    int64  `yaml:"min_document_bytes" mapstructure:"min_document_bytes"`
	MinTextChars        int    `yaml:"min_text_chars" mapstructure:"min_text_chars"`
	MaxContentChars     int    `yaml:"max_content_chars" mapstructure:"max_content_chars"`
	MaxAttempts         int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryBaseSecs       int    `yaml:"retry_base_secs" mapstructure:"retry_base_secs"`
	RulesFile           string `yaml:"rules_file" mapstructure:"rules_file"`
}

// SchedulerConfig configures the discovery loop.
type SchedulerConfig struct {
	IntervalSecs int  `yaml:"interval_secs" mapstructure:"interval_secs"`
	Enabled      bool `yaml:"enabled" mapstructure:"enabled"`
}

// ServerConfig configures the REST API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	JWTSecret      string   `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	FreeDailyViews int      `yaml:"free_daily_views" mapstructure:"free_daily_views"`
	CORSOrigins    []string `yaml:"cors_origins" mapstructure:"cors_origins"`
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
	v.SetEnvPrefix("EDGARMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.free_daily_views", 3)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("edgar.base_url", "https://www.sec.gov")
	v.SetDefault("edgar.form_types", []string{"10-K", "10-Q", "8-K", "S-1"})
	v.SetDefault("edgar.lookback_minutes", 2)
	v.SetDefault("scheduler.interval_secs", 60)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("pipeline.data_dir", "data/filings")
	v.SetDefault("pipeline.download_concurrency", 3)
	v.SetDefault("pipeline.analyze_concurrency", 2)
	v.SetDefault("pipeline.min_document_bytes", 512)
	v.SetDefault("pipeline.min_text_chars", 100)
	v.SetDefault("pipeline.max_content_chars", 45000)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.retry_base_secs", 60)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2000)
	v.SetDefault("anthropic.temperature", 0.3)
	v.SetDefault("anthropic.max_retries", 3)
	v.SetDefault("anthropic.retry_backoff_ms", 500)
	v.SetDefault("anthropic.breaker_failures", 5)
	v.SetDefault("anthropic.breaker_reset_secs", 30)

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

// Validate checks the settings that must be present before the pipeline can
// run. Missing credentials are a startup failure, not a per-filing one.
func (c *Config) Validate() error {
	if c.Edgar.UserAgent == "" {
		return eris.New("config: edgar.user_agent is required (SEC fair-access policy)")
	}
	if c.Anthropic.Key == "" {
		return eris.New("config: anthropic.key is required")
	}
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required")
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
