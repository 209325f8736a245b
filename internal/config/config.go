package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Quality   QualityConfig   `yaml:"quality" mapstructure:"quality"`
	Fusion    FusionConfig    `yaml:"fusion" mapstructure:"fusion"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	ReceitaWS ReceitaWSConfig `yaml:"receitaws" mapstructure:"receitaws"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Browser   BrowserConfig   `yaml:"browser" mapstructure:"browser"`
	Fixtures  FixturesConfig  `yaml:"fixtures" mapstructure:"fixtures"`
}

// StoreConfig configures the run-history database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// PipelineConfig configures the run controller and its filter policy.
type PipelineConfig struct {
	Sources             []string `yaml:"sources" mapstructure:"sources"`
	MinQualityScore     float64  `yaml:"min_quality_score" mapstructure:"min_quality_score"`
	AllowPartialExport  bool     `yaml:"allow_partial_export" mapstructure:"allow_partial_export"`
	UseFallback         bool     `yaml:"use_fallback" mapstructure:"use_fallback"`
	AllowSynthetic      bool     `yaml:"allow_synthetic" mapstructure:"allow_synthetic"`
	StageTimeoutSecs    int      `yaml:"stage_timeout_secs" mapstructure:"stage_timeout_secs"`
	CallTimeoutSecs     int      `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	MaxConcurrentStages int      `yaml:"max_concurrent_stages" mapstructure:"max_concurrent_stages"`
	MaxCandidates       int      `yaml:"max_candidates" mapstructure:"max_candidates"`
	BreakerThreshold    int      `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int      `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// QualityConfig holds the quality scorer weights and mandatory fields.
type QualityConfig struct {
	CompletenessWeight float64  `yaml:"completeness_weight" mapstructure:"completeness_weight"`
	FormatWeight       float64  `yaml:"format_weight" mapstructure:"format_weight"`
	ConsistencyWeight  float64  `yaml:"consistency_weight" mapstructure:"consistency_weight"`
	MandatoryFields    []string `yaml:"mandatory_fields" mapstructure:"mandatory_fields"`
}

// FusionConfig points at an optional source-priority table override.
type FusionConfig struct {
	PrioritiesPath string `yaml:"priorities_path" mapstructure:"priorities_path"`
}

// EnrichConfig configures the fallback enricher. A zero seed draws one from
// the clock.
type EnrichConfig struct {
	Seed       int64  `yaml:"seed" mapstructure:"seed"`
	TablesPath string `yaml:"tables_path" mapstructure:"tables_path"`
}

// ExportConfig configures where run output files are written.
type ExportConfig struct {
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// RetryConfig configures retries of transient collector errors.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// ReceitaWSConfig holds CNPJ registry API settings.
type ReceitaWSConfig struct {
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	RatePerMinute int    `yaml:"rate_per_minute" mapstructure:"rate_per_minute"`
}

// SearchConfig holds the SearXNG discovery endpoint.
type SearchConfig struct {
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	RatePerSec int    `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// BrowserConfig configures the headless browser used by the site collector.
type BrowserConfig struct {
	Headless              bool   `yaml:"headless" mapstructure:"headless"`
	Bin                   string `yaml:"bin" mapstructure:"bin"`
	NavigationTimeoutSecs int    `yaml:"navigation_timeout_secs" mapstructure:"navigation_timeout_secs"`
}

// FixturesConfig points at canned observations for the fixture collector.
type FixturesConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FUSION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "fusion.db")
	v.SetDefault("store.max_conns", 5)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("pipeline.sources", []string{"search", "cnpj", "receitaws", "linkedin", "company_site"})
	v.SetDefault("pipeline.min_quality_score", 0.7)
	v.SetDefault("pipeline.allow_partial_export", true)
	v.SetDefault("pipeline.use_fallback", false)
	v.SetDefault("pipeline.allow_synthetic", false)
	v.SetDefault("pipeline.stage_timeout_secs", 120)
	v.SetDefault("pipeline.call_timeout_secs", 30)
	v.SetDefault("pipeline.max_concurrent_stages", 0)
	v.SetDefault("pipeline.max_candidates", 20)
	v.SetDefault("pipeline.breaker_threshold", 3)
	v.SetDefault("pipeline.breaker_cooldown_secs", 300)
	v.SetDefault("quality.completeness_weight", 0.5)
	v.SetDefault("quality.format_weight", 0.3)
	v.SetDefault("quality.consistency_weight", 0.2)
	v.SetDefault("quality.mandatory_fields", []string{"company_name"})
	v.SetDefault("export.output_dir", "data/output")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 2000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("receitaws.base_url", "https://receitaws.com.br/v1")
	v.SetDefault("receitaws.rate_per_minute", 3)
	v.SetDefault("search.base_url", "http://localhost:8888")
	v.SetDefault("search.rate_per_sec", 2)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout_secs", 30)

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
