// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Image      ImageConfig      `yaml:"image" mapstructure:"image"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenRouter OpenRouterConfig `yaml:"openrouter" mapstructure:"openrouter"`
	Tesseract  TesseractConfig  `yaml:"tesseract" mapstructure:"tesseract"`
	Match      MatchConfig      `yaml:"match" mapstructure:"match"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Refdb      RefdbConfig      `yaml:"refdb" mapstructure:"refdb"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend shared by the extraction
// ledger and the reference catalog.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ExtractConfig configures orchestration behavior.
type ExtractConfig struct {
	DefaultProvider  string `yaml:"default_provider" mapstructure:"default_provider"`
	FallbackEnabled  bool   `yaml:"fallback_enabled" mapstructure:"fallback_enabled"`
	FallbackProvider string `yaml:"fallback_provider" mapstructure:"fallback_provider"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Concurrency      int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// ImageConfig bounds the normalized image envelope.
type ImageConfig struct {
	MaxEdge     int `yaml:"max_edge" mapstructure:"max_edge"`
	JPEGQuality int `yaml:"jpeg_quality" mapstructure:"jpeg_quality"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// OpenRouterConfig holds OpenRouter API settings.
type OpenRouterConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// TesseractConfig configures the local OCR fallback.
type TesseractConfig struct {
	Path        string `yaml:"path" mapstructure:"path"`
	Languages   string `yaml:"languages" mapstructure:"languages"`
	TessdataDir string `yaml:"tessdata_dir" mapstructure:"tessdata_dir"`
}

// MatchConfig configures reference matching.
type MatchConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	MaxCandidates       int     `yaml:"max_candidates" mapstructure:"max_candidates"`
}

// PricingConfig points at the pricing table.
type PricingConfig struct {
	RatesPath string `yaml:"rates_path" mapstructure:"rates_path"`
}

// RefdbConfig configures the reference catalog import.
type RefdbConfig struct {
	SourceURL string `yaml:"source_url" mapstructure:"source_url"`
	Sheet     string `yaml:"sheet" mapstructure:"sheet"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxUploadMB    int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// MonitoringConfig configures the background stats checker.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostLimitUSD         float64 `yaml:"cost_limit_usd" mapstructure:"cost_limit_usd"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. CAPTURE_CONFIG points
// at an explicit config file; otherwise config.yaml in the working directory
// is used when present.
func Load() (*Config, error) {
	v := viper.New()

	// Config file. An explicit path must exist; the default search is
	// optional.
	if path := os.Getenv("CAPTURE_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("CAPTURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "capture.db")
	v.SetDefault("extract.default_provider", "anthropic")
	v.SetDefault("extract.fallback_enabled", true)
	v.SetDefault("extract.fallback_provider", "tesseract")
	v.SetDefault("extract.timeout_secs", 60)
	v.SetDefault("extract.concurrency", 4)
	v.SetDefault("image.max_edge", 2048)
	v.SetDefault("image.jpeg_quality", 85)
	// Secrets and paths default empty so AutomaticEnv values survive
	// Unmarshal.
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("openrouter.key", "")
	v.SetDefault("openrouter.model", "qwen/qwen2.5-vl-72b-instruct")
	v.SetDefault("tesseract.path", "tesseract")
	v.SetDefault("tesseract.languages", "eng+fra")
	v.SetDefault("tesseract.tessdata_dir", "")
	v.SetDefault("match.similarity_threshold", 0.82)
	v.SetDefault("match.max_candidates", 25)
	v.SetDefault("pricing.rates_path", "")
	v.SetDefault("refdb.source_url", "")
	v.SetDefault("refdb.sheet", "")
	v.SetDefault("refdb.batch_size", 500)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 20)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.cost_limit_usd", 25.0)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// A search miss is fine; any other read failure is not.
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

// Validate checks that the fields required for the given purpose are set.
// Purposes: "extract", "serve", "import".
func (c *Config) Validate(purpose string) error {
	var problems []string

	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}

	switch purpose {
	case "extract":
		switch c.Extract.DefaultProvider {
		case "anthropic":
			if c.Anthropic.Key == "" {
				problems = append(problems, "anthropic.key is required (CAPTURE_ANTHROPIC_KEY)")
			}
		case "openrouter":
			if c.OpenRouter.Key == "" {
				problems = append(problems, "openrouter.key is required (CAPTURE_OPENROUTER_KEY)")
			}
		case "tesseract":
			// Local provider needs no credentials.
		default:
			problems = append(problems, "extract.default_provider must be anthropic, openrouter, or tesseract")
		}
		if c.Extract.TimeoutSecs <= 0 {
			problems = append(problems, "extract.timeout_secs must be positive")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be in 1..65535")
		}
	case "import":
		if c.Refdb.BatchSize <= 0 {
			problems = append(problems, "refdb.batch_size must be positive")
		}
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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
