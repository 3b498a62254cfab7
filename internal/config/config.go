package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	AI         AIConfig         `yaml:"ai" mapstructure:"ai"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// OCRConfig configures rasterization and text recognition of scanned pages.
type OCRConfig struct {
	Engine        string  `yaml:"engine" mapstructure:"engine"`
	Language      string  `yaml:"language" mapstructure:"language"`
	Scale         float64 `yaml:"scale" mapstructure:"scale"`
	Concurrency   int     `yaml:"concurrency" mapstructure:"concurrency"`
	PdfToPPMPath  string  `yaml:"pdftoppm_path" mapstructure:"pdftoppm_path"`
	TesseractPath string  `yaml:"tesseract_path" mapstructure:"tesseract_path"`
	TessdataDir   string  `yaml:"tessdata_dir" mapstructure:"tessdata_dir"`
	PSM           int     `yaml:"psm" mapstructure:"psm"`
	MistralKey    string  `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string  `yaml:"mistral_model" mapstructure:"mistral_model"`
}

// AIConfig configures the optional LLM reconciliation pass.
type AIConfig struct {
	Provider    string        `yaml:"provider" mapstructure:"provider"`
	Key         string        `yaml:"key" mapstructure:"key"`
	Model       string        `yaml:"model" mapstructure:"model"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int           `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Retry       RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Circuit     CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
}

// Timeout returns the per-call AI deadline.
func (c AIConfig) Timeout() time.Duration {
	if c.TimeoutSecs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutSecs) * time.Second
}

// RetryConfig configures retry behavior for transient AI failures.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures the AI provider circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// PipelineConfig configures extraction behavior.
type PipelineConfig struct {
	NotFoundConfidence int `yaml:"not_found_confidence" mapstructure:"not_found_confidence"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// FetchConfig configures retrieval of remote (http, ftp) documents.
type FetchConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	MaxSizeMB   int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
}

// ServerConfig configures the upload server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxUploadMB    int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	RatePerSec     float64  `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	RateBurst      int      `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// MonitoringConfig configures the failure-rate alerter.
type MonitoringConfig struct {
	LookbackHours        int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ocr.engine", "tesseract")
	v.SetDefault("ocr.language", "heb+eng")
	v.SetDefault("ocr.scale", 3.5)
	v.SetDefault("ocr.concurrency", 2)
	v.SetDefault("ocr.pdftoppm_path", "pdftoppm")
	v.SetDefault("ocr.tesseract_path", "tesseract")
	v.SetDefault("ocr.psm", 6)
	v.SetDefault("ocr.tessdata_dir", "")
	v.SetDefault("ocr.mistral_api_key", "")
	v.SetDefault("ocr.mistral_model", "mistral-ocr-latest")
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.key", "")
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.timeout_secs", 60)
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("ai.retry.max_attempts", 3)
	v.SetDefault("ai.retry.initial_backoff_ms", 500)
	v.SetDefault("ai.retry.max_backoff_ms", 8000)
	v.SetDefault("ai.retry.multiplier", 2.0)
	v.SetDefault("ai.retry.jitter_fraction", 0.25)
	v.SetDefault("ai.circuit.failure_threshold", 5)
	v.SetDefault("ai.circuit.reset_timeout_secs", 30)
	v.SetDefault("pipeline.not_found_confidence", 35)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "invoices.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.user_agent", "invoice-cli/1.0")
	v.SetDefault("fetch.max_retries", 2)
	v.SetDefault("fetch.max_size_mb", 25)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 25)
	v.SetDefault("server.rate_per_sec", 5.0)
	v.SetDefault("server.rate_burst", 10)
	v.SetDefault("monitoring.lookback_hours", 24)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "extract":
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Server.MaxUploadMB <= 0 {
			problems = append(problems, "server.max_upload_mb must be > 0")
		}
	case "store":
		// Only the store settings below apply.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.OCR.Engine {
	case "tesseract", "gosseract", "none", "":
	case "mistral":
		if c.OCR.MistralKey == "" {
			problems = append(problems, "ocr.mistral_api_key is required for the mistral engine")
		}
	default:
		problems = append(problems, "ocr.engine must be one of tesseract, gosseract, mistral, none")
	}
	if c.OCR.Concurrency < 1 || c.OCR.Concurrency > 16 {
		problems = append(problems, "ocr.concurrency must be between 1 and 16")
	}
	if c.OCR.Scale < 0 {
		problems = append(problems, "ocr.scale must be >= 0")
	}

	switch c.AI.Provider {
	case "anthropic", "openai", "gemini", "":
	default:
		problems = append(problems, "ai.provider must be one of anthropic, openai, gemini")
	}

	if c.Pipeline.NotFoundConfidence < 0 || c.Pipeline.NotFoundConfidence > 100 {
		problems = append(problems, "pipeline.not_found_confidence must be between 0 and 100")
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
