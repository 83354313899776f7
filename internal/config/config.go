// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/metadata-scraper/internal/logging"
)

// Config captures all scraper configuration knobs loaded via Viper.
type Config struct {
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Output    OutputConfig    `mapstructure:"output"`
	Server    ServerConfig    `mapstructure:"server"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// CatalogConfig locates the documentation index.
type CatalogConfig struct {
	IndexURL       string `mapstructure:"index_url"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	MaxRetries     int    `mapstructure:"max_retries"`
}

// BrowserConfig sizes the context pool and bounds page loading.
type BrowserConfig struct {
	Instances         int    `mapstructure:"instances"`
	PerInstance       int    `mapstructure:"per_instance"`
	Headless          bool   `mapstructure:"headless"`
	UserAgent         string `mapstructure:"user_agent"`
	AcceptLanguage    string `mapstructure:"accept_language"`
	WindowWidth       int    `mapstructure:"window_width"`
	WindowHeight      int    `mapstructure:"window_height"`
	Locale            string `mapstructure:"locale"`
	Timezone          string `mapstructure:"timezone"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
	TablePollSeconds  int    `mapstructure:"table_poll_seconds"`
	ScrollPollSeconds int    `mapstructure:"scroll_poll_seconds"`
	PollIntervalMs    int    `mapstructure:"poll_interval_ms"`
	FrameHint         string `mapstructure:"frame_hint"`
}

// RateLimitConfig paces navigations per host.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// LoggingConfig toggles zap development features and the threshold.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	// File enables a rotated JSON log next to console output.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	// ProgressBar draws a terminal progress bar on stderr during scrapes.
	ProgressBar bool `mapstructure:"progress_bar"`
}

// OutputConfig selects where the entity map is written.
type OutputConfig struct {
	Backend     string `mapstructure:"backend"`
	Path        string `mapstructure:"path"`
	LocalDir    string `mapstructure:"local_dir"`
	Bucket      string `mapstructure:"bucket"`
	ContentType string `mapstructure:"content_type"`
}

// ServerConfig controls the optional status server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// PubSubConfig holds metadata for completion notices.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// DatabaseConfig controls the optional run history and entity catalog.
type DatabaseConfig struct {
	DSN           string `mapstructure:"dsn"`
	RunsTable     string `mapstructure:"runs_table"`
	EntitiesTable string `mapstructure:"entities_table"`
	MaxConns      int32  `mapstructure:"max_conns"`
}

// TelemetryConfig enables trace export to Cloud Trace when ProjectID is set.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	ProjectID   string `mapstructure:"project_id"`
}

// Output backends.
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
)

// Load builds a Config from an optional file plus SCRAPER_* environment
// variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
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
	v.SetDefault("catalog.index_url", "https://developer.salesforce.com/docs/get_document/atlas.en-us.api_meta.meta")
	v.SetDefault("catalog.base_url", "https://developer.salesforce.com/docs/atlas.en-us.api_meta.meta/api_meta/")
	v.SetDefault("catalog.timeout_seconds", 30)
	v.SetDefault("catalog.user_agent", "metadata-scraper/0.1")
	v.SetDefault("catalog.max_retries", 3)
	v.SetDefault("browser.instances", 5)
	v.SetDefault("browser.per_instance", 4)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
	v.SetDefault("browser.accept_language", "en-US,en;q=0.9")
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.timezone", "America/Los_Angeles")
	v.SetDefault("browser.nav_timeout_seconds", 60)
	v.SetDefault("browser.table_poll_seconds", 20)
	v.SetDefault("browser.scroll_poll_seconds", 5)
	v.SetDefault("browser.poll_interval_ms", 1000)
	v.SetDefault("browser.frame_hint", "atlas.en-us.api_meta")
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.rps", 2.0)
	v.SetDefault("rate_limit.burst", 4)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.progress_bar", false)
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.compress", true)
	v.SetDefault("output.backend", BackendLocal)
	v.SetDefault("output.path", "metadata-types.json")
	v.SetDefault("output.local_dir", ".")
	v.SetDefault("output.bucket", "")
	v.SetDefault("output.content_type", "application/json; charset=utf-8")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.runs_table", "scrape_runs")
	v.SetDefault("database.entities_table", "entities")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("telemetry.service_name", "metadata-scraper")
	v.SetDefault("telemetry.project_id", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Catalog.IndexURL == "" {
		return fmt.Errorf("catalog.index_url is required")
	}
	if c.Catalog.TimeoutSeconds <= 0 {
		return fmt.Errorf("catalog.timeout_seconds must be > 0")
	}
	if c.Browser.Instances <= 0 {
		return fmt.Errorf("browser.instances must be > 0")
	}
	if c.Browser.PerInstance <= 0 {
		return fmt.Errorf("browser.per_instance must be > 0")
	}
	if c.Browser.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
	}
	if c.Browser.TablePollSeconds <= 0 {
		return fmt.Errorf("browser.table_poll_seconds must be > 0")
	}
	if c.Browser.PollIntervalMs <= 0 {
		return fmt.Errorf("browser.poll_interval_ms must be > 0")
	}
	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 {
		return fmt.Errorf("rate_limit.rps must be > 0 when rate limiting is enabled")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Output.Backend {
	case BackendMemory, BackendLocal:
	case BackendGCS:
		if c.Output.Bucket == "" {
			return fmt.Errorf("output.bucket must be set when output.backend is gcs")
		}
	default:
		return fmt.Errorf("output.backend %q must be one of memory, local, gcs", c.Output.Backend)
	}
	if c.Output.Path == "" {
		return fmt.Errorf("output.path is required")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}

// NavigationTimeout returns the per-page navigation budget.
func (b BrowserConfig) NavigationTimeout() time.Duration {
	return time.Duration(b.NavTimeoutSeconds) * time.Second
}

// TablePollTimeout returns the first table polling budget.
func (b BrowserConfig) TablePollTimeout() time.Duration {
	return time.Duration(b.TablePollSeconds) * time.Second
}

// ScrollPollTimeout returns the polling budget after the scroll fallback.
func (b BrowserConfig) ScrollPollTimeout() time.Duration {
	return time.Duration(b.ScrollPollSeconds) * time.Second
}

// PollInterval returns the delay between table polls.
func (b BrowserConfig) PollInterval() time.Duration {
	return time.Duration(b.PollIntervalMs) * time.Millisecond
}

// Timeout returns the index fetch budget.
func (c CatalogConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
