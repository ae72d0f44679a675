// Package config provides configuration management for the research pipeline service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Bounds for the number of deep reports generated per cycle.
const (
	MinReportsPerCycle = 1
	MaxReportsPerCycle = 5
)

// Config holds all configuration for the research pipeline service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// LLM contains generation backend settings for report synthesis.
	LLM LLMConfig `mapstructure:"llm"`
	// Pipeline contains orchestrator settings.
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	// Resolver contains PDF/figure resolution settings.
	Resolver ResolverConfig `mapstructure:"resolver"`
	// Feeds contains candidate feed settings.
	Feeds FeedsConfig `mapstructure:"feeds"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (use environment variable in production).
	Password string `mapstructure:"password"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	// Default is "require" for production security. Use "disable" only for local development.
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool (default: 20).
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open (default: 4).
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr, file path).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
}

// LLMConfig holds generation backend configuration.
type LLMConfig struct {
	// Provider is the generation provider (openai, anthropic).
	Provider string `mapstructure:"provider"`
	// Model is the primary model for deep report synthesis.
	Model string `mapstructure:"model"`
	// FallbackModel is the cheaper model tried when the primary output
	// fails the completeness contract.
	FallbackModel string `mapstructure:"fallback_model"`
	// MaxOutputTokens bounds the generated document length.
	MaxOutputTokens int `mapstructure:"max_output_tokens"`
	// Timeout is the per-call timeout for generation requests.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is the maximum number of retries for transient failures.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// Temperature is the sampling temperature.
	Temperature float64 `mapstructure:"temperature"`
	// OpenAI contains OpenAI-specific settings.
	OpenAI OpenAIConfig `mapstructure:"openai"`
	// Anthropic contains Anthropic-specific settings.
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
}

// OpenAIConfig holds OpenAI-specific settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key (loaded from RESEARCH_LLM_OPENAI_API_KEY env var).
	APIKey string `mapstructure:"-"`
	// BaseURL is the OpenAI API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic-specific settings.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key (loaded from RESEARCH_LLM_ANTHROPIC_API_KEY env var).
	APIKey string `mapstructure:"-"`
	// BaseURL is the Anthropic API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// PipelineConfig holds orchestrator configuration.
type PipelineConfig struct {
	// Timezone is the IANA zone used to compute the run date key.
	Timezone string `mapstructure:"timezone"`
	// MaxReports is the number of papers selected for deep reports per
	// cycle, clamped to [MinReportsPerCycle, MaxReportsPerCycle].
	MaxReports int `mapstructure:"max_reports"`
	// SimilarLimit is the maximum number of similar papers linked per report.
	SimilarLimit int `mapstructure:"similar_limit"`
	// MinSimilarity is the Jaccard score a similar paper must clear.
	MinSimilarity float64 `mapstructure:"min_similarity"`
	// ScheduleEnabled turns the in-process daily trigger on.
	ScheduleEnabled bool `mapstructure:"schedule_enabled"`
	// Schedule is the cron expression for the daily trigger.
	Schedule string `mapstructure:"schedule"`
	// WebhookURL is the push target (loaded from RESEARCH_PIPELINE_WEBHOOK_URL env var).
	WebhookURL string `mapstructure:"-"`
	// ReportsDir is the root directory for generated markdown artifacts.
	ReportsDir string `mapstructure:"reports_dir"`
}

// ClampedMaxReports returns MaxReports clamped to the allowed range.
func (c *PipelineConfig) ClampedMaxReports() int {
	switch {
	case c.MaxReports < MinReportsPerCycle:
		return MinReportsPerCycle
	case c.MaxReports > MaxReportsPerCycle:
		return MaxReportsPerCycle
	default:
		return c.MaxReports
	}
}

// ResolverConfig holds PDF/figure resolution configuration.
type ResolverConfig struct {
	// CacheDir is the directory for downloaded PDFs and images.
	CacheDir string `mapstructure:"cache_dir"`
	// MinPDFBytes is the minimum payload size for a download to count as a PDF.
	MinPDFBytes int64 `mapstructure:"min_pdf_bytes"`
	// MaxPDFBytes caps the payload size read from a candidate.
	MaxPDFBytes int64 `mapstructure:"max_pdf_bytes"`
	// Timeout is the per-candidate download timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// UserAgent is sent on outbound fetches.
	UserAgent string `mapstructure:"user_agent"`
	// MaxFigures is the maximum number of figures extracted per paper.
	MaxFigures int `mapstructure:"max_figures"`
	// AllowPrivateHosts disables the private-network guard (tests only).
	AllowPrivateHosts bool `mapstructure:"allow_private_hosts"`
}

// FeedsConfig holds candidate feed configuration.
type FeedsConfig struct {
	// ArXivBaseURL is the arXiv Atom API base URL.
	ArXivBaseURL string `mapstructure:"arxiv_base_url"`
	// Timeout is the per-request feed timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum feed requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// MaxResults is the maximum candidates fetched per cycle.
	MaxResults int `mapstructure:"max_results"`
	// Categories lists the arXiv categories to query.
	Categories []string `mapstructure:"categories"`
	// Keywords biases ranking toward matching titles/abstracts.
	Keywords []string `mapstructure:"keywords"`
	// WindowDays is how far back candidates are accepted.
	WindowDays int `mapstructure:"window_days"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Location resolves the configured pipeline timezone.
func (c *PipelineConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid pipeline timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("RESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/research-pipeline-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// These fields are tagged with mapstructure:"-" to prevent loading from config files.
func loadSecrets(cfg *Config) {
	cfg.LLM.OpenAI.APIKey = os.Getenv("RESEARCH_LLM_OPENAI_API_KEY")
	cfg.LLM.Anthropic.APIKey = os.Getenv("RESEARCH_LLM_ANTHROPIC_API_KEY")
	cfg.Pipeline.WebhookURL = os.Getenv("RESEARCH_PIPELINE_WEBHOOK_URL")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "research")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "research_pipeline_service")
	// Default to "require" for production security. Use RESEARCH_DATABASE_SSL_MODE=disable for local development.
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 4)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// LLM defaults
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-5")
	v.SetDefault("llm.fallback_model", "gpt-4.1-mini")
	v.SetDefault("llm.max_output_tokens", 8192)
	v.SetDefault("llm.timeout", "25s")
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.retry_delay", "2s")
	v.SetDefault("llm.temperature", 0.4)
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.anthropic.base_url", "https://api.anthropic.com")

	// Pipeline defaults
	v.SetDefault("pipeline.timezone", "UTC")
	v.SetDefault("pipeline.max_reports", 3)
	v.SetDefault("pipeline.similar_limit", 3)
	v.SetDefault("pipeline.min_similarity", 0.08)
	v.SetDefault("pipeline.schedule_enabled", false)
	v.SetDefault("pipeline.schedule", "0 0 7 * * *")
	v.SetDefault("pipeline.reports_dir", "reports")

	// Resolver defaults
	v.SetDefault("resolver.cache_dir", "reports")
	v.SetDefault("resolver.min_pdf_bytes", 10240)
	v.SetDefault("resolver.max_pdf_bytes", 52428800)
	v.SetDefault("resolver.timeout", "20s")
	v.SetDefault("resolver.user_agent", "research-pipeline-service/1.0")
	v.SetDefault("resolver.max_figures", 6)
	v.SetDefault("resolver.allow_private_hosts", false)

	// Feeds defaults
	v.SetDefault("feeds.arxiv_base_url", "https://export.arxiv.org/api")
	v.SetDefault("feeds.timeout", "30s")
	v.SetDefault("feeds.rate_limit", 3.0) // arXiv recommends max 3 req/sec
	v.SetDefault("feeds.max_results", 100)
	v.SetDefault("feeds.categories", []string{"cs.LG", "cs.CL"})
	v.SetDefault("feeds.keywords", []string{})
	v.SetDefault("feeds.window_days", 3)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	// Validate database config
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate LLM config
	switch strings.ToLower(c.LLM.Provider) {
	case "openai":
		if c.LLM.OpenAI.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires RESEARCH_LLM_OPENAI_API_KEY to be set", c.LLM.Provider)
		}
	case "anthropic":
		if c.LLM.Anthropic.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires RESEARCH_LLM_ANTHROPIC_API_KEY to be set", c.LLM.Provider)
		}
	default:
		return fmt.Errorf("unknown LLM provider: %s", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM model is required")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM timeout must be positive")
	}

	// Validate pipeline config
	if _, err := c.Pipeline.Location(); err != nil {
		return err
	}
	if c.Pipeline.SimilarLimit <= 0 {
		return fmt.Errorf("pipeline similar_limit must be positive")
	}
	if c.Pipeline.MinSimilarity < 0 || c.Pipeline.MinSimilarity > 1 {
		return fmt.Errorf("pipeline min_similarity must be between 0 and 1")
	}

	// Validate resolver config
	if c.Resolver.MinPDFBytes <= 0 {
		return fmt.Errorf("resolver min_pdf_bytes must be positive")
	}
	if c.Resolver.MaxPDFBytes < c.Resolver.MinPDFBytes {
		return fmt.Errorf("resolver max_pdf_bytes (%d) must be >= min_pdf_bytes (%d)",
			c.Resolver.MaxPDFBytes, c.Resolver.MinPDFBytes)
	}

	// Validate feeds config
	if c.Feeds.RateLimit <= 0 {
		return fmt.Errorf("feeds rate_limit must be positive")
	}
	if c.Feeds.WindowDays <= 0 {
		return fmt.Errorf("feeds window_days must be positive")
	}

	return nil
}
