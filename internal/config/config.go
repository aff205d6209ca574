// Package config provides configuration management for the paper search service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the paper search service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// LLM contains LLM client settings for the search skills.
	LLM LLMConfig `mapstructure:"llm"`
	// PaperSources contains paper source API configurations.
	PaperSources PaperSourcesConfig `mapstructure:"paper_sources"`
	// Dedup contains deduplication settings.
	Dedup DedupConfig `mapstructure:"dedup"`
	// Relevance contains relevance scoring settings.
	Relevance RelevanceConfig `mapstructure:"relevance"`
	// Organizer contains result organization settings.
	Organizer OrganizerConfig `mapstructure:"organizer"`
	// Workflow contains search workflow settings.
	Workflow WorkflowConfig `mapstructure:"workflow"`
	// Session contains interactive session settings.
	Session SessionConfig `mapstructure:"session"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
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

// LLMConfig holds LLM client configuration.
type LLMConfig struct {
	// Provider is the LLM provider name, recorded in logs and errors.
	Provider string `mapstructure:"provider"`
	// APIKey is the provider API key (loaded from PAPERSEARCH_LLM_API_KEY env var).
	APIKey string `mapstructure:"-"`
	// Model is the model identifier to use for all skills.
	Model string `mapstructure:"model"`
	// BaseURL is the provider API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the timeout for LLM API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is the maximum number of retries for failed calls.
	MaxRetries int `mapstructure:"max_retries"`
	// Temperature is the LLM temperature setting.
	Temperature float64 `mapstructure:"temperature"`
}

// PaperSourcesConfig holds configuration for all paper source APIs.
type PaperSourcesConfig struct {
	// GoogleScholar contains Google Scholar (SerpAPI) settings.
	GoogleScholar PaperSourceConfig `mapstructure:"google_scholar"`
}

// PaperSourceConfig holds configuration for a single paper source API.
type PaperSourceConfig struct {
	// Enabled controls whether this source is used.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is the API key (loaded from environment variable, e.g. PAPERSEARCH_PAPER_SOURCES_GOOGLE_SCHOLAR_API_KEY).
	APIKey string `mapstructure:"-"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// MaxResults is the maximum results per query.
	MaxResults int `mapstructure:"max_results"`
}

// DedupConfig holds deduplication settings.
type DedupConfig struct {
	// EnableLLMPass enables the LLM-assisted pass over papers left ungrouped
	// by identifier matching.
	EnableLLMPass bool `mapstructure:"enable_llm_pass"`
	// MaxLLMCandidates caps how many ungrouped papers are sent to the LLM
	// pass. Values below 2 are raised to 2.
	MaxLLMCandidates int `mapstructure:"max_llm_candidates"`
}

// RelevanceConfig holds relevance scoring settings.
type RelevanceConfig struct {
	// BatchSize is the number of papers scored per LLM call.
	BatchSize int `mapstructure:"batch_size"`
	// Concurrency is the maximum number of concurrent scoring calls.
	Concurrency int `mapstructure:"concurrency"`
}

// OrganizerConfig holds result organization settings.
type OrganizerConfig struct {
	// MinRelevance is the relevance threshold below which papers are
	// excluded from the final collection.
	MinRelevance float64 `mapstructure:"min_relevance"`
}

// WorkflowConfig holds search workflow settings.
type WorkflowConfig struct {
	// MaxIterations is the maximum number of search iterations per session.
	MaxIterations int `mapstructure:"max_iterations"`
	// StrategyCheckpoint enables the pre-search strategy checkpoint.
	StrategyCheckpoint bool `mapstructure:"strategy_checkpoint"`
}

// SessionConfig holds interactive session settings.
type SessionConfig struct {
	// DecideWaitTimeout is how long a decision submission waits for the
	// workflow to reach the next checkpoint or complete.
	DecideWaitTimeout time.Duration `mapstructure:"decide_wait_timeout"`
	// PollInterval is the polling interval used while waiting on session state.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// RequireUserResponse rejects empty or trivial decision notes when a
	// checkpoint expects substantive input.
	RequireUserResponse bool `mapstructure:"require_user_response"`
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("PAPERSEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/paper-search-service")

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
	cfg.LLM.APIKey = os.Getenv("PAPERSEARCH_LLM_API_KEY")
	cfg.PaperSources.GoogleScholar.APIKey = os.Getenv("PAPERSEARCH_PAPER_SOURCES_GOOGLE_SCHOLAR_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

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
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4-turbo")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.temperature", 0.2)

	// Paper sources defaults - Google Scholar (via SerpAPI)
	v.SetDefault("paper_sources.google_scholar.enabled", true)
	v.SetDefault("paper_sources.google_scholar.base_url", "https://serpapi.com")
	v.SetDefault("paper_sources.google_scholar.timeout", "30s")
	v.SetDefault("paper_sources.google_scholar.rate_limit", 5.0)
	v.SetDefault("paper_sources.google_scholar.max_results", 100)

	// Dedup defaults
	v.SetDefault("dedup.enable_llm_pass", true)
	v.SetDefault("dedup.max_llm_candidates", 60)

	// Relevance defaults
	v.SetDefault("relevance.batch_size", 10)
	v.SetDefault("relevance.concurrency", 5)

	// Organizer defaults
	v.SetDefault("organizer.min_relevance", 0.3)

	// Workflow defaults
	v.SetDefault("workflow.max_iterations", 5)
	v.SetDefault("workflow.strategy_checkpoint", true)

	// Session defaults
	v.SetDefault("session.decide_wait_timeout", "15s")
	v.SetDefault("session.poll_interval", "50ms")
	v.SetDefault("session.require_user_response", true)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
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
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM timeout must be positive")
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("LLM max_retries must not be negative")
	}

	// Validate dedup config
	if c.Dedup.MaxLLMCandidates < 0 {
		return fmt.Errorf("dedup max_llm_candidates must not be negative")
	}

	// Validate relevance config
	if c.Relevance.BatchSize <= 0 {
		return fmt.Errorf("relevance batch_size must be positive")
	}
	if c.Relevance.Concurrency <= 0 {
		return fmt.Errorf("relevance concurrency must be positive")
	}

	// Validate organizer config
	if c.Organizer.MinRelevance < 0 || c.Organizer.MinRelevance > 1 {
		return fmt.Errorf("organizer min_relevance must be between 0 and 1")
	}

	// Validate workflow config
	if c.Workflow.MaxIterations <= 0 {
		return fmt.Errorf("workflow max_iterations must be positive")
	}

	// Validate session config
	if c.Session.DecideWaitTimeout <= 0 {
		return fmt.Errorf("session decide_wait_timeout must be positive")
	}
	if c.Session.PollInterval <= 0 {
		return fmt.Errorf("session poll_interval must be positive")
	}

	return nil
}
