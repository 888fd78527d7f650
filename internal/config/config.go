package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// CurrentVersion is the config schema version written by `config init`.
const CurrentVersion = 1

// FileName is the config file looked up in the RefractorIQ home directory.
const FileName = "config.toml"

// Config represents the complete RefractorIQ client configuration
type Config struct {
	Version int `json:"version" mapstructure:"version" toml:"version"`

	Backend  BackendConfig  `json:"backend" mapstructure:"backend" toml:"backend"`
	Analysis AnalysisConfig `json:"analysis" mapstructure:"analysis" toml:"analysis"`
	History  HistoryConfig  `json:"history" mapstructure:"history" toml:"history"`
	Serve    ServeConfig    `json:"serve" mapstructure:"serve" toml:"serve"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging" toml:"logging"`
}

// BackendConfig describes how to reach the analysis backend
type BackendConfig struct {
	URL        string `json:"url" mapstructure:"url" toml:"url"`
	Token      string `json:"token,omitempty" mapstructure:"token" toml:"token,omitempty"`
	TimeoutMs  int    `json:"timeoutMs" mapstructure:"timeoutMs" toml:"timeoutMs"`
	MaxRetries int    `json:"maxRetries" mapstructure:"maxRetries" toml:"maxRetries"`
}

// AnalysisConfig contains defaults for new analysis runs
type AnalysisConfig struct {
	ExcludeThirdParty bool `json:"excludeThirdParty" mapstructure:"excludeThirdParty" toml:"excludeThirdParty"`
	ExcludeTests      bool `json:"excludeTests" mapstructure:"excludeTests" toml:"excludeTests"`
	PollIntervalMs    int  `json:"pollIntervalMs" mapstructure:"pollIntervalMs" toml:"pollIntervalMs"`
	SearchTopK        int  `json:"searchTopK" mapstructure:"searchTopK" toml:"searchTopK"`
}

// HistoryConfig controls the local run history database
type HistoryConfig struct {
	Enabled       bool   `json:"enabled" mapstructure:"enabled" toml:"enabled"`
	Path          string `json:"path,omitempty" mapstructure:"path" toml:"path,omitempty"`
	RetentionDays int    `json:"retentionDays" mapstructure:"retentionDays" toml:"retentionDays"`
}

// ServeConfig contains the local dashboard server settings
type ServeConfig struct {
	Host      string `json:"host" mapstructure:"host" toml:"host"`
	Port      int    `json:"port" mapstructure:"port" toml:"port"`
	TokenHash string `json:"tokenHash,omitempty" mapstructure:"tokenHash" toml:"tokenHash,omitempty"`
	// AnalyzeRateLimit caps analysis starts per client per minute; 0 disables it.
	AnalyzeRateLimit int `json:"analyzeRateLimit" mapstructure:"analyzeRateLimit" toml:"analyzeRateLimit"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format     string `json:"format" mapstructure:"format" toml:"format"`
	Level      string `json:"level" mapstructure:"level" toml:"level"`
	MaxSize    string `json:"maxSize,omitempty" mapstructure:"maxSize" toml:"maxSize,omitempty"`
	MaxBackups int    `json:"maxBackups" mapstructure:"maxBackups" toml:"maxBackups"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Backend: BackendConfig{
			URL:        "http://localhost:8000",
			TimeoutMs:  30000,
			MaxRetries: 0,
		},
		Analysis: AnalysisConfig{
			ExcludeThirdParty: true,
			ExcludeTests:      true,
			PollIntervalMs:    5000,
			SearchTopK:        5,
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: 30,
		},
		Serve: ServeConfig{
			Host:             "localhost",
			Port:             8090,
			AnalyzeRateLimit: 10,
		},
		Logging: LoggingConfig{
			Format:     "human",
			Level:      "warn",
			MaxSize:    "10MB",
			MaxBackups: 3,
		},
	}
}

// Timeout returns the per-request backend timeout.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// PollInterval returns the job status polling interval.
func (a AnalysisConfig) PollInterval() time.Duration {
	return time.Duration(a.PollIntervalMs) * time.Millisecond
}

// Retention returns how long history entries are kept; zero keeps them forever.
func (h HistoryConfig) Retention() time.Duration {
	return time.Duration(h.RetentionDays) * 24 * time.Hour
}

// Addr returns host:port for the dashboard server.
func (s ServeConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Save writes the configuration as TOML to path, creating parent directories.
// The file is written owner-only since it may hold a backend token.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: fmt.Sprintf("unsupported config version %d", c.Version)}
	}

	u, err := url.Parse(c.Backend.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &ConfigError{Field: "backend.url", Message: "must be an absolute http(s) URL"}
	}
	if c.Backend.TimeoutMs < 0 {
		return &ConfigError{Field: "backend.timeoutMs", Message: "must not be negative"}
	}
	if c.Backend.MaxRetries < 0 || c.Backend.MaxRetries > 10 {
		return &ConfigError{Field: "backend.maxRetries", Message: "must be between 0 and 10"}
	}

	if c.Analysis.PollIntervalMs < 100 {
		return &ConfigError{Field: "analysis.pollIntervalMs", Message: "must be at least 100"}
	}
	if c.Analysis.SearchTopK < 1 {
		return &ConfigError{Field: "analysis.searchTopK", Message: "must be at least 1"}
	}

	if c.History.RetentionDays < 0 {
		return &ConfigError{Field: "history.retentionDays", Message: "must not be negative"}
	}

	if c.Serve.Port < 0 || c.Serve.Port > 65535 {
		return &ConfigError{Field: "serve.port", Message: "must be between 0 and 65535"}
	}
	if c.Serve.AnalyzeRateLimit < 0 {
		return &ConfigError{Field: "serve.analyzeRateLimit", Message: "must not be negative"}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "human", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: "must be human or json"}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error", "off":
	default:
		return &ConfigError{Field: "logging.level", Message: "must be debug, info, warn, error or off"}
	}

	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
