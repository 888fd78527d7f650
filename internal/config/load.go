package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "REFRACTORIQ"

// ConfigPathEnvVar points at an explicit config file, bypassing the home lookup.
const ConfigPathEnvVar = EnvPrefix + "_CONFIG_PATH"

// EnvOverride records an environment variable that replaced a config value.
type EnvOverride struct {
	EnvVar string `json:"envVar"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

// LoadResult is a loaded configuration plus where its values came from.
type LoadResult struct {
	Config       *Config       `json:"config"`
	ConfigPath   string        `json:"configPath,omitempty"`
	UsedDefaults bool          `json:"usedDefaults"`
	EnvOverrides []EnvOverride `json:"envOverrides,omitempty"`

	v *viper.Viper
}

type envBinding struct {
	key    string
	envVar string
	secret bool
}

var envBindings = []envBinding{
	{key: "backend.url", envVar: EnvPrefix + "_BACKEND_URL"},
	{key: "backend.token", envVar: EnvPrefix + "_BACKEND_TOKEN", secret: true},
	{key: "backend.timeoutMs", envVar: EnvPrefix + "_BACKEND_TIMEOUT_MS"},
	{key: "backend.maxRetries", envVar: EnvPrefix + "_BACKEND_MAX_RETRIES"},
	{key: "analysis.excludeThirdParty", envVar: EnvPrefix + "_EXCLUDE_THIRD_PARTY"},
	{key: "analysis.excludeTests", envVar: EnvPrefix + "_EXCLUDE_TESTS"},
	{key: "analysis.pollIntervalMs", envVar: EnvPrefix + "_POLL_INTERVAL_MS"},
	{key: "analysis.searchTopK", envVar: EnvPrefix + "_SEARCH_TOP_K"},
	{key: "history.enabled", envVar: EnvPrefix + "_HISTORY_ENABLED"},
	{key: "history.path", envVar: EnvPrefix + "_HISTORY_PATH"},
	{key: "history.retentionDays", envVar: EnvPrefix + "_HISTORY_RETENTION_DAYS"},
	{key: "serve.host", envVar: EnvPrefix + "_SERVE_HOST"},
	{key: "serve.port", envVar: EnvPrefix + "_SERVE_PORT"},
	{key: "serve.tokenHash", envVar: EnvPrefix + "_SERVE_TOKEN_HASH", secret: true},
	{key: "serve.analyzeRateLimit", envVar: EnvPrefix + "_SERVE_ANALYZE_RATE_LIMIT"},
	{key: "logging.format", envVar: EnvPrefix + "_LOG_FORMAT"},
	{key: "logging.level", envVar: EnvPrefix + "_LOG_LEVEL"},
}

// GetSupportedEnvVars returns every environment variable LoadConfig honours.
func GetSupportedEnvVars() []string {
	vars := make([]string, 0, len(envBindings)+1)
	vars = append(vars, ConfigPathEnvVar)
	for _, b := range envBindings {
		vars = append(vars, b.envVar)
	}
	return vars
}

// LoadConfig loads config.toml from home (or $REFRACTORIQ_CONFIG_PATH), layering
// defaults, file values and environment overrides. A missing file is not an error.
func LoadConfig(home string) (*LoadResult, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	for _, b := range envBindings {
		if err := v.BindEnv(b.key, b.envVar); err != nil {
			return nil, err
		}
	}

	result := &LoadResult{v: v}

	if explicit := os.Getenv(ConfigPathEnvVar); explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("toml")
		v.AddConfigPath(home)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		result.UsedDefaults = true
	} else {
		result.ConfigPath = v.ConfigFileUsed()
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	result.Config = cfg

	for _, b := range envBindings {
		if val, ok := os.LookupEnv(b.envVar); ok {
			if b.secret {
				val = "***"
			}
			result.EnvOverrides = append(result.EnvOverrides, EnvOverride{EnvVar: b.envVar, Key: b.key, Value: val})
		}
	}

	return result, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)

	v.SetDefault("backend.url", d.Backend.URL)
	v.SetDefault("backend.token", d.Backend.Token)
	v.SetDefault("backend.timeoutMs", d.Backend.TimeoutMs)
	v.SetDefault("backend.maxRetries", d.Backend.MaxRetries)

	v.SetDefault("analysis.excludeThirdParty", d.Analysis.ExcludeThirdParty)
	v.SetDefault("analysis.excludeTests", d.Analysis.ExcludeTests)
	v.SetDefault("analysis.pollIntervalMs", d.Analysis.PollIntervalMs)
	v.SetDefault("analysis.searchTopK", d.Analysis.SearchTopK)

	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("history.retentionDays", d.History.RetentionDays)

	v.SetDefault("serve.host", d.Serve.Host)
	v.SetDefault("serve.port", d.Serve.Port)
	v.SetDefault("serve.tokenHash", d.Serve.TokenHash)
	v.SetDefault("serve.analyzeRateLimit", d.Serve.AnalyzeRateLimit)

	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.maxSize", d.Logging.MaxSize)
	v.SetDefault("logging.maxBackups", d.Logging.MaxBackups)
}
