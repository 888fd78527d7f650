package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != CurrentVersion {
		t.Errorf("Version = %d, want %d", cfg.Version, CurrentVersion)
	}
	if !cfg.Analysis.ExcludeThirdParty || !cfg.Analysis.ExcludeTests {
		t.Error("third-party and test exclusion should default to true")
	}
	if got := cfg.Analysis.PollInterval(); got != 5*time.Second {
		t.Errorf("PollInterval() = %v, want 5s", got)
	}
	if cfg.Analysis.SearchTopK != 5 {
		t.Errorf("SearchTopK = %d, want 5", cfg.Analysis.SearchTopK)
	}
	if cfg.Backend.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0", cfg.Backend.MaxRetries)
	}
	if got := cfg.Serve.Addr(); got != "localhost:8090" {
		t.Errorf("Addr() = %q, want localhost:8090", got)
	}
	if got := cfg.History.Retention(); got != 30*24*time.Hour {
		t.Errorf("Retention() = %v, want 720h", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad version", func(c *Config) { c.Version = 9 }, "version"},
		{"relative url", func(c *Config) { c.Backend.URL = "/api" }, "backend.url"},
		{"ftp url", func(c *Config) { c.Backend.URL = "ftp://host" }, "backend.url"},
		{"negative timeout", func(c *Config) { c.Backend.TimeoutMs = -1 }, "backend.timeoutMs"},
		{"too many retries", func(c *Config) { c.Backend.MaxRetries = 11 }, "backend.maxRetries"},
		{"poll too fast", func(c *Config) { c.Analysis.PollIntervalMs = 50 }, "analysis.pollIntervalMs"},
		{"zero top k", func(c *Config) { c.Analysis.SearchTopK = 0 }, "analysis.searchTopK"},
		{"negative retention", func(c *Config) { c.History.RetentionDays = -1 }, "history.retentionDays"},
		{"bad port", func(c *Config) { c.Serve.Port = 70000 }, "serve.port"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			cfgErr, ok := err.(*ConfigError)
			if !ok {
				t.Fatalf("Validate() error = %v, want *ConfigError", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.wantField)
			}
		})
	}
}

func TestConfigError_Error(t *testing.T) {
	err := &ConfigError{Field: "serve.port", Message: "out of range"}
	want := "config error in field 'serve.port': out of range"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestLoadConfig_Default(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	tmpDir := t.TempDir()

	result, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if !result.UsedDefaults {
		t.Error("UsedDefaults should be true when no config file exists")
	}
	if result.ConfigPath != "" {
		t.Errorf("ConfigPath = %q, want empty", result.ConfigPath)
	}
	if result.Config.Analysis.PollIntervalMs != 5000 {
		t.Errorf("PollIntervalMs = %d, want 5000", result.Config.Analysis.PollIntervalMs)
	}
	if result.Config.Serve.Port != 8090 {
		t.Errorf("Serve.Port = %d, want 8090", result.Config.Serve.Port)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	tmpDir := t.TempDir()
	content := `version = 1

[backend]
url = "https://riq.example.com"
timeoutMs = 1000

[analysis]
excludeTests = false
pollIntervalMs = 250
`
	if err := os.WriteFile(filepath.Join(tmpDir, FileName), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	result, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	cfg := result.Config

	if result.UsedDefaults {
		t.Error("UsedDefaults should be false when a file was read")
	}
	if cfg.Backend.URL != "https://riq.example.com" {
		t.Errorf("Backend.URL = %q", cfg.Backend.URL)
	}
	if cfg.Backend.TimeoutMs != 1000 {
		t.Errorf("Backend.TimeoutMs = %d, want 1000", cfg.Backend.TimeoutMs)
	}
	if cfg.Analysis.ExcludeTests {
		t.Error("Analysis.ExcludeTests should be false from file")
	}
	if !cfg.Analysis.ExcludeThirdParty {
		t.Error("Analysis.ExcludeThirdParty should keep its default")
	}
	if cfg.Analysis.PollIntervalMs != 250 {
		t.Errorf("PollIntervalMs = %d, want 250", cfg.Analysis.PollIntervalMs)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("REFRACTORIQ_BACKEND_URL", "http://backend:9000")
	t.Setenv("REFRACTORIQ_POLL_INTERVAL_MS", "1500")
	t.Setenv("REFRACTORIQ_BACKEND_TOKEN", "s3cret")

	result, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if result.Config.Backend.URL != "http://backend:9000" {
		t.Errorf("Backend.URL = %q", result.Config.Backend.URL)
	}
	if result.Config.Analysis.PollIntervalMs != 1500 {
		t.Errorf("PollIntervalMs = %d, want 1500", result.Config.Analysis.PollIntervalMs)
	}
	if result.Config.Backend.Token != "s3cret" {
		t.Errorf("Backend.Token = %q, want s3cret", result.Config.Backend.Token)
	}
	if len(result.EnvOverrides) != 3 {
		t.Fatalf("len(EnvOverrides) = %d, want 3", len(result.EnvOverrides))
	}
	for _, o := range result.EnvOverrides {
		if o.EnvVar == "REFRACTORIQ_BACKEND_TOKEN" && o.Value != "***" {
			t.Errorf("token override should be masked, got %q", o.Value)
		}
	}
}

func TestLoadConfig_EnvConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "custom.toml")
	if err := os.WriteFile(configPath, []byte("[analysis]\nsearchTopK = 12\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, configPath)

	result, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if result.ConfigPath != configPath {
		t.Errorf("ConfigPath = %q, want %q", result.ConfigPath, configPath)
	}
	if result.Config.Analysis.SearchTopK != 12 {
		t.Errorf("SearchTopK = %d, want 12", result.Config.Analysis.SearchTopK)
	}
}

func TestLoadConfig_InvalidTOML(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, FileName), []byte("[backend\nurl ="), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := LoadConfig(tmpDir); err == nil {
		t.Error("LoadConfig() should fail on malformed TOML")
	}
}

func TestConfig_Save(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)

	cfg := DefaultConfig()
	cfg.Backend.URL = "https://saved.example.com"
	cfg.Serve.Port = 9999
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var decoded Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("saved file is not valid TOML: %v", err)
	}
	if decoded.Backend.URL != cfg.Backend.URL || decoded.Serve.Port != 9999 {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
	if strings.Contains(string(data), "token =") {
		t.Error("empty token should be omitted")
	}

	t.Setenv(ConfigPathEnvVar, path)
	result, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if result.Config.Serve.Port != 9999 {
		t.Errorf("Serve.Port = %d after reload, want 9999", result.Config.Serve.Port)
	}
}

func TestGetSupportedEnvVars(t *testing.T) {
	vars := GetSupportedEnvVars()

	want := map[string]bool{
		ConfigPathEnvVar:               false,
		"REFRACTORIQ_BACKEND_URL":      false,
		"REFRACTORIQ_POLL_INTERVAL_MS": false,
		"REFRACTORIQ_LOG_LEVEL":        false,
	}
	for _, v := range vars {
		if _, ok := want[v]; ok {
			want[v] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("GetSupportedEnvVars() missing %s", name)
		}
	}
}
