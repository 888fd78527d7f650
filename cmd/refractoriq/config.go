package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"refractoriq/internal/config"
	"refractoriq/internal/dashboard"
	"refractoriq/internal/paths"
)

var (
	configShowDiff bool
	configForce    bool
)

// secretKeys are redacted by config show.
var secretKeys = map[string]bool{
	"backend.token":   true,
	"serve.tokenHash": true,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage RefractorIQ configuration",
	Long:  "View and manage the configuration stored in config.toml in the RefractorIQ home directory",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the effective configuration: defaults, config.toml and environment overrides.

Examples:
  refractoriq config show                # Every setting
  refractoriq config show --diff         # Only non-default values
  refractoriq config show --format json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config.toml",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "List supported environment variables",
	Long:  "Display all supported RefractorIQ environment variable overrides",
	Args:  cobra.NoArgs,
	RunE:  runConfigEnv,
}

func init() {
	configShowCmd.Flags().BoolVar(&configShowDiff, "diff", false, "Only show non-default values")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configEnvCmd)
	rootCmd.AddCommand(configCmd)
}

// ConfigSetting is one flattened configuration value
type ConfigSetting struct {
	Key      string      `json:"key"`
	Value    interface{} `json:"value"`
	Default  interface{} `json:"default"`
	Modified bool        `json:"modified"`
}

// ConfigShowResponse is the response format for config show
type ConfigShowResponse struct {
	ConfigPath   string               `json:"configPath,omitempty"`
	UsedDefaults bool                 `json:"usedDefaults"`
	EnvOverrides []config.EnvOverride `json:"envOverrides,omitempty"`
	Settings     []ConfigSetting      `json:"settings"`
}

func (r *ConfigShowResponse) formatHuman(t dashboard.Theme) string {
	lines := []string{t.Title.Render("RefractorIQ Configuration"), strings.Repeat("─", 50)}
	if r.UsedDefaults {
		lines = append(lines, "Source: defaults (no config file found)")
	} else if r.ConfigPath != "" {
		lines = append(lines, "Source: "+r.ConfigPath)
	}

	if len(r.EnvOverrides) > 0 {
		lines = append(lines, "", "Environment Overrides:")
		for _, ov := range r.EnvOverrides {
			lines = append(lines, fmt.Sprintf("  %s=%s → %s", ov.EnvVar, ov.Value, ov.Key))
		}
	}

	lines = append(lines, "")
	section := ""
	for _, s := range r.Settings {
		head, rest, _ := strings.Cut(s.Key, ".")
		if rest == "" {
			rest, head = head, ""
		}
		if head != section {
			section = head
			if section != "" {
				lines = append(lines, "", section+":")
			}
		}
		indent := ""
		if head != "" {
			indent = "  "
		}
		line := fmt.Sprintf("%s%s: %v", indent, rest, s.Value)
		if s.Modified {
			line += t.Muted.Render(fmt.Sprintf(" (default: %v)", s.Default))
		}
		lines = append(lines, line)
	}
	if len(r.Settings) == 0 {
		lines = append(lines, "All settings use their defaults.")
	}

	lines = append(lines, "",
		"Use 'refractoriq config show --format json' for machine-readable output",
		"Use 'refractoriq config env' to see supported environment variables")
	return joinLines(lines)
}

// ConfigInitResponse reports a written config file
type ConfigInitResponse struct {
	Path string `json:"path"`
}

func (r *ConfigInitResponse) formatHuman(t dashboard.Theme) string {
	return "Wrote default configuration to " + r.Path
}

// ConfigEnvResponse lists environment overrides
type ConfigEnvResponse struct {
	HomeEnvVar string   `json:"homeEnvVar"`
	Variables  []string `json:"variables"`
}

func (r *ConfigEnvResponse) formatHuman(t dashboard.Theme) string {
	lines := []string{t.Title.Render("Supported RefractorIQ Environment Variables"), strings.Repeat("─", 50), ""}
	lines = append(lines, fmt.Sprintf("  %-40s home directory (default ~/.refractoriq)", r.HomeEnvVar))
	for _, v := range r.Variables {
		lines = append(lines, "  "+v)
	}
	return joinLines(lines)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	home, err := paths.GetHome()
	if err != nil {
		return err
	}
	result, err := config.LoadConfig(home)
	if err != nil {
		return err
	}
	settings, err := configSettings(result.Config, config.DefaultConfig(), configShowDiff)
	if err != nil {
		return err
	}
	return printResponse(cmd, &ConfigShowResponse{
		ConfigPath:   result.ConfigPath,
		UsedDefaults: result.UsedDefaults,
		EnvOverrides: result.EnvOverrides,
		Settings:     settings,
	})
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := os.Getenv(config.ConfigPathEnvVar)
	if path == "" {
		home, err := paths.EnsureHome()
		if err != nil {
			return err
		}
		path = filepath.Join(home, config.FileName)
	}
	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}
	return printResponse(cmd, &ConfigInitResponse{Path: path})
}

func runConfigEnv(cmd *cobra.Command, args []string) error {
	return printResponse(cmd, &ConfigEnvResponse{
		HomeEnvVar: paths.HomeEnvVar,
		Variables:  config.GetSupportedEnvVars(),
	})
}

// configSettings flattens cfg into dotted keys sorted by name, each paired with
// its default. Secrets are redacted.
func configSettings(cfg, defaults *config.Config, diffOnly bool) ([]ConfigSetting, error) {
	current, err := flattenConfig(cfg)
	if err != nil {
		return nil, err
	}
	defs, err := flattenConfig(defaults)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(current)+len(defs))
	for k := range current {
		keys = append(keys, k)
	}
	for k := range defs {
		if _, ok := current[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	settings := make([]ConfigSetting, 0, len(keys))
	for _, k := range keys {
		s := ConfigSetting{Key: k, Value: current[k], Default: defs[k]}
		s.Modified = !isEqual(s.Value, s.Default)
		if diffOnly && !s.Modified {
			continue
		}
		if secretKeys[k] && s.Value != nil && s.Value != "" {
			s.Value = "***"
		}
		settings = append(settings, s)
	}
	return settings, nil
}

func flattenConfig(cfg *config.Config) (map[string]interface{}, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	flat := make(map[string]interface{})
	flattenInto(flat, "", tree)
	return flat, nil
}

func flattenInto(dst map[string]interface{}, prefix string, tree map[string]interface{}) {
	for k, v := range tree {
		if nested, ok := v.(map[string]interface{}); ok {
			flattenInto(dst, prefix+k+".", nested)
			continue
		}
		dst[prefix+k] = v
	}
}

func isEqual(a, b interface{}) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
