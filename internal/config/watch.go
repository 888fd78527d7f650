package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch re-reads the config file whenever it changes on disk and hands the
// decoded, validated result to onChange. Invalid edits are logged and skipped.
// It is a no-op when the configuration came from defaults only.
func (r *LoadResult) Watch(logger *slog.Logger, onChange func(*Config)) {
	if r.v == nil || r.ConfigPath == "" {
		return
	}
	r.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(r.v)
		if err != nil {
			logger.Warn("Config reload failed", "path", e.Name, "error", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			logger.Warn("Ignoring invalid config change", "path", e.Name, "error", err)
			return
		}
		logger.Info("Config reloaded", "path", e.Name)
		onChange(cfg)
	})
	r.v.WatchConfig()
}
