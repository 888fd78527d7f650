package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"refractoriq/internal/backend"
	"refractoriq/internal/config"
	"refractoriq/internal/jobs"
	"refractoriq/internal/paths"
	"refractoriq/internal/slogutil"
)

// cliEnv bundles what every command needs: the loaded configuration, a logger
// and the home directory. Close releases the log file, if one was opened.
type cliEnv struct {
	home   string
	load   *config.LoadResult
	cfg    *config.Config
	logger *slog.Logger

	closers []io.Closer
}

// newEnv loads the configuration and builds the logger. With fileLog set the
// logger also writes to a rotating file in the logs directory.
func newEnv(fileLog bool) (*cliEnv, error) {
	home, err := paths.GetHome()
	if err != nil {
		return nil, err
	}
	load, err := config.LoadConfig(home)
	if err != nil {
		return nil, err
	}
	if err := load.Config.Validate(); err != nil {
		return nil, err
	}

	env := &cliEnv{home: home, load: load, cfg: load.Config}
	level := slogutil.LevelFromFlags(env.cfg.Logging.Level, verbosity, quiet)
	env.logger = slogutil.NewLogger(os.Stderr, level, env.cfg.Logging.Format)

	if fileLog && level != slogutil.Silent {
		logPath := filepath.Join(paths.GetLogsDir(home), "refractoriq.log")
		fileLogger, closer, err := slogutil.NewFileLogger(logPath, level, env.cfg.Logging.MaxSize, env.cfg.Logging.MaxBackups)
		if err != nil {
			env.logger.Warn("File logging disabled", "path", logPath, "error", err)
		} else {
			env.closers = append(env.closers, closer)
			env.logger = slog.New(slogutil.NewTeeHandler(env.logger.Handler(), fileLogger.Handler()))
		}
	}
	return env, nil
}

func (e *cliEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i].Close()
	}
	e.closers = nil
}

// backendClient builds a client for the configured analysis backend.
func (e *cliEnv) backendClient() (*backend.Client, error) {
	c, err := backend.New(backend.Options{
		BaseURL:    e.cfg.Backend.URL,
		Token:      e.cfg.Backend.Token,
		Timeout:    e.cfg.Backend.Timeout(),
		MaxRetries: e.cfg.Backend.MaxRetries,
		Logger:     e.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid backend configuration: %w", err)
	}
	return c, nil
}

// openHistory opens the run history. It returns nil when history is disabled.
func (e *cliEnv) openHistory(ctx context.Context) (*jobs.Store, error) {
	if !e.cfg.History.Enabled {
		return nil, nil
	}
	store, err := jobs.OpenStore(ctx, paths.GetHistoryPath(e.home, e.cfg.History.Path), e.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	e.closers = append(e.closers, store)
	return store, nil
}

// requireHistory is openHistory for commands that cannot work without it.
func (e *cliEnv) requireHistory(ctx context.Context) (*jobs.Store, error) {
	store, err := e.openHistory(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("history is disabled (set history.enabled = true in %s)", config.FileName)
	}
	return store, nil
}

// newContext returns a context cancelled on SIGINT or SIGTERM.
func newContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
