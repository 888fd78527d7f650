package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"refractoriq/internal/api"
	"refractoriq/internal/config"
	"refractoriq/internal/dashboard"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local dashboard server",
	Long: `Start the local dashboard HTTP server. It owns one dashboard session:
analyses started through POST /api/analyze are followed in the background,
rendered tabs and graph layouts are served over HTTP, and /ws pushes every
state change to connected clients.

Set serve.tokenHash (see "refractoriq token hash") to require a bearer token.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default from config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	env, err := newEnv(true)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := newContext()
	defer cancel()

	cfg := env.cfg
	logger := env.logger

	host, port := cfg.Serve.Host, cfg.Serve.Port
	if serveHost != "" {
		host = serveHost
	}
	if servePort != 0 {
		port = servePort
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	client, err := env.backendClient()
	if err != nil {
		return err
	}

	sessionOpts := dashboard.Options{PollInterval: cfg.Analysis.PollInterval(), Logger: logger}
	var history api.HistoryReader
	store, err := env.openHistory(ctx)
	if err != nil {
		return err
	}
	if store != nil {
		sessionOpts.History = store
		history = store
		if retention := cfg.History.Retention(); retention > 0 {
			if _, err := store.Prune(ctx, retention); err != nil {
				logger.Warn("History prune failed", "error", err)
			}
		}
	}

	session := dashboard.NewSession(client, sessionOpts)
	defer session.Close()

	env.load.Watch(logger, func(next *config.Config) {
		session.Poller().SetInterval(next.Analysis.PollInterval())
	})

	server := api.NewServer(api.Options{
		Addr:              addr,
		Session:           session,
		History:           history,
		TokenHash:         cfg.Serve.TokenHash,
		AnalyzeRateLimit:  cfg.Serve.AnalyzeRateLimit,
		SearchTopK:        cfg.Analysis.SearchTopK,
		ExcludeThirdParty: cfg.Analysis.ExcludeThirdParty,
		ExcludeTests:      cfg.Analysis.ExcludeTests,
		Logger:            logger,
	})

	// Start server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(ctx)
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "RefractorIQ dashboard listening on http://%s\n", addr)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during shutdown", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")
	}

	return nil
}
