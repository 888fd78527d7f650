// Package api serves the dashboard session over HTTP and a websocket feed.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"refractoriq/internal/auth"
	"refractoriq/internal/dashboard"
	"refractoriq/internal/jobs"
	"refractoriq/internal/slogutil"
)

// HistoryReader is the read side of the run history.
type HistoryReader interface {
	List(ctx context.Context, opts jobs.ListOptions) (*jobs.ListResponse, error)
	Get(ctx context.Context, jobID string) (*jobs.Run, error)
}

// Options configures a Server.
type Options struct {
	Addr    string
	Session *dashboard.Session
	// History is optional; without it the history endpoints answer 404.
	History HistoryReader
	// TokenHash is a bcrypt hash of the dashboard token. Empty disables auth.
	TokenHash string
	// AnalyzeRateLimit caps analysis starts per client per minute; 0 disables it.
	AnalyzeRateLimit int
	// SearchTopK is used when a search request has no k.
	SearchTopK int
	// Default exclusion flags for analyze requests that omit them.
	ExcludeThirdParty bool
	ExcludeTests      bool
	Logger            *slog.Logger
}

// Server represents the HTTP API server
type Server struct {
	router  *http.ServeMux
	server  *http.Server
	opts    Options
	logger  *slog.Logger
	session *dashboard.Session
	limiter *auth.RateLimiter

	// feeds parents every websocket feed; Shutdown cancels it since hijacked
	// connections are not closed by http.Server.
	feeds     context.Context
	stopFeeds context.CancelFunc
}

// NewServer creates a new HTTP server instance
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	s := &Server{
		opts:    opts,
		logger:  logger,
		session: opts.Session,
		router:  http.NewServeMux(),
		limiter: auth.NewRateLimiter(auth.RateLimitConfig{PerMinute: opts.AnalyzeRateLimit}, logger),
	}

	s.feeds, s.stopFeeds = context.WithCancel(context.Background())
	s.registerRoutes()

	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.applyMiddleware(s.router),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.server.RegisterOnShutdown(s.stopFeeds)
	return s
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	l, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until Shutdown. ctx bounds background maintenance.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.limiter.StartCleanup(ctx)
	s.logger.Info("Starting HTTP server", "addr", l.Addr().String(), "auth", s.opts.TokenHash != "")

	if err := s.server.Serve(l); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server shut down successfully")
	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// applyMiddleware wraps the handler with middleware in the correct order
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	// Apply middleware in reverse order (last one wraps first)
	handler = RateLimitMiddleware(s.limiter, s.logger)(handler)
	handler = AuthMiddleware(s.opts.TokenHash, s.logger)(handler)
	handler = RecoveryMiddleware(s.logger)(handler)
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware()(handler)
	handler = CORSMiddleware()(handler)
	return handler
}
