package api

import (
	"net/http"

	"refractoriq/internal/version"
)

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	s.router.HandleFunc("GET /health", s.handleHealth)

	// Analysis flow
	s.router.HandleFunc("POST /api/analyze", s.handleAnalyze)
	s.router.HandleFunc("POST /api/stop", s.handleStop)
	s.router.HandleFunc("GET /api/state", s.handleState)

	// Views
	s.router.HandleFunc("GET /api/tabs/{tab}", s.handleTab)
	s.router.HandleFunc("GET /api/graph", s.handleGraph)
	s.router.HandleFunc("GET /api/search", s.handleSearch)

	// Run history
	s.router.HandleFunc("GET /api/history", s.handleListHistory)
	s.router.HandleFunc("GET /api/history/{job_id}", s.handleGetHistory)

	// Live feed
	s.router.HandleFunc("GET /ws", s.handleWebSocket)

	s.router.HandleFunc("/", s.handleRoot)
}

// handleRoot handles requests to the root path
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		NotFound(w, "no route for "+r.URL.Path)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"name":    "RefractorIQ dashboard API",
		"version": version.Version,
		"endpoints": []string{
			"GET /health - Health check",
			"POST /api/analyze - Start an analysis {repo_url, exclude_third_party?, exclude_tests?}",
			"POST /api/stop - Stop following the current job",
			"GET /api/state - Job and search state",
			"GET /api/tabs/:tab - Rendered view (overview, complexity, dependencies, graph, duplicates, suggestions, search)",
			"GET /api/graph?focus=:node - Dependency graph layout",
			"GET /api/search?q=query&k=5 - Search the completed analysis",
			"GET /api/history?limit=20&offset=0&status=COMPLETED - List past runs",
			"GET /api/history/:job_id - Past run with full results",
			"GET /ws - Websocket state feed",
		},
	}

	WriteJSON(w, response, http.StatusOK)
}
