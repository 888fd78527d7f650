package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"refractoriq/internal/backend"
	"refractoriq/internal/dashboard"
	"refractoriq/internal/errors"
	"refractoriq/internal/graph"
	"refractoriq/internal/jobs"
	"refractoriq/internal/report"
	"refractoriq/internal/version"
)

const maxAnalyzeBody = 64 << 10

// AnalyzeRequest is the body of POST /api/analyze. Omitted flags fall back
// to the configured defaults.
type AnalyzeRequest struct {
	RepoURL           string `json:"repo_url"`
	ExcludeThirdParty *bool  `json:"exclude_third_party,omitempty"`
	ExcludeTests      *bool  `json:"exclude_tests,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string     `json:"status"`
	Version   string     `json:"version"`
	Phase     jobs.Phase `json:"phase"`
	History   bool       `json:"history"`
	Timestamp time.Time  `json:"timestamp"`
}

// GraphResponse is returned by GET /api/graph.
type GraphResponse struct {
	Layout  *graph.Layout  `json:"layout"`
	Central []graph.Ranked `json:"central,omitempty"`
	Focus   string         `json:"focus,omitempty"`
	Related []graph.Ranked `json:"related,omitempty"`
}

// SearchResponse is returned by GET /api/search.
type SearchResponse struct {
	Query   string             `json:"query"`
	K       int                `json:"k"`
	JobID   string             `json:"job_id"`
	Results []report.SearchHit `json:"results"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, HealthResponse{
		Status:    "ok",
		Version:   version.Version,
		Phase:     s.session.Snapshot().Job.Phase,
		History:   s.opts.History != nil,
		Timestamp: time.Now().UTC(),
	}, http.StatusOK)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var body AnalyzeRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxAnalyzeBody))
	if err := dec.Decode(&body); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	req := backend.StartRequest{
		RepoURL:           body.RepoURL,
		ExcludeThirdParty: s.opts.ExcludeThirdParty,
		ExcludeTests:      s.opts.ExcludeTests,
	}
	if body.ExcludeThirdParty != nil {
		req.ExcludeThirdParty = *body.ExcludeThirdParty
	}
	if body.ExcludeTests != nil {
		req.ExcludeTests = *body.ExcludeTests
	}

	if err := s.session.Analyze(r.Context(), req); err != nil {
		writeErr(w, err)
		return
	}
	WriteJSON(w, s.session.Snapshot().Job, http.StatusAccepted)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	stopped := s.session.Stop()
	WriteJSON(w, map[string]interface{}{
		"stopped": stopped,
		"job":     s.session.Snapshot().Job,
	}, http.StatusOK)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()
	if r.URL.Query().Get("result") == "false" {
		snap.Job.Result = nil
	}
	WriteJSON(w, snap, http.StatusOK)
}

func (s *Server) handleTab(w http.ResponseWriter, r *http.Request) {
	tab, err := dashboard.ParseTab(r.PathValue("tab"))
	if err != nil {
		NotFound(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, dashboard.NewTheme(w).Render(tab, s.session.Snapshot())+"\n")
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	st := s.session.Snapshot().Job
	resp := GraphResponse{Layout: dashboard.LayoutFor(st)}
	if resp.Layout.Empty() {
		WriteJSON(w, resp, http.StatusOK)
		return
	}

	g := graph.NewGraph(st.Result.DependencyMetrics.GraphJSON)
	resp.Central = g.Central(graph.RankOptions{})
	if focus := strings.TrimSpace(r.URL.Query().Get("focus")); focus != "" {
		related, err := g.Related(focus, graph.RankOptions{})
		if err != nil {
			NotFound(w, err.Error())
			return
		}
		resp.Focus = focus
		resp.Related = related
	}
	WriteJSON(w, resp, http.StatusOK)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	k := s.opts.SearchTopK
	if raw := q.Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			BadRequest(w, "k must be a positive integer")
			return
		}
		k = n
	}

	hits, err := s.session.Search(r.Context(), q.Get("q"), k)
	if err != nil {
		writeErr(w, err)
		return
	}
	st := s.session.Snapshot().Search
	WriteJSON(w, SearchResponse{Query: st.Query, K: st.K, JobID: st.JobID, Results: hits}, http.StatusOK)
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		NotFound(w, "history is disabled")
		return
	}
	q := r.URL.Query()
	opts := jobs.ListOptions{}
	var err error
	if opts.Limit, err = intParam(q.Get("limit")); err != nil {
		BadRequest(w, "invalid limit: "+err.Error())
		return
	}
	if opts.Offset, err = intParam(q.Get("offset")); err != nil {
		BadRequest(w, "invalid offset: "+err.Error())
		return
	}
	for _, st := range q["status"] {
		for _, part := range strings.Split(st, ",") {
			if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
				opts.Status = append(opts.Status, jobs.Phase(part))
			}
		}
	}

	resp, err := s.opts.History.List(r.Context(), opts)
	if err != nil {
		InternalError(w, "failed to list history", err)
		return
	}
	WriteJSON(w, resp, http.StatusOK)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		NotFound(w, "history is disabled")
		return
	}
	jobID := r.PathValue("job_id")
	run, err := s.opts.History.Get(r.Context(), jobID)
	if err != nil {
		InternalError(w, "failed to load run", err)
		return
	}
	if run == nil {
		WriteRiqError(w, errors.NewRiqError(errors.NotFound, "no run recorded for job "+jobID, nil))
		return
	}
	WriteJSON(w, run, http.StatusOK)
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
