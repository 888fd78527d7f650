// Package search runs semantic code search against a completed analysis.
package search

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"refractoriq/internal/backend"
	"refractoriq/internal/errors"
	"refractoriq/internal/report"
	"refractoriq/internal/slogutil"
)

// DefaultTopK is the number of results requested when k is not positive.
const DefaultTopK = 5

const (
	msgBlankQuery = "Please enter a search query."
	msgNoJob      = "Run an analysis before searching."
)

// Searcher is the part of the backend client the panel needs.
type Searcher interface {
	Search(ctx context.Context, jobID, query string, k int) ([]report.SearchHit, error)
}

// State is a snapshot of the search panel.
type State struct {
	Generation uint64             `json:"generation"`
	JobID      string             `json:"job_id,omitempty"`
	Query      string             `json:"query,omitempty"`
	K          int                `json:"k,omitempty"`
	Loading    bool               `json:"loading"`
	Searched   bool               `json:"searched"`
	Results    []report.SearchHit `json:"results"`
	Error      string             `json:"error,omitempty"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func (s State) clone() State {
	c := s
	if s.Results != nil {
		c.Results = append([]report.SearchHit(nil), s.Results...)
	}
	return c
}

// Panel holds the latest search. Only the response to the most recent
// Submit is kept; earlier ones are dropped when they arrive.
type Panel struct {
	searcher Searcher
	logger   *slog.Logger

	mu      sync.Mutex
	state   State
	changed chan struct{}
}

// NewPanel creates an empty panel. A nil logger discards output.
func NewPanel(s Searcher, logger *slog.Logger) *Panel {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Panel{
		searcher: s,
		logger:   logger,
		changed:  make(chan struct{}),
		state:    State{UpdatedAt: time.Now().UTC()},
	}
}

// Snapshot returns a copy of the current state.
func (p *Panel) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.clone()
}

// Changes returns a channel that is closed at the next state change.
func (p *Panel) Changes() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.changed
}

// Submit searches the results of jobID. It clears the previous results,
// blocks for the response and returns the hits it stored.
func (p *Panel) Submit(ctx context.Context, jobID, query string, k int) ([]report.SearchHit, error) {
	return p.SubmitScoped(ctx, jobID, query, k, nil)
}

// SubmitScoped is Submit for a job that can be replaced while the search is
// in flight. current is checked under the panel lock before the request and
// again before the response is stored; once it reports false the search is
// dropped and the panel cleared. A nil current always holds.
func (p *Panel) SubmitScoped(ctx context.Context, jobID, query string, k int, current func() bool) ([]report.SearchHit, error) {
	if current == nil {
		current = func() bool { return true }
	}
	query = strings.TrimSpace(query)
	if k <= 0 {
		k = DefaultTopK
	}

	p.mu.Lock()
	switch {
	case query == "":
		p.state.Error = msgBlankQuery
		p.commit()
		return nil, errors.NewRiqError(errors.InvalidInput, msgBlankQuery, nil)
	case jobID == "":
		p.state.Error = msgNoJob
		p.commit()
		return nil, errors.NewRiqError(errors.InvalidInput, msgNoJob, nil)
	case !current():
		p.mu.Unlock()
		return nil, errors.NewRiqError(errors.InternalError, "search superseded", context.Canceled)
	}
	p.state.Generation++
	gen := p.state.Generation
	p.state.JobID = jobID
	p.state.Query = query
	p.state.K = k
	p.state.Loading = true
	p.state.Searched = false
	p.state.Results = nil
	p.state.Error = ""
	p.commit()

	started := time.Now()
	hits, err := p.searcher.Search(ctx, jobID, query, k)

	p.mu.Lock()
	if p.state.Generation != gen {
		p.mu.Unlock()
		p.logger.Debug("Discarding superseded search response", "query", query, "generation", gen)
		return nil, errors.NewRiqError(errors.InternalError, "search superseded", context.Canceled)
	}
	if !current() {
		p.state = State{Generation: gen}
		p.commit()
		p.logger.Debug("Discarding search of a replaced job", "job_id", jobID, "query", query)
		return nil, errors.NewRiqError(errors.InternalError, "search superseded", context.Canceled)
	}
	p.state.Loading = false
	p.state.Searched = true
	if err != nil {
		msg := failureMessage(err)
		p.state.Error = msg
		p.commit()
		p.logger.Warn("Search failed", "job_id", jobID, "query", query, "error", err)
		return nil, errors.NewRiqError(errors.SearchFailed, msg, err)
	}
	if hits == nil {
		hits = []report.SearchHit{}
	}
	p.state.Results = hits
	p.commit()
	p.logger.Debug("Search completed", "job_id", jobID, "query", query, "results", len(hits),
		"duration_ms", time.Since(started).Milliseconds())
	return append([]report.SearchHit(nil), hits...), nil
}

// Reset clears the panel and invalidates any search in flight.
func (p *Panel) Reset() {
	p.mu.Lock()
	gen := p.state.Generation + 1
	p.state = State{Generation: gen}
	p.commit()
}

// commit publishes the change. Caller holds mu; commit releases it.
func (p *Panel) commit() {
	p.state.UpdatedAt = time.Now().UTC()
	close(p.changed)
	p.changed = make(chan struct{})
	p.mu.Unlock()
}

func failureMessage(err error) string {
	var remote *backend.RemoteError
	if stderrors.As(err, &remote) && remote.Message != "" {
		return remote.Message
	}
	return "Search failed: " + err.Error()
}
