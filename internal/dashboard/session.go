// Package dashboard ties the job poller, the search panel and the run history
// into one session, and renders its state as terminal views.
package dashboard

import (
	"context"
	"log/slog"
	"time"

	"refractoriq/internal/backend"
	"refractoriq/internal/graph"
	"refractoriq/internal/jobs"
	"refractoriq/internal/report"
	"refractoriq/internal/search"
	"refractoriq/internal/slogutil"
)

const recordTimeout = 10 * time.Second

// Backend is everything a session asks of the analysis service.
type Backend interface {
	jobs.Backend
	search.Searcher
}

// Recorder persists finished runs.
type Recorder interface {
	Record(ctx context.Context, run *jobs.Run) error
}

// Options configures a Session.
type Options struct {
	PollInterval time.Duration
	// History receives every terminal run. Nil disables history.
	History Recorder
	Logger  *slog.Logger
}

// Snapshot is the combined state of one session.
type Snapshot struct {
	Job    jobs.State   `json:"job"`
	Search search.State `json:"search"`
}

// Session is the single owner of the analysis and search flows.
type Session struct {
	poller  *jobs.Poller
	panel   *search.Panel
	history Recorder
	logger  *slog.Logger
}

// NewSession creates an idle session.
func NewSession(b Backend, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	s := &Session{
		panel:   search.NewPanel(b, logger),
		history: opts.History,
		logger:  logger,
	}
	s.poller = jobs.NewPoller(b, jobs.PollerOptions{
		Interval:     opts.PollInterval,
		Logger:       logger,
		OnTransition: s.onTransition,
		OnStart:      s.panel.Reset,
	})
	return s
}

// Poller exposes the underlying poller.
func (s *Session) Poller() *jobs.Poller { return s.poller }

// Analyze starts a new analysis. Once the URL passes validation the previous
// search is cleared; a blank URL leaves it in place.
func (s *Session) Analyze(ctx context.Context, req backend.StartRequest) error {
	return s.poller.Start(ctx, req)
}

// Search queries the most recently completed job. The response is dropped if
// another analysis starts before it arrives.
func (s *Session) Search(ctx context.Context, query string, k int) ([]report.SearchHit, error) {
	st := s.poller.Snapshot()
	gen := st.Generation
	return s.panel.SubmitScoped(ctx, st.CompletedJobID, query, k, func() bool {
		return s.poller.Generation() == gen
	})
}

// Stop abandons the job being followed.
func (s *Session) Stop() bool {
	return s.poller.Stop()
}

// Snapshot returns the current job and search state.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{Job: s.poller.Snapshot(), Search: s.panel.Snapshot()}
}

// Graph lays out the dependency graph of the current result.
func (s *Session) Graph() *graph.Layout {
	return LayoutFor(s.poller.Snapshot())
}

// LayoutFor lays out the dependency graph held in a job state.
func LayoutFor(st jobs.State) *graph.Layout {
	if st.Result == nil {
		return graph.Build(nil)
	}
	return graph.Build(st.Result.DependencyMetrics.GraphJSON)
}

// Watch streams snapshots until ctx is done. The current snapshot is sent
// first; a slow reader only ever sees the latest state.
func (s *Session) Watch(ctx context.Context) <-chan Snapshot {
	out := make(chan Snapshot, 1)
	go func() {
		defer close(out)
		for {
			jobCh := s.poller.Changes()
			searchCh := s.panel.Changes()
			snap := s.Snapshot()

			select {
			case <-out:
			default:
			}
			out <- snap

			select {
			case <-ctx.Done():
				return
			case <-jobCh:
			case <-searchCh:
			}
		}
	}()
	return out
}

// Close stops polling. The session cannot be reused.
func (s *Session) Close() error {
	s.panel.Reset()
	return s.poller.Close()
}

func (s *Session) onTransition(_, to jobs.State) {
	if s.history == nil || !to.Phase.IsTerminal() {
		return
	}
	run := jobs.RunFromState(to)
	if run == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := s.history.Record(ctx, run); err != nil {
		s.logger.Warn("Failed to record run", "job_id", run.JobID, "error", err)
		return
	}
	s.logger.Debug("Recorded run", "job_id", run.JobID, "status", run.Status)
}
