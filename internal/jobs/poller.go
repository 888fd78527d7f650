package jobs

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"refractoriq/internal/backend"
	"refractoriq/internal/errors"
	"refractoriq/internal/report"
	"refractoriq/internal/slogutil"
)

// DefaultPollInterval is the status polling interval when none is configured.
const DefaultPollInterval = 5 * time.Second

const (
	msgBlankURL       = "Please enter a repository URL."
	msgAnalysisFailed = "Analysis failed"
)

// Backend is the part of the backend client the poller drives.
type Backend interface {
	StartAnalysis(ctx context.Context, req backend.StartRequest) (string, error)
	JobStatus(ctx context.Context, jobID string) (*report.StatusResponse, error)
	FetchResults(ctx context.Context, resultsURL string) (*report.AnalysisResult, error)
}

// TransitionFunc observes a phase change. It runs outside the poller's lock.
type TransitionFunc func(from, to State)

// PollerOptions configures a Poller.
type PollerOptions struct {
	Interval     time.Duration
	Logger       *slog.Logger
	OnTransition TransitionFunc
	// OnStart runs after a valid Start has superseded the previous job and
	// before the start request is sent.
	OnStart func()
}

// Poller starts analysis jobs and follows one job at a time until it reaches
// a terminal status. Starting a new job supersedes the previous one.
type Poller struct {
	backend Backend
	logger  *slog.Logger
	onStart func()

	mu           sync.Mutex
	state        State
	interval     time.Duration
	cancel       context.CancelFunc
	done         chan struct{}
	changed      chan struct{}
	onTransition []TransitionFunc
	closed       bool
}

// NewPoller creates an idle poller.
func NewPoller(b Backend, opts PollerOptions) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	p := &Poller{
		backend:  b,
		logger:   logger,
		onStart:  opts.OnStart,
		interval: interval,
		changed:  make(chan struct{}),
		state:    State{Phase: PhaseIdle, UpdatedAt: time.Now().UTC()},
	}
	if opts.OnTransition != nil {
		p.onTransition = append(p.onTransition, opts.OnTransition)
	}
	return p
}

// OnTransition registers an additional transition observer.
func (p *Poller) OnTransition(fn TransitionFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTransition = append(p.onTransition, fn)
}

// SetInterval changes the polling interval. It applies from the next Start.
func (p *Poller) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interval = d
}

// Interval returns the polling interval used for the next Start.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// Snapshot returns a copy of the current state.
func (p *Poller) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.clone()
}

// Generation returns the current generation. It changes on every Start and Stop.
func (p *Poller) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Generation
}

// Changes returns a channel that is closed at the next state change.
func (p *Poller) Changes() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.changed
}

// Wait blocks until pred holds for the current state or ctx is done.
func (p *Poller) Wait(ctx context.Context, pred func(State) bool) (State, error) {
	for {
		p.mu.Lock()
		s := p.state.clone()
		ch := p.changed
		p.mu.Unlock()

		if pred(s) {
			return s, nil
		}
		select {
		case <-ctx.Done():
			return s, ctx.Err()
		case <-ch:
		}
	}
}

// Start validates the repository URL, supersedes any running job and asks the
// backend to start a new analysis. On success the first status poll fires
// immediately and the rest follow on the configured interval.
//
// A blank URL records a validation error and leaves prior results untouched.
// ctx bounds only the start request; polling continues until a terminal
// status, Stop, Close or the next Start.
func (p *Poller) Start(ctx context.Context, req backend.StartRequest) error {
	req.RepoURL = strings.TrimSpace(req.RepoURL)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.NewRiqError(errors.InternalError, "poller is closed", nil)
	}
	if req.RepoURL == "" {
		prev := p.state.clone()
		p.state.Error = msgBlankURL
		p.state.ErrorKind = ErrorValidation
		p.commit(prev)
		return errors.NewRiqError(errors.InvalidInput, msgBlankURL, nil)
	}

	p.stopLoop()
	prev := p.state.clone()
	p.state.Generation++
	gen := p.state.Generation
	loopCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	interval := p.interval

	p.state.Phase = PhaseIdle
	p.state.Starting = true
	p.state.ActiveJob = nil
	p.state.LastJob = nil
	p.state.CompletedJobID = ""
	p.state.Result = nil
	p.state.Warning = ""
	p.state.Error = ""
	p.state.ErrorKind = ""
	p.commit(prev)
	if p.onStart != nil {
		p.onStart()
	}

	p.logger.Info("Starting analysis", "repo_url", req.RepoURL, "generation", gen,
		"exclude_third_party", req.ExcludeThirdParty, "exclude_tests", req.ExcludeTests)

	stopAfter := context.AfterFunc(ctx, cancel)
	jobID, err := p.backend.StartAnalysis(loopCtx, req)
	stopAfter()

	p.mu.Lock()
	if p.state.Generation != gen {
		p.mu.Unlock()
		p.logger.Debug("Discarding superseded start response", "generation", gen)
		return errors.NewRiqError(errors.InternalError, "analysis superseded", context.Canceled)
	}
	if err != nil {
		cancel()
		p.cancel = nil
		msg := startErrorMessage(err)
		prev := p.state.clone()
		p.state.Phase = PhaseError
		p.state.Starting = false
		p.state.Error = msg
		p.state.ErrorKind = ErrorStart
		p.commit(prev)
		p.logger.Warn("Analysis start failed", "repo_url", req.RepoURL, "error", err)
		return errors.NewRiqError(errors.StartFailed, msg, err)
	}

	now := time.Now().UTC()
	job := &Job{
		ID:                jobID,
		RepoURL:           req.RepoURL,
		ExcludeThirdParty: req.ExcludeThirdParty,
		ExcludeTests:      req.ExcludeTests,
		Status:            report.StatusPending,
		SubmittedAt:       now,
		UpdatedAt:         now,
	}
	prev = p.state.clone()
	p.state.Phase = PhasePending
	p.state.Starting = false
	p.state.ActiveJob = job
	p.state.LastJob = job.clone()
	done := make(chan struct{})
	p.done = done
	p.commit(prev)

	go p.run(loopCtx, gen, jobID, interval, done)
	return nil
}

// Stop abandons the job being followed, if any. The backend job keeps running;
// only client-side polling stops. It reports whether a job was being followed.
func (p *Poller) Stop() bool {
	p.mu.Lock()
	active := p.state.Phase.IsActive() || p.state.Starting
	if !active {
		p.mu.Unlock()
		return false
	}
	done := p.stopLoop()
	prev := p.state.clone()
	p.state.Generation++
	p.state.Phase = PhaseIdle
	p.state.Starting = false
	p.state.ActiveJob = nil
	p.state.clearValidation()
	p.commit(prev)
	p.logger.Info("Polling stopped", "job_id", jobID(prev.ActiveJob))

	if done != nil {
		<-done
	}
	return true
}

// Close stops polling and rejects further starts. It waits for the poll loop to exit.
func (p *Poller) Close() error {
	p.Stop()
	p.mu.Lock()
	p.closed = true
	done := p.stopLoop()
	p.mu.Unlock()
	if done != nil {
		<-done
	}
	return nil
}

// stopLoop cancels the current loop and returns its done channel. Caller holds mu.
func (p *Poller) stopLoop() chan struct{} {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	done := p.done
	p.done = nil
	return done
}

func (p *Poller) run(ctx context.Context, gen uint64, jobID string, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if finished := p.poll(ctx, gen, jobID); finished {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll performs one status check and reports whether the loop should end.
func (p *Poller) poll(ctx context.Context, gen uint64, jobID string) bool {
	status, err := p.backend.JobStatus(ctx, jobID)
	if ctx.Err() != nil {
		return true
	}
	if err != nil {
		p.fail(gen, fmt.Sprintf("Error checking job status: %s", errorMessage(err)), err)
		return true
	}

	switch status.Status {
	case report.StatusPending, report.StatusRunning:
		return !p.apply(gen, func(s *State) {
			s.Phase = Phase(status.Status)
			s.ActiveJob.Status = status.Status
		})

	case report.StatusCompleted:
		resultsURL := status.ResultsURL
		if resultsURL == "" {
			resultsURL = backend.DefaultResultsPath(jobID)
		}
		result, err := p.backend.FetchResults(ctx, resultsURL)
		if ctx.Err() != nil {
			return true
		}
		if err != nil {
			p.fail(gen, fmt.Sprintf("Failed to fetch results: %s", errorMessage(err)), err)
			return true
		}
		p.finish(gen, func(s *State) {
			s.Phase = PhaseCompleted
			s.LastJob.Status = report.StatusCompleted
			s.LastJob.ResultsURL = resultsURL
			s.LastJob.Error = status.Error
			s.CompletedJobID = jobID
			s.Result = result
			s.Warning = status.Error
		})
		return true

	case report.StatusFailed:
		msg := status.Error
		if msg == "" {
			msg = msgAnalysisFailed
		}
		p.finish(gen, func(s *State) {
			s.Phase = PhaseFailed
			s.LastJob.Status = report.StatusFailed
			s.LastJob.Error = msg
			s.Error = msg
			s.ErrorKind = ErrorJobFailed
		})
		return true

	default:
		p.logger.Warn("Unknown job status, continuing to poll", "job_id", jobID, "status", status.Status)
		return !p.apply(gen, func(*State) {})
	}
}

// apply mutates the active job's state if gen is still current and counts the poll.
func (p *Poller) apply(gen uint64, fn func(*State)) bool {
	p.mu.Lock()
	if p.state.Generation != gen || p.state.ActiveJob == nil {
		p.mu.Unlock()
		return false
	}
	prev := p.state.clone()
	now := time.Now().UTC()
	p.state.ActiveJob.Polls++
	p.state.ActiveJob.UpdatedAt = now
	p.state.clearValidation()
	fn(&p.state)
	p.state.LastJob = p.state.ActiveJob.clone()
	p.commit(prev)
	return true
}

// finish applies a terminal transition and clears the active slot.
func (p *Poller) finish(gen uint64, fn func(*State)) {
	p.mu.Lock()
	if p.state.Generation != gen || p.state.ActiveJob == nil {
		p.mu.Unlock()
		return
	}
	prev := p.state.clone()
	now := time.Now().UTC()
	p.state.ActiveJob.Polls++
	p.state.ActiveJob.UpdatedAt = now
	p.state.ActiveJob.CompletedAt = &now
	p.state.LastJob = p.state.ActiveJob.clone()
	p.state.ActiveJob = nil
	p.state.clearValidation()
	fn(&p.state)
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.commit(prev)
}

func (p *Poller) fail(gen uint64, msg string, cause error) {
	p.logger.Warn("Polling failed", "error", cause)
	p.finish(gen, func(s *State) {
		s.Phase = PhaseError
		s.LastJob.Error = msg
		s.Error = msg
		s.ErrorKind = ErrorPoll
	})
}

// commit publishes the state change, logs phase transitions and runs the
// observers. Caller holds mu; commit releases it.
func (p *Poller) commit(prev State) {
	p.state.UpdatedAt = time.Now().UTC()
	next := p.state.clone()
	close(p.changed)
	p.changed = make(chan struct{})
	observers := append([]TransitionFunc(nil), p.onTransition...)
	p.mu.Unlock()

	if prev.Phase == next.Phase {
		return
	}
	p.logger.Info("Job transition",
		"job_id", jobID(next.LastJob),
		"from", prev.Phase,
		"to", next.Phase,
		"generation", next.Generation,
	)
	for _, fn := range observers {
		fn(prev, next)
	}
}

func jobID(j *Job) string {
	if j == nil {
		return ""
	}
	return j.ID
}

func startErrorMessage(err error) string {
	var remote *backend.RemoteError
	if stderrors.As(err, &remote) {
		if remote.Message != "" {
			return remote.Message
		}
		return fmt.Sprintf("Failed to start analysis (HTTP %d)", remote.StatusCode)
	}
	return "Failed to start analysis: " + errorMessage(err)
}

func errorMessage(err error) string {
	var remote *backend.RemoteError
	if stderrors.As(err, &remote) {
		return remote.Message
	}
	return err.Error()
}
