package jobs

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"refractoriq/internal/backend"
	"refractoriq/internal/errors"
	"refractoriq/internal/report"
)

const testInterval = 10 * time.Millisecond

// fakeBackend scripts status sequences per job. The last status of a
// sequence repeats; a job listed in block waits until its channel is closed.
type fakeBackend struct {
	mu          sync.Mutex
	nextID      int
	startErr    error
	starts      []backend.StartRequest
	statuses    map[string][]report.StatusResponse
	statusErr   map[string]error
	statusCalls map[string]int
	block       map[string]chan struct{}
	fetchErr    error
	fetched     []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		statuses:    map[string][]report.StatusResponse{},
		statusErr:   map[string]error{},
		statusCalls: map[string]int{},
		block:       map[string]chan struct{}{},
	}
}

func (f *fakeBackend) script(jobID string, statuses ...report.StatusResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[jobID] = statuses
}

func (f *fakeBackend) StartAnalysis(ctx context.Context, req backend.StartRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, req)
	if f.startErr != nil {
		return "", f.startErr
	}
	f.nextID++
	return fmt.Sprintf("job-%d", f.nextID), nil
}

func (f *fakeBackend) JobStatus(ctx context.Context, jobID string) (*report.StatusResponse, error) {
	f.mu.Lock()
	f.statusCalls[jobID]++
	wait := f.block[jobID]
	f.mu.Unlock()

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.statusErr[jobID]; err != nil {
		return nil, err
	}
	seq := f.statuses[jobID]
	if len(seq) == 0 {
		return &report.StatusResponse{Status: report.StatusPending}, nil
	}
	st := seq[0]
	if len(seq) > 1 {
		f.statuses[jobID] = seq[1:]
	}
	return &st, nil
}

func (f *fakeBackend) FetchResults(ctx context.Context, resultsURL string) (*report.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, resultsURL)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return &report.AnalysisResult{
		Repository:  resultsURL,
		CodeMetrics: report.CodeMetrics{LOC: report.N(2500)},
	}, nil
}

func (f *fakeBackend) calls(jobID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls[jobID]
}

func waitTerminal(t *testing.T, p *Poller) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := p.Wait(ctx, func(s State) bool { return s.Phase.IsTerminal() })
	if err != nil {
		t.Fatalf("timed out waiting for terminal phase, last state: %+v", s)
	}
	return s
}

func startRequest(url string) backend.StartRequest {
	return backend.StartRequest{RepoURL: url, ExcludeThirdParty: true, ExcludeTests: true}
}

func TestPoller_CompletesAndFetchesResults(t *testing.T) {
	fb := newFakeBackend()
	fb.script("job-1",
		report.StatusResponse{Status: report.StatusPending},
		report.StatusResponse{Status: report.StatusRunning},
		report.StatusResponse{Status: report.StatusCompleted, ResultsURL: "/analyze/results/job-1"},
	)

	var mu sync.Mutex
	var transitions []string
	p := NewPoller(fb, PollerOptions{
		Interval: testInterval,
		OnTransition: func(from, to State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, fmt.Sprintf("%s->%s", from.Phase, to.Phase))
		},
	})
	defer p.Close()

	if err := p.Start(context.Background(), startRequest("  https://github.com/acme/widgets  ")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	s := waitTerminal(t, p)
	if s.Phase != PhaseCompleted {
		t.Fatalf("Phase = %s, want COMPLETED (error %q)", s.Phase, s.Error)
	}
	if s.Result == nil || s.Result.CodeMetrics.LOC.Value != 2500 {
		t.Fatalf("Result = %+v", s.Result)
	}
	if s.ActiveJob != nil {
		t.Error("ActiveJob should be cleared on COMPLETED")
	}
	if s.CompletedJobID != "job-1" {
		t.Errorf("CompletedJobID = %q, want job-1", s.CompletedJobID)
	}
	if s.LastJob == nil || s.LastJob.Status != report.StatusCompleted || s.LastJob.Polls != 3 {
		t.Errorf("LastJob = %+v", s.LastJob)
	}
	if fb.starts[0].RepoURL != "https://github.com/acme/widgets" {
		t.Errorf("repo URL not trimmed: %q", fb.starts[0].RepoURL)
	}

	time.Sleep(5 * testInterval)
	if got := fb.calls("job-1"); got != 3 {
		t.Errorf("status calls = %d, want 3", got)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"IDLE->PENDING", "PENDING->RUNNING", "RUNNING->COMPLETED"}
	if fmt.Sprint(transitions) != fmt.Sprint(want) {
		t.Errorf("transitions = %v, want %v", transitions, want)
	}
}

func TestPoller_FailedStopsPolling(t *testing.T) {
	tests := []struct {
		name    string
		errText string
		want    string
	}{
		{"server error text", "timeout", "timeout"},
		{"no error text", "", "Analysis failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBackend()
			fb.script("job-1",
				report.StatusResponse{Status: report.StatusRunning},
				report.StatusResponse{Status: report.StatusFailed, Error: tt.errText},
			)
			p := NewPoller(fb, PollerOptions{Interval: testInterval})
			defer p.Close()

			if err := p.Start(context.Background(), startRequest("https://x/y")); err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			s := waitTerminal(t, p)

			if s.Phase != PhaseFailed {
				t.Fatalf("Phase = %s, want FAILED", s.Phase)
			}
			if s.Error != tt.want || s.ErrorKind != ErrorJobFailed {
				t.Errorf("Error = %q (%s), want %q (job_failed)", s.Error, s.ErrorKind, tt.want)
			}
			if s.ActiveJob != nil {
				t.Error("ActiveJob should be cleared on FAILED")
			}
			if len(fb.fetched) != 0 {
				t.Error("results must not be fetched for a failed job")
			}

			time.Sleep(5 * testInterval)
			if got := fb.calls("job-1"); got != 2 {
				t.Errorf("status calls = %d, want 2", got)
			}
		})
	}
}

func TestPoller_CompletedWithWarningAndDefaultResultsURL(t *testing.T) {
	fb := newFakeBackend()
	fb.script("job-1", report.StatusResponse{Status: report.StatusCompleted, Error: "Indexing skipped"})

	p := NewPoller(fb, PollerOptions{Interval: testInterval})
	defer p.Close()

	if err := p.Start(context.Background(), startRequest("https://x/y")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s := waitTerminal(t, p)

	if s.Phase != PhaseCompleted {
		t.Fatalf("Phase = %s, want COMPLETED", s.Phase)
	}
	if s.Warning != "Indexing skipped" || s.Error != "" {
		t.Errorf("Warning = %q, Error = %q", s.Warning, s.Error)
	}
	if len(fb.fetched) != 1 || fb.fetched[0] != "/analyze/results/job-1" {
		t.Errorf("fetched = %v", fb.fetched)
	}
}

func TestPoller_BlankURL(t *testing.T) {
	fb := newFakeBackend()
	fb.script("job-1", report.StatusResponse{Status: report.StatusCompleted})

	p := NewPoller(fb, PollerOptions{Interval: testInterval})
	defer p.Close()

	if err := p.Start(context.Background(), startRequest("https://x/y")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	before := waitTerminal(t, p)

	err := p.Start(context.Background(), startRequest("   "))
	if !errors.Is(err, errors.InvalidInput) {
		t.Fatalf("Start(blank) error = %v, want INVALID_INPUT", err)
	}

	s := p.Snapshot()
	if s.Error != "Please enter a repository URL." || s.ErrorKind != ErrorValidation {
		t.Errorf("Error = %q (%s)", s.Error, s.ErrorKind)
	}
	if s.Result != before.Result || s.Phase != PhaseCompleted || s.CompletedJobID != "job-1" {
		t.Error("prior results must be left untouched")
	}
	if len(fb.starts) != 1 {
		t.Errorf("backend starts = %d, want 1", len(fb.starts))
	}
}

func TestPoller_BlankURLWhileRunning(t *testing.T) {
	fb := newFakeBackend()
	fb.script("job-1",
		report.StatusResponse{Status: report.StatusRunning},
		report.StatusResponse{Status: report.StatusCompleted},
	)
	release := make(chan struct{})
	fb.block["job-1"] = release

	p := NewPoller(fb, PollerOptions{Interval: testInterval})
	defer p.Close()

	if err := p.Start(context.Background(), startRequest("https://x/y")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Start(context.Background(), startRequest("   ")); !errors.Is(err, errors.InvalidInput) {
		t.Fatalf("Start(blank) error = %v, want INVALID_INPUT", err)
	}
	if s := p.Snapshot(); s.ErrorKind != ErrorValidation || !s.Phase.IsActive() {
		t.Fatalf("state after blank start = %+v", s)
	}

	close(release)
	s := waitTerminal(t, p)
	if s.Phase != PhaseCompleted {
		t.Fatalf("Phase = %s, want COMPLETED", s.Phase)
	}
	if s.Error != "" || s.ErrorKind != "" {
		t.Errorf("validation error survived completion: %q (%s)", s.Error, s.ErrorKind)
	}
	if run := RunFromState(s); run == nil || run.Error != "" {
		t.Errorf("RunFromState() = %+v", run)
	}
}

func TestPoller_OnStart(t *testing.T) {
	fb := newFakeBackend()
	var p *Poller
	var gens []uint64
	p = NewPoller(fb, PollerOptions{
		Interval: time.Hour,
		OnStart:  func() { gens = append(gens, p.Generation()) },
	})
	defer p.Close()

	_ = p.Start(context.Background(), startRequest(""))
	if len(gens) != 0 {
		t.Fatalf("OnStart ran for a blank URL")
	}
	if err := p.Start(context.Background(), startRequest("https://x/y")); err != nil {
		t.Fatal(err)
	}
	if len(gens) != 1 || gens[0] != 1 {
		t.Errorf("OnStart generations = %v, want [1]", gens)
	}
}

func TestPoller_StartFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"server message", &backend.RemoteError{StatusCode: 400, Message: "Invalid repository URL"}, "Invalid repository URL"},
		{"status only", &backend.RemoteError{StatusCode: 502}, "Failed to start analysis (HTTP 502)"},
		{"network", stderrors.New("connection refused"), "Failed to start analysis: connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBackend()
			fb.startErr = tt.err
			p := NewPoller(fb, PollerOptions{Interval: testInterval})
			defer p.Close()

			err := p.Start(context.Background(), startRequest("https://x/y"))
			if !errors.Is(err, errors.StartFailed) {
				t.Fatalf("Start() error = %v, want START_FAILED", err)
			}
			s := p.Snapshot()
			if s.Phase != PhaseError || s.ErrorKind != ErrorStart || s.Error != tt.want {
				t.Errorf("state = %s/%s/%q, want ERROR/start/%q", s.Phase, s.ErrorKind, s.Error, tt.want)
			}
			if s.Starting {
				t.Error("Starting should be false after the start request returns")
			}
		})
	}
}

func TestPoller_PollFailureHalts(t *testing.T) {
	fb := newFakeBackend()
	fb.statusErr["job-1"] = &backend.RemoteError{StatusCode: 404, Message: "Job not found"}

	p := NewPoller(fb, PollerOptions{Interval: testInterval})
	defer p.Close()

	if err := p.Start(context.Background(), startRequest("https://x/y")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s := waitTerminal(t, p)

	if s.Phase != PhaseError || s.ErrorKind != ErrorPoll {
		t.Fatalf("state = %s/%s, want ERROR/poll", s.Phase, s.ErrorKind)
	}
	if s.Error != "Error checking job status: Job not found" {
		t.Errorf("Error = %q", s.Error)
	}

	time.Sleep(5 * testInterval)
	if got := fb.calls("job-1"); got != 1 {
		t.Errorf("status calls = %d, want 1 (no retry)", got)
	}
}

func TestPoller_ResultsFetchFailure(t *testing.T) {
	fb := newFakeBackend()
	fb.script("job-1", report.StatusResponse{Status: report.StatusCompleted})
	fb.fetchErr = &backend.RemoteError{StatusCode: 500, Message: "report missing"}

	p := NewPoller(fb, PollerOptions{Interval: testInterval})
	defer p.Close()

	_ = p.Start(context.Background(), startRequest("https://x/y"))
	s := waitTerminal(t, p)

	if s.Phase != PhaseError || s.Error != "Failed to fetch results: report missing" {
		t.Errorf("state = %s/%q", s.Phase, s.Error)
	}
	if s.Result != nil || s.CompletedJobID != "" {
		t.Error("no result should be stored")
	}
}

func TestPoller_UnknownStatusKeepsPolling(t *testing.T) {
	fb := newFakeBackend()
	fb.script("job-1",
		report.StatusResponse{Status: "QUEUED"},
		report.StatusResponse{Status: "QUEUED"},
		report.StatusResponse{Status: report.StatusCompleted},
	)
	p := NewPoller(fb, PollerOptions{Interval: testInterval})
	defer p.Close()

	_ = p.Start(context.Background(), startRequest("https://x/y"))
	s := waitTerminal(t, p)

	if s.Phase != PhaseCompleted {
		t.Errorf("Phase = %s, want COMPLETED", s.Phase)
	}
	if got := fb.calls("job-1"); got != 3 {
		t.Errorf("status calls = %d, want 3", got)
	}
}

func TestPoller_FirstPollIsImmediate(t *testing.T) {
	fb := newFakeBackend()
	fb.script("job-1", report.StatusResponse{Status: report.StatusRunning})

	p := NewPoller(fb, PollerOptions{Interval: time.Hour})
	defer p.Close()

	_ = p.Start(context.Background(), startRequest("https://x/y"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := p.Wait(ctx, func(s State) bool { return s.Phase == PhaseRunning })
	if err != nil {
		t.Fatalf("first poll did not happen immediately: %+v", s)
	}
	if got := fb.calls("job-1"); got != 1 {
		t.Errorf("status calls = %d, want 1", got)
	}
}

func TestPoller_StaleResponseDiscarded(t *testing.T) {
	fb := newFakeBackend()
	release := make(chan struct{})
	fb.block["job-1"] = release
	fb.script("job-1", report.StatusResponse{Status: report.StatusFailed, Error: "stale"})
	fb.script("job-2", report.StatusResponse{Status: report.StatusRunning})

	p := NewPoller(fb, PollerOptions{Interval: testInterval})
	defer p.Close()

	if err := p.Start(context.Background(), startRequest("https://x/first")); err != nil {
		t.Fatalf("Start(first) error = %v", err)
	}
	// let the first status call reach the backend
	deadline := time.Now().Add(2 * time.Second)
	for fb.calls("job-1") == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if err := p.Start(context.Background(), startRequest("https://x/second")); err != nil {
		t.Fatalf("Start(second) error = %v", err)
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := p.Wait(ctx, func(s State) bool { return s.Phase == PhaseRunning })
	if err != nil {
		t.Fatalf("second job never reached RUNNING: %+v", s)
	}

	time.Sleep(5 * testInterval)
	s = p.Snapshot()
	if s.Error == "stale" || s.Phase != PhaseRunning {
		t.Errorf("stale response leaked into state: %+v", s)
	}
	if s.ActiveJob == nil || s.ActiveJob.ID != "job-2" {
		t.Errorf("ActiveJob = %+v, want job-2", s.ActiveJob)
	}
	if s.Generation != 2 {
		t.Errorf("Generation = %d, want 2", s.Generation)
	}
}

func TestPoller_Stop(t *testing.T) {
	fb := newFakeBackend()
	fb.script("job-1", report.StatusResponse{Status: report.StatusRunning})

	p := NewPoller(fb, PollerOptions{Interval: testInterval})
	defer p.Close()

	_ = p.Start(context.Background(), startRequest("https://x/y"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := p.Wait(ctx, func(s State) bool { return s.Phase == PhaseRunning }); err != nil {
		t.Fatal("job never reached RUNNING")
	}

	if !p.Stop() {
		t.Fatal("Stop() = false, want true")
	}
	calls := fb.calls("job-1")
	time.Sleep(5 * testInterval)
	if got := fb.calls("job-1"); got != calls {
		t.Errorf("status calls grew from %d to %d after Stop", calls, got)
	}

	s := p.Snapshot()
	if s.Phase != PhaseIdle || s.ActiveJob != nil {
		t.Errorf("state after Stop = %+v", s)
	}
	if s.LastJob == nil || s.LastJob.ID != "job-1" {
		t.Error("LastJob should survive Stop")
	}
	if p.Stop() {
		t.Error("second Stop() should report nothing to stop")
	}
}

func TestPoller_CloseRejectsStart(t *testing.T) {
	p := NewPoller(newFakeBackend(), PollerOptions{})
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Start(context.Background(), startRequest("https://x/y")); err == nil {
		t.Error("Start() after Close should fail")
	}
}

func TestPoller_SetInterval(t *testing.T) {
	p := NewPoller(newFakeBackend(), PollerOptions{})
	if got := p.Interval(); got != DefaultPollInterval {
		t.Errorf("Interval() = %v, want %v", got, DefaultPollInterval)
	}
	p.SetInterval(250 * time.Millisecond)
	p.SetInterval(0)
	if got := p.Interval(); got != 250*time.Millisecond {
		t.Errorf("Interval() = %v, want 250ms", got)
	}
}

func TestPoller_ChangesBroadcast(t *testing.T) {
	fb := newFakeBackend()
	p := NewPoller(fb, PollerOptions{Interval: time.Hour})
	defer p.Close()

	ch := p.Changes()
	_ = p.Start(context.Background(), startRequest(""))

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("Changes() channel was not closed on state change")
	}
	if p.Changes() == ch {
		t.Error("Changes() should return a fresh channel after a change")
	}
}
