package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"refractoriq/internal/backend"
	"refractoriq/internal/errors"
	"refractoriq/internal/report"
)

type fakeSearcher struct {
	mu    sync.Mutex
	calls []string
	block map[string]chan struct{}
	hits  map[string][]report.SearchHit
	err   error
}

func (f *fakeSearcher) Search(ctx context.Context, jobID, query string, k int) ([]report.SearchHit, error) {
	f.mu.Lock()
	f.calls = append(f.calls, query)
	ch := f.block[query]
	f.mu.Unlock()
	if ch != nil {
		<-ch
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.hits[query], nil
}

func hit(path string, score float64) report.SearchHit {
	return report.SearchHit{FilePath: path, Score: report.N(score), Content: "def " + path}
}

func TestPanel_Submit(t *testing.T) {
	f := &fakeSearcher{hits: map[string][]report.SearchHit{
		"parse config": {hit("config.py", 0.91), hit("settings.py", 0.72)},
	}}
	p := NewPanel(f, nil)

	hits, err := p.Submit(context.Background(), "job-1", "  parse config ", 0)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d", len(hits))
	}

	s := p.Snapshot()
	if s.Query != "parse config" || s.K != DefaultTopK || s.JobID != "job-1" {
		t.Errorf("state = %+v", s)
	}
	if s.Loading || !s.Searched || s.Error != "" || len(s.Results) != 2 {
		t.Errorf("state = %+v", s)
	}
}

func TestPanel_LocalErrors(t *testing.T) {
	tests := []struct {
		name  string
		job   string
		query string
		want  string
	}{
		{"blank query", "job-1", "   ", msgBlankQuery},
		{"no job", "", "anything", msgNoJob},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeSearcher{}
			p := NewPanel(f, nil)
			_, err := p.Submit(context.Background(), tt.job, tt.query, 3)
			if !errors.Is(err, errors.InvalidInput) {
				t.Fatalf("error = %v, want INVALID_INPUT", err)
			}
			if got := p.Snapshot().Error; got != tt.want {
				t.Errorf("Error = %q, want %q", got, tt.want)
			}
			if len(f.calls) != 0 {
				t.Errorf("backend called %d times", len(f.calls))
			}
		})
	}
}

func TestPanel_ServerDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Index not found for job"})
	}))
	defer srv.Close()

	client, err := backend.New(backend.Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	p := NewPanel(client, nil)

	_, err = p.Submit(context.Background(), "job-9", "auth", 5)
	if !errors.Is(err, errors.SearchFailed) {
		t.Fatalf("error = %v, want SEARCH_FAILED", err)
	}
	s := p.Snapshot()
	if s.Error != "Index not found for job" {
		t.Errorf("Error = %q", s.Error)
	}
	if s.Loading || !s.Searched || len(s.Results) != 0 {
		t.Errorf("state = %+v", s)
	}
}

func TestPanel_SupersededResponseDiscarded(t *testing.T) {
	release := make(chan struct{})
	f := &fakeSearcher{
		block: map[string]chan struct{}{"slow": release},
		hits: map[string][]report.SearchHit{
			"slow": {hit("old.py", 0.5)},
			"fast": {hit("new.py", 0.9)},
		},
	}
	p := NewPanel(f, nil)

	errc := make(chan error, 1)
	go func() {
		_, err := p.Submit(context.Background(), "job-1", "slow", 5)
		errc <- err
	}()
	waitLoading(t, p, "slow")

	if _, err := p.Submit(context.Background(), "job-1", "fast", 5); err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}
	close(release)

	if err := <-errc; err == nil {
		t.Fatal("superseded Submit() should return an error")
	}
	s := p.Snapshot()
	if s.Query != "fast" || len(s.Results) != 1 || s.Results[0].FilePath != "new.py" {
		t.Errorf("state = %+v", s)
	}
}

func TestPanel_ResetDropsInFlight(t *testing.T) {
	release := make(chan struct{})
	f := &fakeSearcher{
		block: map[string]chan struct{}{"q": release},
		hits:  map[string][]report.SearchHit{"q": {hit("a.py", 1)}},
	}
	p := NewPanel(f, nil)

	errc := make(chan error, 1)
	go func() {
		_, err := p.Submit(context.Background(), "job-1", "q", 5)
		errc <- err
	}()
	waitLoading(t, p, "q")

	p.Reset()
	close(release)
	<-errc

	s := p.Snapshot()
	if s.Query != "" || s.Loading || s.Results != nil || s.Searched {
		t.Errorf("state after reset = %+v", s)
	}
}

func TestPanel_SubmitScopedJobReplaced(t *testing.T) {
	release := make(chan struct{})
	f := &fakeSearcher{
		block: map[string]chan struct{}{"q": release},
		hits:  map[string][]report.SearchHit{"q": {hit("a.py", 1)}},
	}
	p := NewPanel(f, nil)

	var mu sync.Mutex
	live := true
	current := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return live
	}

	errc := make(chan error, 1)
	go func() {
		_, err := p.SubmitScoped(context.Background(), "job-1", "q", 5, current)
		errc <- err
	}()
	waitLoading(t, p, "q")

	// The job is replaced while the request is in flight, with no Reset yet.
	mu.Lock()
	live = false
	mu.Unlock()
	close(release)

	if err := <-errc; err == nil {
		t.Fatal("search of a replaced job should not succeed")
	}
	s := p.Snapshot()
	if s.Query != "" || s.Loading || s.Results != nil || s.JobID != "" {
		t.Errorf("state after replaced job = %+v", s)
	}

	if _, err := p.SubmitScoped(context.Background(), "job-1", "q", 5, current); err == nil {
		t.Error("search of a replaced job should not start")
	}
	if len(f.calls) != 1 {
		t.Errorf("backend calls = %d, want 1", len(f.calls))
	}
}

func TestPanel_ChangesBroadcast(t *testing.T) {
	p := NewPanel(&fakeSearcher{}, nil)
	ch := p.Changes()
	p.Reset()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("Changes() channel not closed")
	}
}

func waitLoading(t *testing.T, p *Panel, query string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s := p.Snapshot()
		if s.Loading && s.Query == query {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("search %q never started", query)
}
