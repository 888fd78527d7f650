// Package jobs drives analysis jobs on the backend: the poller state machine
// that starts a job and follows it to completion, and the local run history.
package jobs

import (
	"time"

	"refractoriq/internal/report"
)

// Phase is the client-side lifecycle of the current analysis.
type Phase string

const (
	PhaseIdle      Phase = "IDLE"
	PhasePending   Phase = "PENDING"
	PhaseRunning   Phase = "RUNNING"
	PhaseCompleted Phase = "COMPLETED"
	PhaseFailed    Phase = "FAILED"
	// PhaseError is a client-side failure: the start request, a status poll or
	// the results download could not be completed.
	PhaseError Phase = "ERROR"
)

// IsTerminal returns true if no further polling happens in this phase.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseError
}

// IsActive returns true while a job is being followed.
func (p Phase) IsActive() bool {
	return p == PhasePending || p == PhaseRunning
}

// ErrorKind says which surface an error belongs to.
type ErrorKind string

const (
	// ErrorValidation is a request rejected locally, e.g. a blank repository URL.
	ErrorValidation ErrorKind = "validation"
	// ErrorStart is a failed start request.
	ErrorStart ErrorKind = "start"
	// ErrorPoll is a failed status poll or results download.
	ErrorPoll ErrorKind = "poll"
	// ErrorJobFailed is a FAILED status reported by the backend.
	ErrorJobFailed ErrorKind = "job_failed"
)

// Job is an analysis job as seen by the client.
type Job struct {
	ID                string           `json:"jobId"`
	RepoURL           string           `json:"repoUrl"`
	ExcludeThirdParty bool             `json:"excludeThirdParty"`
	ExcludeTests      bool             `json:"excludeTests"`
	Status            report.JobStatus `json:"status"`
	ResultsURL        string           `json:"resultsUrl,omitempty"`
	Error             string           `json:"error,omitempty"`
	Polls             int              `json:"polls"`
	SubmittedAt       time.Time        `json:"submittedAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
	CompletedAt       *time.Time       `json:"completedAt,omitempty"`
}

// IsTerminal returns true if the backend reported COMPLETED or FAILED.
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// Duration returns how long the job took, or has been running so far.
func (j *Job) Duration() time.Duration {
	end := time.Now().UTC()
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	return end.Sub(j.SubmittedAt)
}

func (j *Job) clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// State is a snapshot of the poller.
type State struct {
	// Generation increases with every Start and Stop; responses tagged with an
	// older generation are discarded.
	Generation uint64 `json:"generation"`
	Phase      Phase  `json:"phase"`
	// Starting is true while the start request is in flight.
	Starting bool `json:"starting,omitempty"`

	// ActiveJob is the job being polled; it is cleared on COMPLETED or FAILED.
	ActiveJob *Job `json:"activeJob,omitempty"`
	// LastJob is the most recent job, kept after it finishes.
	LastJob *Job `json:"lastJob,omitempty"`
	// CompletedJobID scopes follow-on searches to the last completed job.
	CompletedJobID string `json:"completedJobId,omitempty"`

	Result *report.AnalysisResult `json:"result,omitempty"`
	// Warning is a non-fatal error reported alongside COMPLETED.
	Warning   string    `json:"warning,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"errorKind,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s State) clone() State {
	s.ActiveJob = s.ActiveJob.clone()
	s.LastJob = s.LastJob.clone()
	return s
}

// clearValidation drops a local validation error. It lasts only until the
// next transition.
func (s *State) clearValidation() {
	if s.ErrorKind == ErrorValidation {
		s.Error = ""
		s.ErrorKind = ""
	}
}
