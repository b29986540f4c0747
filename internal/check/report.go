package check

import (
	"time"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/steps"
)

// Status is a run's lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// Environment records what a run actually executed on.
type Environment struct {
	Image            string `json:"image,omitempty"`
	WorkingDirectory string `json:"working_directory,omitempty"`
	Runtime          string `json:"runtime,omitempty"`
	RuntimeVersion   string `json:"runtime_version,omitempty"`
	RuntimePath      string `json:"runtime_path,omitempty"`
}

// Report is the outcome of one run.
type Report struct {
	RunID           string                 `json:"run_id"`
	Check           string                 `json:"check"`
	Forge           string                 `json:"forge,omitempty"`
	Repository      string                 `json:"repository,omitempty"`
	Number          int                    `json:"number,omitempty"`
	ChangeRef       string                 `json:"change_ref"`
	Group           string                 `json:"group,omitempty"`
	MatchedPaths    []string               `json:"matched_paths,omitempty"`
	HeadSHA         string                 `json:"head_sha,omitempty"`
	Status          Status                 `json:"status"`
	FailureCategory config.FailureCategory `json:"failure_category,omitempty"`
	FailedStep      string                 `json:"failed_step,omitempty"`
	ExitCode        int                    `json:"exit_code"`
	Error           string                 `json:"error,omitempty"`
	SupersededBy    string                 `json:"superseded_by,omitempty"`
	StartedAt       time.Time              `json:"started_at,omitzero"`
	CompletedAt     time.Time              `json:"completed_at,omitzero"`
	Steps           []steps.Result         `json:"steps,omitempty"`
	Environment     Environment            `json:"environment"`
}

// Duration is the wall time between start and completion.
func (r *Report) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Err returns the run failure as an error, or nil for a successful run.
func (r *Report) Err() error {
	switch r.Status {
	case StatusFailed, StatusCanceled:
		return newRunError(r)
	default:
		return nil
	}
}

// finish condenses step results into the report's status. The first failed
// or canceled step decides the outcome.
func (r *Report) finish(results []steps.Result) {
	r.Steps = results
	r.CompletedAt = time.Now()
	r.Status = StatusSucceeded
	r.ExitCode = 0
	for _, res := range results {
		switch res.Status {
		case steps.StatusCanceled:
			r.Status = StatusCanceled
			r.ExitCode = steps.ExitCanceled
			r.FailedStep = res.Name
			r.Error = res.Error
			return
		case steps.StatusFailed:
			r.Status = StatusFailed
			r.ExitCode = res.ExitCode
			r.FailureCategory = res.Category
			r.FailedStep = res.Name
			r.Error = res.Error
			return
		}
	}
}

// fail marks the run failed before any step ran.
func (r *Report) fail(category config.FailureCategory, err error) {
	r.CompletedAt = time.Now()
	r.Status = StatusFailed
	r.ExitCode = steps.ExitFailure
	r.FailureCategory = category
	r.Error = err.Error()
}

// Cancel marks a run that never started as canceled.
func (r *Report) Cancel(reason string) {
	r.CompletedAt = time.Now()
	r.Status = StatusCanceled
	r.ExitCode = steps.ExitCanceled
	r.Error = reason
}
