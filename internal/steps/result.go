package steps

import (
	"time"

	"git.home.luguber.info/inful/docgate/internal/config"
)

// Status is the terminal state of a step.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCanceled  Status = "canceled"
)

// Exit codes assigned by the executor rather than by a child process.
const (
	ExitFailure  = 1
	ExitTimeout  = 124
	ExitCanceled = 130
)

// maxRecordedWarnings bounds the warnings kept per step; the count is exact.
const maxRecordedWarnings = 50

// Result records one executed (or skipped) step.
type Result struct {
	Name         string                 `json:"name"`
	Uses         config.StepKind        `json:"uses"`
	Category     config.FailureCategory `json:"category"`
	Status       Status                 `json:"status"`
	ExitCode     int                    `json:"exit_code"`
	WarningCount int                    `json:"warning_count,omitempty"`
	Warnings     []string               `json:"warnings,omitempty"`
	OutputTail   []string               `json:"output_tail,omitempty"`
	StartedAt    time.Time              `json:"started_at,omitzero"`
	Duration     time.Duration          `json:"duration"`
	Error        string                 `json:"error,omitempty"`
}

// Failed reports whether the step ended in failure.
func (r Result) Failed() bool {
	return r.Status == StatusFailed
}

// outcome is what a step implementation reports back to the executor.
type outcome struct {
	exitCode int
	err      error
	warnings []string
	nWarn    int
}

func (o *outcome) addWarning(w string) {
	o.nWarn++
	if len(o.warnings) < maxRecordedWarnings {
		o.warnings = append(o.warnings, w)
	}
}
