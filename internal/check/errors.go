package check

import (
	"fmt"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
)

// RunError is returned for a failed or canceled run. Its exit code is the
// run's exit code.
type RunError struct {
	RunID    string
	Category config.FailureCategory
	Step     string
	Code     int
	cause    *errors.ClassifiedError
}

func newRunError(r *Report) *RunError {
	msg := "documentation check failed"
	if r.FailedStep != "" {
		msg = fmt.Sprintf("step %q failed", r.FailedStep)
	}

	var b *errors.ErrorBuilder
	switch {
	case r.Status == StatusCanceled:
		b = errors.CanceledError("run canceled")
	case r.FailureCategory == config.FailureProvision:
		b = errors.ProvisionError(msg)
	case r.FailureCategory == config.FailureDependency:
		b = errors.DependencyError(msg)
	default:
		b = errors.GenerationError(msg)
	}
	b = b.WithContext("run_id", r.RunID).WithContext("exit_code", r.ExitCode)
	if r.FailedStep != "" {
		b = b.WithContext("step", r.FailedStep)
	}
	if r.Error != "" {
		b = b.WithContext("reason", r.Error)
	}

	return &RunError{
		RunID:    r.RunID,
		Category: r.FailureCategory,
		Step:     r.FailedStep,
		Code:     r.ExitCode,
		cause:    b.Build(),
	}
}

func (e *RunError) Error() string {
	return e.cause.Error()
}

func (e *RunError) Unwrap() error {
	return e.cause
}

// ExitCode implements errors.ExitCoder.
func (e *RunError) ExitCode() int {
	return e.Code
}
