package metrics

import "time"

// ResultLabel enumerates step result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFailed   ResultLabel = "failed"
	ResultSkipped  ResultLabel = "skipped"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for run and step metrics.
type Recorder interface {
	ObserveStepDuration(step string, d time.Duration)
	ObserveRunDuration(d time.Duration)
	IncStepResult(step string, result ResultLabel)
	IncRunOutcome(outcome string) // outcome: succeeded|failed|canceled
	IncRunFailureCategory(category string)
	IncSuperseded()
	IncTriggerDecision(run bool)
	IncCacheResult(operation string, result string) // operation: restore|save; result: hit|miss|saved|exists|error
	SetQueueDepth(n int)
	SetRunningRuns(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStepDuration(string, time.Duration) {}
func (NoopRecorder) ObserveRunDuration(time.Duration)          {}
func (NoopRecorder) IncStepResult(string, ResultLabel)         {}
func (NoopRecorder) IncRunOutcome(string)                      {}
func (NoopRecorder) IncRunFailureCategory(string)              {}
func (NoopRecorder) IncSuperseded()                            {}
func (NoopRecorder) IncTriggerDecision(bool)                   {}
func (NoopRecorder) IncCacheResult(string, string)             {}
func (NoopRecorder) SetQueueDepth(int)                         {}
func (NoopRecorder) SetRunningRuns(int)                        {}
