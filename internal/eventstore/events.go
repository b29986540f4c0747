package eventstore

import (
	"encoding/json"
	"strconv"
	"time"

	"git.home.luguber.info/inful/docgate/internal/check"
	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/steps"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

// Event type names.
const (
	TypeRunQueued     = "RunQueued"
	TypeRunStarted    = "RunStarted"
	TypeStepCompleted = "StepCompleted"
	TypeRunSucceeded  = "RunSucceeded"
	TypeRunFailed     = "RunFailed"
	TypeRunCanceled   = "RunCanceled"
)

// RunQueuedPayload is recorded when a triggered run enters the queue.
type RunQueuedPayload struct {
	Check        string   `json:"check"`
	Group        string   `json:"group"`
	EventKind    string   `json:"event_kind"`
	Forge        string   `json:"forge,omitempty"`
	Repository   string   `json:"repository,omitempty"`
	Number       int      `json:"number,omitempty"`
	ChangeRef    string   `json:"change_ref"`
	HeadSHA      string   `json:"head_sha,omitempty"`
	MatchedPaths []string `json:"matched_paths,omitempty"`
	Image        string   `json:"image,omitempty"`
	Runtime      string   `json:"runtime,omitempty"`
}

func newEvent(runID, eventType string, ts time.Time, payload any) (*BaseEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.EventStoreError("failed to marshal "+eventType+" payload").
			WithCause(err).
			WithContext("run_id", runID).
			Build()
	}
	return &BaseEvent{
		EventRunID:     runID,
		EventType:      eventType,
		EventTimestamp: ts,
		EventPayload:   data,
	}, nil
}

// NewRunQueued creates a RunQueued event.
func NewRunQueued(r *check.Report, ev trigger.Event) (*BaseEvent, error) {
	return newEvent(r.RunID, TypeRunQueued, time.Now(), RunQueuedPayload{
		Check:        r.Check,
		Group:        r.Group,
		EventKind:    ev.Kind,
		Forge:        ev.Forge,
		Repository:   ev.Repository,
		Number:       ev.Number,
		ChangeRef:    r.ChangeRef,
		HeadSHA:      r.HeadSHA,
		MatchedPaths: r.MatchedPaths,
		Image:        r.Environment.Image,
		Runtime:      r.Environment.Runtime,
	})
}

// NewRunStarted creates a RunStarted event.
func NewRunStarted(r *check.Report) (*BaseEvent, error) {
	ts := r.StartedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return newEvent(r.RunID, TypeRunStarted, ts, map[string]any{})
}

// NewStepCompleted creates a StepCompleted event for one step result.
func NewStepCompleted(runID string, res steps.Result) (*BaseEvent, error) {
	ts := res.StartedAt.Add(res.Duration)
	if res.StartedAt.IsZero() {
		ts = time.Now()
	}
	return newEvent(runID, TypeStepCompleted, ts, res)
}

// NewRunFinished creates the terminal event matching the report status. The
// payload is the complete report.
func NewRunFinished(r *check.Report) (*BaseEvent, error) {
	eventType := TypeRunFailed
	switch r.Status {
	case check.StatusSucceeded:
		eventType = TypeRunSucceeded
	case check.StatusCanceled:
		eventType = TypeRunCanceled
	}
	ts := r.CompletedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	ev, err := newEvent(r.RunID, eventType, ts, r)
	if err != nil {
		return nil, err
	}
	ev.EventMetadata = map[string]string{"exit_code": strconv.Itoa(r.ExitCode)}
	if r.FailureCategory != "" {
		ev.EventMetadata["category"] = string(r.FailureCategory)
	}
	return ev, nil
}

// IsTerminal reports whether eventType ends a run.
func IsTerminal(eventType string) bool {
	return eventType == TypeRunSucceeded || eventType == TypeRunFailed || eventType == TypeRunCanceled
}
