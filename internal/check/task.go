package check

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/logfields"
	"git.home.luguber.info/inful/docgate/internal/metrics"
	"git.home.luguber.info/inful/docgate/internal/steps"
	"git.home.luguber.info/inful/docgate/internal/trigger"
	"git.home.luguber.info/inful/docgate/internal/workspace"
)

// Request describes one run of the check.
type Request struct {
	RunID string
	Check config.CheckConfig
	Event trigger.Event
	// SourceDir runs against an existing tree instead of cloning.
	SourceDir string
	GitAuth   *config.AuthConfig
	// Group and MatchedPaths are recorded on the report.
	Group        string
	MatchedPaths []string
}

// Task executes check runs.
type Task struct {
	workspaces *workspace.Manager
	executor   *steps.Executor
	recorder   metrics.Recorder
}

// Option configures a Task.
type Option func(*Task)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(t *Task) {
		if r != nil {
			t.recorder = r
		}
	}
}

// NewTask creates a task using ws for run directories and ex for steps.
func NewTask(ws *workspace.Manager, ex *steps.Executor, opts ...Option) *Task {
	t := &Task{workspaces: ws, executor: ex, recorder: metrics.NoopRecorder{}}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// NewReport returns the initial report of a queued run.
func NewReport(req Request) *Report {
	if req.RunID == "" {
		req.RunID = NewRunID()
	}
	env := req.Check.Environment
	return &Report{
		RunID:        req.RunID,
		Check:        req.Check.Name,
		Forge:        req.Event.Forge,
		Repository:   req.Event.Repository,
		Number:       req.Event.Number,
		ChangeRef:    req.Event.ChangeRef,
		Group:        req.Group,
		MatchedPaths: req.MatchedPaths,
		HeadSHA:      req.Event.HeadSHA,
		Status:       StatusQueued,
		Environment: Environment{
			Image:            env.Image,
			WorkingDirectory: env.WorkingDirectory,
			Runtime:          env.Runtime.Name,
		},
	}
}

// Run executes the check and returns its report. The error is non-nil
// exactly when the run did not succeed; it is a *RunError carrying the exit
// code.
func (t *Task) Run(ctx context.Context, req Request) (*Report, error) {
	report := NewReport(req)
	req.RunID = report.RunID
	report.Status = StatusRunning
	report.StartedAt = time.Now()

	log := slog.With(logfields.RunID(req.RunID), logfields.Check(req.Check.Name), logfields.ChangeRef(req.Event.ChangeRef))
	log.Info("Run started", slog.Int("steps", len(req.Check.Steps)))

	var (
		ws  *workspace.Workspace
		err error
	)
	if req.SourceDir != "" {
		ws, err = t.workspaces.Attach(req.RunID, req.SourceDir)
	} else {
		ws, err = t.workspaces.Create(req.RunID)
	}
	if err != nil {
		if !errors.HasCategory(err, errors.CategoryProvision) {
			err = errors.ProvisionError("failed to acquire workspace").WithCause(err).Build()
		}
		report.fail(config.FailureProvision, err)
		t.record(log, report)
		return report, report.Err()
	}
	defer func() {
		if cerr := t.workspaces.Cleanup(ws); cerr != nil {
			log.Warn("Workspace cleanup failed", logfields.Error(cerr))
		}
	}()

	st := steps.NewState(req.RunID, req.Check, req.Event, ws)
	st.GitAuth = req.GitAuth
	results := t.executor.Execute(ctx, st, req.Check.Steps)

	report.HeadSHA = st.HeadSHA
	if st.Runtime != nil {
		report.Environment.RuntimeVersion = st.Runtime.Reported
		report.Environment.RuntimePath = st.Runtime.Path
	}
	report.finish(results)

	if report.Status == StatusSucceeded {
		t.executor.SaveCaches(ctx, st)
	}
	t.record(log, report)
	return report, report.Err()
}

func (t *Task) record(log *slog.Logger, r *Report) {
	t.recorder.ObserveRunDuration(r.Duration())
	t.recorder.IncRunOutcome(string(r.Status))
	if r.FailureCategory != "" {
		t.recorder.IncRunFailureCategory(string(r.FailureCategory))
	}

	attrs := []any{logfields.RunStatus(string(r.Status)), logfields.ExitCode(r.ExitCode), logfields.Duration(r.Duration())}
	if r.Status == StatusSucceeded {
		log.Info("Run finished", attrs...)
		return
	}
	attrs = append(attrs, logfields.Category(string(r.FailureCategory)), logfields.Step(r.FailedStep), slog.String("error", r.Error))
	log.Warn("Run finished", attrs...)
}
