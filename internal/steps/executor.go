package steps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/docgate/internal/cache"
	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/git"
	"git.home.luguber.info/inful/docgate/internal/logfields"
	"git.home.luguber.info/inful/docgate/internal/metrics"
)

// Checkouter materialises the triggering revision.
type Checkouter interface {
	Checkout(ctx context.Context, opts git.CheckoutOptions) (string, error)
}

// Executor runs check steps sequentially.
type Executor struct {
	cache         *cache.Manager
	recorder      metrics.Recorder
	output        io.Writer
	newCheckouter func(auth *config.AuthConfig) Checkouter
	runtimeSearch string
}

// Option configures an Executor.
type Option func(*Executor)

// WithCache sets the dependency cache used by setup-runtime steps.
func WithCache(m *cache.Manager) Option {
	return func(e *Executor) { e.cache = m }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Executor) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithOutput mirrors step output to w.
func WithOutput(w io.Writer) Option {
	return func(e *Executor) { e.output = w }
}

// WithCheckouter overrides how checkout steps fetch the repository.
func WithCheckouter(f func(auth *config.AuthConfig) Checkouter) Option {
	return func(e *Executor) { e.newCheckouter = f }
}

// WithRuntimeSearchPath sets the PATH used to locate runtimes.
func WithRuntimeSearchPath(p string) Option {
	return func(e *Executor) { e.runtimeSearch = p }
}

// NewExecutor creates an executor. Without WithCache the dependency cache is disabled.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		cache:    cache.NewManager(cache.NoneStore{}),
		recorder: metrics.NoopRecorder{},
		newCheckouter: func(auth *config.AuthConfig) Checkouter {
			return git.NewClient(auth)
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs steps in order and returns one result per step. After the
// first failure or cancellation the remaining steps are skipped.
func (e *Executor) Execute(ctx context.Context, st *State, steps []config.StepConfig) []Result {
	results := make([]Result, 0, len(steps))
	halted := false

	for _, step := range steps {
		res := Result{Name: step.DisplayName(), Uses: step.Uses, Category: step.Category}
		if halted {
			res.Status = StatusSkipped
			e.recorder.IncStepResult(res.Name, metrics.ResultSkipped)
			results = append(results, res)
			continue
		}
		if ctx.Err() != nil {
			res.Status = StatusCanceled
			res.ExitCode = ExitCanceled
			res.Error = "run canceled before step started"
			e.recorder.IncStepResult(res.Name, metrics.ResultCanceled)
			results = append(results, res)
			halted = true
			continue
		}

		res = e.runStep(ctx, st, step, res)
		results = append(results, res)
		if res.Status != StatusSucceeded {
			halted = true
		}
	}
	return results
}

func (e *Executor) runStep(ctx context.Context, st *State, step config.StepConfig, res Result) Result {
	log := slog.With(logfields.RunID(st.RunID), logfields.Step(res.Name))
	log.Info("Step started", slog.String("uses", string(step.Uses)))

	stepCtx := ctx
	if step.Timeout != "" {
		if d, err := time.ParseDuration(step.Timeout); err == nil && d > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
	}

	out := newTail(tailLines)
	res.StartedAt = time.Now()
	var o outcome
	switch step.Uses {
	case config.StepCheckout:
		o = e.checkout(stepCtx, st, out)
	case config.StepSetupRuntime:
		o = e.setupRuntime(stepCtx, st, step, out)
	case config.StepVerifyOutput:
		o = e.verifyOutput(st, step, out)
	case config.StepRun, "":
		o = e.run(stepCtx, st, step, out)
	default:
		o = outcome{exitCode: ExitFailure, err: fmt.Errorf("unknown step action %q", step.Uses)}
	}
	res.Duration = time.Since(res.StartedAt)
	res.OutputTail = out.snapshot()
	res.Warnings = o.warnings
	res.WarningCount = o.nWarn
	res.ExitCode = o.exitCode

	switch {
	case ctx.Err() != nil:
		res.Status = StatusCanceled
		res.ExitCode = ExitCanceled
		res.Error = "run canceled"
	case errors.Is(stepCtx.Err(), context.DeadlineExceeded):
		res.Status = StatusFailed
		res.ExitCode = ExitTimeout
		res.Error = "step exceeded timeout " + step.Timeout
	case o.exitCode != 0 || o.err != nil:
		res.Status = StatusFailed
		if res.ExitCode == 0 {
			res.ExitCode = ExitFailure
		}
		if o.err != nil {
			res.Error = o.err.Error()
		} else {
			res.Error = fmt.Sprintf("exit status %d", o.exitCode)
		}
	case o.nWarn > 0 && step.EscalateWarnings:
		res.Status = StatusFailed
		res.ExitCode = ExitFailure
		res.Category = config.FailureGeneration
		res.Error = fmt.Sprintf("%d warning(s) escalated to errors", o.nWarn)
	default:
		res.Status = StatusSucceeded
	}

	e.recorder.ObserveStepDuration(res.Name, res.Duration)
	e.recorder.IncStepResult(res.Name, resultLabel(res.Status))

	attrs := []any{logfields.ExitCode(res.ExitCode), logfields.Duration(res.Duration), slog.String("status", string(res.Status))}
	if res.Status == StatusSucceeded {
		log.Info("Step finished", attrs...)
	} else {
		log.Warn("Step finished", append(attrs, logfields.Category(string(res.Category)), slog.String("error", res.Error))...)
	}
	return res
}

// SaveCaches persists dependency caches restored during the run. Call it only
// after the run succeeded so a broken install is never cached.
func (e *Executor) SaveCaches(ctx context.Context, st *State) {
	for _, s := range st.saves {
		e.cache.Save(ctx, s.key, s.dir)
	}
}

func resultLabel(s Status) metrics.ResultLabel {
	switch s {
	case StatusSucceeded:
		return metrics.ResultSuccess
	case StatusSkipped:
		return metrics.ResultSkipped
	case StatusCanceled:
		return metrics.ResultCanceled
	default:
		return metrics.ResultFailed
	}
}
