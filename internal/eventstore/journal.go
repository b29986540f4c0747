package eventstore

import (
	"context"
	stderrors "errors"
	"time"

	"git.home.luguber.info/inful/docgate/internal/check"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

// Journal records run lifecycle notifications as events and keeps a
// projection current. It satisfies notify.Reporter.
type Journal struct {
	store      Store
	projection *RunHistoryProjection
}

// NewJournal creates a journal writing to store. projection may be nil.
func NewJournal(store Store, projection *RunHistoryProjection) *Journal {
	return &Journal{store: store, projection: projection}
}

func (j *Journal) append(ctx context.Context, ev *BaseEvent, err error) error {
	if err != nil {
		return err
	}
	if err := j.store.Append(ctx, ev); err != nil {
		return err
	}
	if j.projection != nil {
		j.projection.Apply(ev)
	}
	return nil
}

// Name identifies the journal in logs.
func (j *Journal) Name() string { return "eventstore" }

// RunQueued records a RunQueued event.
func (j *Journal) RunQueued(ctx context.Context, r *check.Report, ev trigger.Event) error {
	e, err := NewRunQueued(r, ev)
	return j.append(ctx, e, err)
}

// RunStarted records a RunStarted event.
func (j *Journal) RunStarted(ctx context.Context, r *check.Report, _ trigger.Event) error {
	e, err := NewRunStarted(r)
	return j.append(ctx, e, err)
}

// RunFinished records one StepCompleted event per executed step followed by
// the terminal event.
func (j *Journal) RunFinished(ctx context.Context, r *check.Report, _ trigger.Event) error {
	var errs []error
	for _, res := range r.Steps {
		if res.StartedAt.IsZero() {
			continue
		}
		e, err := NewStepCompleted(r.RunID, res)
		errs = append(errs, j.append(ctx, e, err))
	}
	e, err := NewRunFinished(r)
	errs = append(errs, j.append(ctx, e, err))
	return stderrors.Join(errs...)
}

// Compact removes runs whose last event is older than retention.
func (j *Journal) Compact(ctx context.Context, retention time.Duration) (int64, error) {
	return j.store.DeleteBefore(ctx, time.Now().Add(-retention))
}
