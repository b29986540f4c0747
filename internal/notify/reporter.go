// Package notify delivers run lifecycle transitions to forges, the event
// store and the message bus.
package notify

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/docgate/internal/check"
	"git.home.luguber.info/inful/docgate/internal/logfields"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

// Reporter receives run lifecycle transitions.
type Reporter interface {
	Name() string
	RunQueued(ctx context.Context, r *check.Report, ev trigger.Event) error
	RunStarted(ctx context.Context, r *check.Report, ev trigger.Event) error
	RunFinished(ctx context.Context, r *check.Report, ev trigger.Event) error
}

// Multi fans transitions out to several reporters. Reporter errors are
// logged and never reach the caller.
type Multi struct {
	reporters []Reporter
}

// NewMulti combines reporters, skipping nil entries.
func NewMulti(reporters ...Reporter) *Multi {
	m := &Multi{}
	for _, r := range reporters {
		if r != nil {
			m.reporters = append(m.reporters, r)
		}
	}
	return m
}

// Add appends a reporter.
func (m *Multi) Add(r Reporter) {
	if r != nil {
		m.reporters = append(m.reporters, r)
	}
}

// Len returns the number of reporters.
func (m *Multi) Len() int { return len(m.reporters) }

// Name implements Reporter.
func (m *Multi) Name() string { return "multi" }

// RunQueued implements Reporter.
func (m *Multi) RunQueued(ctx context.Context, r *check.Report, ev trigger.Event) error {
	m.each(r, "queued", func(rep Reporter) error { return rep.RunQueued(ctx, r, ev) })
	return nil
}

// RunStarted implements Reporter.
func (m *Multi) RunStarted(ctx context.Context, r *check.Report, ev trigger.Event) error {
	m.each(r, "started", func(rep Reporter) error { return rep.RunStarted(ctx, r, ev) })
	return nil
}

// RunFinished implements Reporter.
func (m *Multi) RunFinished(ctx context.Context, r *check.Report, ev trigger.Event) error {
	m.each(r, "finished", func(rep Reporter) error { return rep.RunFinished(ctx, r, ev) })
	return nil
}

func (m *Multi) each(r *check.Report, transition string, fn func(Reporter) error) {
	for _, rep := range m.reporters {
		if err := fn(rep); err != nil {
			slog.Warn("Reporter failed",
				slog.String("reporter", rep.Name()),
				slog.String("transition", transition),
				logfields.RunID(r.RunID),
				logfields.Error(err))
		}
	}
}
