package handlers

import (
	"context"

	"git.home.luguber.info/inful/docgate/internal/check"
	"git.home.luguber.info/inful/docgate/internal/forge"
	"git.home.luguber.info/inful/docgate/internal/queue"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

// Submitter accepts events for the run queue.
type Submitter interface {
	Submit(ctx context.Context, ev trigger.Event) (queue.Submission, error)
}

// RunSource exposes run reports.
type RunSource interface {
	Snapshot(runID string) (*check.Report, bool)
	List() []*check.Report
	Len() int
}

// ForgeLookup resolves a configured forge by name.
type ForgeLookup interface {
	GetForge(name string) (forge.Client, *forge.Config, bool)
}
