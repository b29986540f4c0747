package notify

import (
	"context"
	"fmt"
	"strings"

	"git.home.luguber.info/inful/docgate/internal/check"
	"git.home.luguber.info/inful/docgate/internal/forge"
	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

// ForgeLookup resolves a configured forge by name.
type ForgeLookup interface {
	GetForge(name string) (forge.Client, *forge.Config, bool)
}

// ForgeStatus posts commit statuses for runs triggered by forge webhooks.
// Runs without a forge or head commit, such as local runs, are ignored.
type ForgeStatus struct {
	forges    ForgeLookup
	publicURL string
}

// NewForgeStatus creates a forge status reporter. publicURL, when set, is
// used to link statuses to the run summary page.
func NewForgeStatus(forges ForgeLookup, publicURL string) *ForgeStatus {
	return &ForgeStatus{forges: forges, publicURL: strings.TrimSuffix(publicURL, "/")}
}

// Name implements Reporter.
func (f *ForgeStatus) Name() string { return "forge-status" }

// StatusContext is the commit status context of a check.
func StatusContext(checkName string) string {
	return "docgate/" + checkName
}

// RunQueued posts a pending status.
func (f *ForgeStatus) RunQueued(ctx context.Context, r *check.Report, ev trigger.Event) error {
	return f.post(ctx, r, ev, forge.StatusPending, "Queued")
}

// RunStarted refreshes the pending status.
func (f *ForgeStatus) RunStarted(ctx context.Context, r *check.Report, ev trigger.Event) error {
	return f.post(ctx, r, ev, forge.StatusPending, "Building documentation")
}

// RunFinished posts the final status. A superseded run posts nothing; the
// run that replaced it owns the status.
func (f *ForgeStatus) RunFinished(ctx context.Context, r *check.Report, ev trigger.Event) error {
	switch r.Status {
	case check.StatusSucceeded:
		return f.post(ctx, r, ev, forge.StatusSuccess, "Documentation built without warnings")
	case check.StatusFailed:
		return f.post(ctx, r, ev, forge.StatusFailure, failureDescription(r))
	case check.StatusCanceled:
		if r.SupersededBy != "" {
			return nil
		}
		return f.post(ctx, r, ev, forge.StatusError, "Canceled: "+r.Error)
	default:
		return nil
	}
}

func failureDescription(r *check.Report) string {
	desc := fmt.Sprintf("%s failure", r.FailureCategory)
	if r.FailedStep != "" {
		desc += " in " + r.FailedStep
	}
	return fmt.Sprintf("%s (exit %d)", desc, r.ExitCode)
}

func (f *ForgeStatus) post(ctx context.Context, r *check.Report, ev trigger.Event, state forge.StatusState, desc string) error {
	sha := r.HeadSHA
	if sha == "" {
		sha = ev.HeadSHA
	}
	if ev.Forge == "" || ev.Repository == "" || sha == "" {
		return nil
	}
	client, _, ok := f.forges.GetForge(ev.Forge)
	if !ok {
		return errors.NotFoundError("forge not configured").
			WithContext("forge", ev.Forge).
			Build()
	}
	status := forge.CommitStatus{
		State:       state,
		Context:     StatusContext(r.Check),
		Description: desc,
	}
	if f.publicURL != "" {
		status.TargetURL = f.publicURL + "/runs/" + r.RunID + "/summary"
	}
	return client.SetCommitStatus(ctx, ev.Repository, sha, status)
}
