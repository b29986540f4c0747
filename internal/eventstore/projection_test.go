package eventstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docgate/internal/check"
	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/steps"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

func queuedReport(id string) (*check.Report, trigger.Event) {
	ev := trigger.Event{Kind: trigger.KindPullRequest, Repository: "org/repo", Number: 7, ChangeRef: "refs/pull/7/head", HeadSHA: "abc"}
	r := check.NewReport(check.Request{RunID: id, Check: config.CheckConfig{Name: "docs"}, Event: ev})
	r.Group = "docs-refs/pull/7/head"
	r.MatchedPaths = []string{"py-polars/docs/index.rst"}
	return r, ev
}

func finish(r *check.Report, status check.Status) {
	r.Status = status
	r.StartedAt = time.Now().Add(-time.Minute).Truncate(time.Millisecond)
	r.CompletedAt = time.Now().Truncate(time.Millisecond)
	r.Steps = []steps.Result{
		{Name: "Checkout", Status: steps.StatusSucceeded, StartedAt: r.StartedAt, Duration: time.Second},
		{Name: "Build documentation", Status: steps.StatusFailed, ExitCode: 2, Category: config.FailureGeneration, StartedAt: r.StartedAt.Add(time.Second), Duration: time.Second},
	}
	if status == check.StatusFailed {
		r.ExitCode = 2
		r.FailureCategory = config.FailureGeneration
		r.FailedStep = "Build documentation"
	}
}

func TestJournalAndProjectionLifecycle(t *testing.T) {
	store := newTestStore(t)
	projection := NewRunHistoryProjection(store, 10)
	journal := NewJournal(store, projection)
	ctx := t.Context()

	r, ev := queuedReport("run-1")
	require.NoError(t, journal.RunQueued(ctx, r, ev))

	got, ok := projection.Run("run-1")
	require.True(t, ok)
	require.Equal(t, check.StatusQueued, got.Status)
	require.Equal(t, "docs-refs/pull/7/head", got.Group)
	require.Len(t, projection.Unfinished(), 1)

	r.StartedAt = time.Now()
	require.NoError(t, journal.RunStarted(ctx, r, ev))
	got, _ = projection.Run("run-1")
	require.Equal(t, check.StatusRunning, got.Status)

	finish(r, check.StatusFailed)
	require.NoError(t, journal.RunFinished(ctx, r, ev))

	got, _ = projection.Run("run-1")
	require.Equal(t, check.StatusFailed, got.Status)
	require.Equal(t, 2, got.ExitCode)
	require.Len(t, got.Steps, 2)
	require.Empty(t, projection.Unfinished())
	require.Len(t, projection.History(), 1)

	events, err := store.GetByRunID(ctx, "run-1")
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type())
	}
	require.Equal(t, []string{TypeRunQueued, TypeRunStarted, TypeStepCompleted, TypeStepCompleted, TypeRunFailed}, types)
	require.Equal(t, "generation", events[len(events)-1].Metadata()["category"])
}

func TestProjectionRebuild(t *testing.T) {
	store := newTestStore(t)
	journal := NewJournal(store, nil)
	ctx := t.Context()

	for i, status := range []check.Status{check.StatusSucceeded, check.StatusFailed, check.StatusCanceled} {
		r, ev := queuedReport("run-" + string(rune('a'+i)))
		require.NoError(t, journal.RunQueued(ctx, r, ev))
		finish(r, status)
		r.CompletedAt = r.CompletedAt.Add(time.Duration(i) * time.Second)
		require.NoError(t, journal.RunFinished(ctx, r, ev))
	}
	interrupted, ev := queuedReport("run-z")
	require.NoError(t, journal.RunQueued(ctx, interrupted, ev))

	projection := NewRunHistoryProjection(store, 2)
	require.NoError(t, projection.Rebuild(ctx))

	history := projection.History()
	require.Len(t, history, 2)
	require.Equal(t, "run-c", history[0].RunID)
	require.Equal(t, check.StatusCanceled, history[0].Status)
	require.Equal(t, "run-b", history[1].RunID)

	_, ok := projection.Run("run-a")
	require.False(t, ok, "runs beyond the history bound are pruned")

	unfinished := projection.Unfinished()
	require.Len(t, unfinished, 1)
	require.Equal(t, "run-z", unfinished[0].RunID)
	require.False(t, projection.LastSyncTime().IsZero())
}

func TestJournalCompact(t *testing.T) {
	store := newTestStore(t)
	journal := NewJournal(store, nil)
	ctx := t.Context()

	r, ev := queuedReport("run-1")
	require.NoError(t, journal.RunQueued(ctx, r, ev))

	n, err := journal.Compact(ctx, time.Hour)
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = journal.Compact(ctx, -time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
