package check

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/steps"
	testutils "git.home.luguber.info/inful/docgate/internal/testutil/testutils"
	"git.home.luguber.info/inful/docgate/internal/trigger"
	"git.home.luguber.info/inful/docgate/internal/workspace"
)

func newTask(t *testing.T) *Task {
	t.Helper()
	return NewTask(workspace.NewManager(t.TempDir(), false), steps.NewExecutor())
}

func docsCheck(run ...config.StepConfig) config.CheckConfig {
	all := []config.StepConfig{{Name: "Checkout", Uses: config.StepCheckout, Category: config.FailureProvision}}
	all = append(all, run...)
	return config.CheckConfig{
		Name:        "docs",
		Environment: config.EnvironmentConfig{Image: "ubuntu-latest"},
		Steps:       all,
	}
}

func localRequest(t *testing.T, check config.CheckConfig) Request {
	t.Helper()
	src := t.TempDir()
	testutils.WriteTree(t, src, map[string]string{"docs/index.rst": "Docs\n"})
	return Request{
		Check:     check,
		Event:     trigger.Event{Kind: trigger.KindManual, ChangeRef: "refs/pull/1/head"},
		SourceDir: src,
	}
}

func TestRunSucceeds(t *testing.T) {
	check := docsCheck(config.StepConfig{Name: "Build", Uses: config.StepRun, Run: "true", Category: config.FailureGeneration})
	report, err := newTask(t).Run(t.Context(), localRequest(t, check))

	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, report.Status)
	require.Zero(t, report.ExitCode)
	require.Empty(t, report.FailureCategory)
	require.NotEmpty(t, report.RunID)
	require.Len(t, report.Steps, 2)
	require.False(t, report.CompletedAt.Before(report.StartedAt))
}

func TestRunFailureCarriesStepExitCodeAndCategory(t *testing.T) {
	check := docsCheck(
		config.StepConfig{Name: "Install dependencies", Uses: config.StepRun, Run: "exit 2", Category: config.FailureDependency},
		config.StepConfig{Name: "Build", Uses: config.StepRun, Run: "true", Category: config.FailureGeneration},
	)
	report, err := newTask(t).Run(t.Context(), localRequest(t, check))

	require.Error(t, err)
	require.Equal(t, StatusFailed, report.Status)
	require.Equal(t, 2, report.ExitCode)
	require.Equal(t, config.FailureDependency, report.FailureCategory)
	require.Equal(t, "Install dependencies", report.FailedStep)
	require.Equal(t, steps.StatusSkipped, report.Steps[2].Status)

	var runErr *RunError
	require.True(t, stderrors.As(err, &runErr))
	require.Equal(t, 2, runErr.ExitCode())
	require.True(t, errors.HasCategory(err, errors.CategoryDependency))
	require.Equal(t, 2, errors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}

func TestRunEscalatedWarningIsGenerationFailure(t *testing.T) {
	check := docsCheck(config.StepConfig{
		Name:             "Build documentation",
		Uses:             config.StepRun,
		Run:              "echo 'api.rst:12: WARNING: duplicate object description'",
		Category:         config.FailureGeneration,
		EscalateWarnings: true,
		WarningPatterns:  config.DefaultWarningPatterns,
	})
	report, err := newTask(t).Run(t.Context(), localRequest(t, check))

	require.Error(t, err)
	require.Equal(t, 1, report.ExitCode)
	require.Equal(t, config.FailureGeneration, report.FailureCategory)
	require.True(t, errors.HasCategory(err, errors.CategoryGeneration))
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	report, err := newTask(t).Run(ctx, localRequest(t, docsCheck()))

	require.Error(t, err)
	require.Equal(t, StatusCanceled, report.Status)
	require.Equal(t, steps.ExitCanceled, report.ExitCode)
	require.True(t, errors.HasCategory(err, errors.CategoryCanceled))
}

func TestRunWorkspaceFailureIsProvision(t *testing.T) {
	req := localRequest(t, docsCheck())
	req.SourceDir = req.SourceDir + "/missing"
	report, err := newTask(t).Run(t.Context(), req)

	require.Error(t, err)
	require.Equal(t, StatusFailed, report.Status)
	require.Equal(t, config.FailureProvision, report.FailureCategory)
	require.Equal(t, 1, report.ExitCode)
	require.Empty(t, report.Steps)
}

func TestRunKeepsGivenRunID(t *testing.T) {
	req := localRequest(t, docsCheck())
	req.RunID = "run-42"
	report, err := newTask(t).Run(t.Context(), req)
	require.NoError(t, err)
	require.Equal(t, "run-42", report.RunID)
}

func TestReportMarkdown(t *testing.T) {
	check := docsCheck(config.StepConfig{
		Name:             "Build documentation",
		Uses:             config.StepRun,
		Run:              "echo 'index.rst:1: WARNING: bad | pipe'; echo tail-line",
		Category:         config.FailureGeneration,
		EscalateWarnings: true,
		WarningPatterns:  config.DefaultWarningPatterns,
	})
	report, _ := newTask(t).Run(t.Context(), localRequest(t, check))

	md := report.Markdown()
	require.True(t, strings.HasPrefix(md, "# docs: failed\n"))
	require.Contains(t, md, "| Exit code | 1 |")
	require.Contains(t, md, "| Failure | generation (Build documentation) |")
	require.Contains(t, md, "| 2 | Build documentation | failed | 1 | 1 |")
	require.Contains(t, md, "### Build documentation")
	require.Contains(t, md, "tail-line")

	page, err := report.HTML()
	require.NoError(t, err)
	require.Contains(t, string(page), "<table>")
	require.Contains(t, string(page), "<h3>Build documentation</h3>")
}

func TestReportCancelBeforeStart(t *testing.T) {
	r := NewReport(Request{Check: config.CheckConfig{Name: "docs"}, Event: trigger.Event{ChangeRef: "main"}})
	require.Equal(t, StatusQueued, r.Status)
	r.Cancel("superseded")
	require.Equal(t, StatusCanceled, r.Status)
	require.True(t, r.Status.Terminal())
	require.Equal(t, steps.ExitCanceled, r.ExitCode)
	require.Error(t, r.Err())
}
