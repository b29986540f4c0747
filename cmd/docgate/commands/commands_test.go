package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/docgate/internal/check"
	"git.home.luguber.info/inful/docgate/internal/config"
	testutils "git.home.luguber.info/inful/docgate/internal/testutil/testutils"
)

// execute parses args like main does and returns the exit code and stdout.
func execute(t *testing.T, args ...string) (int, string) {
	t.Helper()
	cli := &CLI{}
	parser, err := kong.New(cli, kong.Name("docgate"), kong.Vars{"version": "test"}, kong.Exit(func(int) {}))
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)

	var out bytes.Buffer
	code := Execute(kctx, &Global{Stdout: &out}, cli)
	return code, out.String()
}

// writeProject creates a source tree and a config whose build step runs build.
func writeProject(t *testing.T, build string) (src, cfgPath string) {
	t.Helper()
	src = t.TempDir()
	testutils.WriteTree(t, src, map[string]string{
		"docs/index.rst": "Title\n=====\n",
		"src/lib.py":     "x = 1\n",
	})

	cfg := config.Example()
	cfg.Check.Trigger.Paths = []string{"docs/**"}
	cfg.Check.Environment.WorkingDirectory = "docs"
	cfg.Check.Steps = []config.StepConfig{
		{Name: "Checkout", Uses: config.StepCheckout},
		{Name: "Build documentation", Uses: config.StepRun, Run: build, Category: config.FailureGeneration, EscalateWarnings: true},
	}
	cfg.Cache.Backend = config.CacheBackendNone
	cfg.Daemon.Storage.DataDir = t.TempDir()

	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	cfgPath = filepath.Join(t.TempDir(), "docgate.yaml")
	require.NoError(t, os.WriteFile(cfgPath, data, 0o600))
	return src, cfgPath
}

func TestRunSucceeds(t *testing.T) {
	src, cfgPath := writeProject(t, "echo building; test -f index.rst")
	reportPath := filepath.Join(t.TempDir(), "report.json")
	summaryPath := filepath.Join(t.TempDir(), "summary.md")

	code, out := execute(t, "-c", cfgPath, "run", "-w", src, "--changed", "docs/index.rst",
		"--report", reportPath, "--summary", summaryPath)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "building")
	assert.Contains(t, out, "docs: succeeded (exit 0)")

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var report check.Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, check.StatusSucceeded, report.Status)
	assert.Equal(t, []string{"docs/index.rst"}, report.MatchedPaths)
	assert.Equal(t, "docs-local", report.Group)

	testutils.NewFileAssertions(t, filepath.Dir(summaryPath)).AssertFileContains("summary.md", "docs")
}

func TestRunSkipsUnrelatedChange(t *testing.T) {
	src, cfgPath := writeProject(t, "exit 3")

	code, out := execute(t, "-c", cfgPath, "run", "-w", src, "--changed", "src/lib.py")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "skipped:")
}

func TestRunExitCodeFollowsFailingStep(t *testing.T) {
	src, cfgPath := writeProject(t, "echo broken >&2; exit 3")

	code, out := execute(t, "-c", cfgPath, "run", "-w", src, "--force", "-q")
	assert.Equal(t, 3, code)
	assert.Contains(t, out, "docs: failed (exit 3)")
}

func TestRunEscalatesWarnings(t *testing.T) {
	src, cfgPath := writeProject(t, "echo 'index.rst:3: WARNING: undefined label'")

	code, _ := execute(t, "-c", cfgPath, "run", "-w", src, "--changed", "docs/index.rst", "-q")
	assert.Equal(t, 1, code)
}

func TestMatch(t *testing.T) {
	_, cfgPath := writeProject(t, "true")

	code, out := execute(t, "-c", cfgPath, "match", "docs/index.rst", "src/lib.py")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "run: 1 of 2 changed paths match")
	assert.Contains(t, out, "docs/index.rst")

	code, out = execute(t, "-c", cfgPath, "match", "--json", "--exit-code", "src/lib.py")
	assert.Equal(t, 1, code)
	var decision struct {
		Run bool `json:"run"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decision))
	assert.False(t, decision.Run)

	code, out = execute(t, "-c", cfgPath, "match", "--action", "closed", "docs/index.rst")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, `skip: action "closed" not in trigger actions`)
}

func TestInitAndValidate(t *testing.T) {
	dir := t.TempDir()
	code, out := execute(t, "init", "-o", dir)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "initialized successfully")

	cfgPath := filepath.Join(dir, config.DefaultPath)
	code, out = execute(t, "-c", cfgPath, "validate")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, `valid (check "docs", 4 steps`)

	code, _ = execute(t, "init", "-o", dir)
	assert.Equal(t, 2, code)

	code, out = execute(t, "-c", cfgPath, "validate", "--print")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "requirements-docs.txt")
}

func TestValidateRejectsMissingFile(t *testing.T) {
	code, _ := execute(t, "-c", filepath.Join(t.TempDir(), "missing.yaml"), "validate")
	assert.Equal(t, 7, code)
}
