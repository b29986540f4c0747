package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
)

const minimalYAML = `
check:
  trigger:
    paths:
      - "docs/**"
  environment:
    working_directory: docs
    runtime:
      name: python
      version: "3.12"
  steps:
    - uses: checkout
    - uses: setup-runtime
      cache:
        manifest: docs/requirements.txt
    - name: Install
      run: pip install -r requirements.txt
      category: dependency
    - name: Build
      run: make html
      escalate_warnings: true
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	if cfg.Check.Name != DefaultCheckName {
		t.Errorf("check name = %q, want %q", cfg.Check.Name, DefaultCheckName)
	}
	if cfg.Check.Concurrency.Group != DefaultGroupTemplate {
		t.Errorf("group = %q, want %q", cfg.Check.Concurrency.Group, DefaultGroupTemplate)
	}
	if !cfg.Check.Concurrency.CancelsInProgress() {
		t.Error("cancel_in_progress should default to true")
	}
	if cfg.Check.Environment.Runtime.Command != "python3" {
		t.Errorf("runtime command = %q", cfg.Check.Environment.Runtime.Command)
	}

	steps := cfg.Check.Steps
	require.Len(t, steps, 4)
	if steps[0].Category != FailureProvision || steps[1].Category != FailureProvision {
		t.Errorf("checkout/setup categories = %q/%q", steps[0].Category, steps[1].Category)
	}
	if steps[2].Uses != StepRun || steps[2].Category != FailureDependency {
		t.Errorf("install step = %+v", steps[2])
	}
	if steps[3].Category != FailureGeneration {
		t.Errorf("build category = %q", steps[3].Category)
	}
	require.Equal(t, DefaultWarningPatterns, steps[3].WarningPatterns)

	if cfg.Daemon.Workers != DefaultWorkers || cfg.Daemon.QueueSize != DefaultQueueSize {
		t.Errorf("daemon defaults not applied: %+v", cfg.Daemon)
	}
	if cfg.Cache.Backend != CacheBackendLocal {
		t.Errorf("cache backend = %q", cfg.Cache.Backend)
	}
	if cfg.Monitoring.Metrics.Path != DefaultMetricsPath {
		t.Errorf("metrics path = %q", cfg.Monitoring.Metrics.Path)
	}
}

func TestParseExpandsEnvironmentButKeepsGroupTemplate(t *testing.T) {
	t.Setenv("DOCGATE_TEST_SECRET", "s3cret")
	data := minimalYAML + `
forges:
  - name: gh
    type: github
    webhook:
      secret: "${DOCGATE_TEST_SECRET}"
`
	cfg, err := Parse([]byte(data))
	require.NoError(t, err)
	require.Len(t, cfg.Forges, 1)
	require.Equal(t, "s3cret", cfg.Forges[0].Webhook.Secret)
	require.Equal(t, "/webhooks/gh", cfg.Forges[0].Webhook.Path)
	require.Equal(t, "https://api.github.com", cfg.Forges[0].APIURL)
	require.Equal(t, DefaultGroupTemplate, cfg.Check.Concurrency.Group)
}

func TestParseRejectsInvalidConfigurations(t *testing.T) {
	tests := []struct {
		name    string
		replace [2]string
		extra   string
	}{
		{name: "no paths", replace: [2]string{`      - "docs/**"`, ""}},
		{name: "bad pattern", replace: [2]string{`"docs/**"`, `"docs/[**"`}},
		{name: "unknown step", replace: [2]string{"uses: setup-runtime", "uses: deploy"}},
		{name: "unknown category", replace: [2]string{"category: dependency", "category: flaky"}},
		{name: "escaping workdir", replace: [2]string{"working_directory: docs", "working_directory: ../docs"}},
		{name: "minio without bucket", extra: "cache:\n  backend: minio\n  minio:\n    endpoint: localhost:9000\n"},
		{name: "duplicate forges", extra: "forges:\n  - name: a\n    type: github\n  - name: a\n    type: gitlab\n"},
		{name: "unsupported forge", extra: "forges:\n  - name: a\n    type: bitbucket\n"},
		{name: "nats without url", extra: "events:\n  nats:\n    enabled: true\n"},
		{name: "unknown field", extra: "surprise: true\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := minimalYAML
			if tt.replace[0] != "" {
				data = strings.Replace(data, tt.replace[0], tt.replace[1], 1)
			}
			data += tt.extra
			_, err := Parse([]byte(data))
			if err == nil {
				t.Fatalf("expected error for %s", tt.name)
			}
			cat := errors.GetCategory(err)
			if cat != errors.CategoryValidation && cat != errors.CategoryConfig {
				t.Errorf("category = %q, want validation or config", cat)
			}
		})
	}
}

func TestStepBeforeCheckoutRejected(t *testing.T) {
	data := strings.Replace(minimalYAML, "    - uses: checkout\n", "", 1)
	_, err := Parse([]byte(data))
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestInitWritesLoadableExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultPath)
	require.NoError(t, Init(path, false))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "docs", cfg.Check.Name)
	require.Equal(t, "-W", cfg.Check.Env["SPHINXOPTS"])
	require.Len(t, cfg.Check.Steps, 4)
	require.True(t, cfg.Check.Steps[3].EscalateWarnings)

	err = Init(path, false)
	require.Error(t, err, "init must refuse to overwrite without force")
	require.NoError(t, Init(path, true))
}

func TestStepDisplayName(t *testing.T) {
	if got := (StepConfig{Uses: StepRun, Run: "make html\nmake linkcheck"}).DisplayName(); got != "Run make html" {
		t.Errorf("DisplayName() = %q", got)
	}
	if got := (StepConfig{Uses: StepCheckout}).DisplayName(); got != "checkout" {
		t.Errorf("DisplayName() = %q", got)
	}
}

func TestAllowsRepository(t *testing.T) {
	f := &ForgeConfig{}
	require.True(t, f.AllowsRepository("any/repo"))
	f.Repositories = []string{"Org/Docs"}
	require.True(t, f.AllowsRepository("org/docs"))
	require.False(t, f.AllowsRepository("org/other"))
}

func TestLoadExpandsFromEnvFileWithoutExporting(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(".env", []byte("DOCGATE_ENV_A=file\nDOCGATE_ENV_B=file-secret\n"), 0o600))
	t.Setenv("DOCGATE_ENV_A", "process")
	// Registers cleanup in case the file value leaks into the environment.
	t.Setenv("DOCGATE_ENV_B", "")
	require.NoError(t, os.Unsetenv("DOCGATE_ENV_B"))

	data := minimalYAML + `
forges:
  - name: gh
    type: github
    auth:
      type: token
      token: "${DOCGATE_ENV_A}"
    webhook:
      secret: "${DOCGATE_ENV_B}"
`
	require.NoError(t, os.WriteFile("docgate.yaml", []byte(data), 0o600))

	cfg, err := Load("docgate.yaml")
	require.NoError(t, err)
	require.Equal(t, "process", cfg.Forges[0].Auth.Token)
	require.Equal(t, "file-secret", cfg.Forges[0].Webhook.Secret)
	_, exported := os.LookupEnv("DOCGATE_ENV_B")
	require.False(t, exported)
}

func TestParseLeavesCheckDefinitionUnexpanded(t *testing.T) {
	t.Setenv("HOME", "/home/daemon")
	t.Setenv("PATH", "/usr/bin")
	t.Setenv("DOCGATE_TEST_SECRET", "s3cret")
	const run = `export PATH=$HOME/bin:$PATH; awk '{print $1}' list.txt`
	data := minimalYAML + `    - name: Shell
      run: "` + run + `"
      env:
        TOKEN_REF: "${DOCGATE_TEST_SECRET}"
        SPHINXOPTS: "-W $EXTRA"
  concurrency:
    group: "${check}-${repo}-${ref}"
`
	cfg, err := Parse([]byte(data))
	require.NoError(t, err)
	require.Len(t, cfg.Check.Steps, 5)
	step := cfg.Check.Steps[4]
	require.Equal(t, run, step.Run)
	require.Equal(t, "${DOCGATE_TEST_SECRET}", step.Env["TOKEN_REF"])
	require.Equal(t, "-W $EXTRA", step.Env["SPHINXOPTS"])
	require.Equal(t, "${check}-${repo}-${ref}", cfg.Check.Concurrency.Group)
}

func TestExpandRefs(t *testing.T) {
	lookup := func(name string) (string, bool) {
		if name == "SET" {
			return "value", true
		}
		return "", false
	}
	require.Equal(t, "value", expandRefs("${SET}", lookup))
	require.Equal(t, "pre-value-post", expandRefs("pre-${SET}-post", lookup))
	require.Empty(t, expandRefs("${UNSET}", lookup))
	require.Equal(t, "pa$$word$SET", expandRefs("pa$$word$SET", lookup))
}
