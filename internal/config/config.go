package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
)

// DefaultPath is the configuration file used when none is given.
const DefaultPath = "docgate.yaml"

// Load loads, defaults and validates the configuration at configPath.
func Load(configPath string) (*Config, error) {
	fileVars, err := loadEnvFile()
	if err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError("configuration file not found").
				WithContext("path", configPath).
				Build()
		}
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read configuration file").
			WithContext("path", configPath).
			Build()
	}

	return parse(data, envLookup(fileVars))
}

// Parse decodes raw YAML, then expands ${VAR} references from the process
// environment in credential and endpoint fields only.
func Parse(data []byte) (*Config, error) {
	return parse(data, os.LookupEnv)
}

func parse(data []byte, lookup lookupFunc) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to decode configuration").Build()
	}
	expandSecrets(&cfg, lookup)

	if err := ApplyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Init writes the default configuration to configPath.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ValidationError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}

	data, err := yaml.Marshal(Example())
	if err != nil {
		return fmt.Errorf("marshal example config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write configuration").
			WithContext("path", configPath).
			Build()
	}
	return nil
}

// Example returns the documentation build check for a Python project whose
// docs live under py-polars/docs: install requirements-docs.txt and build
// HTML with Sphinx warnings escalated to errors.
func Example() *Config {
	cancel := true
	return &Config{
		Check: CheckConfig{
			Name: "docs",
			Trigger: TriggerConfig{
				Events:  []string{"pull_request"},
				Actions: []string{"opened", "synchronize", "reopened"},
				Paths: []string{
					"py-polars/docs/**",
					"py-polars/polars/**",
					".github/workflows/docs.yml",
				},
			},
			Concurrency: ConcurrencyConfig{
				Group:            DefaultGroupTemplate,
				CancelInProgress: &cancel,
			},
			Environment: EnvironmentConfig{
				Image:            "ubuntu-latest",
				WorkingDirectory: "py-polars/docs",
				Runtime: RuntimeConfig{
					Name:    "python",
					Version: "3.12",
					Command: "python3",
				},
			},
			Env: map[string]string{"SPHINXOPTS": "-W"},
			Steps: []StepConfig{
				{Name: "Checkout", Uses: StepCheckout},
				{
					Name: "Set up Python",
					Uses: StepSetupRuntime,
					Cache: &StepCacheConfig{
						Manifest: "py-polars/docs/requirements-docs.txt",
					},
				},
				{
					Name:     "Install dependencies",
					Run:      "python -m pip install --upgrade pip\npip install -r requirements-docs.txt",
					Category: FailureDependency,
				},
				{
					Name:             "Build documentation",
					Run:              "make html",
					Category:         FailureGeneration,
					EscalateWarnings: true,
				},
			},
		},
		Daemon: DaemonConfig{
			HTTP: HTTPConfig{
				WebhookPort:  DefaultWebhookPort,
				AdminPort:    DefaultAdminPort,
				AdminAddress: DefaultAdminAddress,
				AdminToken:   "${DOCGATE_ADMIN_TOKEN}",
			},
			Storage: StorageConfig{DataDir: "./docgate-data"},
		},
		Cache: CacheConfig{Backend: CacheBackendLocal},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{Enabled: true},
		},
	}
}
