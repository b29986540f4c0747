package config

// Config represents the docgate configuration file.
type Config struct {
	Check      CheckConfig      `yaml:"check"`
	Forges     []*ForgeConfig   `yaml:"forges,omitempty"`
	Daemon     DaemonConfig     `yaml:"daemon"`
	Cache      CacheConfig      `yaml:"cache"`
	Events     EventsConfig     `yaml:"events"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// CheckConfig describes the documentation build check task.
type CheckConfig struct {
	Name        string            `yaml:"name"`
	Trigger     TriggerConfig     `yaml:"trigger"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Environment EnvironmentConfig `yaml:"environment"`
	Env         map[string]string `yaml:"env,omitempty"`
	Steps       []StepConfig      `yaml:"steps"`
}

// TriggerConfig declares which events and changed paths start a run.
type TriggerConfig struct {
	Events  []string `yaml:"events,omitempty"`
	Actions []string `yaml:"actions,omitempty"`
	Paths   []string `yaml:"paths"`
}

// ConcurrencyConfig declares the supersede policy for runs sharing a group.
type ConcurrencyConfig struct {
	// Group may reference ${check}, ${repo} and ${ref}. ${repo} is the
	// forge-qualified repository, so equal refs in different repositories
	// only share a group when the template omits it.
	Group            string `yaml:"group,omitempty"`
	CancelInProgress *bool  `yaml:"cancel_in_progress,omitempty"`
}

// CancelsInProgress reports the effective supersede policy (default true).
func (c ConcurrencyConfig) CancelsInProgress() bool {
	return c.CancelInProgress == nil || *c.CancelInProgress
}

// EnvironmentConfig declares the sandbox the steps execute in.
type EnvironmentConfig struct {
	Image            string        `yaml:"image,omitempty"`
	WorkingDirectory string        `yaml:"working_directory,omitempty"`
	Runtime          RuntimeConfig `yaml:"runtime"`
	KeepWorkspaces   bool          `yaml:"keep_workspaces,omitempty"`
	// PassEnv names extra process variables handed to steps on top of the
	// built-in allow-list.
	PassEnv []string `yaml:"pass_env,omitempty"`
}

// RuntimeConfig pins the language runtime used by the steps.
type RuntimeConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Command string `yaml:"command,omitempty"`
}

// StepKind enumerates supported step actions.
type StepKind string

const (
	StepCheckout     StepKind = "checkout"
	StepSetupRuntime StepKind = "setup-runtime"
	StepRun          StepKind = "run"
	StepVerifyOutput StepKind = "verify-output"
)

// FailureCategory classifies a failing step.
type FailureCategory string

const (
	FailureProvision  FailureCategory = "provision"
	FailureDependency FailureCategory = "dependency"
	FailureGeneration FailureCategory = "generation"
)

// StepConfig is a single ordered action of the check.
type StepConfig struct {
	Name             string            `yaml:"name,omitempty"`
	Uses             StepKind          `yaml:"uses,omitempty"`
	Run              string            `yaml:"run,omitempty"`
	WorkingDirectory string            `yaml:"working_directory,omitempty"`
	Env              map[string]string `yaml:"env,omitempty"`
	Category         FailureCategory   `yaml:"category,omitempty"`
	EscalateWarnings bool              `yaml:"escalate_warnings,omitempty"`
	WarningPatterns  []string          `yaml:"warning_patterns,omitempty"`
	Cache            *StepCacheConfig  `yaml:"cache,omitempty"`
	Output           string            `yaml:"output,omitempty"`
	Timeout          string            `yaml:"timeout,omitempty"`
}

// StepCacheConfig configures the dependency cache restored by setup-runtime.
type StepCacheConfig struct {
	Manifest string `yaml:"manifest"`
	Path     string `yaml:"path,omitempty"`
}

// DisplayName returns the step name or a fallback derived from its action.
func (s StepConfig) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Uses == StepRun || s.Uses == "" {
		return "Run " + firstLine(s.Run)
	}
	return string(s.Uses)
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

// DaemonConfig configures daemon mode.
type DaemonConfig struct {
	HTTP             HTTPConfig    `yaml:"http"`
	Storage          StorageConfig `yaml:"storage"`
	Workers          int           `yaml:"workers,omitempty"`
	QueueSize        int           `yaml:"queue_size,omitempty"`
	HistorySize      int           `yaml:"history_size,omitempty"`
	HistoryRetention string        `yaml:"history_retention,omitempty"`
	CompactSchedule  string        `yaml:"compact_schedule,omitempty"`
	PublicURL        string        `yaml:"public_url,omitempty"`
}

// HTTPConfig configures the HTTP listeners.
type HTTPConfig struct {
	WebhookPort    int    `yaml:"webhook_port,omitempty"`
	WebhookAddress string `yaml:"webhook_address,omitempty"`
	AdminPort      int    `yaml:"admin_port,omitempty"`
	// AdminAddress is the admin listener's bind address; it defaults to
	// loopback because the admin API can start runs.
	AdminAddress string `yaml:"admin_address,omitempty"`
	// AdminToken is the bearer token POST /runs requires. Manual runs are
	// refused while it is empty.
	AdminToken string `yaml:"admin_token,omitempty"`
}

// StorageConfig configures where daemon state lives.
type StorageConfig struct {
	DataDir    string `yaml:"data_dir,omitempty"`
	EventStore string `yaml:"event_store,omitempty"`
}

// CacheBackend enumerates dependency cache stores.
type CacheBackend string

const (
	CacheBackendNone  CacheBackend = "none"
	CacheBackendLocal CacheBackend = "local"
	CacheBackendMinIO CacheBackend = "minio"
)

// CacheConfig configures the dependency cache store.
type CacheConfig struct {
	Backend       CacheBackend `yaml:"backend,omitempty"`
	Dir           string       `yaml:"dir,omitempty"`
	MaxAge        string       `yaml:"max_age,omitempty"`
	PruneSchedule string       `yaml:"prune_schedule,omitempty"`
	MinIO         *MinIOConfig `yaml:"minio,omitempty"`
}

// MinIOConfig configures an S3-compatible cache bucket.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region,omitempty"`
	UseSSL    bool   `yaml:"use_ssl,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
}

// EventsConfig configures external run notifications.
type EventsConfig struct {
	NATS *NATSConfig `yaml:"nats,omitempty"`
}

// NATSConfig configures the NATS JetStream publisher.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject,omitempty"`
	Stream  string `yaml:"stream,omitempty"`
}

// MonitoringConfig configures metrics exposure.
type MonitoringConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}
