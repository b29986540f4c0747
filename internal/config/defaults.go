package config

import (
	"strings"
)

// DefaultApplier applies defaults to one section of the configuration.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// Default values shared by the applier and the CLI.
const (
	DefaultCheckName        = "docs"
	DefaultGroupTemplate    = "${check}-${repo}-${ref}"
	DefaultImage            = "ubuntu-latest"
	DefaultWebhookPort      = 8081
	DefaultAdminPort        = 8082
	DefaultAdminAddress     = "127.0.0.1"
	DefaultDataDir          = "./docgate-data"
	DefaultWorkers          = 2
	DefaultQueueSize        = 100
	DefaultHistorySize      = 50
	DefaultHistoryRetention = "720h"
	DefaultCompactSchedule  = "24h"
	DefaultCacheMaxAge      = "168h"
	DefaultPruneSchedule    = "6h"
	DefaultNATSSubject      = "docgate.runs"
	DefaultMetricsPath      = "/metrics"
)

// DefaultWarningPatterns match diagnostics treated as warnings when a step
// escalates warnings to errors.
var DefaultWarningPatterns = []string{`WARNING:`, `(?i)^warning:`}

// ApplyDefaults fills unset fields across every configuration domain.
func ApplyDefaults(cfg *Config) error {
	appliers := []DefaultApplier{
		&checkDefaultApplier{},
		&daemonDefaultApplier{},
		&cacheDefaultApplier{},
		&eventsDefaultApplier{},
		&monitoringDefaultApplier{},
	}
	for _, a := range appliers {
		if err := a.ApplyDefaults(cfg); err != nil {
			return err
		}
	}
	return nil
}

type checkDefaultApplier struct{}

func (checkDefaultApplier) Domain() string { return "check" }

func (checkDefaultApplier) ApplyDefaults(cfg *Config) error {
	c := &cfg.Check
	if c.Name == "" {
		c.Name = DefaultCheckName
	}
	if len(c.Trigger.Events) == 0 {
		c.Trigger.Events = []string{"pull_request"}
	}
	if len(c.Trigger.Actions) == 0 {
		c.Trigger.Actions = []string{"opened", "synchronize", "reopened"}
	}
	if c.Concurrency.Group == "" {
		c.Concurrency.Group = DefaultGroupTemplate
	}
	if c.Environment.Image == "" {
		c.Environment.Image = DefaultImage
	}
	if c.Environment.Runtime.Command == "" {
		c.Environment.Runtime.Command = defaultRuntimeCommand(c.Environment.Runtime.Name)
	}
	for i := range c.Steps {
		s := &c.Steps[i]
		if s.Uses == "" {
			s.Uses = StepRun
		}
		if s.Category == "" {
			s.Category = defaultCategory(s.Uses)
		}
		if s.EscalateWarnings && len(s.WarningPatterns) == 0 {
			s.WarningPatterns = append([]string(nil), DefaultWarningPatterns...)
		}
	}
	return nil
}

func defaultRuntimeCommand(name string) string {
	switch strings.ToLower(name) {
	case "python", "":
		return "python3"
	default:
		return strings.ToLower(name)
	}
}

func defaultCategory(kind StepKind) FailureCategory {
	switch kind {
	case StepCheckout, StepSetupRuntime:
		return FailureProvision
	default:
		return FailureGeneration
	}
}

type daemonDefaultApplier struct{}

func (daemonDefaultApplier) Domain() string { return "daemon" }

func (daemonDefaultApplier) ApplyDefaults(cfg *Config) error {
	d := &cfg.Daemon
	if d.HTTP.WebhookPort == 0 {
		d.HTTP.WebhookPort = DefaultWebhookPort
	}
	if d.HTTP.AdminPort == 0 {
		d.HTTP.AdminPort = DefaultAdminPort
	}
	if d.HTTP.AdminAddress == "" {
		d.HTTP.AdminAddress = DefaultAdminAddress
	}
	if d.Storage.DataDir == "" {
		d.Storage.DataDir = DefaultDataDir
	}
	if d.Workers == 0 {
		d.Workers = DefaultWorkers
	}
	if d.QueueSize == 0 {
		d.QueueSize = DefaultQueueSize
	}
	if d.HistorySize == 0 {
		d.HistorySize = DefaultHistorySize
	}
	if d.HistoryRetention == "" {
		d.HistoryRetention = DefaultHistoryRetention
	}
	if d.CompactSchedule == "" {
		d.CompactSchedule = DefaultCompactSchedule
	}
	for _, f := range cfg.Forges {
		if f == nil {
			continue
		}
		if nt := NormalizeForgeType(string(f.Type)); nt != "" {
			f.Type = nt
		}
		if f.APIURL == "" {
			f.APIURL = defaultAPIURL(f.Type)
		}
		if f.BaseURL == "" {
			f.BaseURL = defaultBaseURL(f.Type)
		}
		if f.Auth == nil {
			f.Auth = &AuthConfig{Type: AuthTypeNone}
		}
		if f.Webhook != nil && f.Webhook.Path == "" {
			f.Webhook.Path = "/webhooks/" + f.Name
		}
	}
	return nil
}

func defaultAPIURL(t ForgeType) string {
	switch t {
	case ForgeGitHub:
		return "https://api.github.com"
	case ForgeGitLab:
		return "https://gitlab.com/api/v4"
	default:
		return ""
	}
}

func defaultBaseURL(t ForgeType) string {
	switch t {
	case ForgeGitHub:
		return "https://github.com"
	case ForgeGitLab:
		return "https://gitlab.com"
	default:
		return ""
	}
}

type cacheDefaultApplier struct{}

func (cacheDefaultApplier) Domain() string { return "cache" }

func (cacheDefaultApplier) ApplyDefaults(cfg *Config) error {
	c := &cfg.Cache
	if c.Backend == "" {
		c.Backend = CacheBackendLocal
	}
	if c.Dir == "" {
		c.Dir = cfg.Daemon.Storage.DataDir + "/cache"
	}
	if c.MaxAge == "" {
		c.MaxAge = DefaultCacheMaxAge
	}
	if c.PruneSchedule == "" {
		c.PruneSchedule = DefaultPruneSchedule
	}
	return nil
}

type eventsDefaultApplier struct{}

func (eventsDefaultApplier) Domain() string { return "events" }

func (eventsDefaultApplier) ApplyDefaults(cfg *Config) error {
	if n := cfg.Events.NATS; n != nil && n.Subject == "" {
		n.Subject = DefaultNATSSubject
	}
	return nil
}

type monitoringDefaultApplier struct{}

func (monitoringDefaultApplier) Domain() string { return "monitoring" }

func (monitoringDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Monitoring.Metrics.Path == "" {
		cfg.Monitoring.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	return nil
}
