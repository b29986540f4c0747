package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
)

// ValidateConfig validates the complete configuration structure.
func ValidateConfig(cfg *Config) error {
	return newConfigurationValidator(cfg).validate()
}

// configurationValidator coordinates validation across all configuration domains.
type configurationValidator struct {
	config *Config
}

func newConfigurationValidator(config *Config) *configurationValidator {
	return &configurationValidator{config: config}
}

func (cv *configurationValidator) validate() error {
	checks := []func() error{
		cv.validateCheck,
		cv.validateSteps,
		cv.validateForges,
		cv.validateDaemon,
		cv.validateCache,
		cv.validateEvents,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func invalid(msg string, args ...any) *errors.ErrorBuilder {
	return errors.ValidationError(fmt.Sprintf(msg, args...))
}

func (cv *configurationValidator) validateCheck() error {
	c := cv.config.Check
	if strings.TrimSpace(c.Name) == "" {
		return invalid("check name cannot be empty").Build()
	}
	if len(c.Trigger.Paths) == 0 {
		return invalid("check trigger must declare at least one path pattern").
			WithContext("check", c.Name).
			Build()
	}
	for _, p := range c.Trigger.Paths {
		pattern := strings.TrimPrefix(p, "!")
		if pattern == "" || !doublestar.ValidatePattern(pattern) {
			return invalid("invalid trigger path pattern: %q", p).
				WithContext("check", c.Name).
				Build()
		}
	}
	if c.Environment.Runtime.Name == "" || c.Environment.Runtime.Version == "" {
		return invalid("environment runtime name and version are required").
			WithContext("check", c.Name).
			Build()
	}
	if strings.HasPrefix(c.Environment.WorkingDirectory, "/") || containsDotDot(c.Environment.WorkingDirectory) {
		return invalid("working directory must be relative to the checkout: %q", c.Environment.WorkingDirectory).Build()
	}
	return nil
}

func (cv *configurationValidator) validateSteps() error {
	steps := cv.config.Check.Steps
	if len(steps) == 0 {
		return invalid("check must declare at least one step").Build()
	}

	seenCheckout := false
	for i, s := range steps {
		ctx := map[string]any{"step": s.DisplayName(), "index": i}
		switch s.Uses {
		case StepCheckout:
			seenCheckout = true
		case StepSetupRuntime:
			if s.Cache != nil && s.Cache.Manifest == "" {
				return invalid("setup-runtime cache requires a manifest path").WithContextMap(ctx).Build()
			}
		case StepRun:
			if strings.TrimSpace(s.Run) == "" {
				return invalid("run step has no command").WithContextMap(ctx).Build()
			}
		case StepVerifyOutput:
			if s.Output == "" {
				return invalid("verify-output step requires an output directory").WithContextMap(ctx).Build()
			}
		default:
			return invalid("unknown step action: %q", s.Uses).WithContextMap(ctx).Build()
		}
		if s.Uses != StepCheckout && !seenCheckout {
			return invalid("step runs before the checkout step").WithContextMap(ctx).Build()
		}

		switch s.Category {
		case FailureProvision, FailureDependency, FailureGeneration:
		default:
			return invalid("unknown failure category: %q", s.Category).WithContextMap(ctx).Build()
		}

		for _, p := range s.WarningPatterns {
			if _, err := regexp.Compile(p); err != nil {
				return errors.WrapError(err, errors.CategoryValidation, "invalid warning pattern").
					WithContextMap(ctx).
					WithContext("pattern", p).
					Build()
			}
		}
		if s.Timeout != "" {
			if _, err := time.ParseDuration(s.Timeout); err != nil {
				return errors.WrapError(err, errors.CategoryValidation, "invalid step timeout").
					WithContextMap(ctx).
					Build()
			}
		}
	}
	return nil
}

func (cv *configurationValidator) validateForges() error {
	names := make(map[string]bool)
	for _, f := range cv.config.Forges {
		if f == nil {
			return invalid("forge entry cannot be empty").Build()
		}
		if f.Name == "" {
			return invalid("forge name cannot be empty").Build()
		}
		if names[f.Name] {
			return invalid("duplicate forge name: %s", f.Name).Build()
		}
		names[f.Name] = true

		if NormalizeForgeType(string(f.Type)) == "" {
			return invalid("unsupported forge type: %q", f.Type).WithContext("forge", f.Name).Build()
		}
		if f.APIURL == "" {
			return invalid("forge api_url is required").WithContext("forge", f.Name).Build()
		}
		if f.Webhook != nil && f.Webhook.Secret == "" {
			return invalid("forge webhook requires a secret").WithContext("forge", f.Name).Build()
		}
		if f.Auth != nil {
			switch f.Auth.Type {
			case AuthTypeNone, "":
			case AuthTypeToken:
				if f.Auth.Token == "" {
					return invalid("token auth requires a token").WithContext("forge", f.Name).Build()
				}
			case AuthTypeBasic:
				if f.Auth.Username == "" || f.Auth.Password == "" {
					return invalid("basic auth requires username and password").WithContext("forge", f.Name).Build()
				}
			default:
				return invalid("unsupported auth type: %q", f.Auth.Type).WithContext("forge", f.Name).Build()
			}
		}
	}
	return nil
}

func (cv *configurationValidator) validateDaemon() error {
	d := cv.config.Daemon
	for name, port := range map[string]int{"webhook_port": d.HTTP.WebhookPort, "admin_port": d.HTTP.AdminPort} {
		if port < 0 || port > 65535 {
			return invalid("invalid %s: %d", name, port).Build()
		}
	}
	if d.HTTP.WebhookPort != 0 && d.HTTP.WebhookPort == d.HTTP.AdminPort {
		return invalid("webhook_port and admin_port must differ").Build()
	}
	if d.Workers < 1 {
		return invalid("daemon workers must be at least 1").Build()
	}
	if d.QueueSize < 1 {
		return invalid("daemon queue_size must be at least 1").Build()
	}
	for name, v := range map[string]string{"history_retention": d.HistoryRetention, "compact_schedule": d.CompactSchedule} {
		if err := validDuration(name, v); err != nil {
			return err
		}
	}
	return nil
}

func (cv *configurationValidator) validateCache() error {
	c := cv.config.Cache
	switch c.Backend {
	case CacheBackendNone, CacheBackendLocal:
	case CacheBackendMinIO:
		if c.MinIO == nil || c.MinIO.Endpoint == "" || c.MinIO.Bucket == "" {
			return invalid("minio cache backend requires endpoint and bucket").Build()
		}
	default:
		return invalid("unsupported cache backend: %q", c.Backend).Build()
	}
	if err := validDuration("cache max_age", c.MaxAge); err != nil {
		return err
	}
	return validDuration("cache prune_schedule", c.PruneSchedule)
}

func (cv *configurationValidator) validateEvents() error {
	n := cv.config.Events.NATS
	if n != nil && n.Enabled && n.URL == "" {
		return invalid("nats events require a url").Build()
	}
	return nil
}

func validDuration(name, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return errors.WrapError(err, errors.CategoryValidation, "invalid duration").
			WithContext("field", name).
			WithContext("value", v).
			Build()
	}
	if d <= 0 {
		return invalid("%s must be positive", name).WithContext("value", v).Build()
	}
	return nil
}

func containsDotDot(p string) bool {
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}
