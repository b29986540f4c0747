package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"github.com/joho/godotenv"
)

// envFiles are tried in order; the first existing file wins.
var envFiles = []string{".env", ".env.local"}

// envRef matches a ${NAME} reference. Bare $NAME is left alone so that
// secrets containing a dollar sign survive.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// lookupFunc resolves one variable name.
type lookupFunc func(name string) (string, bool)

// loadEnvFile reads variables from the first .env/.env.local file found.
// The values are only used to expand configuration references and are not
// exported into the process environment, so check steps never inherit them.
func loadEnvFile() (map[string]string, error) {
	for _, envPath := range envFiles {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		vars, err := godotenv.Read(envPath)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", envPath, err)
		}
		return vars, nil
	}
	return nil, fmt.Errorf("no .env file found")
}

// envLookup resolves names from the process environment first, then from
// fileVars.
func envLookup(fileVars map[string]string) lookupFunc {
	return func(name string) (string, bool) {
		if v, ok := os.LookupEnv(name); ok {
			return v, true
		}
		v, ok := fileVars[name]
		return v, ok
	}
}

// expandRefs replaces ${NAME} references in s. An unset variable expands to
// the empty string, so a missing secret fails validation or disables the
// feature instead of becoming a guessable literal.
func expandRefs(s string, lookup lookupFunc) string {
	if s == "" {
		return s
	}
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		name := envRef.FindStringSubmatch(ref)[1]
		v, ok := lookup(name)
		if !ok {
			slog.Warn("Configuration references an unset variable", slog.String("variable", name))
		}
		return v
	})
}

// expandSecrets expands environment references in the fields that carry
// credentials or endpoints. Check definitions (step commands, step env,
// group templates) are never expanded: they are interpreted by the shell or
// by docgate at run time.
func expandSecrets(cfg *Config, lookup lookupFunc) {
	for _, f := range cfg.Forges {
		if f == nil {
			continue
		}
		f.APIURL = expandRefs(f.APIURL, lookup)
		f.BaseURL = expandRefs(f.BaseURL, lookup)
		if f.Auth != nil {
			f.Auth.Token = expandRefs(f.Auth.Token, lookup)
			f.Auth.Username = expandRefs(f.Auth.Username, lookup)
			f.Auth.Password = expandRefs(f.Auth.Password, lookup)
		}
		if f.Webhook != nil {
			f.Webhook.Secret = expandRefs(f.Webhook.Secret, lookup)
		}
	}
	if m := cfg.Cache.MinIO; m != nil {
		m.Endpoint = expandRefs(m.Endpoint, lookup)
		m.AccessKey = expandRefs(m.AccessKey, lookup)
		m.SecretKey = expandRefs(m.SecretKey, lookup)
	}
	if n := cfg.Events.NATS; n != nil {
		n.URL = expandRefs(n.URL, lookup)
	}
	cfg.Daemon.HTTP.AdminToken = expandRefs(cfg.Daemon.HTTP.AdminToken, lookup)
}
