package config

import "strings"

// ForgeType enumerates supported forge providers.
type ForgeType string

const (
	ForgeGitHub  ForgeType = "github"
	ForgeGitLab  ForgeType = "gitlab"
	ForgeForgejo ForgeType = "forgejo"
)

// NormalizeForgeType canonicalizes a forge type string (case-insensitive) or returns empty if unknown.
func NormalizeForgeType(raw string) ForgeType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ForgeGitHub):
		return ForgeGitHub
	case string(ForgeGitLab):
		return ForgeGitLab
	case string(ForgeForgejo), "gitea":
		return ForgeForgejo
	default:
		return ""
	}
}

// AuthType enumerates git/forge authentication methods.
type AuthType string

const (
	AuthTypeNone  AuthType = "none"
	AuthTypeToken AuthType = "token"
	AuthTypeBasic AuthType = "basic"
)

// AuthConfig represents authentication configuration.
type AuthConfig struct {
	Type     AuthType `yaml:"type"`
	Token    string   `yaml:"token,omitempty"`
	Username string   `yaml:"username,omitempty"`
	Password string   `yaml:"password,omitempty"`
}

// ForgeConfig represents one forge instance docgate receives events from
// and reports statuses to.
type ForgeConfig struct {
	Name         string         `yaml:"name"`
	Type         ForgeType      `yaml:"type"`
	APIURL       string         `yaml:"api_url,omitempty"`
	BaseURL      string         `yaml:"base_url,omitempty"`
	Auth         *AuthConfig    `yaml:"auth,omitempty"`
	Webhook      *WebhookConfig `yaml:"webhook,omitempty"`
	Repositories []string       `yaml:"repositories,omitempty"`
}

// WebhookConfig configures webhook reception for a forge.
type WebhookConfig struct {
	Secret string `yaml:"secret"`
	Path   string `yaml:"path,omitempty"`
}

// AllowsRepository reports whether events for fullName are accepted.
// An empty allow-list accepts every repository.
func (f *ForgeConfig) AllowsRepository(fullName string) bool {
	if len(f.Repositories) == 0 {
		return true
	}
	for _, r := range f.Repositories {
		if strings.EqualFold(r, fullName) {
			return true
		}
	}
	return false
}
