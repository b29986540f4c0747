package git

import (
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"git.home.luguber.info/inful/docgate/internal/config"
)

// authMethod converts forge credentials into a go-git HTTP auth method.
// Token auth uses the "token" username convention understood by GitHub,
// GitLab and Forgejo.
func authMethod(cfg *config.AuthConfig) transport.AuthMethod {
	if cfg == nil {
		return nil
	}
	switch cfg.Type {
	case config.AuthTypeToken:
		if cfg.Token == "" {
			return nil
		}
		return &http.BasicAuth{Username: "token", Password: cfg.Token}
	case config.AuthTypeBasic:
		return &http.BasicAuth{Username: cfg.Username, Password: cfg.Password}
	default:
		return nil
	}
}
