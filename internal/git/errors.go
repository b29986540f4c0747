package git

import (
	"strings"

	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
)

// GitError simplifies creating a git-scoped ClassifiedError.
func GitError(message string) *errors.ErrorBuilder {
	return errors.NewError(errors.CategoryGit, message)
}

// ClassifyGitError translates go-git errors into ClassifiedErrors.
func ClassifyGitError(err error, op string, url string) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.AsClassified(err); ok {
		return err
	}

	l := strings.ToLower(err.Error())
	builder := GitError("git " + op + " failed").
		WithCause(err).
		WithContext("op", op).
		WithContext("url", redactURL(url))

	switch {
	case strings.Contains(l, "authentication") || strings.Contains(l, "authorization failed") || strings.Contains(l, "invalid credentials"):
		builder.WithCategory(errors.CategoryAuth)
	case strings.Contains(l, "repository not found") || strings.Contains(l, "does not exist") || strings.Contains(l, "couldn't find remote ref"):
		builder.WithCategory(errors.CategoryNotFound)
	case strings.Contains(l, "connection reset") || strings.Contains(l, "timeout") || strings.Contains(l, "no route to host") || strings.Contains(l, "remote hung up"):
		builder.WithCategory(errors.CategoryNetwork)
	case strings.Contains(l, "unsupported protocol") || strings.Contains(l, "protocol not supported"):
		builder.WithCategory(errors.CategoryConfig)
	}
	return builder.Build()
}

// redactURL strips userinfo from clone URLs before they reach logs.
func redactURL(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		if slash := strings.Index(rest, "/"); slash < 0 || at < slash {
			rest = rest[at+1:]
		}
	}
	return scheme + "://" + rest
}
