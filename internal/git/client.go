package git

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/logfields"
)

// changeRef is where a fetched non-branch change reference is stored locally.
const changeRef = "refs/remotes/origin/docgate-change"

// Client performs checkouts with optional forge credentials.
type Client struct {
	auth *config.AuthConfig
}

// NewClient creates a git client. auth may be nil for public repositories.
func NewClient(auth *config.AuthConfig) *Client {
	return &Client{auth: auth}
}

// CheckoutOptions selects the revision to materialise.
type CheckoutOptions struct {
	URL string
	// Ref is a branch name, refs/heads/..., or a change ref such as
	// refs/pull/7/head or refs/merge-requests/7/head.
	Ref string
	// SHA pins the exact commit; when empty the tip of Ref (or HEAD) is used.
	SHA  string
	Dest string
}

// Checkout clones opts.URL into opts.Dest and checks out the requested
// revision. It returns the checked-out commit hash.
func (c *Client) Checkout(ctx context.Context, opts CheckoutOptions) (string, error) {
	auth := authMethod(c.auth)
	slog.Debug("Cloning repository", logfields.URL(redactURL(opts.URL)), logfields.ChangeRef(opts.Ref), logfields.Path(opts.Dest))

	repo, err := git.PlainCloneContext(ctx, opts.Dest, false, &git.CloneOptions{
		URL:        opts.URL,
		Auth:       auth,
		NoCheckout: true,
		Tags:       git.NoTags,
	})
	if err != nil {
		return "", ClassifyGitError(err, "clone", opts.URL)
	}

	target := plumbing.ReferenceName("HEAD")
	if ref := opts.Ref; ref != "" {
		switch {
		case strings.HasPrefix(ref, "refs/heads/"):
			target = plumbing.NewRemoteReferenceName("origin", strings.TrimPrefix(ref, "refs/heads/"))
		case strings.HasPrefix(ref, "refs/"):
			spec := gitconfig.RefSpec("+" + ref + ":" + changeRef)
			fetchErr := repo.FetchContext(ctx, &git.FetchOptions{
				RefSpecs: []gitconfig.RefSpec{spec},
				Auth:     auth,
				Tags:     git.NoTags,
			})
			if fetchErr != nil && !stderrors.Is(fetchErr, git.NoErrAlreadyUpToDate) {
				return "", ClassifyGitError(fetchErr, "fetch", opts.URL)
			}
			target = changeRef
		default:
			target = plumbing.NewRemoteReferenceName("origin", ref)
		}
	}

	var hash plumbing.Hash
	if opts.SHA != "" {
		hash = plumbing.NewHash(opts.SHA)
		if _, err := repo.CommitObject(hash); err != nil {
			return "", GitError("commit not found after fetch").
				WithCause(err).
				WithContext("sha", opts.SHA).
				WithContext("ref", opts.Ref).
				Build()
		}
	} else {
		resolved, err := repo.ResolveRevision(plumbing.Revision(target))
		if err != nil {
			return "", ClassifyGitError(err, "resolve", opts.URL)
		}
		hash = *resolved
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", ClassifyGitError(err, "worktree", opts.URL)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return "", ClassifyGitError(err, "checkout", opts.URL)
	}

	slog.Info("Checked out revision", logfields.Commit(hash.String()), logfields.ChangeRef(opts.Ref), logfields.Path(opts.Dest))
	return hash.String(), nil
}
