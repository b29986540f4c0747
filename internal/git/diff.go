package git

import (
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ChangedPaths lists the repository-relative paths that differ between the
// merge base of base and head, and head. Renames contribute both names.
func ChangedPaths(repoDir, base, head string) ([]string, error) {
	repo, err := openRepo(repoDir)
	if err != nil {
		return nil, err
	}
	if head == "" {
		head = "HEAD"
	}

	baseCommit, err := commitAt(repo, base)
	if err != nil {
		return nil, err
	}
	headCommit, err := commitAt(repo, head)
	if err != nil {
		return nil, err
	}

	from := baseCommit
	if bases, mbErr := baseCommit.MergeBase(headCommit); mbErr == nil && len(bases) > 0 {
		from = bases[0]
	}

	fromTree, err := from.Tree()
	if err != nil {
		return nil, ClassifyGitError(err, "tree", repoDir)
	}
	headTree, err := headCommit.Tree()
	if err != nil {
		return nil, ClassifyGitError(err, "tree", repoDir)
	}
	changes, err := object.DiffTree(fromTree, headTree)
	if err != nil {
		return nil, ClassifyGitError(err, "diff", repoDir)
	}

	seen := make(map[string]struct{}, len(changes))
	for _, ch := range changes {
		for _, name := range []string{ch.From.Name, ch.To.Name} {
			if name != "" {
				seen[name] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// HeadCommit returns the commit hash HEAD points to.
func HeadCommit(repoDir string) (string, error) {
	repo, err := openRepo(repoDir)
	if err != nil {
		return "", err
	}
	ref, err := repo.Head()
	if err != nil {
		return "", ClassifyGitError(err, "head", repoDir)
	}
	return ref.Hash().String(), nil
}

func openRepo(dir string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, GitError("not a git repository").WithCause(err).WithContext("path", dir).Build()
	}
	return repo, nil
}

func commitAt(repo *git.Repository, rev string) (*object.Commit, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, GitError("cannot resolve revision").WithCause(err).WithContext("revision", rev).Build()
	}
	c, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, GitError("cannot load commit").WithCause(err).WithContext("revision", rev).Build()
	}
	return c, nil
}
