package steps

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/docgate/internal/git"
)

func (e *Executor) checkout(ctx context.Context, st *State, out *tail) outcome {
	ws := st.Workspace
	if ws.Attached() {
		if sha, err := git.HeadCommit(ws.SourceDir()); err == nil {
			if st.HeadSHA == "" {
				st.HeadSHA = sha
			}
			out.add("using source tree " + ws.SourceDir() + " at " + sha)
		} else {
			out.add("using source tree " + ws.SourceDir() + " (not a git repository)")
		}
		return outcome{}
	}

	ev := st.Event
	if ev.CloneURL == "" {
		return outcome{exitCode: ExitFailure, err: fmt.Errorf("no clone URL for change %q", ev.ChangeRef)}
	}
	sha, err := e.newCheckouter(st.GitAuth).Checkout(ctx, git.CheckoutOptions{
		URL:  ev.CloneURL,
		Ref:  ev.ChangeRef,
		SHA:  ev.HeadSHA,
		Dest: ws.SourceDir(),
	})
	if err != nil {
		return outcome{exitCode: ExitFailure, err: err}
	}
	st.HeadSHA = sha
	out.add("checked out " + sha)
	return outcome{}
}
