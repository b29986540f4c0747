package steps

import (
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/linkverify"
)

// verifyOutput checks the generated HTML tree for broken local links. Every
// broken link is a warning, and warnings always fail this step.
func (e *Executor) verifyOutput(st *State, step config.StepConfig, out *tail) outcome {
	root := filepath.Join(st.WorkDir(step), filepath.FromSlash(step.Output))
	report, err := linkverify.VerifyTree(root)
	if err != nil {
		return outcome{exitCode: ExitFailure, err: err}
	}
	if report.Pages == 0 {
		return outcome{exitCode: ExitFailure, err: fmt.Errorf("no HTML pages under %s", step.Output)}
	}

	var o outcome
	for _, b := range report.Broken {
		line := "WARNING: " + b.String()
		out.add(line)
		o.addWarning(line)
	}
	out.add(fmt.Sprintf("checked %d page(s), %d local link(s), %d broken", report.Pages, report.Links, len(report.Broken)))
	if o.nWarn > 0 {
		o.exitCode = ExitFailure
		o.err = fmt.Errorf("%d broken link(s) in %s", o.nWarn, step.Output)
	}
	return o
}
