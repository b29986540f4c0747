package steps

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/logfields"
)

// waitDelay bounds how long Wait blocks on output pipes after the process
// group was killed.
const waitDelay = 5 * time.Second

func (e *Executor) run(ctx context.Context, st *State, step config.StepConfig, out *tail) outcome {
	var o outcome

	matcher, err := newWarningMatcher(step.WarningPatterns)
	if err != nil {
		return outcome{exitCode: ExitFailure, err: fmt.Errorf("invalid warning pattern: %w", err)}
	}

	dir := st.WorkDir(step)
	if fi, statErr := os.Stat(dir); statErr != nil || !fi.IsDir() {
		return outcome{exitCode: ExitFailure, err: fmt.Errorf("working directory %s does not exist", dir)}
	}

	lw := &lineWriter{
		out: e.output,
		onLine: func(line string) {
			slog.Debug("Step output", slog.String("line", line), logfields.RunID(st.RunID), logfields.Step(step.DisplayName()))
			out.add(line)
			if matcher.match(line) {
				o.addWarning(line)
			}
		},
	}

	// #nosec G204 -- commands come from the check configuration
	cmd := exec.CommandContext(ctx, "sh", "-c", step.Run)
	cmd.Dir = dir
	cmd.Env = st.Environ(step)
	cmd.Stdout = lw
	cmd.Stderr = lw
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	runErr := cmd.Run()
	lw.Flush()

	if runErr != nil {
		var exitErr *exec.ExitError
		if stderrors.As(runErr, &exitErr) && exitErr.ExitCode() > 0 {
			o.exitCode = exitErr.ExitCode()
			return o
		}
		o.exitCode = ExitFailure
		o.err = runErr
	}
	return o
}
