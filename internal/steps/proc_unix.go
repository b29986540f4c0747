//go:build unix

package steps

import (
	"os/exec"
	"syscall"
)

// setProcessGroup runs cmd in its own process group and makes context
// cancellation kill the whole group, so generator subprocesses die too.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
