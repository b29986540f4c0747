//go:build !unix

package steps

import "os/exec"

func setProcessGroup(_ *exec.Cmd) {}
