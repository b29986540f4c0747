// Package runtime locates the pinned language runtime a check runs on.
package runtime

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
)

const probeTimeout = 30 * time.Second

var versionPattern = regexp.MustCompile(`\d+(?:\.\d+)+(?:[a-z]+\d*)?`)

// Runtime is a resolved interpreter.
type Runtime struct {
	Name     string
	Pinned   string
	Reported string
	Path     string
}

// Dir returns the directory holding the interpreter, prepended to PATH for
// later steps.
func (r *Runtime) Dir() string {
	return filepath.Dir(r.Path)
}

// Locate finds cfg.Command on searchPath (os.PathListSeparator separated; the
// process PATH when empty) and verifies that `<command> --version` reports a
// version starting with cfg.Version.
func Locate(ctx context.Context, cfg config.RuntimeConfig, searchPath string) (*Runtime, error) {
	if searchPath == "" {
		searchPath = os.Getenv("PATH")
	}
	command := cfg.Command
	if command == "" {
		command = cfg.Name
	}

	bin, err := lookPath(command, searchPath)
	if err != nil {
		return nil, errors.ProvisionError("runtime not found on PATH").
			WithCause(err).
			WithContext("runtime", cfg.Name).
			WithContext("command", command).
			Build()
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	// #nosec G204 -- bin comes from the check configuration
	cmd := exec.CommandContext(ctx, bin, "--version")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return nil, errors.WrapError(err, errors.CategoryProvision, "runtime version probe failed").
			WithContext("path", bin).
			WithContext("output", strings.TrimSpace(out.String())).
			Build()
	}

	reported := versionPattern.FindString(out.String())
	if reported == "" {
		return nil, errors.ProvisionError("could not parse runtime version").
			WithContext("path", bin).
			WithContext("output", strings.TrimSpace(out.String())).
			Build()
	}
	if !VersionMatches(cfg.Version, reported) {
		return nil, errors.ProvisionError("runtime version does not match pinned version").
			WithContext("runtime", cfg.Name).
			WithContext("pinned", cfg.Version).
			WithContext("reported", reported).
			Build()
	}

	return &Runtime{Name: cfg.Name, Pinned: cfg.Version, Reported: reported, Path: bin}, nil
}

// VersionMatches reports whether reported starts with pinned on a component
// boundary: "3.12" matches "3.12.4" but not "3.120.0".
func VersionMatches(pinned, reported string) bool {
	pinned = strings.TrimPrefix(strings.TrimSpace(pinned), "v")
	if pinned == "" {
		return true
	}
	if !strings.HasPrefix(reported, pinned) {
		return false
	}
	rest := reported[len(pinned):]
	return rest == "" || rest[0] < '0' || rest[0] > '9'
}

// lookPath mirrors exec.LookPath against an explicit search path.
func lookPath(command, searchPath string) (string, error) {
	if strings.ContainsRune(command, filepath.Separator) {
		if isExecutable(command) {
			return filepath.Abs(command)
		}
		return "", exec.ErrNotFound
	}
	for _, dir := range filepath.SplitList(searchPath) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, command)
		if isExecutable(candidate) {
			return filepath.Abs(candidate)
		}
	}
	return "", exec.ErrNotFound
}

func isExecutable(p string) bool {
	fi, err := os.Stat(p)
	if err != nil || fi.IsDir() {
		return false
	}
	return fi.Mode().Perm()&0o111 != 0
}
